package cache

import (
	"sync"
	"time"
)

// SelectorCounter 为同一 (会话, 歌名) 轮换候选序号，条目超过 ttl 后重新从 1 开始
type SelectorCounter struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	now     func() time.Time
	entries map[string]selectorEntry
}

type selectorEntry struct {
	next    int
	touched time.Time
}

// NewSelectorCounter max 为序号上限
func NewSelectorCounter(max int, ttl time.Duration) *SelectorCounter {
	if max <= 0 {
		max = 10
	}
	return &SelectorCounter{
		max:     max,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]selectorEntry),
	}
}

// Next 返回本次使用的序号（1..max 循环）
func (c *SelectorCounter) Next(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evictLocked(now)

	e, ok := c.entries[key]
	if !ok {
		e = selectorEntry{next: 1}
	}
	n := e.next
	e.next = n%c.max + 1
	e.touched = now
	c.entries[key] = e
	return n
}

// Len 当前未过期条目数
func (c *SelectorCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(c.now())
	return len(c.entries)
}

func (c *SelectorCounter) evictLocked(now time.Time) {
	if c.ttl <= 0 {
		return
	}
	for k, e := range c.entries {
		if now.Sub(e.touched) > c.ttl {
			delete(c.entries, k)
		}
	}
}
