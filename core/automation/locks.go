package automation

import (
	"context"
	"strings"
	"sync"
)

// EndpointLocks 每个 WebUI 地址一把锁，同一实例上的会话串行执行
type EndpointLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewEndpointLocks() *EndpointLocks {
	return &EndpointLocks{slots: make(map[string]chan struct{})}
}

func (l *EndpointLocks) slot(endpoint string) chan struct{} {
	key := strings.TrimRight(strings.ToLower(endpoint), "/")
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire 阻塞直到拿到 endpoint 的锁或 ctx 结束。返回的 release 只能调用一次。
func (l *EndpointLocks) Acquire(ctx context.Context, endpoint string) (func(), error) {
	ch := l.slot(endpoint)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
