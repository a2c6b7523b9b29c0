package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"CoverFM/core/utils"
	"CoverFM/logger"
)

// ResponseCache 缓存外部 API 的原始响应
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// RequestKey 对请求参数元组做 MD5
func RequestKey(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// FileResponseCache 以 <md5>.json 存放在目录下，按文件修改时间判断过期
type FileResponseCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewFileResponseCache ttl 为默认过期时间
func NewFileResponseCache(dir string, ttl time.Duration) (*FileResponseCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建响应缓存目录失败: %w", err)
	}
	return &FileResponseCache{dir: dir, ttl: ttl, now: time.Now}, nil
}

func (c *FileResponseCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get 过期的条目视为不存在，绝不返回旧数据
func (c *FileResponseCache) Get(_ context.Context, key string) ([]byte, bool) {
	p := c.path(key)
	info, err := os.Stat(p)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(info.ModTime()) > c.ttl {
		logger.Debug("响应缓存已过期", logger.String("key", key))
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// Set 写入缓存；ttl 参数忽略，过期由修改时间和默认 ttl 决定
func (c *FileResponseCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	return utils.WriteFileAtomic(c.path(key), data)
}
