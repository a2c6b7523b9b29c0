package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoverFM/config"
	"CoverFM/logger"

	"github.com/go-redis/redis/v8"
)

// ConnectRedis 初始化Redis连接
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// TestRedis 测试Redis基本读写
func TestRedis(ctx context.Context, client *redis.Client) error {
	const key = "coverfm:test_key"
	const want = "Redis connection successful!"

	if err := client.Set(ctx, key, want, time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set Redis key: %w", err)
	}
	val, err := client.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to get Redis key: %w", err)
	}
	if val != want {
		return fmt.Errorf("unexpected value from Redis: got %s", val)
	}
	if err := client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete Redis key: %w", err)
	}
	return nil
}

// RedisResponseCache 使用 Redis 过期时间实现 TTL
type RedisResponseCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisResponseCache ttl 为默认过期时间
func NewRedisResponseCache(client *redis.Client, prefix string, ttl time.Duration) *RedisResponseCache {
	return &RedisResponseCache{client: client, prefix: prefix, ttl: ttl}
}

// Get 未命中或 Redis 出错都按未命中处理，调用方继续请求 API
func (c *RedisResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("读取响应缓存失败", logger.String("key", key), logger.ErrorField(err))
		}
		return nil, false
	}
	return data, true
}

func (c *RedisResponseCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		logger.Error("写入响应缓存失败",
			logger.String("key", key),
			logger.Int("dataSize", len(data)),
			logger.ErrorField(err))
		return err
	}
	return nil
}
