package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/novaangola/apiserver/config"
)

const countKeyPrefix = "novaangola:confirmations:count:"

// CountCache caches confirmation counts per risk area in Redis.
// Writers delete the key; readers repopulate it with a TTL.
type CountCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis. Returns nil if the URL is empty (cache disabled).
func New(ctx context.Context, cfg config.RedisConfig) (*CountCache, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewCountCache(client, cfg.CountTTL), nil
}

// NewCountCache wraps an existing client.
func NewCountCache(client *redis.Client, ttl time.Duration) *CountCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CountCache{client: client, ttl: ttl}
}

// Get returns the cached count. ok is false on a miss.
func (c *CountCache) Get(ctx context.Context, riskAreaID string) (count int64, ok bool, err error) {
	raw, err := c.client.Get(ctx, countKey(riskAreaID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	count, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached count for %s: %w", riskAreaID, err)
	}
	return count, true, nil
}

// Set stores the count with the configured TTL.
func (c *CountCache) Set(ctx context.Context, riskAreaID string, count int64) error {
	return c.client.Set(ctx, countKey(riskAreaID), strconv.FormatInt(count, 10), c.ttl).Err()
}

// Invalidate drops the cached count.
func (c *CountCache) Invalidate(ctx context.Context, riskAreaID string) error {
	return c.client.Del(ctx, countKey(riskAreaID)).Err()
}

// Health checks if the Redis connection is healthy.
func (c *CountCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *CountCache) Close() error {
	return c.client.Close()
}

func countKey(riskAreaID string) string {
	return countKeyPrefix + riskAreaID
}
