package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"facestore/pkg/platform/sentinel"
)

// Redis key prefix for catalog entries
const redisKeyPrefix = "facestore:cache:"

// RedisCache stores catalog entries in Redis. It is still driven by a single
// facade process; the coherence guarantees come from the facade, not Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a RedisCache instance.
type RedisOption func(*RedisCache)

// WithTTL bounds the lifetime of every entry. Zero keeps entries until evicted.
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

// NewRedis constructs a Redis-backed cache.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *RedisCache) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key Key, value []byte) error {
	if err := c.client.Set(ctx, redisKey(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, redisKey(key))
	}
	if err := c.client.Del(ctx, names...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Health checks the Redis connection.
func (c *RedisCache) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func redisKey(key Key) string {
	return redisKeyPrefix + key.String()
}
