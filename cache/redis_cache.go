package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache is a Cache backed by Redis: every operation is best-effort and
// a backend error degrades to a miss/no-op with a logged warning rather than
// propagating to the caller, since a cold or unreachable cache must never
// take down report generation.
type RedisCache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisCache wraps an existing *redis.Client. log may be nil, in which
// case degraded operations are silently swallowed.
func NewRedisCache(client *redis.Client, log *zap.Logger) *RedisCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{client: client, log: log}
}

// Get returns the cached value for key, reporting a miss on any Redis error
// (including redis.Nil); errors other than redis.Nil are also logged.
func (c *RedisCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("cache get degraded", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return json.RawMessage(val), true
}

// Set stores value under key with ttl, logging and swallowing any error.
func (c *RedisCache) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) {
	if err := c.client.Set(ctx, key, []byte(value), ttl).Err(); err != nil {
		c.log.Warn("cache set degraded", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate deletes key, logging and swallowing any error.
func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Warn("cache invalidate degraded", zap.String("key", key), zap.Error(err))
	}
}
