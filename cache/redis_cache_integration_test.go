package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap/zaptest"

	"github.com/sharingan/marketpulse/cache"
)

// TestRedisCacheAgainstRealRedis exercises RedisCache against a real Redis
// instance via testcontainers, skipping when Docker is unavailable rather
// than requiring it unconditionally in every environment.
func TestRedisCacheAgainstRealRedis(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(connStr)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	rc := cache.NewRedisCache(client, zaptest.NewLogger(t))

	key, err := cache.Key("market_intelligence", map[string]any{"indices": []string{"NIFTY"}})
	require.NoError(t, err)

	_, ok := rc.Get(ctx, key)
	require.False(t, ok, "expected a miss before any Set")

	payload, err := json.Marshal(map[string]string{"phase": "mid"})
	require.NoError(t, err)
	rc.Set(ctx, key, payload, time.Minute)

	got, ok := rc.Get(ctx, key)
	require.True(t, ok)
	require.JSONEq(t, string(payload), string(got))

	rc.Invalidate(ctx, key)
	_, ok = rc.Get(ctx, key)
	require.False(t, ok, "expected a miss after Invalidate")
}
