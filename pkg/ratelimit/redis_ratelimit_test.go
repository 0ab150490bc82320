package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLimiter(t *testing.T) (*RedisRateLimiter, *redis.Client) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 테스트용 DB
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}

	client.FlushDB(ctx)

	return NewRedisRateLimiter(client, "test:ratelimit:", 60, time.Minute), client
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	limiter, client := setupRedisLimiter(t)
	defer client.Close()

	ctx := context.Background()

	// 3회까지 허용
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "user1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	// 4번째는 거부
	allowed, err := limiter.Allow(ctx, "user1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "4th request should be denied")

	// 다른 키는 독립적
	allowed, err = limiter.Allow(ctx, "user2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_Reset(t *testing.T) {
	limiter, client := setupRedisLimiter(t)
	defer client.Close()

	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "user1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "user1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "user1"))

	allowed, err = limiter.Allow(ctx, "user1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}
