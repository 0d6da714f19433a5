package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis connects to TEST_REDIS_ADDR and skips when it is unset or
// unreachable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestTokenStorage_InvalidateAndCheck(t *testing.T) {
	client := setupTestRedis(t)
	store := NewTokenStorage(client)
	ctx := context.Background()
	jti := uuid.NewString()

	revoked, err := store.IsTokenInvalidated(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.InvalidateToken(ctx, jti, time.Minute))

	revoked, err = store.IsTokenInvalidated(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestTokenStorage_NonPositiveExpirationIsNoop(t *testing.T) {
	client := setupTestRedis(t)
	store := NewTokenStorage(client)
	ctx := context.Background()
	jti := uuid.NewString()

	require.NoError(t, store.InvalidateToken(ctx, jti, 0))
	revoked, err := store.IsTokenInvalidated(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRateCounter_WindowsAreIndependent(t *testing.T) {
	client := setupTestRedis(t)
	counter := NewRateCounter(client)
	ctx := context.Background()
	key := "test:" + uuid.NewString()
	start := time.Now().Truncate(time.Minute)

	for i := int64(1); i <= 3; i++ {
		n, err := counter.Incr(ctx, key, start, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := counter.Incr(ctx, key, start.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
