package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisIdempotency_ClaimOnce(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	store := NewRedisIdempotencyStore(client)
	key := "test-" + uuid.NewString()
	defer client.Del(ctx, idempotencyKeyPrefix+key)

	ok, err := store.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	require.NoError(t, store.Release(ctx, key))

	ok, err = store.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released key can be claimed again")
}

func TestRedisIdempotency_ConcurrentClaims(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	store := NewRedisIdempotencyStore(client)
	key := "test-" + uuid.NewString()
	defer client.Del(ctx, idempotencyKeyPrefix+key)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Claim(ctx, key, time.Minute)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
