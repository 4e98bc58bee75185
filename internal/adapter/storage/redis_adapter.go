package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "idempotency:"

// RedisIdempotencyStore claims placement keys with SETNX so only one request
// per key is in flight across order service instances.
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (r *RedisIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
