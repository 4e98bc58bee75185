package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lockKeyPrefix     = "lock:"
	defaultLockTTL    = 10 * time.Second
	defaultRetryDelay = 10 * time.Millisecond
)

var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker holds a lock with SET NX PX and a random token. The token makes
// sure only the holder deletes it.
type RedisLocker struct {
	client     *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client:     client,
		ttl:        ttl,
		retryDelay: defaultRetryDelay,
		logger:     logger,
	}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := releaseLockScript.Run(ctx, r.client, []string{redisKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			r.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
