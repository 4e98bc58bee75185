package port

import (
	"context"
	"time"
)

type IdempotencyStore interface {
	// Claim sets the key if absent, returns false if it is already held
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a claim so the request can be retried
	Release(ctx context.Context, key string) error
}

// Locker serialises work on one key across goroutines and, depending on the
// backend, across processes.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done
	Lock(ctx context.Context, key string) (func(), error)
}
