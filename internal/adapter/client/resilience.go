package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

const (
	defaultTimeout      = 3 * time.Second
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 100 * time.Millisecond
)

type Config struct {
	// Timeout bounds every single attempt.
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	// BreakerFailures is the number of consecutive transport failures that
	// open the circuit.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 10 * time.Second
	}
	return c
}

// caller runs inventory calls through a circuit breaker with a per-attempt
// timeout and optional retries. Only domain.ErrUnavailable counts as a
// breaker failure or is retried; business answers pass straight through.
type caller struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func newCaller(name string, cfg Config, logger *zap.Logger) *caller {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrUnavailable)
		},
	}
	return &caller{cfg: cfg, breaker: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

func (c *caller) do(ctx context.Context, op string, retry bool, fn func(ctx context.Context) error) error {
	attempts := 1
	if retry {
		attempts = c.cfg.MaxAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = c.once(ctx, fn)
		if err == nil || !errors.Is(err, domain.ErrUnavailable) {
			return err
		}
		if attempt == attempts {
			break
		}

		c.logger.Warn("Inventory call failed, retrying",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		timer := time.NewTimer(time.Duration(attempt) * c.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

func (c *caller) once(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return nil, fn(attemptCtx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}
