package client

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds the retry loop around each RPC operation.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// Multiplier scales the delay after every failed attempt.
	Multiplier float64

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the standard retry policy: 3 attempts,
// exponential backoff starting at 1s, doubling, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// withRetry runs fn up to cfg.MaxAttempts times. All errors are retried
// uniformly; the last error is surfaced when the budget is exhausted.
// Context cancellation aborts between attempts.
func withRetry[T any](ctx context.Context, cfg RetryConfig, logger *zap.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			logger.Warn("retrying RPC call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", cfg.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}
