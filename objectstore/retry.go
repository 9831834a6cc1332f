package objectstore

import (
	"context"
	"time"
)

// RetryConfig controls the exponential-backoff retry wrapper shared by
// every backend variant: up to MaxRetries attempts, delay doubling from
// BaseDelay each time, and the last error re-raised on exhaustion.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryConfig is 3 retries doubling from a 1s base delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Second}
}

// WithRetry runs fn, retrying on error with exponential backoff. The last
// error is returned if every attempt fails.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.BaseDelay
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
