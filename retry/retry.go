// Package retry provides a small exponential-backoff helper for calls whose
// failures are usually transient.
package retry

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultRetries = 3
	DefaultDelay   = 500 * time.Millisecond
)

// WithBackoff runs fn, retrying up to retries times with the delay doubling
// after each failure. The last error is returned when every attempt fails.
func WithBackoff[T any](ctx context.Context, fn func(context.Context) (T, error), retries int, delay time.Duration) (T, error) {
	for {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if retries <= 0 {
			var zero T
			return zero, err
		}
		slog.Warn("retrying after failure", "attempts_left", retries, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		retries--
		delay *= 2
	}
}
