// Package retry provides a small bounded exponential backoff helper
// shared by the embedding and chat clients.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// BaseDelay is the delay before the second attempt; it doubles on each
// subsequent attempt.
const BaseDelay = 500 * time.Millisecond

// Do calls fn up to attempts times, doubling the delay between
// attempts starting from BaseDelay. It returns as soon as fn succeeds
// or the context is canceled, and returns fn's last error otherwise.
func Do(ctx context.Context, op string, attempts int, fn func() error) error {
	var lastErr error
	delay := BaseDelay
	for i := 1; i <= attempts; i++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if i == attempts {
			break
		}
		slog.Debug("retry.Do: attempt failed, backing off", "op", op, "attempt", i, "delay", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
