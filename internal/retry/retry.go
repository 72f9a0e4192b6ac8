// Package retry runs idempotent calls under a per-call timeout with
// exponential backoff between attempts.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type Policy struct {
	// Name labels log lines, e.g. "embedding" or "vector search".
	Name string
	// Retries is the number of extra attempts after the first call.
	Retries        int
	BaseDelay      time.Duration
	PerCallTimeout time.Duration
	// Retryable decides whether a failed attempt is worth repeating. Nil
	// retries every error.
	Retryable func(error) bool
}

// Backoff returns the wait before retry n (1-based): BaseDelay, 2*BaseDelay,
// 4*BaseDelay and so on.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return p.BaseDelay << (n - 1)
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// policy runs out of attempts. Cancellation of ctx stops retrying at once
// and returns ctx.Err().
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			wait := p.Backoff(attempt)
			slog.Debug("retrying call", "call", p.Name, "attempt", attempt, "backoff", wait, "error", lastErr)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = call(ctx, p.PerCallTimeout, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
