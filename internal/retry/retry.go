// Package retry runs an operation with bounded attempts and a backoff schedule.
package retry

import (
	"context"
	"time"
)

// Backoff returns the delay to wait after the given failed attempt (1-based)
type Backoff func(attempt int) time.Duration

// Policy configures retry behavior
type Policy struct {
	Attempts  int                          // Total attempts including the first; values < 1 mean 1
	Backoff   Backoff                      // Delay after a failed attempt; nil means no delay
	Retryable func(err error) bool         // Nil retries every error
	OnRetry   func(attempt int, err error) // Called before sleeping for the next attempt
	sleep     func(context.Context, time.Duration) error
}

// Schedule returns a Backoff that walks a fixed list of delays, repeating the last
func Schedule(delays ...time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if len(delays) == 0 {
			return 0
		}
		idx := attempt - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(delays) {
			idx = len(delays) - 1
		}
		return delays[idx]
	}
}

// Exponential returns a Backoff starting at base, multiplied by factor per attempt, capped at max
func Exponential(base, max time.Duration, factor float64) Backoff {
	return func(attempt int) time.Duration {
		d := float64(base)
		for i := 1; i < attempt; i++ {
			d *= factor
			if time.Duration(d) >= max {
				return max
			}
		}
		if time.Duration(d) > max {
			return max
		}
		return time.Duration(d)
	}
}

// Quadratic returns a Backoff of attempt² × unit
func Quadratic(unit time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(attempt*attempt) * unit
	}
}

// Do executes fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted, or ctx is done. The last error is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if p.Backoff != nil {
			if err := sleep(ctx, p.Backoff(attempt)); err != nil {
				return zero, err
			}
		}
	}

	return zero, lastErr
}

// DoErr is Do for operations without a result
func DoErr(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
