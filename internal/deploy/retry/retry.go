// Package retry wraps flaky RPC operations with bounded, classified retries.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/compose-network/singleton-deployer/internal/logger"
)

type (
	// Options bounds one retried call. DelayFn overrides the exponential
	// schedule when set (fixed-delay variants use it).
	Options struct {
		MaxAttempts  int
		InitialDelay time.Duration
		MaxDelay     time.Duration
		Multiplier   float64
		IsRetryable  func(error) bool
		DelayFn      func(attempt int) time.Duration
	}
)

// DefaultOptions matches the engine-wide default of three attempts with a
// one second initial delay.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// Delay returns the pause before attempt+1, where attempt counts completed
// attempts starting at 1. Exponential growth capped at MaxDelay.
func (o Options) Delay(attempt int) time.Duration {
	if o.DelayFn != nil {
		return o.DelayFn(attempt)
	}

	delay := o.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * o.Multiplier)
		if delay >= o.MaxDelay {
			return o.MaxDelay
		}
	}

	if delay > o.MaxDelay {
		return o.MaxDelay
	}

	return delay
}

// Do runs op up to MaxAttempts times. A non-retryable error is returned
// immediately; the last attempt's error is returned as-is. Attempt state
// never escapes this function.
func Do[T any](ctx context.Context, op func(context.Context) (T, error), opts Options) (T, error) {
	var zero T

	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	isRetryable := opts.IsRetryable
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	log := logger.Named("retry")

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt == opts.MaxAttempts {
			break
		}
		if !isRetryable(err) {
			return zero, err
		}

		delay := opts.Delay(attempt)
		log.With(
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", opts.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("err", err.Error()),
		).Warn("operation failed, retrying")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}
