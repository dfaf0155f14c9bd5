// Package utils holds small helpers shared by the places client and the
// configuration layer: retry with exponential backoff and extended duration
// parsing.
package utils

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry operations with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt)
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay caps the exponential growth of the delay
	MaxDelay time.Duration

	// BackoffFactor is the multiplier applied to the delay after each attempt
	BackoffFactor float64

	// JitterFactor adds up to this fraction of the delay as random jitter (0.0-1.0)
	JitterFactor float64

	// RetryableErrors reports whether an error should trigger another attempt.
	// If nil, all errors are retried.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the retry policy used for outbound API calls:
// 3 attempts, 200ms initial delay doubling up to 2s, 10% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// RetryWithBackoff calls fn until it succeeds, returns a non-retryable error,
// the attempts are exhausted, or ctx is done.
//
// A non-retryable error is returned unchanged. Exhaustion wraps the last error
// with "max retries exceeded" and cancellation wraps ctx.Err() with
// "retry cancelled"; both keep the chain intact for errors.Is/As.
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return err
		}
		if attempt == config.MaxAttempts {
			break
		}

		timer := time.NewTimer(withJitter(delay, config.JitterFactor))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * config.BackoffFactor)
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func withJitter(delay time.Duration, factor float64) time.Duration {
	if factor <= 0 || delay <= 0 {
		return delay
	}
	jitter := int64(float64(delay) * factor)
	if jitter <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(jitter))
}
