package resilience

import (
	"context"
	"fmt"
	"time"
)

// Policy describes bounded exponential-backoff retry behavior
type Policy struct {
	// MaxAttempts is the total number of attempts including the first call
	MaxAttempts int
	// InitialDelay is the wait before the first retry
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff delay
	MaxDelay time.Duration
	// Multiplier grows the delay geometrically between attempts
	Multiplier float64
	// Retryable decides whether a given failure is worth another attempt.
	// Defaults to Retryable when nil.
	Retryable func(error) bool
	// OnRetry observes every retried attempt with its 1-indexed attempt
	// number and the delay about to be slept
	OnRetry func(attempt int, delay time.Duration)
}

// DefaultPolicy returns a general-purpose retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// ModelPolicy returns a retry policy tuned for AI model invocations:
// auth and configuration failures fail fast, while rate limits, timeouts,
// and transient network errors get a longer backoff window.
func ModelPolicy() Policy {
	return Policy{
		MaxAttempts:  4,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
		Retryable:    Retryable,
	}
}

// Do executes op with bounded exponential-backoff retry. Non-retryable
// failures and the final attempt's failure propagate immediately without a
// delay. Exhaustion wraps both ErrRetriesExhausted and the last error.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier <= 1 {
		policy.Multiplier = 2
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = Retryable
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := backoffDelay(policy, attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, policy.MaxAttempts, lastErr)
}

// DoValue executes an operation producing a value with retry.
func DoValue[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, policy, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// backoffDelay computes the wait after the given 1-indexed failed attempt:
// min(initial * multiplier^(attempt-1), max).
func backoffDelay(policy Policy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= policy.Multiplier
		if policy.MaxDelay > 0 && delay >= float64(policy.MaxDelay) {
			return policy.MaxDelay
		}
	}
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

// sleep waits for the given duration unless the context is cancelled first
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
