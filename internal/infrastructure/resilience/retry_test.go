package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsRetries(t *testing.T) {
	underlying := errors.New("connection reset")
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return underlying
	})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, underlying)
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	authErr := &ProviderError{Provider: "anthropic", Kind: KindAuth, Err: errors.New("invalid key")}

	calls := 0
	retried := false
	policy := fastPolicy()
	policy.Retryable = Retryable
	policy.OnRetry = func(attempt int, delay time.Duration) { retried = true }

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return authErr
	})

	assert.Equal(t, 1, calls)
	assert.False(t, retried, "non-retryable failure must not trigger a delay")
	assert.ErrorIs(t, err, authErr)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
}

func TestDoObservesRetryEvents(t *testing.T) {
	var attempts []int
	var delays []time.Duration

	policy := Policy{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2,
		OnRetry: func(attempt int, delay time.Duration) {
			attempts = append(attempts, attempt)
			delays = append(delays, delay)
		},
	}

	_ = Do(context.Background(), policy, func(ctx context.Context) error {
		return errors.New("timeout")
	})

	assert.Equal(t, []int{1, 2, 3}, attempts)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1], "delay must be monotonically non-decreasing")
	}
}

func TestBackoffDelayCappedByMaxDelay(t *testing.T) {
	policy := Policy{
		MaxAttempts:  10,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   3,
	}

	assert.Equal(t, time.Second, backoffDelay(policy, 1))
	assert.Equal(t, 3*time.Second, backoffDelay(policy, 2))
	assert.Equal(t, 5*time.Second, backoffDelay(policy, 3))
	assert.Equal(t, 5*time.Second, backoffDelay(policy, 9))
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := Policy{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2,
	}

	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- Do(ctx, policy, func(ctx context.Context) error {
			calls++
			return errors.New("timeout")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoValue(t *testing.T) {
	result, err := DoValue(context.Background(), fastPolicy(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}
