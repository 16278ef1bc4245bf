package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStructuredErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"provider auth tag", &ProviderError{Provider: "anthropic", Kind: KindAuth}, KindAuth},
		{"provider rate limit tag", &ProviderError{Provider: "google", Kind: KindRateLimit}, KindRateLimit},
		{"wrapped provider tag", fmt.Errorf("invoke: %w", &ProviderError{Provider: "openai", Kind: KindTimeout}), KindTimeout},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyOpaqueStrings(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"401 Unauthorized", KindAuth},
		{"invalid key provided", KindAuth},
		{"rate limit exceeded, retry after 30s", KindRateLimit},
		{"429 Too Many Requests", KindRateLimit},
		{"request timed out", KindTimeout},
		{"dial tcp: connection refused", KindNetwork},
		{"unexpected EOF", KindNetwork},
		{"something odd happened", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(errors.New(tt.msg)))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(ErrCircuitOpen))
	assert.False(t, Retryable(&ProviderError{Kind: KindAuth}))
	assert.False(t, Retryable(&ProviderError{Kind: KindValidation}))
	assert.True(t, Retryable(&ProviderError{Kind: KindRateLimit}))
	assert.True(t, Retryable(&ProviderError{Kind: KindTimeout}))
	assert.True(t, Retryable(&ProviderError{Kind: KindNetwork}))
	assert.True(t, Retryable(errors.New("something odd happened")))
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ProviderError{Provider: "scraper", Kind: KindNetwork, Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "scraper")
}
