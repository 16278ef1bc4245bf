package resilience

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrCircuitOpen is returned when a breaker refuses a call without
	// invoking the underlying dependency.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when a half-open breaker already has
	// its trial call in flight.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrRetriesExhausted is returned when every allowed retry attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Kind classifies a dependency failure for retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindRateLimit
	KindTimeout
	KindNetwork
	KindValidation
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// ProviderError is a structured failure surfaced by an external collaborator.
// Providers that can classify their own failures should return one of these
// so retry decisions match on the tag instead of the message.
type ProviderError struct {
	Provider string
	Kind     Kind
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Provider + ": " + e.Kind.String() + " error"
	}
	return e.Provider + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Classify determines the failure kind of an error. Structured ProviderError
// tags win; substring heuristics are the last-resort fallback for opaque
// third-party error strings.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "unauthorized", "forbidden", "api key", "invalid key", "authentication", "401", "403"):
		return KindAuth
	case containsAny(msg, "rate limit", "too many requests", "quota", "429", "overloaded"):
		return KindRateLimit
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return KindTimeout
	case containsAny(msg, "connection refused", "connection reset", "no such host", "network", "broken pipe", "eof"):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// Retryable reports whether an error is worth retrying. Cancellation and
// auth/config failures never are; transient network conditions always are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
		return false
	}

	switch Classify(err) {
	case KindAuth, KindValidation:
		return false
	case KindRateLimit, KindTimeout, KindNetwork:
		return true
	default:
		return true
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
