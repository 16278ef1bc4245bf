package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Options configures the circuit breaker behavior
type Options struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// OpenDuration is how long the circuit stays open before probing recovery
	OpenDuration time.Duration
	// HalfOpenSuccessThreshold is the number of consecutive successes required to close
	HalfOpenSuccessThreshold int
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// DefaultOptions returns production defaults tuned for flaky external APIs.
func DefaultOptions() Options {
	return Options{
		FailureThreshold:         5,
		OpenDuration:             30 * time.Second,
		HalfOpenSuccessThreshold: 3,
	}
}

// Snapshot is a point-in-time view of a breaker's internal state.
type Snapshot struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

// Breaker implements the circuit breaker pattern for one external dependency
type Breaker struct {
	name string
	opts Options

	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	lastFailure      time.Time
	halfOpenInFlight bool

	now func() time.Time
}

// New creates a new circuit breaker with the given options
func New(name string, opts Options) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenDuration <= 0 {
		opts.OpenDuration = 30 * time.Second
	}
	if opts.HalfOpenSuccessThreshold <= 0 {
		opts.HalfOpenSuccessThreshold = 3
	}

	return &Breaker{
		name:  name,
		opts:  opts,
		state: StateClosed,
		now:   time.Now,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// Snapshot returns a copy of the breaker's current state and counters
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Name:         b.name,
		State:        b.currentState().String(),
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
		LastFailure:  b.lastFailure,
	}
}

// Execute runs the given operation if the circuit breaker accepts it.
// A call rejected by the breaker returns ErrCircuitOpen or ErrTooManyRequests
// without touching the dependency. A call cut short by context cancellation
// is not counted as a dependency failure.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	trial, err := b.beforeRequest()
	if err != nil {
		return err
	}

	err = op(ctx)
	if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil) {
		b.afterCancelled(trial)
		return err
	}

	b.afterRequest(trial, err == nil)
	return err
}

// ExecuteValue runs an operation producing a value through the breaker.
func ExecuteValue[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// Reset forcibly returns the breaker to closed with zero counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.failureCount = 0
	b.successCount = 0
	b.lastFailure = time.Time{}
	b.halfOpenInFlight = false
}

// beforeRequest admits or rejects a call and reports whether it is a
// half-open trial call.
func (b *Breaker) beforeRequest() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		// One probe at a time: never flood a recovering dependency.
		if b.halfOpenInFlight {
			return false, ErrTooManyRequests
		}
		b.halfOpenInFlight = true
		return true, nil
	default:
		return false, nil
	}
}

// afterRequest records the outcome of an admitted call
func (b *Breaker) afterRequest(trial bool, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.halfOpenInFlight = false
	}

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// afterCancelled releases the half-open slot without counting the call
func (b *Breaker) afterCancelled(trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.halfOpenInFlight = false
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.opts.HalfOpenSuccessThreshold {
			b.setState(StateClosed)
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.opts.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.successCount = 0
		b.setState(StateOpen)
	}
}

// currentState lazily transitions open breakers to half-open once the
// open duration has elapsed. Caller must hold the lock.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.lastFailure) > b.opts.OpenDuration {
		b.setState(StateHalfOpen)
		b.successCount = 0
		b.halfOpenInFlight = false
	}
	return b.state
}

// setState changes the state and fires the transition callback
func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state

	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(b.name, prev, state)
	}
}
