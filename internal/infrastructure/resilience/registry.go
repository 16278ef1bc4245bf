package resilience

import "sync"

// Registry caches named circuit breakers so every call site sharing a
// dependency name shares breaker state. Exactly one breaker exists per
// distinct name for the life of the registry, even under concurrent
// first access.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	defaults Options
}

// NewRegistry creates a breaker registry with the given default options
func NewRegistry(defaults Options) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// Get returns the breaker registered under name, creating it on first
// lookup. Options are only applied on creation; later lookups return the
// existing instance unchanged.
func (r *Registry) Get(name string, opts ...Options) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	options := r.defaults
	if len(opts) > 0 {
		options = opts[0]
		if options.OnStateChange == nil {
			options.OnStateChange = r.defaults.OnStateChange
		}
	}

	b := New(name, options)
	r.breakers[name] = b
	return b
}

// ResetAll forces every registered breaker back to closed
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}

// Stats returns a snapshot of every registered breaker keyed by name
func (r *Registry) Stats() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]Snapshot, len(r.breakers))
	for name, b := range r.breakers {
		stats[name] = b.Snapshot()
	}
	return stats
}
