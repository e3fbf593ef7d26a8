package circuitbreaker

import (
	"sort"
	"sync"
)

// Registry keeps one breaker per upstream, created lazily.
type Registry struct {
	overrides map[string]Config

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a registry. overrides are keyed by upstream name;
// their Name field is ignored.
func NewRegistry(overrides map[string]Config) *Registry {
	return &Registry{
		overrides: overrides,
		breakers:  make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for upstream.
func (r *Registry) Get(upstream string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[upstream]; ok {
		return cb
	}
	cfg := DefaultConfig(upstream)
	if o, ok := r.overrides[upstream]; ok {
		cfg = o
		cfg.Name = upstream
	}
	cb := New(cfg)
	r.breakers[upstream] = cb
	return cb
}

// Snapshot returns the stats of every breaker sorted by name.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AnyOpen reports whether any registered breaker is open.
func (r *Registry) AnyOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cb := range r.breakers {
		if cb.IsOpen() {
			return true
		}
	}
	return false
}
