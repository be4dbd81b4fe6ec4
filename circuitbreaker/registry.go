// registry.go
package circuitbreaker

import (
	"sort"
	"sync"
)

// Registry hands out one Breaker per name. Breakers are created on first use and live as
// long as the registry.
type Registry struct {
	mu        sync.RWMutex
	breakers  map[string]*Breaker
	defaults  Config
	opts      []Option
	listeners []Listener
}

// NewRegistry creates a registry whose breakers use defaults and opts unless overridden.
func NewRegistry(defaults Config, opts ...Option) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
		opts:     opts,
	}
}

// Get returns the breaker for name, creating it with the registry defaults if absent.
func (r *Registry) Get(name string) *Breaker {
	return r.GetWithConfig(name, r.defaults)
}

// GetWithConfig returns the breaker for name. cfg applies only if the breaker is created
// by this call.
func (r *Registry) GetWithConfig(name string, cfg Config) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, cfg, r.opts...)
	for _, l := range r.listeners {
		b.Subscribe(l)
	}
	r.breakers[name] = b
	return b
}

// Subscribe attaches l to every existing breaker and to any created later.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
	for _, b := range r.breakers {
		b.Subscribe(l)
	}
}

// Names lists the registered breakers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns a snapshot of every breaker keyed by name.
func (r *Registry) Stats() map[string]Stats {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	stats := make(map[string]Stats, len(breakers))
	for _, b := range breakers {
		stats[b.Name()] = b.Stats()
	}
	return stats
}
