// metrics.go
// Package metrics keeps in-process counters for gateway calls, breaker events and token
// refreshes. Rendering them is left to the caller.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/flightgate/go-ndc-http-client/circuitbreaker"
)

// OperationStats aggregates calls to one NDC operation.
type OperationStats struct {
	Calls         uint64            `json:"calls"`
	Successes     uint64            `json:"successes"`
	Failures      uint64            `json:"failures"`
	Retries       uint64            `json:"retries"`
	TotalDuration time.Duration     `json:"totalDuration"`
	MaxDuration   time.Duration     `json:"maxDuration"`
	ErrorsByCode  map[string]uint64 `json:"errorsByCode,omitempty"`
}

// AverageDuration is TotalDuration spread over completed calls.
func (s OperationStats) AverageDuration() time.Duration {
	done := s.Successes + s.Failures
	if done == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(done)
}

// BreakerStats counts events seen on one breaker.
type BreakerStats struct {
	Successes    uint64 `json:"successes"`
	Failures     uint64 `json:"failures"`
	Timeouts     uint64 `json:"timeouts"`
	Rejections   uint64 `json:"rejections"`
	Trips        uint64 `json:"trips"`
	StateChanges uint64 `json:"stateChanges"`
	LastState    string `json:"lastState"`
}

// AuthStats counts token refreshes.
type AuthStats struct {
	Refreshes uint64 `json:"refreshes"`
	Failures  uint64 `json:"failures"`
	CacheHits uint64 `json:"cacheHits"`
}

// Snapshot is a deep copy of the registry.
type Snapshot struct {
	Operations map[string]OperationStats `json:"operations"`
	Breakers   map[string]BreakerStats   `json:"breakers"`
	Auth       AuthStats                 `json:"auth"`
	TakenAt    time.Time                 `json:"takenAt"`
}

// OperationNames lists the operations in the snapshot in sorted order.
func (s Snapshot) OperationNames() []string {
	names := make([]string, 0, len(s.Operations))
	for name := range s.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownOperation is the single bucket for calls naming an operation the client does not
// know, so caller input cannot grow the operation map.
const UnknownOperation = "unknown"

// Registry holds every counter behind one mutex.
type Registry struct {
	mu         sync.Mutex
	operations map[string]*OperationStats
	breakers   map[string]*BreakerStats
	auth       AuthStats
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		operations: make(map[string]*OperationStats),
		breakers:   make(map[string]*BreakerStats),
	}
}

func (r *Registry) op(name string) *OperationStats {
	s, ok := r.operations[name]
	if !ok {
		s = &OperationStats{ErrorsByCode: make(map[string]uint64)}
		r.operations[name] = s
	}
	return s
}

// CallStarted counts a call entering the orchestrator.
func (r *Registry) CallStarted(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.op(operation).Calls++
}

// CallSucceeded records a successful call and its duration.
func (r *Registry) CallSucceeded(operation string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.op(operation)
	s.Successes++
	s.observe(d)
}

// CallFailed records a failed call under its structured error code.
func (r *Registry) CallFailed(operation, code string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.op(operation)
	s.Failures++
	s.ErrorsByCode[code]++
	s.observe(d)
}

// RetryAttempted counts one backoff before a further attempt.
func (r *Registry) RetryAttempted(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.op(operation).Retries++
}

func (s *OperationStats) observe(d time.Duration) {
	s.TotalDuration += d
	if d > s.MaxDuration {
		s.MaxDuration = d
	}
}

// AuthRefreshed counts an Auth round trip and whether it produced a token.
func (r *Registry) AuthRefreshed(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.auth.Refreshes++
	} else {
		r.auth.Failures++
	}
}

// TokenCacheHit counts a call that reused a cached token.
func (r *Registry) TokenCacheHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auth.CacheHits++
}

// ObserveBreaker is a circuitbreaker.Listener feeding the breaker counters.
func (r *Registry) ObserveBreaker(ev circuitbreaker.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.breakers[ev.Name]
	if !ok {
		s = &BreakerStats{LastState: circuitbreaker.StateClosed.String()}
		r.breakers[ev.Name] = s
	}
	switch ev.Type {
	case circuitbreaker.EventSuccess:
		s.Successes++
	case circuitbreaker.EventFailure:
		s.Failures++
	case circuitbreaker.EventTimeout:
		s.Failures++
		s.Timeouts++
	case circuitbreaker.EventRejected:
		s.Rejections++
	case circuitbreaker.EventStateChange:
		s.StateChanges++
		s.LastState = ev.To.String()
		if ev.To == circuitbreaker.StateOpen {
			s.Trips++
		}
	}
}

// Snapshot returns a copy of every counter.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Operations: make(map[string]OperationStats, len(r.operations)),
		Breakers:   make(map[string]BreakerStats, len(r.breakers)),
		Auth:       r.auth,
		TakenAt:    time.Now().UTC(),
	}
	for name, s := range r.operations {
		c := *s
		c.ErrorsByCode = make(map[string]uint64, len(s.ErrorsByCode))
		for code, n := range s.ErrorsByCode {
			c.ErrorsByCode[code] = n
		}
		snap.Operations[name] = c
	}
	for name, s := range r.breakers {
		snap.Breakers[name] = *s
	}
	return snap
}
