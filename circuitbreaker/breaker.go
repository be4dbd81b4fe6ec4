// breaker.go
// Package circuitbreaker implements a CLOSED/OPEN/HALF_OPEN state machine that rejects
// calls to an unhealthy upstream without touching the network.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
	"github.com/flightgate/go-ndc-http-client/logger"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultTimeout          = 60 * time.Second
	DefaultResetTimeout     = 30 * time.Second
)

// Config is fixed for the lifetime of a breaker.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	ResetTimeout     time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		SuccessThreshold: DefaultSuccessThreshold,
		Timeout:          DefaultTimeout,
		ResetTimeout:     DefaultResetTimeout,
	}
}

// Stats is a snapshot of a breaker.
type Stats struct {
	Name              string        `json:"name"`
	State             string        `json:"state"`
	FailureCount      int           `json:"failureCount"`
	SuccessCount      int           `json:"successCount"`
	TotalSuccesses    uint64        `json:"totalSuccesses"`
	TotalFailures     uint64        `json:"totalFailures"`
	TotalTimeouts     uint64        `json:"totalTimeouts"`
	TotalRejections   uint64        `json:"totalRejections"`
	TotalTrips        uint64        `json:"totalTrips"`
	LastFailureTime   time.Time     `json:"lastFailureTime,omitempty"`
	RemainingCooldown time.Duration `json:"remainingCooldown"`
	Config            Config        `json:"config"`
}

type timerFunc func(d time.Duration, f func()) (stop func() bool)

func realTimer(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Breaker guards one named upstream. All state sits behind mu; listeners and the logger
// are only called after mu is released.
type Breaker struct {
	name   string
	config Config
	log    logger.Logger
	now    func() time.Time
	timer  timerFunc

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	openedAt        time.Time
	openGeneration  uint64
	stopTimer       func() bool
	listeners       []Listener

	totalSuccesses  uint64
	totalFailures   uint64
	totalTimeouts   uint64
	totalRejections uint64
	totalTrips      uint64
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger sets the logger that records state transitions.
func WithLogger(log logger.Logger) Option {
	return func(b *Breaker) { b.log = log }
}

// WithClock replaces time.Now for the lazy cooldown check.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

func withTimer(t timerFunc) Option {
	return func(b *Breaker) { b.timer = t }
}

// New creates a CLOSED breaker. Non-positive thresholds and durations take their defaults.
func New(name string, cfg Config, opts ...Option) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}

	b := &Breaker{
		name:   name,
		config: cfg,
		log:    logger.NewNop(),
		now:    time.Now,
		timer:  realTimer,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the upstream name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// Config returns the breaker's immutable configuration.
func (b *Breaker) Config() Config { return b.config }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Subscribe registers a listener for every subsequent event.
func (b *Breaker) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Execute is Run for operations without a result.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Run(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Run executes op through b. An OPEN breaker returns *errors.CircuitOpenError without
// invoking op. Otherwise op runs under Config.Timeout; exceeding it yields
// *errors.TimeoutError and counts as a failure. Cancellation of ctx by the caller is
// returned as is and leaves the health counters untouched.
func Run[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	start := b.now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("circuit breaker %s: operation panicked: %v", b.name, r)}
			}
		}()
		value, err := op(callCtx)
		done <- outcome{value: value, err: err}
	}()

	var out outcome
	timedOut := false
	select {
	case out = <-done:
	case <-callCtx.Done():
		select {
		case out = <-done:
		default:
			timedOut = true
		}
	}
	elapsed := b.now().Sub(start)

	if timedOut || out.err != nil {
		if parentErr := ctx.Err(); parentErr != nil {
			if timedOut {
				return zero, parentErr
			}
			return zero, out.err
		}
		if timedOut || callCtx.Err() != nil {
			err := &ndcerrors.TimeoutError{
				Operation: "circuit breaker " + b.name,
				Timeout:   b.config.Timeout,
				Err:       callCtx.Err(),
			}
			b.record(err, true, elapsed)
			return zero, err
		}
	}

	b.record(out.err, false, elapsed)
	if out.err != nil {
		return zero, out.err
	}
	return out.value, nil
}

// allow performs the lazy OPEN to HALF_OPEN check and rejects while cooling down.
func (b *Breaker) allow() error {
	b.mu.Lock()
	var events []Event

	if b.state == StateOpen {
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.config.ResetTimeout {
			b.totalRejections++
			remaining := b.config.ResetTimeout - elapsed
			events = append(events, b.event(EventRejected, nil, 0))
			listeners := b.listeners
			b.mu.Unlock()

			b.emit(listeners, events)
			return &ndcerrors.CircuitOpenError{Name: b.name, RemainingCooldown: remaining}
		}
		events = b.transition(StateHalfOpen, events)
	}

	listeners := b.listeners
	b.mu.Unlock()
	b.emit(listeners, events)
	return nil
}

func (b *Breaker) record(err error, timedOut bool, d time.Duration) {
	b.mu.Lock()
	var events []Event

	if err == nil {
		b.totalSuccesses++
		events = append(events, b.event(EventSuccess, nil, d))
		switch b.state {
		case StateClosed:
			b.failureCount = 0
		case StateHalfOpen:
			b.successCount++
			if b.successCount >= b.config.SuccessThreshold {
				events = b.transition(StateClosed, events)
			}
		}
	} else {
		b.totalFailures++
		if timedOut {
			b.totalTimeouts++
			events = append(events, b.event(EventTimeout, err, d))
		} else {
			events = append(events, b.event(EventFailure, err, d))
		}
		switch b.state {
		case StateClosed:
			b.lastFailureTime = b.now()
			b.failureCount++
			if b.failureCount >= b.config.FailureThreshold {
				events = b.transition(StateOpen, events)
			}
		case StateHalfOpen:
			b.lastFailureTime = b.now()
			b.failureCount++
			events = b.transition(StateOpen, events)
		case StateOpen:
			// A call admitted before the trip failed late; the cooldown runs from it.
			b.lastFailureTime = b.now()
			b.failureCount++
			b.armResetTimer()
		}
	}

	listeners := b.listeners
	b.mu.Unlock()
	b.emit(listeners, events)
}

// transition must be called with mu held.
func (b *Breaker) transition(to State, events []Event) []Event {
	from := b.state
	if from == to {
		return events
	}
	b.state = to

	switch to {
	case StateOpen:
		b.totalTrips++
		b.successCount = 0
		b.armResetTimer()
	case StateHalfOpen:
		b.successCount = 0
		b.failureCount = 0
		b.stopTimer = nil
	case StateClosed:
		b.failureCount = 0
		b.successCount = 0
		if b.stopTimer != nil {
			b.stopTimer()
			b.stopTimer = nil
		}
	}

	ev := b.event(EventStateChange, nil, 0)
	ev.From, ev.To = from, to
	return append(events, ev)
}

// armResetTimer starts a new OPEN period at now, superseding any earlier timer. It must be
// called with mu held.
func (b *Breaker) armResetTimer() {
	b.openedAt = b.now()
	b.openGeneration++
	gen := b.openGeneration
	if b.stopTimer != nil {
		b.stopTimer()
	}
	b.stopTimer = b.timer(b.config.ResetTimeout, func() { b.onResetTimer(gen) })
}

// onResetTimer is the timed half of the OPEN to HALF_OPEN transition. A timer armed for an
// earlier OPEN period finds a different generation and does nothing.
func (b *Breaker) onResetTimer(gen uint64) {
	b.mu.Lock()
	if b.state != StateOpen || b.openGeneration != gen {
		b.mu.Unlock()
		return
	}
	events := b.transition(StateHalfOpen, nil)
	listeners := b.listeners
	b.mu.Unlock()
	b.emit(listeners, events)
}

// Reset forces the breaker CLOSED and zeroes its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	events := b.transition(StateClosed, nil)
	b.failureCount = 0
	b.successCount = 0
	listeners := b.listeners
	b.mu.Unlock()
	b.emit(listeners, events)
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		Name:            b.name,
		State:           b.state.String(),
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		TotalSuccesses:  b.totalSuccesses,
		TotalFailures:   b.totalFailures,
		TotalTimeouts:   b.totalTimeouts,
		TotalRejections: b.totalRejections,
		TotalTrips:      b.totalTrips,
		LastFailureTime: b.lastFailureTime,
		Config:          b.config,
	}
	if b.state == StateOpen {
		if remaining := b.config.ResetTimeout - b.now().Sub(b.openedAt); remaining > 0 {
			stats.RemainingCooldown = remaining
		}
	}
	return stats
}
