// policy.go
// Package retry runs an operation up to a fixed number of attempts with exponential backoff
// and one-sided jitter, retrying only errors classified as transient.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/logger"
)

const (
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultJitterFactor      = 0.1
)

// Config is the immutable shape of a Policy.
type Config struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64
}

// DefaultConfig returns three attempts starting at one second, doubling up to ten seconds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       DefaultMaxAttempts,
		BaseDelay:         DefaultBaseDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		JitterFactor:      DefaultJitterFactor,
	}
}

// Attempt records one failed invocation within a single logical call.
type Attempt struct {
	Number    int
	Err       error
	NextDelay time.Duration
}

// Sleeper suspends for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy decides whether and when to retry.
type Policy struct {
	config  Config
	log     logger.Logger
	sleep   Sleeper
	random  func() float64
	onRetry func(label string, attempt Attempt)
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the logger used for attempt and give-up events.
func WithLogger(log logger.Logger) Option {
	return func(p *Policy) { p.log = log }
}

// WithSleeper replaces the timer-based sleep.
func WithSleeper(sleep Sleeper) Option {
	return func(p *Policy) { p.sleep = sleep }
}

// WithRandom replaces the uniform [0,1) source used for jitter.
func WithRandom(random func() float64) Option {
	return func(p *Policy) { p.random = random }
}

// WithRetryHook registers a callback invoked before each backoff sleep.
func WithRetryHook(hook func(label string, attempt Attempt)) Option {
	return func(p *Policy) { p.onRetry = hook }
}

// NewPolicy builds a Policy, clamping nonsensical values to the nearest sane one.
func NewPolicy(cfg Config, opts ...Option) *Policy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	}

	p := &Policy{
		config: cfg,
		log:    logger.NewNop(),
		sleep:  sleepContext,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the policy's configuration.
func (p *Policy) Config() Config {
	return p.config
}

// Backoff returns the pre-jitter delay that follows failed attempt n (1-based):
// min(BaseDelay * BackoffMultiplier^(n-1), MaxDelay).
func (p *Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	raw := float64(p.config.BaseDelay) * math.Pow(p.config.BackoffMultiplier, float64(n-1))
	if raw >= float64(p.config.MaxDelay) || math.IsInf(raw, 0) || math.IsNaN(raw) {
		return p.config.MaxDelay
	}
	return time.Duration(raw)
}

// Jitter inflates delay by delay * JitterFactor * U(0,1). It never shortens the delay.
func (p *Policy) Jitter(delay time.Duration) time.Duration {
	if delay <= 0 || p.config.JitterFactor == 0 {
		return delay
	}
	return delay + time.Duration(float64(delay)*p.config.JitterFactor*p.random())
}

// Delay returns the full wait after failed attempt n. A server Retry-After hint carried by
// err may raise the pre-jitter delay, but never past MaxDelay.
func (p *Policy) Delay(n int, err error) time.Duration {
	delay := p.Backoff(n)
	if hint := RetryAfterHint(err); hint > delay {
		delay = min(hint, p.config.MaxDelay)
	}
	return p.Jitter(delay)
}

// Execute is Do for operations without a result.
func (p *Policy) Execute(ctx context.Context, label string, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do invokes op until it succeeds, fails with a non-retryable error, or MaxAttempts is
// reached. The error of the last invocation is returned as is.
func Do[T any](ctx context.Context, p *Policy, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	history := make([]Attempt, 0, p.config.MaxAttempts)

	for n := 1; ; n++ {
		result, err := op(ctx)
		if err == nil {
			if n > 1 {
				p.log.Info("Operation recovered after retry",
					zap.String("label", label),
					zap.Int("attempt", n),
					zap.Int("failed_attempts", len(history)),
				)
			}
			return result, nil
		}

		if ctx.Err() != nil {
			history = append(history, Attempt{Number: n, Err: err})
			p.giveUp(label, history, "context done")
			return zero, err
		}

		retryable := IsRetryable(err)
		if !retryable {
			history = append(history, Attempt{Number: n, Err: err})
			p.giveUp(label, history, "non-retryable error")
			return zero, err
		}
		if n >= p.config.MaxAttempts {
			history = append(history, Attempt{Number: n, Err: err})
			p.giveUp(label, history, "attempts exhausted")
			return zero, err
		}

		delay := p.Delay(n, err)
		attempt := Attempt{Number: n, Err: err, NextDelay: delay}
		history = append(history, attempt)
		p.log.LogRetryAttempt("ndc_retry", label, n, Reason(err), delay, err)
		if p.onRetry != nil {
			p.onRetry(label, attempt)
		}

		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			p.giveUp(label, history, "context done during backoff")
			return zero, sleepErr
		}
	}
}

func (p *Policy) giveUp(label string, history []Attempt, reason string) {
	messages := make([]string, 0, len(history))
	delays := make([]time.Duration, 0, len(history))
	for _, a := range history {
		messages = append(messages, a.Err.Error())
		delays = append(delays, a.NextDelay)
	}
	fields := []zap.Field{
		zap.String("label", label),
		zap.String("reason", reason),
		zap.Int("attempts", len(history)),
		zap.Int("max_attempts", p.config.MaxAttempts),
		zap.Strings("attempt_errors", messages),
		zap.Durations("attempt_delays", delays),
	}
	if len(history) == 1 {
		p.log.Warn("Operation failed without retry", fields...)
		return
	}
	p.log.Warn("Operation failed after retries", fields...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
