package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
)

var errUpstream = errors.New("upstream exploded")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type manualTimer struct {
	mu      sync.Mutex
	fns     []func()
	stopped []bool
}

func (m *manualTimer) after(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.fns)
	m.fns = append(m.fns, f)
	m.stopped = append(m.stopped, false)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.stopped[i] = true
		return true
	}
}

func (m *manualTimer) fire(i int) {
	m.mu.Lock()
	f := m.fns[i]
	m.mu.Unlock()
	f()
}

func (m *manualTimer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock, *manualTimer) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	timer := &manualTimer{}
	b := New("ndc-api", cfg, WithClock(clock.Now), withTimer(timer.after))
	return b, clock, timer
}

func testConfig() Config {
	return Config{FailureThreshold: 3, SuccessThreshold: 2, Timeout: time.Second, ResetTimeout: 30 * time.Second}
}

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestTripAndResetCycle(t *testing.T) {
	b, clock, _ := newTestBreaker(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	}
	require.Equal(t, StateOpen, b.State())

	var calls int32
	counted := func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	err := b.Execute(ctx, counted)
	var openErr *ndcerrors.CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "ndc-api", openErr.Name)
	assert.Equal(t, 30*time.Second, openErr.RemainingCooldown)

	clock.Advance(29 * time.Second)
	err = b.Execute(ctx, counted)
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, time.Second, openErr.RemainingCooldown)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	clock.Advance(time.Second)
	var observed State
	err = b.Execute(ctx, func(context.Context) error {
		observed = b.State()
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, observed)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, counted))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	stats := b.Stats()
	assert.Equal(t, 0, stats.FailureCount)
	assert.Equal(t, 0, stats.SuccessCount)
	assert.Equal(t, uint64(2), stats.TotalRejections)
	assert.Equal(t, uint64(1), stats.TotalTrips)
	assert.Equal(t, uint64(3), stats.TotalFailures)
}

func TestLateFailureWhileOpenRestartsCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = time.Minute
	b, clock, timer := newTestBreaker(cfg)
	ctx := context.Background()
	tripped := clock.Now()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return errUpstream
		})
	}()
	<-started

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	}
	require.Equal(t, StateOpen, b.State())
	require.Equal(t, 1, timer.count())

	clock.Advance(10 * time.Second)
	close(release)
	assert.ErrorIs(t, <-done, errUpstream)

	stats := b.Stats()
	assert.Equal(t, StateOpen.String(), stats.State)
	assert.Equal(t, tripped.Add(10*time.Second), stats.LastFailureTime)
	assert.Equal(t, 30*time.Second, stats.RemainingCooldown)
	assert.Equal(t, uint64(1), stats.TotalTrips)
	require.Equal(t, 2, timer.count())

	timer.fire(0)
	assert.Equal(t, StateOpen, b.State(), "the superseded timer is ignored")

	clock.Advance(25 * time.Second)
	var openErr *ndcerrors.CircuitOpenError
	require.ErrorAs(t, b.Execute(ctx, succeed), &openErr)
	assert.Equal(t, 5*time.Second, openErr.RemainingCooldown)

	timer.fire(1)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestSuccessInClosedResetsFailureCount(t *testing.T) {
	b, _, _ := newTestBreaker(testConfig())
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, succeed))
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Stats().FailureCount)
}

func TestHalfOpenSingleFailureReopens(t *testing.T) {
	cfg := testConfig()
	cfg.SuccessThreshold = 5
	b, clock, _ := newTestBreaker(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	clock.Advance(30 * time.Second)

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Execute(ctx, succeed))
	}
	require.Equal(t, StateHalfOpen, b.State())
	assert.Equal(t, 4, b.Stats().SuccessCount)

	assert.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, b.State())

	stats := b.Stats()
	assert.Equal(t, 30*time.Second, stats.RemainingCooldown)
	assert.Equal(t, uint64(2), stats.TotalTrips)
	assert.Equal(t, 0, stats.SuccessCount)
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	b := New("slow", Config{FailureThreshold: 1, Timeout: 20 * time.Millisecond, ResetTimeout: time.Minute})

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	var timeoutErr *ndcerrors.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 20*time.Millisecond, timeoutErr.Timeout)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.TotalTimeouts)
	assert.Equal(t, uint64(1), stats.TotalFailures)
	assert.Equal(t, StateOpen, b.State())
}

func TestCallerCancellationIsNotAFailure(t *testing.T) {
	b, _, _ := newTestBreaker(testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	err := b.Execute(ctx, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), b.Stats().TotalFailures)
}

func TestPanicIsRecordedAsFailure(t *testing.T) {
	b, _, _ := newTestBreaker(testConfig())
	err := b.Execute(context.Background(), func(context.Context) error {
		panic("bad parser")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad parser")
	assert.Equal(t, 1, b.Stats().FailureCount)
}

func TestRunReturnsValue(t *testing.T) {
	b, _, _ := newTestBreaker(testConfig())
	got, err := Run(context.Background(), b, func(context.Context) (string, error) {
		return "<OrderViewRS/>", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "<OrderViewRS/>", got)
}

func TestTimerTransitionsWithoutCalls(t *testing.T) {
	b, _, timer := newTestBreaker(testConfig())
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	require.Equal(t, 1, timer.count())

	timer.fire(0)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestLazyPathAndTimerAgree(t *testing.T) {
	b, clock, timer := newTestBreaker(testConfig())
	var changes int32
	b.Subscribe(func(ev Event) {
		if ev.Type == EventStateChange {
			atomic.AddInt32(&changes, 1)
		}
	})

	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	clock.Advance(30 * time.Second)

	// The lazy check wins; the late timer must not transition again.
	require.NoError(t, b.Execute(context.Background(), succeed))
	require.Equal(t, StateHalfOpen, b.State())
	timer.fire(0)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Equal(t, int32(2), atomic.LoadInt32(&changes))

	// A timer from an earlier OPEN period is ignored during a later one.
	_ = b.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, b.State())
	require.Equal(t, 2, timer.count())
	timer.fire(0)
	assert.Equal(t, StateOpen, b.State())
	timer.fire(1)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestRealTimerReopensForProbe(t *testing.T) {
	b := New("ndc-api", Config{FailureThreshold: 1, ResetTimeout: 20 * time.Millisecond})
	_ = b.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, b.State())

	assert.Eventually(t, func() bool {
		return b.State() == StateHalfOpen
	}, time.Second, 5*time.Millisecond)
}

func TestClosingStopsTimer(t *testing.T) {
	b, clock, timer := newTestBreaker(testConfig())
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	clock.Advance(30 * time.Second)
	_ = b.Execute(context.Background(), succeed)
	_ = b.Execute(context.Background(), succeed)
	require.Equal(t, StateClosed, b.State())

	b.Reset()
	timer.fire(0)
	assert.Equal(t, StateClosed, b.State())
}

func TestReset(t *testing.T) {
	b, _, timer := newTestBreaker(testConfig())
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Stats().FailureCount)
	timer.mu.Lock()
	assert.True(t, timer.stopped[0])
	timer.mu.Unlock()
	assert.NoError(t, b.Execute(context.Background(), succeed))
}

func TestConcurrentFailuresTripOnce(t *testing.T) {
	b := New("ndc-api", Config{FailureThreshold: 5, ResetTimeout: time.Minute})

	var wg sync.WaitGroup
	var invoked int32
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), func(context.Context) error {
				atomic.AddInt32(&invoked, 1)
				return errUpstream
			})
		}()
	}
	wg.Wait()

	stats := b.Stats()
	assert.Equal(t, "OPEN", stats.State)
	assert.Equal(t, uint64(1), stats.TotalTrips)
	assert.Equal(t, uint64(atomic.LoadInt32(&invoked)), stats.TotalFailures)
	assert.Equal(t, uint64(100), stats.TotalFailures+stats.TotalRejections)
}

func TestConcurrentHalfOpenFailureIsNotLost(t *testing.T) {
	cfg := testConfig()
	cfg.SuccessThreshold = 1000
	b, clock, _ := newTestBreaker(cfg)
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	clock.Advance(30 * time.Second)
	require.NoError(t, b.Execute(context.Background(), succeed))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 25 {
				_ = b.Execute(context.Background(), fail)
				return
			}
			_ = b.Execute(context.Background(), succeed)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, StateOpen, b.State())
}
