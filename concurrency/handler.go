// concurrency/handler.go
package concurrency

import (
	"sync"
	"time"

	"github.com/flightgate/go-ndc-http-client/logger"
)

// ConcurrencyHandler controls the number of concurrent gateway requests.
type ConcurrencyHandler struct {
	sem            chan struct{}
	logger         logger.Logger
	acquireTimeout time.Duration
	Metrics        *ConcurrencyMetrics
}

// ConcurrencyMetrics captures permit usage and response-time variability of gateway calls.
type ConcurrencyMetrics struct {
	lock sync.Mutex

	TotalRequests     int64
	TotalAcquireFails int64
	PermitWaitTime    time.Duration
	InFlight          int
	MaxInFlight       int

	ResponseTimeVariability struct {
		Count   int64
		Average time.Duration
		// m2 accumulates squared deviations (Welford).
		m2 float64
	}
}

// MetricsSnapshot is a copy of ConcurrencyMetrics safe to hand out.
type MetricsSnapshot struct {
	TotalRequests        int64         `json:"totalRequests"`
	TotalAcquireFails    int64         `json:"totalAcquireFails"`
	PermitWaitTime       time.Duration `json:"permitWaitTime"`
	InFlight             int           `json:"inFlight"`
	MaxInFlight          int           `json:"maxInFlight"`
	Limit                int           `json:"limit"`
	ResponseTimeCount    int64         `json:"responseTimeCount"`
	AverageResponseTime  time.Duration `json:"averageResponseTime"`
	ResponseTimeVariance float64       `json:"responseTimeVariance"`
}

// NewConcurrencyHandler initializes a new ConcurrencyHandler with the given
// concurrency limit and logger. A limit below MinConcurrency is raised to it.
func NewConcurrencyHandler(limit int, log logger.Logger, metrics *ConcurrencyMetrics) *ConcurrencyHandler {
	if limit < MinConcurrency {
		limit = MinConcurrency
	}
	if metrics == nil {
		metrics = &ConcurrencyMetrics{}
	}
	return &ConcurrencyHandler{
		sem:            make(chan struct{}, limit),
		logger:         log,
		acquireTimeout: DefaultAcquireTimeout,
		Metrics:        metrics,
	}
}

// SetAcquireTimeout changes how long AcquireConcurrencyPermit waits.
func (ch *ConcurrencyHandler) SetAcquireTimeout(d time.Duration) {
	if d > 0 {
		ch.acquireTimeout = d
	}
}

// Limit is the semaphore capacity.
func (ch *ConcurrencyHandler) Limit() int {
	return cap(ch.sem)
}

// RecordResponseTime folds one attempt's duration into the running mean and variance.
func (ch *ConcurrencyHandler) RecordResponseTime(d time.Duration) {
	m := ch.Metrics
	m.lock.Lock()
	defer m.lock.Unlock()

	rtv := &m.ResponseTimeVariability
	rtv.Count++
	delta := float64(d - rtv.Average)
	rtv.Average += time.Duration(delta / float64(rtv.Count))
	rtv.m2 += delta * float64(d-rtv.Average)
}

// Snapshot returns the current metrics.
func (ch *ConcurrencyHandler) Snapshot() MetricsSnapshot {
	m := ch.Metrics
	m.lock.Lock()
	defer m.lock.Unlock()

	s := MetricsSnapshot{
		TotalRequests:       m.TotalRequests,
		TotalAcquireFails:   m.TotalAcquireFails,
		PermitWaitTime:      m.PermitWaitTime,
		InFlight:            m.InFlight,
		MaxInFlight:         m.MaxInFlight,
		Limit:               cap(ch.sem),
		ResponseTimeCount:   m.ResponseTimeVariability.Count,
		AverageResponseTime: m.ResponseTimeVariability.Average,
	}
	if m.ResponseTimeVariability.Count > 1 {
		s.ResponseTimeVariance = m.ResponseTimeVariability.m2 / float64(m.ResponseTimeVariability.Count-1)
	}
	return s
}

// RequestIDKey is the context key under which the permit's request id is stored.
type RequestIDKey struct{}
