// async.go
package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/logger"
)

// DefaultBufferSize is the queue length of an AsyncSink.
const DefaultBufferSize = 1024

// AsyncSink queues records for a single background worker so that audit writes never block
// a gateway call. One worker keeps records in the order they were queued. When the queue is
// full the record is dropped with a warning.
type AsyncSink struct {
	next    Sink
	log     logger.Logger
	records chan Record

	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.RWMutex
	stopped   bool
	wg        sync.WaitGroup

	dropped atomic.Uint64
}

// NewAsyncSink wraps next. bufferSize <= 0 uses DefaultBufferSize.
func NewAsyncSink(next Sink, bufferSize int, log logger.Logger) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &AsyncSink{
		next:    next,
		log:     log,
		records: make(chan Record, bufferSize),
	}
}

// Start launches the worker. Calling it again has no effect.
func (s *AsyncSink) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.worker()
	})
}

// Write queues r without blocking.
func (s *AsyncSink) Write(_ context.Context, r Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		s.log.Warn("Audit sink stopped, record dropped", zap.String("operation", r.Operation), zap.String("phase", string(r.Phase)))
		return nil
	}

	select {
	case s.records <- r:
	default:
		s.dropped.Add(1)
		s.log.Warn("Audit queue is full, record dropped", zap.String("operation", r.Operation), zap.String("phase", string(r.Phase)))
	}
	return nil
}

// Dropped reports how many records were discarded because the queue was full.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Stop refuses new records, drains the queue and waits for the worker.
func (s *AsyncSink) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.records)
		s.mu.Unlock()
		s.wg.Wait()
	})
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()
	for r := range s.records {
		if err := s.next.Write(context.Background(), r); err != nil {
			s.log.Warn("Failed to write audit record", zap.String("audit_id", r.ID), zap.Error(err))
		}
	}
}
