// concurrency/semaphore.go
/* package provides utilities to manage concurrency control. The handler ensures no more
than a configured number of gateway requests are in flight at the same time, using a
buffered channel as a semaphore. */
package concurrency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AcquireConcurrencyPermit blocks until a permit is free, ctx is done, or the acquire
// timeout passes. On success the returned context carries the permit's request id under
// RequestIDKey; the caller must hand that id to ReleaseConcurrencyPermit.
//
// Example:
//
//	ctx, requestID, err := ch.AcquireConcurrencyPermit(ctx)
//	if err != nil {
//	    return err
//	}
//	defer ch.ReleaseConcurrencyPermit(requestID)
func (ch *ConcurrencyHandler) AcquireConcurrencyPermit(ctx context.Context) (context.Context, uuid.UUID, error) {
	log := ch.logger

	acquisitionStart := time.Now()
	requestID := uuid.New()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, ch.acquireTimeout)
	defer cancel()

	select {
	case ch.sem <- struct{}{}:
		waited := time.Since(acquisitionStart)

		m := ch.Metrics
		m.lock.Lock()
		m.PermitWaitTime += waited
		m.TotalRequests++
		m.InFlight++
		if m.InFlight > m.MaxInFlight {
			m.MaxInFlight = m.InFlight
		}
		m.lock.Unlock()

		utilizedPermits := len(ch.sem)
		log.Debug("Acquired concurrency permit",
			zap.String("RequestID", requestID.String()),
			zap.Duration("AcquisitionTime", waited),
			zap.Int("UtilizedPermits", utilizedPermits),
			zap.Int("AvailablePermits", cap(ch.sem)-utilizedPermits),
		)

		return context.WithValue(ctx, RequestIDKey{}, requestID), requestID, nil

	case <-ctxWithTimeout.Done():
		ch.Metrics.lock.Lock()
		ch.Metrics.TotalAcquireFails++
		ch.Metrics.lock.Unlock()

		err := ctxWithTimeout.Err()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		log.Warn("Failed to acquire concurrency permit", zap.String("RequestID", requestID.String()), zap.Error(err))
		return ctx, requestID, err
	}
}

// ReleaseConcurrencyPermit returns a permit to the pool. requestID is used for logging only.
func (ch *ConcurrencyHandler) ReleaseConcurrencyPermit(requestID uuid.UUID) {
	<-ch.sem

	ch.Metrics.lock.Lock()
	ch.Metrics.InFlight--
	ch.Metrics.lock.Unlock()

	utilizedPermits := len(ch.sem)
	ch.logger.Debug("Released concurrency permit",
		zap.String("RequestID", requestID.String()),
		zap.Int("UtilizedPermits", utilizedPermits),
		zap.Int("AvailablePermits", cap(ch.sem)-utilizedPermits),
	)
}

// RequestIDFromContext returns the permit id stored by AcquireConcurrencyPermit.
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey{}).(uuid.UUID)
	return id, ok
}
