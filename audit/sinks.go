// sinks.go
package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/logger"
)

// ZapSink writes records as structured log entries.
type ZapSink struct {
	log         logger.Logger
	includeBody bool
}

// NewZapSink returns a sink logging through log. Bodies are only logged when includeBody is set.
func NewZapSink(log logger.Logger, includeBody bool) *ZapSink {
	return &ZapSink{log: log, includeBody: includeBody}
}

// Write logs the record; error records go out at warn level.
func (s *ZapSink) Write(_ context.Context, r Record) error {
	fields := []zap.Field{
		zap.String("audit_id", r.ID),
		zap.String("phase", string(r.Phase)),
		zap.String("operation", r.Operation),
		zap.String("correlation_id", r.CorrelationID),
		zap.String("transaction_id", r.TransactionID),
		zap.String("fingerprint", r.Fingerprint),
		zap.Time("timestamp", r.Timestamp),
	}
	if r.Environment != "" {
		fields = append(fields, zap.String("environment", r.Environment))
	}
	if r.URL != "" {
		fields = append(fields, zap.String("url", r.URL))
	}
	if r.StatusCode != 0 {
		fields = append(fields, zap.Int("status_code", r.StatusCode))
	}
	if r.Phase != PhasePre {
		fields = append(fields, zap.Duration("duration", r.Duration))
	}
	if s.includeBody && r.Body != "" {
		fields = append(fields, zap.String("body", r.Body))
	}

	if r.Phase == PhaseError {
		fields = append(fields, zap.String("error_code", r.ErrorCode), zap.String("error_message", r.ErrorMessage))
		s.log.Warn("NDC audit", fields...)
		return nil
	}
	s.log.Info("NDC audit", fields...)
	return nil
}

// MemorySink keeps every record in memory. It is meant for tests and the CLI.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends the record.
func (s *MemorySink) Write(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

// Records returns a copy of everything written so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// ByTransaction returns the records of one transaction in write order.
func (s *MemorySink) ByTransaction(transactionID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.TransactionID == transactionID {
			out = append(out, r)
		}
	}
	return out
}

// MultiSink fans a record out to several sinks, returning the first error.
type MultiSink []Sink

// Write writes to every sink even if an earlier one fails.
func (m MultiSink) Write(ctx context.Context, r Record) error {
	var first error
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
