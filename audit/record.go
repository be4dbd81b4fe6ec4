// record.go
// Package audit records every gateway call as a pre-call record followed by exactly one
// post-call or error record, all tagged with the request's correlation ids.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Phase marks where in a call a record was produced.
type Phase string

const (
	PhasePre   Phase = "pre"
	PhasePost  Phase = "post"
	PhaseError Phase = "error"
)

// Record is one audit entry. Body is always masked before it gets here.
type Record struct {
	ID            string        `json:"id"`
	Phase         Phase         `json:"phase"`
	Operation     string        `json:"operation"`
	Environment   string        `json:"environment,omitempty"`
	URL           string        `json:"url,omitempty"`
	CorrelationID string        `json:"correlationId,omitempty"`
	TransactionID string        `json:"transactionId,omitempty"`
	Fingerprint   string        `json:"fingerprint,omitempty"`
	Body          string        `json:"body,omitempty"`
	StatusCode    int           `json:"statusCode,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
	ErrorCode     string        `json:"errorCode,omitempty"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewRecord stamps a record with a fresh id and the current UTC time.
func NewRecord(phase Phase, operation string) Record {
	return Record{
		ID:        uuid.New().String(),
		Phase:     phase,
		Operation: operation,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives audit records.
type Sink interface {
	Write(ctx context.Context, record Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, record Record) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, record Record) error {
	return f(ctx, record)
}
