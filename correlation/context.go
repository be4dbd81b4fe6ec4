// Package correlation carries request-scoped identifiers (correlation id, transaction id,
// credential hash) through every call on the outbound path. The RequestContext travels
// inside a context.Context, which is passed explicitly down the call chain.
package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// HeaderCorrelationID is the inbound/outbound header carrying the correlation id.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderTransactionID is the outbound header carrying the transaction id.
	HeaderTransactionID = "X-Transaction-ID"
)

// RequestContext is created once per inbound request. Everything except the credential
// hash is immutable; a new transaction id is obtained by deriving a child context with
// WithTransactionID.
type RequestContext struct {
	CorrelationID string
	TransactionID string
	StartTime     time.Time
	ClientIP      string
	UserAgent     string

	mu             sync.RWMutex
	credentialHash string
}

// Option configures a RequestContext at creation.
type Option func(*RequestContext)

// WithCorrelationID reuses an id supplied by the caller (e.g. an inbound X-Correlation-ID).
// Empty ids are ignored and a fresh one is generated instead.
func WithCorrelationID(id string) Option {
	return func(rc *RequestContext) {
		if id != "" {
			rc.CorrelationID = id
		}
	}
}

// WithClient records the inbound client address and user agent.
func WithClient(clientIP, userAgent string) Option {
	return func(rc *RequestContext) {
		rc.ClientIP = clientIP
		rc.UserAgent = userAgent
	}
}

// New creates a RequestContext with fresh correlation and transaction ids.
func New(opts ...Option) *RequestContext {
	rc := &RequestContext{
		CorrelationID: uuid.NewString(),
		TransactionID: uuid.NewString(),
		StartTime:     time.Now(),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// SetCredentialHash records the tenant fingerprint once credentials are parsed.
// Only the first call has an effect.
func (rc *RequestContext) SetCredentialHash(hash string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.credentialHash == "" {
		rc.credentialHash = hash
	}
}

// CredentialHash returns the fingerprint recorded for this request, if any.
func (rc *RequestContext) CredentialHash() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.credentialHash
}

// Elapsed returns the time since the request started.
func (rc *RequestContext) Elapsed() time.Duration {
	return time.Since(rc.StartTime)
}

type requestContextKey struct{}

// NewContext returns a copy of ctx carrying rc.
func NewContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext stored in ctx, or nil.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// Ensure returns ctx unchanged when it already carries a RequestContext, otherwise it
// attaches a new one. Outbound calls made outside an inbound request (CLI, jobs) still get ids.
func Ensure(ctx context.Context) (context.Context, *RequestContext) {
	if rc := FromContext(ctx); rc != nil {
		return ctx, rc
	}
	rc := New()
	return NewContext(ctx, rc), rc
}

// WithTransactionID derives a child context whose RequestContext shares the correlation
// id, start time, client and credential hash but carries a new transaction id. An empty
// id generates one. The parent RequestContext is not modified.
func WithTransactionID(ctx context.Context, transactionID string) context.Context {
	if transactionID == "" {
		transactionID = uuid.NewString()
	}
	parent := FromContext(ctx)
	child := &RequestContext{TransactionID: transactionID, StartTime: time.Now()}
	if parent != nil {
		child.CorrelationID = parent.CorrelationID
		child.StartTime = parent.StartTime
		child.ClientIP = parent.ClientIP
		child.UserAgent = parent.UserAgent
		if hash := parent.CredentialHash(); hash != "" {
			child.SetCredentialHash(hash)
		}
	} else {
		child.CorrelationID = uuid.NewString()
	}
	return NewContext(ctx, child)
}

// Fields returns the zap fields identifying the request carried by ctx.
func Fields(ctx context.Context) []zap.Field {
	rc := FromContext(ctx)
	if rc == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("correlation_id", rc.CorrelationID),
		zap.String("transaction_id", rc.TransactionID),
	}
	if hash := rc.CredentialHash(); hash != "" {
		fields = append(fields, zap.String("credential_hash", hash))
	}
	return fields
}
