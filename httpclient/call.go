// httpclient/call.go
package httpclient

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/audit"
	"github.com/flightgate/go-ndc-http-client/circuitbreaker"
	"github.com/flightgate/go-ndc-http-client/correlation"
	"github.com/flightgate/go-ndc-http-client/credentials"
	"github.com/flightgate/go-ndc-http-client/environments"
	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
	"github.com/flightgate/go-ndc-http-client/headers"
	"github.com/flightgate/go-ndc-http-client/headers/redact"
	"github.com/flightgate/go-ndc-http-client/metrics"
	"github.com/flightgate/go-ndc-http-client/response"
	"github.com/flightgate/go-ndc-http-client/retry"
	"github.com/flightgate/go-ndc-http-client/status"
	"github.com/flightgate/go-ndc-http-client/tokencache"
)

// CallResult is the outcome of a successful gateway call.
type CallResult struct {
	XMLResponseBody []byte
	StatusCode      int
	TokenInfo       tokencache.TokenInfo
	Duration        time.Duration
	UpstreamErrors  []response.UpstreamError
	CorrelationID   string
	TransactionID   string
}

// upstreamResponse is what a single successful attempt hands back through retry and breaker.
type upstreamResponse struct {
	statusCode int
	body       []byte
}

// callScope carries what one Call has resolved so far, for audit and logging.
type callScope struct {
	operation   string
	metricsKey  string
	environment string
	url         string
	fingerprint string
	rc          *correlation.RequestContext
	start       time.Time
}

func (s *callScope) record(phase audit.Phase) audit.Record {
	r := audit.NewRecord(phase, s.operation)
	r.Environment = s.environment
	r.URL = s.url
	r.CorrelationID = s.rc.CorrelationID
	r.TransactionID = s.rc.TransactionID
	r.Fingerprint = credentials.Short(s.fingerprint)
	return r
}

// Call sends xmlBody to the NDC operation on behalf of the tenant identified by creds.
//
// The token is ensured first for operations that need one. The POST itself runs inside the
// retry policy, which runs inside the circuit breaker; each attempt holds a concurrency
// permit. Exactly one pre-call audit record is written, followed by one post-call or error
// record. Errors are returned unchanged: *errors.CircuitOpenError when the breaker rejects,
// *errors.AuthError when the token cannot be obtained, and the last attempt's error otherwise.
func (c *Client) Call(ctx context.Context, creds credentials.TenantCredentials, operation string, xmlBody []byte) (*CallResult, error) {
	ctx, rc := correlation.Ensure(ctx)
	scope := &callScope{
		operation:   operation,
		metricsKey:  operation,
		fingerprint: creds.Fingerprint(),
		rc:          rc,
		start:       time.Now(),
	}
	if _, err := LookupOperation(operation); err != nil {
		scope.metricsKey = metrics.UnknownOperation
	}
	rc.SetCredentialHash(credentials.Short(scope.fingerprint))
	c.metrics.CallStarted(scope.metricsKey)

	op, env, resolveErr := c.resolve(creds, operation)
	if resolveErr == nil {
		scope.environment = string(env.Name)
		scope.url = env.ConstructAPIResourceEndpoint(op.Path, c.Logger)
	}

	pre := scope.record(audit.PhasePre)
	pre.Body = c.auditBody(xmlBody)
	c.writeAudit(ctx, pre)

	if resolveErr != nil {
		return nil, c.fail(ctx, scope, resolveErr)
	}

	c.Logger.LogCallStart("ndc_call_start", operation, scope.url, credentials.Short(scope.fingerprint), correlation.Fields(ctx)...)

	if op.RequiresToken {
		if _, err := c.auth.EnsureToken(ctx, creds); err != nil {
			return nil, c.fail(ctx, scope, err)
		}
	}

	breaker := c.breakers.Get(BreakerName)
	result, err := circuitbreaker.Run(ctx, breaker, func(ctx context.Context) (*upstreamResponse, error) {
		return retry.Do(ctx, c.retry, operation, func(ctx context.Context) (*upstreamResponse, error) {
			return c.post(ctx, scope, env, creds, xmlBody)
		})
	})
	if err != nil {
		// The gateway rejected the tenant; the cached token is no longer trusted.
		if statusCodeOf(err) == http.StatusUnauthorized && c.auth.InvalidateToken(creds) {
			c.Logger.Info("Cached token dropped after upstream rejected credentials",
				append(correlation.Fields(ctx), zap.String("operation", operation))...)
		}
		return nil, c.fail(ctx, scope, err)
	}

	upstreamErrors := response.InspectUpstreamErrors(result.body)
	duration := time.Since(scope.start)

	post := scope.record(audit.PhasePost)
	post.Body = c.auditBody(result.body)
	post.StatusCode = result.statusCode
	post.Duration = duration
	c.writeAudit(ctx, post)

	c.metrics.CallSucceeded(scope.metricsKey, duration)
	c.Logger.LogCallEnd("ndc_call_end", operation, scope.url, result.statusCode, duration, correlation.Fields(ctx)...)

	if len(upstreamErrors) > 0 {
		codes := make([]string, 0, len(upstreamErrors))
		for _, ue := range upstreamErrors {
			codes = append(codes, ue.Code)
		}
		c.Logger.Warn("Upstream reported errors in response",
			append(correlation.Fields(ctx),
				zap.String("operation", operation),
				zap.Int("count", len(upstreamErrors)),
				zap.Strings("codes", codes),
			)...,
		)
	}

	return &CallResult{
		XMLResponseBody: result.body,
		StatusCode:      result.statusCode,
		TokenInfo:       c.completionTokenInfo(scope.fingerprint),
		Duration:        duration,
		UpstreamErrors:  upstreamErrors,
		CorrelationID:   rc.CorrelationID,
		TransactionID:   rc.TransactionID,
	}, nil
}

func (c *Client) resolve(creds credentials.TenantCredentials, operation string) (Operation, environments.Environment, error) {
	op, err := LookupOperation(operation)
	if err != nil {
		return Operation{}, environments.Environment{}, err
	}
	if err := creds.Validate(); err != nil {
		return Operation{}, environments.Environment{}, err
	}
	env, err := c.envs.Resolve(creds.Env())
	if err != nil {
		return Operation{}, environments.Environment{}, err
	}
	return op, env, nil
}

// post performs one attempt: acquire a permit, POST the XML, read the response.
func (c *Client) post(ctx context.Context, scope *callScope, env environments.Environment, creds credentials.TenantCredentials, xmlBody []byte) (*upstreamResponse, error) {
	ctx, permitID, err := c.Concurrency.AcquireConcurrencyPermit(ctx)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &ndcerrors.TimeoutError{Operation: "acquire concurrency permit", Timeout: c.config.AcquireTimeout, Err: err}
		}
		return nil, err
	}
	defer c.Concurrency.ReleaseConcurrencyPermit(permitID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, scope.url, bytes.NewReader(xmlBody))
	if err != nil {
		return nil, &ndcerrors.ConfigurationError{Field: "url", Message: "failed to create request", Err: err}
	}

	headerHandler := headers.NewHeaderHandler(req, c.Logger, c.config.HideSensitiveData)
	headerHandler.SetRequestHeaders(headers.NDCHeaders{
		Authorization:          creds.BasicAuthHeader(),
		SubscriptionKey:        creds.SubscriptionKey,
		EnvironmentHeaderName:  env.HeaderName,
		EnvironmentHeaderToken: env.HeaderToken,
		CorrelationID:          scope.rc.CorrelationID,
		TransactionID:          scope.rc.TransactionID,
		UserAgent:              c.userAgent,
	})
	headerHandler.LogHeaders()

	started := time.Now()
	resp, err := c.http.Do(req)
	c.Concurrency.RecordResponseTime(time.Since(started))
	if err != nil {
		return nil, retry.WrapTransportError(scope.operation, c.http.Timeout, err)
	}
	defer resp.Body.Close()

	headers.CheckDeprecationHeader(resp, c.Logger)

	if !status.IsSuccessStatusCode(resp.StatusCode) {
		return nil, response.HandleAPIErrorResponse(resp, c.Logger)
	}

	body, err := response.ReadLimitedBody(resp.Body, c.config.MaxResponseBodyBytes, scope.operation)
	if err != nil {
		var tooLarge *ndcerrors.ResponseTooLargeError
		if stderrors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, retry.WrapTransportError(scope.operation, c.http.Timeout, err)
	}
	return &upstreamResponse{statusCode: resp.StatusCode, body: body}, nil
}

// completionTokenInfo reads the cache as of call completion. Operations that never needed a
// token report a synthetic VALID with no remaining lifetime.
func (c *Client) completionTokenInfo(fingerprint string) tokencache.TokenInfo {
	info := c.tokens.TokenInfoByFingerprint(fingerprint)
	if info.Status == tokencache.StatusNone {
		return tokencache.TokenInfo{Fingerprint: fingerprint, Status: tokencache.StatusValid}
	}
	return info
}

func (c *Client) fail(ctx context.Context, scope *callScope, err error) error {
	duration := time.Since(scope.start)
	structured := ndcerrors.ToStructured(err)

	rec := scope.record(audit.PhaseError)
	rec.StatusCode = structured.StatusCode
	rec.Duration = duration
	rec.ErrorCode = structured.Code
	rec.ErrorMessage = structured.Message
	c.writeAudit(ctx, rec)

	c.metrics.CallFailed(scope.metricsKey, structured.Code, duration)
	c.Logger.LogError("ndc_call_error", scope.operation, scope.url, structured.StatusCode, err,
		append(correlation.Fields(ctx), zap.String("error_code", structured.Code))...)
	return err
}

func (c *Client) auditBody(body []byte) string {
	if !c.config.AuditIncludeBody {
		return ""
	}
	return redact.RedactXML(string(body))
}

func (c *Client) writeAudit(ctx context.Context, r audit.Record) {
	if err := c.audit.Write(ctx, r); err != nil {
		c.Logger.Warn("Failed to write audit record",
			zap.String("operation", r.Operation),
			zap.String("phase", string(r.Phase)),
			zap.Error(err),
		)
	}
}

func statusCodeOf(err error) int {
	var statusErr ndcerrors.HTTPStatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.HTTPStatusCode()
	}
	return 0
}
