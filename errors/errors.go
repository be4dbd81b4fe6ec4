// errors.go
// This package defines the error taxonomy surfaced by the NDC client and its structured form.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flightgate/go-ndc-http-client/status"
)

// Stable error codes carried by Structured.
const (
	CodeCircuitOpen      = "CIRCUIT_OPEN"
	CodeAuthFailed       = "AUTH_FAILED"
	CodeNetwork          = "NETWORK_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeUpstreamHTTP     = "UPSTREAM_HTTP_ERROR"
	CodeUpstreamProtocol = "UPSTREAM_PROTOCOL_ERROR"
	CodeConfiguration    = "CONFIGURATION_ERROR"
	CodeResponseTooLarge = "RESPONSE_TOO_LARGE"
	CodeCanceled         = "CANCELED"
	CodeInternal         = "INTERNAL_ERROR"
)

// CircuitOpenError is returned when a call is rejected because the named breaker is OPEN.
type CircuitOpenError struct {
	Name              string
	RemainingCooldown time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry in %s", e.Name, e.RemainingCooldown.Round(time.Millisecond))
}

// AuthError wraps every failure to obtain a gateway token.
type AuthError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	msg := "authentication failed"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError is a transport failure with no HTTP response. Code is a short
// symbolic name such as ECONNRESET or ENOTFOUND.
type NetworkError struct {
	Code string
	Op   string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("network error %s during %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("network error %s: %v", e.Code, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError reports that an operation exceeded its time bound.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ConfigurationError reports an invalid or missing setting.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UpstreamProtocolError is an error element reported inside an otherwise successful NDC response.
type UpstreamProtocolError struct {
	Code    string
	Type    string
	Owner   string
	Message string
}

func (e *UpstreamProtocolError) Error() string {
	return fmt.Sprintf("upstream error (Code: %s, Type: %s): %s", e.Code, e.Type, e.Message)
}

// ResponseTooLargeError reports an upstream body longer than the client is willing to read.
// The truncated body is discarded rather than handed on as if it were complete.
type ResponseTooLargeError struct {
	Operation string
	Limit     int64
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("%s response body exceeds %d bytes", e.Operation, e.Limit)
}

// HTTPStatusError is implemented by errors that carry an upstream HTTP status.
type HTTPStatusError interface {
	error
	HTTPStatusCode() int
}

// Structured is the serialisable form of any error returned by the client.
type Structured struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// ToStructured classifies err into a Structured value. A nil error yields the zero value.
func ToStructured(err error) Structured {
	if err == nil {
		return Structured{}
	}

	var (
		circuitErr  *CircuitOpenError
		authErr     *AuthError
		timeoutErr  *TimeoutError
		networkErr  *NetworkError
		configErr   *ConfigurationError
		protocolErr *UpstreamProtocolError
		tooLargeErr *ResponseTooLargeError
		statusErr   HTTPStatusError
	)

	switch {
	case stderrors.As(err, &circuitErr):
		return Structured{Code: CodeCircuitOpen, Message: circuitErr.Error(), Retryable: false}
	case stderrors.As(err, &authErr):
		return Structured{Code: CodeAuthFailed, Message: authErr.Error(), Retryable: false, StatusCode: authErr.StatusCode}
	case stderrors.As(err, &configErr):
		return Structured{Code: CodeConfiguration, Message: configErr.Error(), Retryable: false}
	case stderrors.As(err, &tooLargeErr):
		return Structured{Code: CodeResponseTooLarge, Message: tooLargeErr.Error(), Retryable: false, StatusCode: http.StatusBadGateway}
	case stderrors.As(err, &statusErr):
		code := statusErr.HTTPStatusCode()
		return Structured{
			Code:       CodeUpstreamHTTP,
			Message:    statusErr.Error(),
			Retryable:  status.IsRetryableStatusCode(code),
			StatusCode: code,
		}
	case stderrors.As(err, &timeoutErr):
		return Structured{Code: CodeTimeout, Message: timeoutErr.Error(), Retryable: true, StatusCode: http.StatusGatewayTimeout}
	case stderrors.As(err, &networkErr):
		return Structured{Code: CodeNetwork, Message: networkErr.Error(), Retryable: true}
	case stderrors.As(err, &protocolErr):
		return Structured{Code: CodeUpstreamProtocol, Message: protocolErr.Error(), Retryable: false}
	case stderrors.Is(err, context.DeadlineExceeded):
		return Structured{Code: CodeTimeout, Message: err.Error(), Retryable: true, StatusCode: http.StatusGatewayTimeout}
	case stderrors.Is(err, context.Canceled):
		return Structured{Code: CodeCanceled, Message: err.Error(), Retryable: false}
	default:
		return Structured{Code: CodeInternal, Message: err.Error(), Retryable: false}
	}
}
