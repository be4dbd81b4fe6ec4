// classify.go
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
	"github.com/flightgate/go-ndc-http-client/status"
)

// Symbolic network error codes.
const (
	CodeConnReset     = "ECONNRESET"
	CodeTimedOut      = "ETIMEDOUT"
	CodeNotFound      = "ENOTFOUND"
	CodeConnRefused   = "ECONNREFUSED"
	CodeTryAgain      = "EAI_AGAIN"
	CodeBrokenPipe    = "EPIPE"
	CodeConnAborted   = "ECONNABORTED"
	CodeNetUnreach    = "ENETUNREACH"
	CodeUnexpectedEOF = "EOF"
	CodeUnknown       = "EUNKNOWN"
)

var retryableNetworkCodes = map[string]bool{
	CodeConnReset:     true,
	CodeTimedOut:      true,
	CodeNotFound:      true,
	CodeConnRefused:   true,
	CodeTryAgain:      true,
	CodeBrokenPipe:    true,
	CodeConnAborted:   true,
	CodeNetUnreach:    true,
	CodeUnexpectedEOF: true,
}

var transientMessagePatterns = []string{
	"timeout",
	"timed out",
	"socket hang up",
	"rate limit",
	"network",
	"connection reset",
	"connection refused",
}

// IsRetryableNetworkCode reports whether code names a transient transport failure.
func IsRetryableNetworkCode(code string) bool {
	return retryableNetworkCodes[code]
}

// NetworkCode maps a transport error onto a symbolic code. It returns "" when err
// carries no recognisable network failure.
func NetworkCode(err error) string {
	if err == nil {
		return ""
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTemporary || dnsErr.IsTimeout {
			return CodeTryAgain
		}
		return CodeNotFound
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET:
			return CodeConnReset
		case syscall.ECONNREFUSED:
			return CodeConnRefused
		case syscall.ETIMEDOUT:
			return CodeTimedOut
		case syscall.EPIPE:
			return CodeBrokenPipe
		case syscall.ECONNABORTED:
			return CodeConnAborted
		case syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return CodeNetUnreach
		}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return CodeUnexpectedEOF
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimedOut
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CodeUnknown
	}
	return ""
}

// WrapTransportError converts an error returned by the HTTP transport into the client's
// taxonomy: a *TimeoutError for deadline expiry, a *NetworkError otherwise. Context
// cancellation is passed through untouched.
func WrapTransportError(op string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	code := NetworkCode(err)
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ndcerrors.TimeoutError{Operation: op, Timeout: timeout, Err: err}
	}
	if code == "" {
		code = CodeUnknown
	}
	return &ndcerrors.NetworkError{Code: code, Op: op, Err: err}
}

// IsRetryable classifies err as transient. Circuit, auth, configuration and oversized-body
// failures are never retried, nor is context cancellation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var (
		circuitErr *ndcerrors.CircuitOpenError
		authErr    *ndcerrors.AuthError
		configErr  *ndcerrors.ConfigurationError
		tooLarge   *ndcerrors.ResponseTooLargeError
		statusErr  ndcerrors.HTTPStatusError
		networkErr *ndcerrors.NetworkError
		timeoutErr *ndcerrors.TimeoutError
	)
	switch {
	case errors.As(err, &circuitErr), errors.As(err, &authErr), errors.As(err, &configErr), errors.As(err, &tooLarge):
		return false
	case errors.As(err, &statusErr):
		return status.IsRetryableStatusCode(statusErr.HTTPStatusCode())
	case errors.As(err, &timeoutErr), errors.As(err, &networkErr):
		return true
	}

	if code := NetworkCode(err); IsRetryableNetworkCode(code) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientMessagePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Reason gives a short label for why err was considered retryable, used in log output.
func Reason(err error) string {
	var statusErr ndcerrors.HTTPStatusError
	if errors.As(err, &statusErr) {
		return "http_" + strconv.Itoa(statusErr.HTTPStatusCode())
	}
	var networkErr *ndcerrors.NetworkError
	if errors.As(err, &networkErr) {
		return strings.ToLower(networkErr.Code)
	}
	var timeoutErr *ndcerrors.TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if code := NetworkCode(err); code != "" {
		return strings.ToLower(code)
	}
	return "transient_message"
}
