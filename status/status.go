// status.go
// This package provides utility functions for categorizing HTTP status codes returned by the NDC gateway.
package status

import (
	"fmt"
	"net/http"
)

// retryableStatusCodes are the transient statuses on which an NDC call may be retried.
var retryableStatusCodes = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// IsSuccessStatusCode reports whether statusCode is in the 2xx range.
func IsSuccessStatusCode(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRetryableStatusCode checks if the provided HTTP status code is considered retryable.
func IsRetryableStatusCode(statusCode int) bool {
	return retryableStatusCodes[statusCode]
}

// IsNonRetryableStatusCode reports whether statusCode is an error status that must not be retried.
// Every 4xx/5xx outside the retryable set qualifies (401 and 403 included: credentials will not
// fix themselves between attempts).
func IsNonRetryableStatusCode(statusCode int) bool {
	return statusCode >= 400 && !IsRetryableStatusCode(statusCode)
}

// IsRateLimitStatusCode checks if the provided status code indicates rate limiting.
func IsRateLimitStatusCode(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests
}

// IsTransientStatusCode checks if a status code indicates a transient server-side failure.
func IsTransientStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsAuthFailureStatusCode reports whether statusCode means the tenant credentials were refused.
func IsAuthFailureStatusCode(statusCode int) bool {
	return statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden
}

var statusMessages = map[int]string{
	http.StatusOK:                   "Request successful.",
	http.StatusBadRequest:           "Bad request. Verify the syntax of the NDC message.",
	http.StatusUnauthorized:         "Authentication failed. Verify the tenant credentials.",
	http.StatusForbidden:            "Invalid permissions. Verify the subscription key and agency access.",
	http.StatusNotFound:             "Resource not found. Verify the operation path.",
	http.StatusMethodNotAllowed:     "Method not allowed. The method specified is not allowed for the resource.",
	http.StatusRequestTimeout:       "Request timeout. The server timed out waiting for the request.",
	http.StatusConflict:             "Conflict. The request could not be processed because of conflict in the request.",
	http.StatusUnsupportedMediaType: "Unsupported media type. NDC endpoints expect application/xml.",
	http.StatusUnprocessableEntity:  "Unprocessable entity. The NDC message was well-formed but could not be processed.",
	http.StatusTooManyRequests:      "Too many requests. The subscription has exceeded its rate limit.",
	http.StatusInternalServerError:  "Internal server error. The server encountered an unexpected condition that prevented it from fulfilling the request.",
	http.StatusNotImplemented:       "Not implemented. The server does not support the functionality required to fulfill the request.",
	http.StatusBadGateway:           "Bad gateway. The server received an invalid response from the upstream server.",
	http.StatusServiceUnavailable:   "Service unavailable. The server is currently unable to handle the request due to temporary overloading or maintenance.",
	http.StatusGatewayTimeout:       "Gateway timeout. The server did not receive a timely response from the upstream server.",
}

// TranslateStatusCode provides a human-readable message for HTTP status codes.
// A zero status means no response was received at all.
func TranslateStatusCode(statusCode int) string {
	if statusCode == 0 {
		return "No status code received, possible network or connection error."
	}
	if message, exists := statusMessages[statusCode]; exists {
		return message
	}
	if text := http.StatusText(statusCode); text != "" {
		return text + "."
	}
	return fmt.Sprintf("Unknown status code: %d", statusCode)
}
