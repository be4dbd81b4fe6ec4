// headers/headers.go
package headers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/headers/redact"
	"github.com/flightgate/go-ndc-http-client/logger"
)

// Header names used on every gateway request.
const (
	HeaderAuthorization   = "Authorization"
	HeaderSubscriptionKey = "Ocp-Apim-Subscription-Key"
	HeaderContentType     = "Content-Type"
	HeaderAccept          = "Accept"
	HeaderUserAgent       = "User-Agent"
	HeaderCorrelationID   = "X-Correlation-ID"
	HeaderTransactionID   = "X-Transaction-ID"

	ContentTypeXML = "application/xml"
)

// NDCHeaders is the set of values applied to one outbound gateway request.
type NDCHeaders struct {
	Authorization          string
	SubscriptionKey        string
	EnvironmentHeaderName  string
	EnvironmentHeaderToken string
	CorrelationID          string
	TransactionID          string
	UserAgent              string
}

// HeaderHandler is responsible for managing and setting headers on HTTP requests.
type HeaderHandler struct {
	req               *http.Request
	log               logger.Logger
	hideSensitiveData bool
}

// NewHeaderHandler creates a new instance of HeaderHandler for a given http.Request and logger.
func NewHeaderHandler(req *http.Request, log logger.Logger, hideSensitiveData bool) *HeaderHandler {
	return &HeaderHandler{
		req:               req,
		log:               log,
		hideSensitiveData: hideSensitiveData,
	}
}

// SetAuthorization sets the Authorization header to a ready-made value such as "Basic ...".
func (h *HeaderHandler) SetAuthorization(value string) {
	h.req.Header.Set(HeaderAuthorization, value)
}

// SetSubscriptionKey sets the API management subscription key.
func (h *HeaderHandler) SetSubscriptionKey(key string) {
	if key != "" {
		h.req.Header.Set(HeaderSubscriptionKey, key)
	}
}

// SetContentType sets the Content-Type header for the request.
func (h *HeaderHandler) SetContentType(contentType string) {
	h.req.Header.Set(HeaderContentType, contentType)
}

// SetAccept sets the Accept header for the request.
func (h *HeaderHandler) SetAccept(acceptHeader string) {
	h.req.Header.Set(HeaderAccept, acceptHeader)
}

// SetUserAgent sets the User-Agent header for the request.
func (h *HeaderHandler) SetUserAgent(userAgent string) {
	if userAgent != "" {
		h.req.Header.Set(HeaderUserAgent, userAgent)
	}
}

// SetEnvironmentHeader sets the per-environment routing header. Nothing is sent unless
// both the name and the token are known.
func (h *HeaderHandler) SetEnvironmentHeader(name, token string) {
	if name != "" && token != "" {
		h.req.Header.Set(name, token)
	}
}

// SetCorrelation propagates the request's correlation and transaction ids.
func (h *HeaderHandler) SetCorrelation(correlationID, transactionID string) {
	if correlationID != "" {
		h.req.Header.Set(HeaderCorrelationID, correlationID)
	}
	if transactionID != "" {
		h.req.Header.Set(HeaderTransactionID, transactionID)
	}
}

// SetCustomHeader sets a custom header for an HTTP request.
func SetCustomHeader(req *http.Request, headerName, headerValue string) {
	req.Header.Set(headerName, headerValue)
}

// SetRequestHeaders applies every NDC header in one go.
func (h *HeaderHandler) SetRequestHeaders(values NDCHeaders) {
	h.SetAuthorization(values.Authorization)
	h.SetSubscriptionKey(values.SubscriptionKey)
	h.SetContentType(ContentTypeXML)
	h.SetAccept(ContentTypeXML)
	h.SetUserAgent(values.UserAgent)
	h.SetEnvironmentHeader(values.EnvironmentHeaderName, values.EnvironmentHeaderToken)
	h.SetCorrelation(values.CorrelationID, values.TransactionID)
}

// LogHeaders prints all the current headers in the http.Request at debug level, redacting
// sensitive values when hideSensitiveData is set.
func (h *HeaderHandler) LogHeaders() {
	if h.log.GetLogLevel() <= logger.LogLevelDebug {
		redactedHeaders := redact.RedactHeaders(h.hideSensitiveData, h.req.Header)
		h.log.Debug("HTTP Request Headers", zap.String("Headers", HeadersToString(redactedHeaders)))
	}
}

// HeadersToString converts a http.Header to a string for logging, one header per line in
// name order.
func HeadersToString(headers http.Header) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	headerStrings := make([]string, 0, len(names))
	for _, name := range names {
		headerStrings = append(headerStrings, fmt.Sprintf("%s: %s", name, strings.Join(headers[name], ", ")))
	}
	return strings.Join(headerStrings, "\n")
}

// CheckDeprecationHeader checks the response headers for the Deprecation header and logs a warning if present.
func CheckDeprecationHeader(resp *http.Response, log logger.Logger) {
	deprecationHeader := resp.Header.Get("Deprecation")
	if deprecationHeader != "" {
		endpoint := ""
		if resp.Request != nil {
			endpoint = resp.Request.URL.String()
		}
		log.Warn("NDC endpoint is deprecated",
			zap.String("Date", deprecationHeader),
			zap.String("Endpoint", endpoint),
		)
	}
}
