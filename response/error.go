// response/error.go
// This package turns NDC gateway responses into client values: APIError for non-2xx
// statuses and UpstreamError markers for business errors inside successful bodies.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/flightgate/go-ndc-http-client/logger"
	"github.com/flightgate/go-ndc-http-client/retry"
	"github.com/flightgate/go-ndc-http-client/status"
)

// MaxErrorBodyBytes bounds how much of an error body is kept.
const MaxErrorBodyBytes = 1 << 20

// APIError represents a non-2xx response from the NDC gateway.
type APIError struct {
	StatusCode  int             `json:"status_code"`
	Method      string          `json:"method"`
	URL         string          `json:"url"`
	Message     string          `json:"message"`
	Errors      []UpstreamError `json:"errors,omitempty"`
	RawResponse string          `json:"raw_response"`
	// RetryAfterDuration is the wait the gateway asked for on 429/503, if any.
	RetryAfterDuration time.Duration `json:"retry_after,omitempty"`
}

// Error returns a string representation of the APIError.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = status.TranslateStatusCode(e.StatusCode)
	}
	return fmt.Sprintf("NDC API error (StatusCode: %d, Method: %s, URL: %s): %s", e.StatusCode, e.Method, e.URL, msg)
}

// HTTPStatusCode exposes the upstream status to the retry classifier.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// RetryAfter exposes the server-suggested wait to the retry policy.
func (e *APIError) RetryAfter() time.Duration { return e.RetryAfterDuration }

// HandleAPIErrorResponse reads resp's body and builds an APIError from it. The body is
// parsed according to its Content-Type: XML through xmlquery, HTML through x/net/html,
// JSON, or plain text.
func HandleAPIErrorResponse(resp *http.Response, log logger.Logger) *APIError {
	apiError := &APIError{
		StatusCode: resp.StatusCode,
		Message:    "NDC API Error Response",
	}
	if resp.Request != nil {
		apiError.Method = resp.Request.Method
		apiError.URL = resp.Request.URL.String()
	}
	if status.IsRateLimitStatusCode(resp.StatusCode) || resp.StatusCode == http.StatusServiceUnavailable {
		apiError.RetryAfterDuration = retry.ParseRateLimitHeaders(resp, log)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodyBytes))
	if err != nil {
		apiError.RawResponse = "Failed to read response body"
		log.Warn("Failed to read error response body", zap.Int("status_code", resp.StatusCode), zap.Error(err))
		return apiError
	}

	mimeType, _ := ParseContentTypeHeader(resp.Header.Get("Content-Type"))
	switch {
	case mimeType == "application/json":
		parseJSONResponse(bodyBytes, apiError)
	case mimeType == "application/xml", mimeType == "text/xml", strings.HasSuffix(mimeType, "+xml"):
		parseXMLResponse(bodyBytes, apiError)
	case mimeType == "text/html":
		parseHTMLResponse(bodyBytes, apiError)
	case mimeType == "text/plain":
		parseTextResponse(bodyBytes, apiError)
	case bytes.HasPrefix(bytes.TrimSpace(bodyBytes), []byte("<")):
		parseXMLResponse(bodyBytes, apiError)
	default:
		apiError.RawResponse = string(bodyBytes)
		if len(bodyBytes) == 0 {
			apiError.Message = status.TranslateStatusCode(resp.StatusCode)
		} else {
			apiError.Message = "Unknown content type error"
		}
	}

	log.Debug("Parsed NDC error response",
		zap.Int("status_code", apiError.StatusCode),
		zap.String("content_type", mimeType),
		zap.Int("upstream_errors", len(apiError.Errors)),
	)
	return apiError
}

// parseJSONResponse reads the {"message": ..., "statusCode": ...} shape the API management
// layer in front of the gateway uses for its own rejections.
func parseJSONResponse(bodyBytes []byte, apiError *APIError) {
	apiError.RawResponse = string(bodyBytes)

	var body struct {
		Message string `json:"message"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return
	}
	switch {
	case body.Error.Message != "":
		apiError.Message = body.Error.Message
		apiError.Errors = append(apiError.Errors, UpstreamError{Code: body.Error.Code, Message: body.Error.Message})
	case body.Message != "":
		apiError.Message = body.Message
	default:
		apiError.Message = "An unknown error occurred"
	}
}

// parseXMLResponse prefers NDC <Error> markers and otherwise joins every text node.
func parseXMLResponse(bodyBytes []byte, apiError *APIError) {
	apiError.RawResponse = string(bodyBytes)

	if markers := InspectUpstreamErrors(bodyBytes); len(markers) > 0 {
		apiError.Errors = markers
		messages := make([]string, 0, len(markers))
		for _, m := range markers {
			if m.Message != "" {
				messages = append(messages, m.Message)
			}
		}
		if len(messages) > 0 {
			apiError.Message = strings.Join(messages, "; ")
			return
		}
	}

	doc, err := xmlquery.Parse(bytes.NewReader(bodyBytes))
	if err != nil {
		return
	}

	var messages []string
	var traverse func(*xmlquery.Node)
	traverse = func(n *xmlquery.Node) {
		if n.Type == xmlquery.TextNode && strings.TrimSpace(n.Data) != "" {
			messages = append(messages, strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	if len(messages) > 0 {
		apiError.Message = strings.Join(messages, "; ")
	} else {
		apiError.Message = "Failed to extract error details from XML response"
	}
}

func parseTextResponse(bodyBytes []byte, apiError *APIError) {
	bodyText := string(bodyBytes)
	apiError.RawResponse = bodyText
	apiError.Message = strings.TrimSpace(bodyText)
}

// parseHTMLResponse concatenates the text of <title> and every <p>, keeping link targets.
// Gateways and load balancers answer with HTML pages on 502/503.
func parseHTMLResponse(bodyBytes []byte, apiError *APIError) {
	apiError.RawResponse = string(bodyBytes)

	doc, err := html.Parse(bytes.NewReader(bodyBytes))
	if err != nil {
		return
	}

	var messages []string
	var parse func(*html.Node)
	parse = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "p" || n.Data == "title" || n.Data == "h1") {
			var content strings.Builder
			var collect func(*html.Node)
			collect = func(c *html.Node) {
				switch {
				case c.Type == html.TextNode:
					content.WriteString(strings.TrimSpace(c.Data) + " ")
				case c.Type == html.ElementNode && c.Data == "a":
					for _, attr := range c.Attr {
						if attr.Key == "href" {
							content.WriteString("[Link: " + attr.Val + "] ")
							break
						}
					}
				}
				for child := c.FirstChild; child != nil; child = child.NextSibling {
					collect(child)
				}
			}
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				collect(child)
			}
			if text := strings.TrimSpace(content.String()); text != "" {
				messages = append(messages, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			parse(c)
		}
	}
	parse(doc)

	if len(messages) > 0 {
		apiError.Message = strings.Join(messages, "; ")
	} else {
		apiError.Message = "HTML Error: See 'RawResponse' field for details."
	}
}
