// authenticationhandler/token_extraction.go
package authenticationhandler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

// tokenFields are the element or field names a gateway token may be returned under, in
// order of preference.
var tokenFields = []string{"Token", "AuthToken", "AccessToken", "access_token", "SessionToken"}

// expiryFields carry an optional token lifetime in seconds.
var expiryFields = []string{"ExpiresIn", "expires_in"}

// tokenHeaders are consulted when the body carries no token.
var tokenHeaders = []string{"Authorization", "X-Auth-Token", "Token"}

// ExtractToken pulls the bearer token out of an Auth response. XML bodies are searched by
// element name, JSON bodies by field name, and the response headers last. The returned
// duration is the lifetime announced by the gateway, or zero when it sent none.
func ExtractToken(body []byte, header http.Header) (string, time.Duration, bool) {
	var expiresIn time.Duration
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 {
		var token string
		switch trimmed[0] {
		case '<':
			token, expiresIn = extractFromXML(trimmed)
		case '{':
			token, expiresIn = extractFromJSON(trimmed)
		}
		if token != "" {
			return token, expiresIn, true
		}
	}

	for _, name := range tokenHeaders {
		value := strings.TrimSpace(header.Get(name))
		if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
			value = strings.TrimSpace(value[7:])
		} else if len(value) > 6 && strings.EqualFold(value[:6], "basic ") {
			continue
		}
		if ok, _ := IsValidToken(value); ok {
			return value, expiresIn, true
		}
	}
	return "", 0, false
}

func extractFromXML(body []byte) (string, time.Duration) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return "", 0
	}

	var expiresIn time.Duration
	for _, name := range expiryFields {
		if seconds, ok := parseSeconds(xmlText(doc, name)); ok {
			expiresIn = seconds
			break
		}
	}
	for _, name := range tokenFields {
		if value := xmlText(doc, name); value != "" {
			if ok, _ := IsValidToken(value); ok {
				return value, expiresIn
			}
		}
	}
	return "", expiresIn
}

func xmlText(doc *xmlquery.Node, name string) string {
	node, err := xmlquery.Query(doc, fmt.Sprintf("//*[local-name()='%s']", name))
	if err != nil || node == nil {
		return ""
	}
	return strings.TrimSpace(node.InnerText())
}

func extractFromJSON(body []byte) (string, time.Duration) {
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", 0
	}
	byName := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		byName[strings.ToLower(key)] = value
	}

	var expiresIn time.Duration
	for _, name := range expiryFields {
		if seconds, ok := parseSeconds(jsonString(byName[strings.ToLower(name)])); ok {
			expiresIn = seconds
			break
		}
	}
	for _, name := range tokenFields {
		value := strings.TrimSpace(jsonString(byName[strings.ToLower(name)]))
		if ok, _ := IsValidToken(value); ok {
			return value, expiresIn
		}
	}
	return "", expiresIn
}

func jsonString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func parseSeconds(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
