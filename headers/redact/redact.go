// headers/redact/redact.go
package redact

import (
	"net/http"
	"regexp"
	"strings"
)

// Mask replaces every redacted value.
const Mask = "REDACTED"

var sensitiveHeaders = map[string]bool{
	"Authorization":             true,
	"Proxy-Authorization":       true,
	"Ocp-Apim-Subscription-Key": true,
	"X-Auth-Token":              true,
	"Token":                     true,
	"Accesstoken":               true,
	"Cookie":                    true,
	"Set-Cookie":                true,
}

// RedactSensitiveHeaderData redacts sensitive data based on the hideSensitiveData flag.
// Header names are compared in canonical form.
func RedactSensitiveHeaderData(hideSensitiveData bool, key, value string) string {
	if hideSensitiveData && sensitiveHeaders[http.CanonicalHeaderKey(key)] {
		return Mask
	}
	return value
}

// RedactHeaders returns a copy of h with sensitive values masked.
func RedactHeaders(hideSensitiveData bool, h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		copied := make([]string, len(values))
		for i, v := range values {
			copied[i] = RedactSensitiveHeaderData(hideSensitiveData, name, v)
		}
		out[name] = copied
	}
	return out
}

// sensitiveElements are NDC element and attribute names whose values never reach the audit log.
var sensitiveElements = []string{
	"Password",
	"CardNumber",
	"CardNumberText",
	"SeriesCode",
	"CVV",
	"CardSecurityCode",
	"SecurityCode",
	"ExpirationDate",
	"Token",
	"AuthToken",
	"AccessToken",
}

var (
	elementPattern   = regexp.MustCompile(`(<(?:[\w.-]+:)?(?:` + strings.Join(sensitiveElements, "|") + `)(?:\s[^>]*)?>)[^<]*`)
	attributePattern = regexp.MustCompile(`(\s(?:` + strings.Join(sensitiveElements, "|") + `)\s*=\s*)("[^"]*"|'[^']*')`)
)

// RedactXML masks the text of sensitive elements and the values of sensitive attributes
// while leaving the rest of the document untouched. It works on partial or malformed XML.
func RedactXML(body string) string {
	if body == "" {
		return body
	}
	body = elementPattern.ReplaceAllString(body, "${1}"+Mask)
	return attributePattern.ReplaceAllString(body, `${1}"`+Mask+`"`)
}
