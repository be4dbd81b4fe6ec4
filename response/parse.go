// response/parse.go
package response

import "strings"

// ParseContentTypeHeader splits a Content-Type value into its lower-cased media type and
// parameters. The gateway sends "application/xml; charset=utf-8" on NDC responses and
// "text/html" from the API management front door on some failures.
func ParseContentTypeHeader(header string) (string, map[string]string) {
	mediaType, rest, _ := strings.Cut(header, ";")
	params := make(map[string]string)
	for _, part := range strings.Split(rest, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(key))] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return strings.ToLower(strings.TrimSpace(mediaType)), params
}
