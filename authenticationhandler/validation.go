// authenticationhandler/validation.go

package authenticationhandler

import (
	"regexp"
)

// maxTokenLength rejects header or body values that are clearly not a token.
const maxTokenLength = 8192

var whitespace = regexp.MustCompile(`\s`)

// IsValidToken checks if a value extracted from an Auth response can be used as a token.
// Returns true if valid, along with an empty error message; otherwise, returns false with an error message.
func IsValidToken(token string) (bool, string) {
	if token == "" {
		return false, "Token is empty."
	}
	if len(token) > maxTokenLength {
		return false, "Token exceeds the maximum accepted length."
	}
	if whitespace.MatchString(token) {
		return false, "Token must not contain whitespace."
	}
	return true, ""
}
