// credentials.go
// Package credentials holds per-tenant NDC credentials and derives the values sent to the gateway.
package credentials

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
)

// Environment selects the gateway a tenant talks to.
type Environment string

const (
	EnvironmentUAT  Environment = "UAT"
	EnvironmentPROD Environment = "PROD"
)

// ParseEnvironment maps a case-insensitive name onto an Environment. Empty input yields UAT.
func ParseEnvironment(name string) (Environment, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "UAT":
		return EnvironmentUAT, nil
	case "PROD", "PRODUCTION":
		return EnvironmentPROD, nil
	default:
		return "", &ndcerrors.ConfigurationError{Field: "environment", Message: fmt.Sprintf("unknown environment %q", name)}
	}
}

// TenantCredentials are supplied per call by the caller.
type TenantCredentials struct {
	Domain          string      `json:"domain" validate:"required"`
	APIID           string      `json:"apiId" validate:"required"`
	Password        string      `json:"password" validate:"required"`
	SubscriptionKey string      `json:"subscriptionKey" validate:"required"`
	Environment     Environment `json:"environment" validate:"omitempty,oneof=UAT PROD"`
}

var validate = validator.New()

// Validate reports the first missing or malformed field as a ConfigurationError.
func (c TenantCredentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &ndcerrors.ConfigurationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
				Err:     err,
			}
		}
		return &ndcerrors.ConfigurationError{Field: "credentials", Message: err.Error(), Err: err}
	}
	return nil
}

// Env returns the configured environment, defaulting to UAT.
func (c TenantCredentials) Env() Environment {
	if c.Environment == "" {
		return EnvironmentUAT
	}
	return c.Environment
}

// Fingerprint is the hex SHA-256 of domain, apiId and password joined by NUL bytes.
// It keys the token cache and never appears in clear text alongside the secret.
func (c TenantCredentials) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.Domain + "\x00" + c.APIID + "\x00" + c.Password))
	return hex.EncodeToString(sum[:])
}

// Short truncates a fingerprint for log output.
func Short(fingerprint string) string {
	if len(fingerprint) <= 12 {
		return fingerprint
	}
	return fingerprint[:12]
}

// BasicAuthHeader renders the Authorization value for domain\apiId:password.
func (c TenantCredentials) BasicAuthHeader() string {
	raw := c.Domain + `\` + c.APIID + ":" + c.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// String hides the password and subscription key.
func (c TenantCredentials) String() string {
	return fmt.Sprintf("TenantCredentials{Domain: %s, APIID: %s, Environment: %s}", c.Domain, c.APIID, c.Env())
}
