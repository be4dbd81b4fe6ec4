// environments.go
// Package environments describes the gateway deployments a tenant can target and builds the
// endpoint URLs for them.
package environments

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/credentials"
	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
	"github.com/flightgate/go-ndc-http-client/logger"
)

// APIVersionPath is the path prefix shared by every NDC resource on the gateway.
const APIVersionPath = "/Selling/r3.x"

// AuthEndpointPath is the token endpoint relative to the auth base URL.
const AuthEndpointPath = APIVersionPath + "/Auth"

// Environment holds the addresses and routing header of one gateway deployment.
type Environment struct {
	Name        credentials.Environment
	BaseURL     string
	AuthURL     string
	HeaderName  string
	HeaderToken string
}

// Set maps environment names to their deployment.
type Set map[credentials.Environment]Environment

// Resolve returns the deployment for env, defaulting to UAT when env is empty.
func (s Set) Resolve(env credentials.Environment) (Environment, error) {
	if env == "" {
		env = credentials.EnvironmentUAT
	}
	e, ok := s[env]
	if !ok || e.BaseURL == "" {
		return Environment{}, &ndcerrors.ConfigurationError{
			Field:   "environment",
			Message: fmt.Sprintf("no base URL configured for environment %q", env),
		}
	}
	return e, nil
}

// ConstructAPIResourceEndpoint builds the full URL of an NDC resource path.
func (e Environment) ConstructAPIResourceEndpoint(endpointPath string, log logger.Logger) string {
	url := joinURL(e.BaseURL, endpointPath)
	if log != nil {
		log.Debug("Constructed API resource endpoint URL", zap.String("environment", string(e.Name)), zap.String("URL", url))
	}
	return url
}

// ConstructAPIAuthEndpoint builds the token endpoint URL. The auth URL falls back to the
// base URL when a deployment serves both from one host.
func (e Environment) ConstructAPIAuthEndpoint(log logger.Logger) string {
	base := e.AuthURL
	if base == "" {
		base = e.BaseURL
	}
	url := joinURL(base, AuthEndpointPath)
	if log != nil {
		log.Debug("Constructed API authentication URL", zap.String("environment", string(e.Name)), zap.String("URL", url))
	}
	return url
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
