// authenticationhandler/authenticationhandler.go

package authenticationhandler

import (
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/flightgate/go-ndc-http-client/environments"
	"github.com/flightgate/go-ndc-http-client/logger"
	"github.com/flightgate/go-ndc-http-client/metrics"
	"github.com/flightgate/go-ndc-http-client/retry"
	"github.com/flightgate/go-ndc-http-client/tokencache"
)

// AuthTokenHandler obtains gateway tokens for tenant credentials and keeps them in the token
// cache. It holds no per-tenant state of its own.
type AuthTokenHandler struct {
	Logger            logger.Logger // Logger provides structured logging capabilities for logging information, warnings, and errors.
	HideSensitiveData bool          // HideSensitiveData redacts credentials from logged headers.

	httpClient *http.Client
	envs       environments.Set
	cache      *tokencache.Cache
	retry      *retry.Policy
	metrics    *metrics.Registry
	userAgent  string

	coalesce bool               // coalesce de-duplicates concurrent refreshes per fingerprint.
	group    singleflight.Group // group keys in-flight refreshes by fingerprint.
}

// Option configures optional collaborators of an AuthTokenHandler.
type Option func(*AuthTokenHandler)

// WithMetrics records refresh outcomes and cache hits in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(h *AuthTokenHandler) { h.metrics = reg }
}

// WithCoalescing makes concurrent EnsureToken calls for the same tenant share one refresh.
func WithCoalescing(enabled bool) Option {
	return func(h *AuthTokenHandler) { h.coalesce = enabled }
}

// WithUserAgent sets the User-Agent sent to the auth endpoint.
func WithUserAgent(userAgent string) Option {
	return func(h *AuthTokenHandler) { h.userAgent = userAgent }
}

// WithHideSensitiveData redacts credentials from logged request headers.
func WithHideSensitiveData(hide bool) Option {
	return func(h *AuthTokenHandler) { h.HideSensitiveData = hide }
}

// NewAuthTokenHandler creates a new instance of AuthTokenHandler.
func NewAuthTokenHandler(httpClient *http.Client, envs environments.Set, cache *tokencache.Cache, policy *retry.Policy, log logger.Logger, opts ...Option) *AuthTokenHandler {
	if log == nil {
		log = logger.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if policy == nil {
		policy = retry.NewPolicy(retry.DefaultConfig(), retry.WithLogger(log))
	}
	h := &AuthTokenHandler{
		Logger:     log,
		httpClient: httpClient,
		envs:       envs,
		cache:      cache,
		retry:      policy,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Cache returns the token cache the handler writes to.
func (h *AuthTokenHandler) Cache() *tokencache.Cache {
	return h.cache
}
