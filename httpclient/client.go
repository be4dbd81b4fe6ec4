// httpclient/client.go
/* The `httpclient` package is the NDC gateway client. A Client turns "send this XML to this
NDC operation with these tenant credentials" into an authenticated call that is bounded by a
concurrency limit, retried with backoff, guarded by a circuit breaker, and audited. Every
stateful collaborator (token cache, breaker registry, metrics, audit sink) can be injected
so that tests and composition roots own their instances. */
package httpclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/audit"
	"github.com/flightgate/go-ndc-http-client/authenticationhandler"
	"github.com/flightgate/go-ndc-http-client/circuitbreaker"
	"github.com/flightgate/go-ndc-http-client/concurrency"
	"github.com/flightgate/go-ndc-http-client/config"
	"github.com/flightgate/go-ndc-http-client/credentials"
	"github.com/flightgate/go-ndc-http-client/environments"
	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
	"github.com/flightgate/go-ndc-http-client/logger"
	"github.com/flightgate/go-ndc-http-client/metrics"
	"github.com/flightgate/go-ndc-http-client/retry"
	"github.com/flightgate/go-ndc-http-client/tokencache"
	"github.com/flightgate/go-ndc-http-client/version"
)

// BreakerName names the circuit breaker guarding the gateway.
const BreakerName = "ndc-api"

// MaxResponseBodyBytes is the default bound on a successful response body.
const MaxResponseBodyBytes = 32 << 20

// Master struct/object
type Client struct {
	// Private
	config    ClientConfig
	http      *http.Client
	envs      environments.Set
	breakers  *circuitbreaker.Registry
	tokens    *tokencache.Cache
	retry     *retry.Policy
	auth      *authenticationhandler.AuthTokenHandler
	metrics   *metrics.Registry
	audit     audit.Sink
	userAgent string

	retryOpts     []retry.Option
	asyncAudit    *audit.AsyncSink
	stopCleanup   context.CancelFunc
	ownsTokens    bool
	closeOnce     sync.Once
	cleanupActive bool

	// Exported
	Logger      logger.Logger
	Concurrency *concurrency.ConcurrencyHandler
}

// Options/Variables for Client
type ClientConfig struct {
	Environments environments.Set

	Retry                retry.Config
	CircuitBreaker       circuitbreaker.Config
	Token                tokencache.Config
	CoalesceTokenRefresh bool

	// HTTP
	Timeout               time.Duration // Per attempt.
	MaxConcurrentRequests int
	AcquireTimeout        time.Duration
	ProxyURL              string
	ProxyUsername         string
	ProxyPassword         string
	UserAgent             string
	MaxResponseBodyBytes  int64 // Larger bodies fail with *errors.ResponseTooLargeError.

	// Log and audit
	HideSensitiveData bool
	AuditIncludeBody  bool
	AsyncAudit        bool
	AuditBufferSize   int

	// StartTokenCleanup runs the periodic sweep of expired tokens until Close.
	StartTokenCleanup bool
}

// DefaultClientConfig returns a configuration with the stock component defaults and no
// environments.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Environments:          environments.Set{},
		Retry:                 retry.DefaultConfig(),
		CircuitBreaker:        circuitbreaker.DefaultConfig(),
		Token:                 tokencache.DefaultConfig(),
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: concurrency.DefaultMaxConcurrency,
		AcquireTimeout:        concurrency.DefaultAcquireTimeout,
		MaxResponseBodyBytes:  MaxResponseBodyBytes,
		HideSensitiveData:     true,
		AuditIncludeBody:      true,
		StartTokenCleanup:     true,
	}
}

// ClientConfigFromConfig maps loaded settings onto a ClientConfig.
func ClientConfigFromConfig(cfg *config.Config) ClientConfig {
	return ClientConfig{
		Environments:          cfg.Environments(),
		Retry:                 cfg.Retry.PolicyConfig(),
		CircuitBreaker:        cfg.CircuitBreaker.BreakerConfig(),
		Token:                 cfg.Token.CacheConfig(),
		CoalesceTokenRefresh:  cfg.Token.CoalesceRefresh,
		Timeout:               cfg.HTTP.Timeout(),
		MaxConcurrentRequests: cfg.HTTP.MaxConcurrentRequests,
		AcquireTimeout:        cfg.HTTP.AcquireTimeout(),
		ProxyURL:              cfg.HTTP.ProxyURL,
		ProxyUsername:         cfg.HTTP.ProxyUsername,
		ProxyPassword:         cfg.HTTP.ProxyPassword,
		HideSensitiveData:     cfg.HideSensitiveData,
		AuditIncludeBody:      cfg.Audit.IncludeBody,
		AsyncAudit:            cfg.Audit.Async,
		AuditBufferSize:       cfg.Audit.BufferSize,
		StartTokenCleanup:     true,
	}
}

// Option injects a collaborator into BuildClient.
type Option func(*Client)

// WithLogger sets the client logger. Defaults to a no-op logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.Logger = log }
}

// WithHTTPClient replaces the transport built from the configuration.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

// WithBreakerRegistry shares a breaker registry between clients.
func WithBreakerRegistry(reg *circuitbreaker.Registry) Option {
	return func(c *Client) { c.breakers = reg }
}

// WithTokenCache shares a token cache between clients. The caller owns its cleanup.
func WithTokenCache(cache *tokencache.Cache) Option {
	return func(c *Client) { c.tokens = cache }
}

// WithMetrics sets the metrics registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Client) { c.metrics = reg }
}

// WithAuditSink sets where audit records go. Defaults to the zap sink on the client logger.
func WithAuditSink(sink audit.Sink) Option {
	return func(c *Client) { c.audit = sink }
}

// WithRetryOptions passes options to the retry policy, e.g. a sleeper in tests.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(c *Client) { c.retryOpts = append(c.retryOpts, opts...) }
}

// BuildClient creates a new NDC client with the provided configuration.
func BuildClient(config ClientConfig, opts ...Option) (*Client, error) {
	client := &Client{config: config}
	for _, opt := range opts {
		opt(client)
	}

	if client.Logger == nil {
		client.Logger = logger.NewNop()
	}
	log := client.Logger

	if config.MaxConcurrentRequests < concurrency.MinConcurrency {
		return nil, &ndcerrors.ConfigurationError{Field: "max_concurrent_requests", Message: "must be at least 1"}
	}
	if config.MaxResponseBodyBytes <= 0 {
		config.MaxResponseBodyBytes = MaxResponseBodyBytes
		client.config.MaxResponseBodyBytes = MaxResponseBodyBytes
	}

	//region HTTP
	if client.http == nil {
		httpClient, err := buildHTTPClient(config, log)
		if err != nil {
			return nil, err
		}
		client.http = httpClient
	}
	client.userAgent = config.UserAgent
	if client.userAgent == "" {
		client.userAgent = version.GetUserAgentHeader()
	}
	client.envs = config.Environments
	if client.envs == nil {
		client.envs = environments.Set{}
	}
	//endregion

	//region Shared state
	if client.metrics == nil {
		client.metrics = metrics.NewRegistry()
	}
	if client.breakers == nil {
		client.breakers = circuitbreaker.NewRegistry(config.CircuitBreaker, circuitbreaker.WithLogger(log))
	}
	client.breakers.Subscribe(client.metrics.ObserveBreaker)
	if client.tokens == nil {
		client.tokens = tokencache.New(config.Token, tokencache.WithLogger(log))
		client.ownsTokens = true
	}
	//endregion

	//region Retry
	retryOpts := append([]retry.Option{
		retry.WithLogger(log),
		retry.WithRetryHook(func(label string, _ retry.Attempt) {
			client.metrics.RetryAttempted(label)
		}),
	}, client.retryOpts...)
	client.retry = retry.NewPolicy(config.Retry, retryOpts...)
	//endregion

	//region Concurrency
	concurrencyHandler := concurrency.NewConcurrencyHandler(config.MaxConcurrentRequests, log, &concurrency.ConcurrencyMetrics{})
	if config.AcquireTimeout > 0 {
		concurrencyHandler.SetAcquireTimeout(config.AcquireTimeout)
	}
	client.Concurrency = concurrencyHandler
	//endregion

	//region Auth
	client.auth = authenticationhandler.NewAuthTokenHandler(
		client.http,
		client.envs,
		client.tokens,
		client.retry,
		log,
		authenticationhandler.WithMetrics(client.metrics),
		authenticationhandler.WithCoalescing(config.CoalesceTokenRefresh),
		authenticationhandler.WithUserAgent(client.userAgent),
		authenticationhandler.WithHideSensitiveData(config.HideSensitiveData),
	)
	//endregion

	//region Audit
	if client.audit == nil {
		client.audit = audit.NewZapSink(log, config.AuditIncludeBody)
	}
	if config.AsyncAudit {
		client.asyncAudit = audit.NewAsyncSink(client.audit, config.AuditBufferSize, log)
		client.asyncAudit.Start()
		client.audit = client.asyncAudit
	}
	//endregion

	if config.StartTokenCleanup && client.ownsTokens {
		ctx, cancel := context.WithCancel(context.Background())
		client.stopCleanup = cancel
		client.tokens.StartCleanup(ctx)
		client.cleanupActive = true
	}

	log.Debug("New NDC client initialized",
		zap.Strings("Environments", environmentNames(client.envs)),
		zap.Bool("Hide Sensitive Data In Logs", config.HideSensitiveData),
		zap.Int("Max Retry Attempts", client.retry.Config().MaxAttempts),
		zap.Int("Max Concurrent Requests", config.MaxConcurrentRequests),
		zap.Duration("Attempt Timeout", config.Timeout),
		zap.Duration("Circuit Breaker Timeout", config.CircuitBreaker.Timeout),
		zap.Bool("Coalesce Token Refresh", config.CoalesceTokenRefresh),
		zap.Bool("Async Audit", config.AsyncAudit),
	)

	return client, nil
}

// NewClientFromConfig builds the logger and the client from loaded settings.
func NewClientFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	log := cfg.Log.BuildLogger()
	return BuildClient(ClientConfigFromConfig(cfg), append([]Option{WithLogger(log)}, opts...)...)
}

func environmentNames(set environments.Set) []string {
	names := make([]string, 0, len(set))
	for _, env := range []credentials.Environment{credentials.EnvironmentUAT, credentials.EnvironmentPROD} {
		if _, ok := set[env]; ok {
			names = append(names, string(env))
		}
	}
	return names
}

// Authenticate forces a token refresh for creds.
func (c *Client) Authenticate(ctx context.Context, creds credentials.TenantCredentials) (tokencache.TokenInfo, error) {
	return c.auth.Authenticate(ctx, creds)
}

// GetTokenInfo reports the cached token state for creds.
func (c *Client) GetTokenInfo(creds credentials.TenantCredentials) tokencache.TokenInfo {
	return c.auth.GetTokenInfo(creds)
}

// InvalidateToken drops the cached token for creds.
func (c *Client) InvalidateToken(creds credentials.TenantCredentials) bool {
	return c.auth.InvalidateToken(creds)
}

// GetCircuitBreakerStats returns a snapshot of every breaker.
func (c *Client) GetCircuitBreakerStats() map[string]circuitbreaker.Stats {
	return c.breakers.Stats()
}

// CircuitBreakerStats returns the snapshot of the named breaker without changing its state.
// A breaker that has not been used yet is created with the client's configuration.
func (c *Client) CircuitBreakerStats(name string) circuitbreaker.Stats {
	return c.breakers.Get(name).Stats()
}

// ResetCircuitBreaker forces the named breaker back to CLOSED.
func (c *Client) ResetCircuitBreaker(name string) {
	c.breakers.Get(name).Reset()
}

// GetTokenCacheStats returns the token cache counters.
func (c *Client) GetTokenCacheStats() tokencache.Stats {
	return c.tokens.Stats()
}

// GetMetrics returns the call, breaker and auth counters.
func (c *Client) GetMetrics() metrics.Snapshot {
	return c.metrics.Snapshot()
}

// GetConcurrencyMetrics returns the permit and response time metrics.
func (c *Client) GetConcurrencyMetrics() concurrency.MetricsSnapshot {
	return c.Concurrency.Snapshot()
}

// Close stops background work, flushes queued audit records and releases idle connections.
// It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cleanupActive {
			c.stopCleanup()
			c.tokens.Stop()
		}
		if c.asyncAudit != nil {
			c.asyncAudit.Stop()
		}
		c.http.CloseIdleConnections()
		c.Logger.Debug("NDC client closed")
	})
}
