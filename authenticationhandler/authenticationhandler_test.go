// authenticationhandler/authenticationhandler_test.go
package authenticationhandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightgate/go-ndc-http-client/credentials"
	"github.com/flightgate/go-ndc-http-client/environments"
	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
	"github.com/flightgate/go-ndc-http-client/logger"
	"github.com/flightgate/go-ndc-http-client/metrics"
	"github.com/flightgate/go-ndc-http-client/retry"
	"github.com/flightgate/go-ndc-http-client/tokencache"
)

var testCreds = credentials.TenantCredentials{
	Domain:          "JETSTAR",
	APIID:           "AG1",
	Password:        "p",
	SubscriptionKey: "sub-key",
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestHandler(t *testing.T, server *httptest.Server, clock *testClock, opts ...Option) *AuthTokenHandler {
	t.Helper()
	log := logger.NewNop()
	cacheOpts := []tokencache.Option{tokencache.WithLogger(log)}
	if clock != nil {
		cacheOpts = append(cacheOpts, tokencache.WithClock(clock.Now))
	}
	cache := tokencache.New(tokencache.DefaultConfig(), cacheOpts...)
	policy := retry.NewPolicy(retry.Config{
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
		JitterFactor:      0.1,
	}, retry.WithLogger(log), retry.WithSleeper(noSleep))
	envs := environments.Set{
		credentials.EnvironmentUAT: {
			Name:        credentials.EnvironmentUAT,
			BaseURL:     server.URL,
			AuthURL:     server.URL,
			HeaderName:  "X-Env-Token",
			HeaderToken: "uat-token",
		},
	}
	return NewAuthTokenHandler(server.Client(), envs, cache, policy, log, opts...)
}

func TestAuthenticateSendsGatewayHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Selling/r3.x/Auth", r.URL.Path)
		assert.Equal(t, testCreds.BasicAuthHeader(), r.Header.Get("Authorization"))
		assert.Equal(t, "sub-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "uat-token", r.Header.Get("X-Env-Token"))
		assert.NotEmpty(t, r.Header.Get("X-Correlation-ID"))
		assert.Equal(t, int64(0), r.ContentLength)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<AuthResponse><Token>abc123</Token><ExpiresIn>600</ExpiresIn></AuthResponse>`))
	}))
	defer server.Close()

	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	reg := metrics.NewRegistry()
	h := newTestHandler(t, server, clock, WithMetrics(reg))

	info, err := h.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, tokencache.StatusValid, info.Status)
	assert.Equal(t, 600*time.Second, info.ExpiresIn)

	token, ok := h.Cache().Get(testCreds)
	require.True(t, ok)
	assert.Equal(t, "abc123", token)
	assert.Equal(t, uint64(1), reg.Snapshot().Auth.Refreshes)
}

func TestAuthenticateUsesDefaultValidity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Auth-Token", "from-header")
	}))
	defer server.Close()

	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	h := newTestHandler(t, server, clock)

	info, err := h.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, tokencache.DefaultValidity, info.ExpiresIn)
	token, _ := h.Cache().Get(testCreds)
	assert.Equal(t, "from-header", token)
}

func TestAuthenticateRejectedCredentialsAreNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`<Errors><Error Code="401">Invalid credentials</Error></Errors>`))
	}))
	defer server.Close()

	reg := metrics.NewRegistry()
	h := newTestHandler(t, server, nil, WithMetrics(reg))

	info, err := h.Authenticate(context.Background(), testCreds)
	var authErr *ndcerrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, tokencache.StatusNone, info.Status)
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, uint64(1), reg.Snapshot().Auth.Failures)
	assert.Equal(t, ndcerrors.CodeAuthFailed, ndcerrors.ToStructured(err).Code)
}

func TestAuthenticateRetriesTransientFailures(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"json-token","expires_in":120}`))
	}))
	defer server.Close()

	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	h := newTestHandler(t, server, clock)

	info, err := h.Authenticate(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, 120*time.Second, info.ExpiresIn)
}

func TestAuthenticateWithoutTokenFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<AuthResponse><Status>OK</Status></AuthResponse>`))
	}))
	defer server.Close()

	h := newTestHandler(t, server, nil)

	_, err := h.Authenticate(context.Background(), testCreds)
	var authErr *ndcerrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "no token found")
}

func TestAuthenticateOversizedResponseFails(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`<AuthResponse><Token>` + strings.Repeat("a", maxAuthBodyBytes) + `</Token></AuthResponse>`))
	}))
	defer server.Close()

	h := newTestHandler(t, server, nil)

	_, err := h.Authenticate(context.Background(), testCreds)
	var authErr *ndcerrors.AuthError
	require.ErrorAs(t, err, &authErr)
	var tooLarge *ndcerrors.ResponseTooLargeError
	assert.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, tokencache.StatusNone, h.GetTokenInfo(testCreds).Status)
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	h := newTestHandler(t, server, nil)

	_, err := h.Authenticate(context.Background(), credentials.TenantCredentials{Domain: "JETSTAR"})
	var authErr *ndcerrors.AuthError
	require.ErrorAs(t, err, &authErr)
	var cfgErr *ndcerrors.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, int32(0), requests.Load())
}

func TestEnsureTokenReauthenticatesAfterHardExpiry(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`<AuthResponse><AuthToken>tok</AuthToken></AuthResponse>`))
	}))
	defer server.Close()

	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	reg := metrics.NewRegistry()
	h := newTestHandler(t, server, clock, WithMetrics(reg))
	ctx := context.Background()

	info, err := h.EnsureToken(ctx, testCreds)
	require.NoError(t, err)
	assert.Equal(t, tokencache.StatusValid, info.Status)
	assert.Equal(t, 1800*time.Second, info.ExpiresIn)

	_, err = h.EnsureToken(ctx, testCreds)
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, uint64(1), reg.Snapshot().Auth.CacheHits)

	clock.Advance(1770*time.Second + time.Millisecond)
	assert.Equal(t, tokencache.StatusExpired, h.GetTokenInfo(testCreds).Status)

	info, err = h.EnsureToken(ctx, testCreds)
	require.NoError(t, err)
	assert.Equal(t, tokencache.StatusValid, info.Status)
	assert.Equal(t, int32(2), requests.Load())
}

func TestInvalidateTokenForcesRefresh(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`<AuthResponse><Token>tok</Token></AuthResponse>`))
	}))
	defer server.Close()

	h := newTestHandler(t, server, nil)
	ctx := context.Background()

	_, err := h.EnsureToken(ctx, testCreds)
	require.NoError(t, err)
	assert.True(t, h.InvalidateToken(testCreds))
	assert.False(t, h.InvalidateToken(testCreds))

	_, err = h.EnsureToken(ctx, testCreds)
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
}

func TestEnsureTokenCoalescesConcurrentRefreshes(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		_, _ = w.Write([]byte(`<AuthResponse><SessionToken>shared</SessionToken></AuthResponse>`))
	}))
	defer server.Close()

	h := newTestHandler(t, server, nil, WithCoalescing(true))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.EnsureToken(context.Background(), testCreds)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return requests.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), requests.Load())
	token, ok := h.Cache().Get(testCreds)
	require.True(t, ok)
	assert.Equal(t, "shared", token)
}
