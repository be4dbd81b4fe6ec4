// httpclient/call_test.go
package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightgate/go-ndc-http-client/audit"
	"github.com/flightgate/go-ndc-http-client/circuitbreaker"
	"github.com/flightgate/go-ndc-http-client/correlation"
	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
	"github.com/flightgate/go-ndc-http-client/metrics"
	"github.com/flightgate/go-ndc-http-client/tokencache"
)

const airShoppingPath = "/Selling/r3.x/AirShopping"

func TestCallSendsGatewayRequest(t *testing.T) {
	g := newFakeGateway(t)
	request := `<AirShoppingRQ><Password>hunter2</Password><Origin>SYD</Origin></AirShoppingRQ>`

	g.SetOperation(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, request, string(body))
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, testCreds.BasicAuthHeader(), r.Header.Get("Authorization"))
		assert.Equal(t, "sub-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))
		assert.Equal(t, "uat-token", r.Header.Get("X-Env-Token"))
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-ID"))
		assert.NotEmpty(t, r.Header.Get("X-Transaction-ID"))
		assert.Contains(t, r.Header.Get("User-Agent"), "go-ndc-http-client/")

		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<AirShoppingRS><Errors><Error Code="911" ShortText="No availability"/></Errors></AirShoppingRS>`))
	})

	client, sink := newTestClient(t, testClientConfig(g))
	ctx := correlation.NewContext(context.Background(), correlation.New(correlation.WithCorrelationID("corr-1")))

	result, err := client.Call(ctx, testCreds, "AirShopping", []byte(request))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, string(result.XMLResponseBody), "No availability")
	assert.Equal(t, "corr-1", result.CorrelationID)
	assert.Equal(t, tokencache.StatusValid, result.TokenInfo.Status)
	require.Len(t, result.UpstreamErrors, 1, "upstream markers are reported, not raised")
	assert.Equal(t, "911", result.UpstreamErrors[0].Code)
	assert.Equal(t, 1, g.Hits("/Selling/r3.x/Auth"))

	records := sink.ByTransaction(result.TransactionID)
	require.Equal(t, []audit.Phase{audit.PhasePre, audit.PhasePost}, phases(records))
	assert.NotContains(t, records[0].Body, "hunter2")
	assert.Contains(t, records[0].Body, "SYD")
	assert.Equal(t, "corr-1", records[0].CorrelationID)
	assert.Equal(t, http.StatusOK, records[1].StatusCode)

	snap := client.GetMetrics()
	assert.Equal(t, uint64(1), snap.Operations["AirShopping"].Successes)
	assert.Equal(t, uint64(1), snap.Breakers[BreakerName].Successes)
}

func TestCallReauthenticatesAfterTokenExpiry(t *testing.T) {
	g := newFakeGateway(t)
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	cache := tokencache.New(tokencache.DefaultConfig(), tokencache.WithClock(clock.Now))
	client, _ := newTestClient(t, testClientConfig(g), WithTokenCache(cache))
	ctx := context.Background()

	info, err := client.Authenticate(ctx, testCreds)
	require.NoError(t, err)
	assert.Equal(t, tokencache.StatusValid, info.Status)
	assert.Equal(t, 1800*time.Second, client.GetTokenInfo(testCreds).ExpiresIn)

	_, err = client.Call(ctx, testCreds, "AirShopping", []byte(`<AirShoppingRQ/>`))
	require.NoError(t, err)
	assert.Equal(t, 1, g.Hits("/Selling/r3.x/Auth"), "a valid cached token is reused")

	clock.Advance(1770*time.Second + time.Millisecond)
	assert.Equal(t, tokencache.StatusExpired, client.GetTokenInfo(testCreds).Status)

	result, err := client.Call(ctx, testCreds, "AirShopping", []byte(`<AirShoppingRQ/>`))
	require.NoError(t, err)
	assert.Equal(t, 2, g.Hits("/Selling/r3.x/Auth"), "an expired token triggers a fresh Auth round-trip")
	assert.Equal(t, tokencache.StatusValid, result.TokenInfo.Status)
	assert.Equal(t, 1800*time.Second, result.TokenInfo.ExpiresIn)
}

func TestCallOpenCircuitRejectsWithoutNetwork(t *testing.T) {
	g := newFakeGateway(t)
	g.SetOperation(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	cfg := testClientConfig(g)
	cfg.Retry.MaxAttempts = 1
	client, sink := newTestClient(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.Call(ctx, testCreds, "AirShopping", []byte(`<AirShoppingRQ/>`))
		require.Error(t, err)
		assert.Equal(t, ndcerrors.CodeUpstreamHTTP, ndcerrors.ToStructured(err).Code)
	}

	_, err := client.Call(ctx, testCreds, "AirShopping", []byte(`<AirShoppingRQ/>`))
	var openErr *ndcerrors.CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, BreakerName, openErr.Name)
	assert.Equal(t, 2, g.Hits(airShoppingPath), "a rejected call makes no network request")

	stats := client.GetCircuitBreakerStats()[BreakerName]
	assert.Equal(t, circuitbreaker.StateOpen.String(), stats.State)
	assert.Equal(t, uint64(1), stats.TotalRejections)

	records := sink.Records()
	require.Len(t, records, 6)
	last := records[5]
	assert.Equal(t, audit.PhaseError, last.Phase)
	assert.Equal(t, ndcerrors.CodeCircuitOpen, last.ErrorCode)
	assert.Equal(t, uint64(1), client.GetMetrics().Operations["AirShopping"].ErrorsByCode[ndcerrors.CodeCircuitOpen])

	peek := client.CircuitBreakerStats(BreakerName)
	assert.Equal(t, circuitbreaker.StateOpen.String(), peek.State, "reading stats leaves the breaker open")
	assert.Equal(t, uint64(1), peek.TotalTrips)

	client.ResetCircuitBreaker(BreakerName)
	assert.Equal(t, circuitbreaker.StateClosed.String(), client.GetCircuitBreakerStats()[BreakerName].State)
}

func TestCallRetriesTransientFailures(t *testing.T) {
	g := newFakeGateway(t)
	attempts := 0
	g.SetOperation(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`<AirShoppingRS/>`))
	})

	client, _ := newTestClient(t, testClientConfig(g))

	result, err := client.Call(context.Background(), testCreds, "AirShopping", []byte(`<AirShoppingRQ/>`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 2, g.Hits(airShoppingPath))

	snap := client.GetMetrics()
	assert.Equal(t, uint64(1), snap.Operations["AirShopping"].Retries)
	assert.Equal(t, uint64(1), snap.Breakers[BreakerName].Successes, "the breaker sees one logical call")
	assert.Equal(t, int64(2), client.GetConcurrencyMetrics().TotalRequests, "each attempt takes a permit")
}

func TestCallNonRetryableStatusIsNotRetried(t *testing.T) {
	g := newFakeGateway(t)
	g.SetOperation(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<Errors><Error Code="400">Malformed request</Error></Errors>`))
	})

	client, _ := newTestClient(t, testClientConfig(g))

	_, err := client.Call(context.Background(), testCreds, "OrderCreate", []byte(`<OrderCreateRQ/>`))
	require.Error(t, err)
	structured := ndcerrors.ToStructured(err)
	assert.Equal(t, http.StatusBadRequest, structured.StatusCode)
	assert.False(t, structured.Retryable)
	assert.Equal(t, 1, g.Hits("/Selling/r3.x/OrderCreate"))
}

func TestCallOversizedResponseFails(t *testing.T) {
	g := newFakeGateway(t)
	g.SetOperation(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<AirShoppingRS><Offers>` + strings.Repeat("x", 128) + `</Offers></AirShoppingRS>`))
	})

	cfg := testClientConfig(g)
	cfg.MaxResponseBodyBytes = 64
	client, sink := newTestClient(t, cfg)

	result, err := client.Call(context.Background(), testCreds, "AirShopping", []byte(`<AirShoppingRQ/>`))
	assert.Nil(t, result)
	var tooLarge *ndcerrors.ResponseTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(64), tooLarge.Limit)
	assert.Equal(t, 1, g.Hits(airShoppingPath), "an oversized body is not retried")
	assert.Equal(t, []audit.Phase{audit.PhasePre, audit.PhaseError}, phases(sink.Records()))
	assert.Equal(t, ndcerrors.CodeResponseTooLarge, sink.Records()[1].ErrorCode)
}

func TestCallWithoutTokenReportsSyntheticValid(t *testing.T) {
	g := newFakeGateway(t)
	client, _ := newTestClient(t, testClientConfig(g))

	result, err := client.Call(context.Background(), testCreds, "AirlineProfile", []byte(`<AirlineProfileRQ/>`))
	require.NoError(t, err)
	assert.Equal(t, 0, g.Hits("/Selling/r3.x/Auth"))
	assert.Equal(t, tokencache.StatusValid, result.TokenInfo.Status)
	assert.Equal(t, time.Duration(0), result.TokenInfo.ExpiresIn)
}

func TestCallAuthFailureIsDistinct(t *testing.T) {
	g := newFakeGateway(t)
	g.SetAuth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client, sink := newTestClient(t, testClientConfig(g))

	_, err := client.Call(context.Background(), testCreds, "AirShopping", []byte(`<AirShoppingRQ/>`))
	var authErr *ndcerrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, 0, g.Hits(airShoppingPath))
	assert.Equal(t, 1, g.Hits("/Selling/r3.x/Auth"), "rejected credentials are not retried")

	records := sink.Records()
	require.Equal(t, []audit.Phase{audit.PhasePre, audit.PhaseError}, phases(records))
	assert.Equal(t, ndcerrors.CodeAuthFailed, records[1].ErrorCode)
}

func TestCallUpstreamUnauthorizedDropsCachedToken(t *testing.T) {
	g := newFakeGateway(t)
	g.SetOperation(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client, _ := newTestClient(t, testClientConfig(g))

	_, err := client.Call(context.Background(), testCreds, "AirShopping", []byte(`<AirShoppingRQ/>`))
	require.Error(t, err)
	assert.Equal(t, tokencache.StatusNone, client.GetTokenInfo(testCreds).Status)
}

func TestCallConfigurationErrors(t *testing.T) {
	g := newFakeGateway(t)
	client, sink := newTestClient(t, testClientConfig(g))
	ctx := context.Background()

	_, err := client.Call(ctx, testCreds, "Teleport", []byte(`<X/>`))
	var cfgErr *ndcerrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "operation", cfgErr.Field)

	prod := testCreds
	prod.Environment = "PROD"
	_, err = client.Call(ctx, prod, "AirShopping", []byte(`<X/>`))
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "environment", cfgErr.Field)

	assert.Equal(t, []audit.Phase{audit.PhasePre, audit.PhaseError, audit.PhasePre, audit.PhaseError}, phases(sink.Records()))
	assert.Equal(t, 0, g.Hits(airShoppingPath))
}

func TestCallUnknownOperationsShareOneMetricsBucket(t *testing.T) {
	g := newFakeGateway(t)
	client, _ := newTestClient(t, testClientConfig(g))
	ctx := context.Background()

	for _, name := range []string{"Teleport", "Warp", "Beam"} {
		_, err := client.Call(ctx, testCreds, name, []byte(`<X/>`))
		require.Error(t, err)
	}

	snap := client.GetMetrics()
	assert.Equal(t, []string{metrics.UnknownOperation}, snap.OperationNames())
	unknown := snap.Operations[metrics.UnknownOperation]
	assert.Equal(t, uint64(3), unknown.Calls)
	assert.Equal(t, uint64(3), unknown.ErrorsByCode[ndcerrors.CodeConfiguration])
}

func TestCallHonoursCancellation(t *testing.T) {
	g := newFakeGateway(t)
	client, _ := newTestClient(t, testClientConfig(g))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Call(ctx, testCreds, "AirlineProfile", []byte(`<AirlineProfileRQ/>`))
	require.ErrorIs(t, err, context.Canceled)

	stats := client.GetCircuitBreakerStats()[BreakerName]
	assert.Equal(t, uint64(0), stats.TotalFailures, "caller cancellation is not an upstream failure")
}
