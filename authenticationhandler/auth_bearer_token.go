// authenticationhandler/auth_bearer_token.go
/* Token acquisition against the gateway Auth endpoint. The gateway exchanges the tenant's
Basic credentials for a bearer token which is then cached per credential fingerprint. */

package authenticationhandler

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/correlation"
	"github.com/flightgate/go-ndc-http-client/credentials"
	"github.com/flightgate/go-ndc-http-client/environments"
	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
	"github.com/flightgate/go-ndc-http-client/headers"
	"github.com/flightgate/go-ndc-http-client/response"
	"github.com/flightgate/go-ndc-http-client/retry"
	"github.com/flightgate/go-ndc-http-client/status"
	"github.com/flightgate/go-ndc-http-client/tokencache"
)

// maxAuthBodyBytes bounds how much of an auth response is read.
const maxAuthBodyBytes = 256 << 10

// tokenGrant is the result of one successful round-trip to the Auth endpoint.
type tokenGrant struct {
	token    string
	validity time.Duration
}

// Authenticate requests a fresh token for creds, stores it in the cache and returns its info.
// The request goes through the retry policy; whatever fails is reported as *errors.AuthError.
func (h *AuthTokenHandler) Authenticate(ctx context.Context, creds credentials.TenantCredentials) (tokencache.TokenInfo, error) {
	fingerprint := creds.Fingerprint()
	none := tokencache.TokenInfo{Fingerprint: fingerprint, Status: tokencache.StatusNone}

	if err := creds.Validate(); err != nil {
		return none, h.fail(ctx, "", &ndcerrors.AuthError{Message: "invalid credentials", Err: err})
	}
	env, err := h.envs.Resolve(creds.Env())
	if err != nil {
		return none, h.fail(ctx, "", &ndcerrors.AuthError{Message: "unknown environment", Err: err})
	}

	ctx, rc := correlation.Ensure(ctx)
	rc.SetCredentialHash(credentials.Short(fingerprint))
	authURL := env.ConstructAPIAuthEndpoint(h.Logger)

	h.Logger.Debug("Attempting to obtain token for tenant",
		append(correlation.Fields(ctx),
			zap.String("fingerprint", credentials.Short(fingerprint)),
			zap.String("environment", string(env.Name)),
		)...,
	)

	grant, err := retry.Do(ctx, h.retry, "auth", func(ctx context.Context) (tokenGrant, error) {
		return h.requestToken(ctx, authURL, env, creds, rc)
	})
	if err != nil {
		var authErr *ndcerrors.AuthError
		if !stderrors.As(err, &authErr) {
			authErr = &ndcerrors.AuthError{StatusCode: statusCodeOf(err), Message: "token request failed", Err: err}
		}
		return none, h.fail(ctx, authURL, authErr)
	}

	info := h.cache.SetByFingerprint(fingerprint, grant.token, grant.validity)
	if h.metrics != nil {
		h.metrics.AuthRefreshed(true)
	}
	h.Logger.Info("Token obtained successfully",
		append(correlation.Fields(ctx),
			zap.String("fingerprint", credentials.Short(fingerprint)),
			zap.Time("Expiry", info.ExpiresAt),
			zap.Duration("Duration", info.ExpiresIn),
		)...,
	)
	return info, nil
}

// requestToken performs a single POST to the Auth endpoint.
func (h *AuthTokenHandler) requestToken(ctx context.Context, authURL string, env environments.Environment, creds credentials.TenantCredentials, rc *correlation.RequestContext) (tokenGrant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, http.NoBody)
	if err != nil {
		return tokenGrant{}, &ndcerrors.AuthError{Message: "failed to create token request", Err: err}
	}

	headerHandler := headers.NewHeaderHandler(req, h.Logger, h.HideSensitiveData)
	headerHandler.SetRequestHeaders(headers.NDCHeaders{
		Authorization:          creds.BasicAuthHeader(),
		SubscriptionKey:        creds.SubscriptionKey,
		EnvironmentHeaderName:  env.HeaderName,
		EnvironmentHeaderToken: env.HeaderToken,
		CorrelationID:          rc.CorrelationID,
		TransactionID:          rc.TransactionID,
		UserAgent:              h.userAgent,
	})
	headerHandler.LogHeaders()

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return tokenGrant{}, retry.WrapTransportError("auth", h.httpClient.Timeout, err)
	}
	defer resp.Body.Close()

	if !status.IsSuccessStatusCode(resp.StatusCode) {
		return tokenGrant{}, response.HandleAPIErrorResponse(resp, h.Logger)
	}

	body, err := response.ReadLimitedBody(resp.Body, maxAuthBodyBytes, "auth")
	if err != nil {
		var tooLarge *ndcerrors.ResponseTooLargeError
		if stderrors.As(err, &tooLarge) {
			return tokenGrant{}, &ndcerrors.AuthError{StatusCode: resp.StatusCode, Message: "authentication response too large", Err: err}
		}
		return tokenGrant{}, retry.WrapTransportError("auth", h.httpClient.Timeout, err)
	}

	token, expiresIn, ok := ExtractToken(body, resp.Header)
	if !ok {
		return tokenGrant{}, &ndcerrors.AuthError{
			StatusCode: resp.StatusCode,
			Message:    "no token found in authentication response",
		}
	}
	validity := h.cache.Config().DefaultValidity
	if expiresIn > 0 {
		validity = expiresIn
	}
	return tokenGrant{token: token, validity: validity}, nil
}

func (h *AuthTokenHandler) fail(ctx context.Context, authURL string, err *ndcerrors.AuthError) error {
	if h.metrics != nil {
		h.metrics.AuthRefreshed(false)
	}
	h.Logger.LogAuthTokenError("auth_token_error", authURL, err.StatusCode, err, correlation.Fields(ctx)...)
	return err
}

func statusCodeOf(err error) int {
	var statusErr ndcerrors.HTTPStatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.HTTPStatusCode()
	}
	return 0
}
