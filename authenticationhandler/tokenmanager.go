// authenticationhandler/tokenmanager.go
package authenticationhandler

import (
	"context"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/correlation"
	"github.com/flightgate/go-ndc-http-client/credentials"
	"github.com/flightgate/go-ndc-http-client/tokencache"
)

// EnsureToken returns the cached token info for creds when the token is still usable and
// authenticates otherwise. With coalescing enabled, concurrent callers for one fingerprint
// wait on a single Auth round-trip and share its outcome.
func (h *AuthTokenHandler) EnsureToken(ctx context.Context, creds credentials.TenantCredentials) (tokencache.TokenInfo, error) {
	fingerprint := creds.Fingerprint()

	if _, ok := h.cache.GetByFingerprint(fingerprint); ok {
		info := h.cache.TokenInfoByFingerprint(fingerprint)
		if h.metrics != nil {
			h.metrics.TokenCacheHit()
		}
		h.Logger.Debug("Authentication token is valid",
			append(correlation.Fields(ctx),
				zap.String("fingerprint", credentials.Short(fingerprint)),
				zap.String("status", string(info.Status)),
				zap.Duration("TimeUntilExpiry", info.ExpiresIn),
			)...,
		)
		return info, nil
	}

	h.Logger.Debug("Token found to be absent or expired, handling token acquisition",
		append(correlation.Fields(ctx), zap.String("fingerprint", credentials.Short(fingerprint)))...,
	)

	if !h.coalesce {
		return h.Authenticate(ctx, creds)
	}

	v, err, shared := h.group.Do(fingerprint, func() (interface{}, error) {
		return h.Authenticate(ctx, creds)
	})
	if shared {
		h.Logger.Debug("Token refresh shared with a concurrent caller",
			zap.String("fingerprint", credentials.Short(fingerprint)))
	}
	info, _ := v.(tokencache.TokenInfo)
	return info, err
}

// GetTokenInfo reports the cached token state for creds without contacting the gateway.
func (h *AuthTokenHandler) GetTokenInfo(creds credentials.TenantCredentials) tokencache.TokenInfo {
	return h.cache.GetTokenInfo(creds)
}

// InvalidateToken drops the cached token for creds so the next call re-authenticates.
func (h *AuthTokenHandler) InvalidateToken(creds credentials.TenantCredentials) bool {
	return h.cache.Invalidate(creds)
}
