// ratelimit.go
package retry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/logger"
)

// rateLimitSkew pads an X-RateLimit-Reset wait for clock drift between us and the gateway.
const rateLimitSkew = 5 * time.Second

// RetryAfterHinter is implemented by errors that carry a server-suggested wait.
type RetryAfterHinter interface {
	RetryAfter() time.Duration
}

// RetryAfterHint extracts the server-suggested wait from err, or zero.
func RetryAfterHint(err error) time.Duration {
	var hinter RetryAfterHinter
	if errors.As(err, &hinter) {
		return hinter.RetryAfter()
	}
	return 0
}

// ParseRateLimitHeaders reads Retry-After (delay seconds or HTTP date) and the
// X-RateLimit-Remaining / X-RateLimit-Reset pair, returning how long the gateway asks us
// to wait. Zero means no hint.
func ParseRateLimitHeaders(resp *http.Response, log logger.Logger) time.Duration {
	if resp == nil {
		return 0
	}

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
		if when, err := http.ParseTime(retryAfter); err == nil {
			if wait := time.Until(when); wait > 0 {
				return wait
			}
			return 0
		}
		log.Debug("Ignoring unparseable Retry-After header", zap.String("retry_after", retryAfter))
	}

	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
			if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
				wait := time.Until(time.Unix(epoch, 0)) + rateLimitSkew
				if wait > 0 {
					return wait
				}
			}
		}
	}

	return 0
}
