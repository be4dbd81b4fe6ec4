package redirecthandler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/flightgate/go-ndc-http-client/logger"
)

// RedirectHandler refuses to follow redirects. Every NDC message is a POST, and replaying
// the XML body against another location is never safe, so the 3xx response is handed back
// to the caller as is.
type RedirectHandler struct {
	Logger logger.Logger
}

// NewRedirectHandler creates a new instance of RedirectHandler.
func NewRedirectHandler(log logger.Logger) *RedirectHandler {
	return &RedirectHandler{Logger: log}
}

// WithRedirectHandling applies the redirect handling policy to an http.Client.
func (r *RedirectHandler) WithRedirectHandling(client *http.Client) {
	client.CheckRedirect = r.checkRedirect
}

func (r *RedirectHandler) checkRedirect(req *http.Request, via []*http.Request) error {
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("location", req.URL.Redacted()),
		zap.Int("redirectCount", len(via)),
	}
	if len(via) > 0 {
		fields = append(fields, zap.String("originalURL", via[0].URL.Redacted()))
	}
	r.Logger.Warn("Redirect attempted on gateway request, not following", fields...)
	return http.ErrUseLastResponse
}

// SetupRedirectHandler installs the handler on client.
func SetupRedirectHandler(client *http.Client, log logger.Logger) {
	NewRedirectHandler(log).WithRedirectHandling(client)
}
