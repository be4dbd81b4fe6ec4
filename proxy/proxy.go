// proxy.go

package proxy

import (
	"encoding/base64"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
	"github.com/flightgate/go-ndc-http-client/logger"
)

// InitializeProxy routes the transport through proxyURL. Username and password, when both
// are set, are sent as Basic proxy credentials on CONNECT. An empty proxyURL leaves the
// transport untouched.
func InitializeProxy(transport *http.Transport, proxyURL, proxyUsername, proxyPassword string, log logger.Logger) error {
	if proxyURL == "" {
		return nil
	}

	parsedProxyURL, err := url.Parse(proxyURL)
	if err != nil || parsedProxyURL.Scheme == "" || parsedProxyURL.Host == "" {
		if err == nil {
			err = url.InvalidHostError(proxyURL)
		}
		log.Error("Failed to parse proxy URL", zap.Error(err))
		return &ndcerrors.ConfigurationError{Field: "proxy_url", Message: "invalid proxy URL", Err: err}
	}

	if proxyUsername != "" && proxyPassword != "" {
		parsedProxyURL.User = url.UserPassword(proxyUsername, proxyPassword)
		credentials := base64.StdEncoding.EncodeToString([]byte(proxyUsername + ":" + proxyPassword))
		transport.ProxyConnectHeader = http.Header{
			"Proxy-Authorization": []string{"Basic " + credentials},
		}
	}
	transport.Proxy = http.ProxyURL(parsedProxyURL)

	log.Info("Proxy configured", zap.String("ProxyURL", parsedProxyURL.Redacted()))
	return nil
}
