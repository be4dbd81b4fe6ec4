// httpclient/http.go
package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/flightgate/go-ndc-http-client/logger"
	"github.com/flightgate/go-ndc-http-client/proxy"
	"github.com/flightgate/go-ndc-http-client/redirecthandler"
)

// buildHTTPClient creates the transport shared by the Auth and operation endpoints.
// Timeout bounds a single attempt; the circuit breaker bounds the whole call.
func buildHTTPClient(config ClientConfig, log logger.Logger) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   config.MaxConcurrentRequests,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if err := proxy.InitializeProxy(transport, config.ProxyURL, config.ProxyUsername, config.ProxyPassword, log); err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
	redirecthandler.SetupRedirectHandler(httpClient, log)
	return httpClient, nil
}
