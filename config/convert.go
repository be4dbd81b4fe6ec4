// convert.go
package config

import (
	"time"

	"github.com/flightgate/go-ndc-http-client/circuitbreaker"
	"github.com/flightgate/go-ndc-http-client/credentials"
	"github.com/flightgate/go-ndc-http-client/environments"
	"github.com/flightgate/go-ndc-http-client/logger"
	"github.com/flightgate/go-ndc-http-client/retry"
	"github.com/flightgate/go-ndc-http-client/tokencache"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// PolicyConfig converts the retry settings.
func (r RetryConfig) PolicyConfig() retry.Config {
	return retry.Config{
		MaxAttempts:       r.MaxAttempts,
		BaseDelay:         ms(r.InitialDelayMs),
		MaxDelay:          ms(r.MaxDelayMs),
		BackoffMultiplier: r.BackoffFactor,
		JitterFactor:      r.JitterFactor,
	}
}

// BreakerConfig converts the circuit breaker settings.
func (c CircuitBreakerConfig) BreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		Timeout:          ms(c.TimeoutMs),
		ResetTimeout:     ms(c.ResetTimeoutMs),
	}
}

// CacheConfig converts the token lifetimes.
func (t TokenConfig) CacheConfig() tokencache.Config {
	return tokencache.Config{
		DefaultValidity:  ms(t.DefaultValidityMs),
		ExpiryWarning:    ms(t.ExpiryWarningMs),
		HardExpiryBuffer: ms(t.HardExpiryBufferMs),
		CleanupInterval:  ms(t.CleanupIntervalMs),
	}
}

// Environments returns the configured deployments. Environments without a base URL are left out.
func (c *Config) Environments() environments.Set {
	set := environments.Set{}
	add := func(name credentials.Environment, e EnvironmentConfig) {
		if e.BaseURL == "" {
			return
		}
		set[name] = environments.Environment{
			Name:        name,
			BaseURL:     e.BaseURL,
			AuthURL:     e.AuthURL,
			HeaderName:  e.HeaderName,
			HeaderToken: e.HeaderToken,
		}
	}
	add(credentials.EnvironmentUAT, c.UAT)
	add(credentials.EnvironmentPROD, c.PROD)
	return set
}

// Timeout is the per-attempt HTTP client timeout.
func (h HTTPConfig) Timeout() time.Duration {
	return ms(h.TimeoutMs)
}

// AcquireTimeout bounds the wait for a concurrency permit.
func (h HTTPConfig) AcquireTimeout() time.Duration {
	return ms(h.AcquireTimeoutMs)
}

// LogLevel returns the parsed level. Both short names ("debug") and the logger's own
// names ("LogLevelDebug") are accepted.
func (l LogConfig) LogLevel() logger.LogLevel {
	level, _ := logger.ParseLogLevelFromString(l.Level)
	return level
}

// BuildLogger constructs the zap logger described by the log settings.
func (l LogConfig) BuildLogger() logger.Logger {
	return logger.BuildLogger(l.LogLevel(), l.Format, l.ConsoleSeparator, l.ExportPath)
}
