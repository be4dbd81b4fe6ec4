// zaplogger_logfields.go
package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCallStart logs the initiation of an outbound NDC call. Only the credential
// fingerprint is logged, never the credentials themselves.
func (d *defaultLogger) LogCallStart(event string, operation string, url string, fingerprint string, fields ...zapcore.Field) {
	if d.logLevel <= LogLevelInfo {
		base := []zap.Field{
			zap.String("event", event),
			zap.String("operation", operation),
			zap.String("url", url),
			zap.String("credential_hash", fingerprint),
		}
		d.logger.Info("NDC call started", append(base, fields...)...)
	}
}

// LogCallEnd logs the completion of an outbound NDC call.
func (d *defaultLogger) LogCallEnd(event string, operation string, url string, statusCode int, duration time.Duration, fields ...zapcore.Field) {
	if d.logLevel <= LogLevelInfo {
		base := []zap.Field{
			zap.String("event", event),
			zap.String("operation", operation),
			zap.String("url", url),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		}
		d.logger.Info("NDC call completed", append(base, fields...)...)
	}
}

// LogError logs a failed NDC call.
func (d *defaultLogger) LogError(event string, operation string, url string, statusCode int, err error, fields ...zapcore.Field) {
	if d.logLevel <= LogLevelError {
		base := []zap.Field{
			zap.String("event", event),
			zap.String("operation", operation),
			zap.String("url", url),
			zap.Int("status_code", statusCode),
			zap.Error(err),
		}
		d.logger.Error("NDC call failed", append(base, fields...)...)
	}
}

// LogAuthTokenError logs a failure to obtain a bearer token from the Auth endpoint.
func (d *defaultLogger) LogAuthTokenError(event string, url string, statusCode int, err error, fields ...zapcore.Field) {
	if d.logLevel <= LogLevelError {
		base := []zap.Field{
			zap.String("event", event),
			zap.String("url", url),
			zap.Int("status_code", statusCode),
			zap.Error(err),
		}
		d.logger.Error("Failed to obtain authentication token", append(base, fields...)...)
	}
}

// LogRetryAttempt logs a retry of a failed attempt.
func (d *defaultLogger) LogRetryAttempt(event string, label string, attempt int, reason string, waitDuration time.Duration, err error) {
	if d.logLevel <= LogLevelWarn {
		d.logger.Warn("Retrying NDC request",
			zap.String("event", event),
			zap.String("label", label),
			zap.Int("attempt", attempt),
			zap.String("reason", reason),
			zap.Duration("wait_duration", waitDuration),
			zap.Error(err),
		)
	}
}

// LogCircuitStateChange logs a circuit breaker transition.
func (d *defaultLogger) LogCircuitStateChange(event string, name string, from string, to string) {
	if d.logLevel <= LogLevelWarn {
		d.logger.Warn("Circuit breaker state changed",
			zap.String("event", event),
			zap.String("breaker", name),
			zap.String("from", from),
			zap.String("to", to),
		)
	}
}
