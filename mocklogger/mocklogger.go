// mocklogger/mocklogger.go
package mocklogger

import (
	"errors"
	"time"

	"github.com/flightgate/go-ndc-http-client/logger"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MockLogger is a mock type for the Logger interface, embedding a *zap.Logger to satisfy the type requirement.
type MockLogger struct {
	mock.Mock
	*zap.Logger
	logLevel logger.LogLevel
}

// NewMockLogger creates a new instance of MockLogger with an embedded no-op *zap.Logger.
// Every call must be expected with On(...) unless AllowAll has been used.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		Logger: zap.NewNop(),
	}
}

// NewPermissiveMockLogger returns a MockLogger that accepts any call, so tests only assert
// on the calls they care about.
func NewPermissiveMockLogger() *MockLogger {
	m := NewMockLogger()
	m.AllowAll()
	return m
}

// AllowAll registers optional expectations for every method of the Logger interface.
func (m *MockLogger) AllowAll() {
	for _, method := range []string{"Debug", "Info", "Warn", "Panic", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Maybe()
	}
	m.On("Error", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("SetLevel", mock.Anything).Maybe()
	m.On("GetLogLevel").Return(logger.LogLevelDebug).Maybe()
	m.On("With", mock.Anything).Maybe()
	m.On("LogCallStart", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogCallEnd", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogError", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogAuthTokenError", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogRetryAttempt", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogCircuitStateChange", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
}

// Ensure MockLogger implements the logger.Logger interface from the logger package
var _ logger.Logger = (*MockLogger)(nil)

// GetLogLevel mocks the GetLogLevel method of the Logger interface.
func (m *MockLogger) GetLogLevel() logger.LogLevel {
	args := m.Called()
	return args.Get(0).(logger.LogLevel)
}

// SetLevel sets the logging level of the MockLogger.
func (m *MockLogger) SetLevel(level logger.LogLevel) {
	m.logLevel = level
	m.Called(level)
}

// With records the call and returns the same mock, so expectations keep applying to
// loggers derived for a request.
func (m *MockLogger) With(fields ...zapcore.Field) logger.Logger {
	m.Called(fields)
	return m
}

// Debug logs a message at the Debug level.
func (m *MockLogger) Debug(msg string, fields ...zapcore.Field) {
	m.Called(msg, fields)
}

// Info logs a message at the Info level.
func (m *MockLogger) Info(msg string, fields ...zapcore.Field) {
	m.Called(msg, fields)
}

// Error logs a message at the Error level and returns an error carrying msg.
func (m *MockLogger) Error(msg string, fields ...zapcore.Field) error {
	m.Called(msg, fields)
	return errors.New(msg)
}

// Warn logs a message at the Warn level.
func (m *MockLogger) Warn(msg string, fields ...zapcore.Field) {
	m.Called(msg, fields)
}

// Panic logs a message at the Panic level.
func (m *MockLogger) Panic(msg string, fields ...zapcore.Field) {
	m.Called(msg, fields)
}

// Fatal logs a message at the Fatal level.
func (m *MockLogger) Fatal(msg string, fields ...zapcore.Field) {
	m.Called(msg, fields)
}

// LogCallStart mocks the call-start event.
func (m *MockLogger) LogCallStart(event string, operation string, url string, fingerprint string, fields ...zapcore.Field) {
	m.Called(event, operation, url, fingerprint, fields)
}

// LogCallEnd mocks the call-end event.
func (m *MockLogger) LogCallEnd(event string, operation string, url string, statusCode int, duration time.Duration, fields ...zapcore.Field) {
	m.Called(event, operation, url, statusCode, duration, fields)
}

// LogError mocks the call-error event.
func (m *MockLogger) LogError(event string, operation string, url string, statusCode int, err error, fields ...zapcore.Field) {
	m.Called(event, operation, url, statusCode, err, fields)
}

// LogAuthTokenError mocks the auth failure event.
func (m *MockLogger) LogAuthTokenError(event string, url string, statusCode int, err error, fields ...zapcore.Field) {
	m.Called(event, url, statusCode, err, fields)
}

// LogRetryAttempt mocks the retry event.
func (m *MockLogger) LogRetryAttempt(event string, label string, attempt int, reason string, waitDuration time.Duration, err error) {
	m.Called(event, label, attempt, reason, waitDuration, err)
}

// LogCircuitStateChange mocks the breaker transition event.
func (m *MockLogger) LogCircuitStateChange(event string, name string, from string, to string) {
	m.Called(event, name, from, to)
}
