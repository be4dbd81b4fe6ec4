// config.go
// Package config loads the gateway client settings from an optional YAML file and NDC_*
// environment variables, validates them and converts them into component configurations.
package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	ndcerrors "github.com/flightgate/go-ndc-http-client/errors"
	"github.com/flightgate/go-ndc-http-client/logger"
)

// EnvPrefix is prepended to every environment variable, e.g. NDC_RETRY_MAX_ATTEMPTS.
const EnvPrefix = "NDC"

type Config struct {
	Retry             RetryConfig          `mapstructure:"retry"`
	CircuitBreaker    CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Token             TokenConfig          `mapstructure:"token"`
	UAT               EnvironmentConfig    `mapstructure:"uat"`
	PROD              EnvironmentConfig    `mapstructure:"prod"`
	Log               LogConfig            `mapstructure:"log"`
	HTTP              HTTPConfig           `mapstructure:"http"`
	Audit             AuditConfig          `mapstructure:"audit"`
	HideSensitiveData bool                 `mapstructure:"hide_sensitive_data"`
}

type RetryConfig struct {
	MaxAttempts    int     `mapstructure:"max_attempts"     validate:"gte=1,lte=20"`
	InitialDelayMs int     `mapstructure:"initial_delay_ms" validate:"gte=0"`
	MaxDelayMs     int     `mapstructure:"max_delay_ms"     validate:"gtefield=InitialDelayMs"`
	BackoffFactor  float64 `mapstructure:"backoff_factor"   validate:"gte=1"`
	JitterFactor   float64 `mapstructure:"jitter_factor"    validate:"gte=0,lte=1"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold" validate:"gte=1"`
	SuccessThreshold int `mapstructure:"success_threshold" validate:"gte=1"`
	TimeoutMs        int `mapstructure:"timeout_ms"        validate:"gte=1"`
	ResetTimeoutMs   int `mapstructure:"reset_timeout_ms"  validate:"gte=1"`
}

type TokenConfig struct {
	DefaultValidityMs  int  `mapstructure:"default_validity_ms"   validate:"gt=0"`
	ExpiryWarningMs    int  `mapstructure:"expiry_warning_ms"     validate:"gte=0,ltefield=DefaultValidityMs"`
	HardExpiryBufferMs int  `mapstructure:"hard_expiry_buffer_ms" validate:"gte=0,ltefield=ExpiryWarningMs"`
	CleanupIntervalMs  int  `mapstructure:"cleanup_interval_ms"   validate:"gt=0"`
	CoalesceRefresh    bool `mapstructure:"coalesce_refresh"`
}

// EnvironmentConfig describes one gateway deployment. An environment without a base URL
// is treated as not configured.
type EnvironmentConfig struct {
	BaseURL     string `mapstructure:"base_url"     validate:"omitempty,url"`
	AuthURL     string `mapstructure:"auth_url"     validate:"omitempty,url"`
	HeaderName  string `mapstructure:"header_name"  validate:"required_with=HeaderToken"`
	HeaderToken string `mapstructure:"header_token"`
}

type LogConfig struct {
	Level            string `mapstructure:"level"      validate:"required"`
	Format           string `mapstructure:"format"     validate:"oneof=json console"`
	ConsoleSeparator string `mapstructure:"console_separator"`
	ExportPath       string `mapstructure:"export_path"`
}

type HTTPConfig struct {
	TimeoutMs             int    `mapstructure:"timeout_ms"              validate:"gte=0"`
	MaxConcurrentRequests int    `mapstructure:"max_concurrent_requests" validate:"gte=1"`
	AcquireTimeoutMs      int    `mapstructure:"acquire_timeout_ms"      validate:"gte=0"`
	ProxyURL              string `mapstructure:"proxy_url"               validate:"omitempty,url"`
	ProxyUsername         string `mapstructure:"proxy_username"`
	ProxyPassword         string `mapstructure:"proxy_password"          validate:"required_with=ProxyUsername"`
}

type AuditConfig struct {
	Async       bool `mapstructure:"async"`
	BufferSize  int  `mapstructure:"buffer_size"  validate:"gte=1"`
	IncludeBody bool `mapstructure:"include_body"`
}

// setDefaults registers every key with viper. AutomaticEnv only overrides keys viper
// already knows about, so each setting needs a default here.
func setDefaults(vip *viper.Viper) {
	vip.SetDefault("retry.max_attempts", 3)
	vip.SetDefault("retry.initial_delay_ms", 1000)
	vip.SetDefault("retry.max_delay_ms", 10000)
	vip.SetDefault("retry.backoff_factor", 2.0)
	vip.SetDefault("retry.jitter_factor", 0.1)

	vip.SetDefault("circuit_breaker.failure_threshold", 5)
	vip.SetDefault("circuit_breaker.success_threshold", 2)
	vip.SetDefault("circuit_breaker.timeout_ms", 60000)
	vip.SetDefault("circuit_breaker.reset_timeout_ms", 30000)

	vip.SetDefault("token.default_validity_ms", 1800000)
	vip.SetDefault("token.expiry_warning_ms", 300000)
	vip.SetDefault("token.hard_expiry_buffer_ms", 30000)
	vip.SetDefault("token.cleanup_interval_ms", 60000)
	vip.SetDefault("token.coalesce_refresh", false)

	for _, env := range []string{"uat", "prod"} {
		vip.SetDefault(env+".base_url", "")
		vip.SetDefault(env+".auth_url", "")
		vip.SetDefault(env+".header_name", "")
		vip.SetDefault(env+".header_token", "")
	}

	vip.SetDefault("log.level", "info")
	vip.SetDefault("log.format", "json")
	vip.SetDefault("log.console_separator", "\t")
	vip.SetDefault("log.export_path", "")

	vip.SetDefault("http.timeout_ms", 30000)
	vip.SetDefault("http.max_concurrent_requests", 10)
	vip.SetDefault("http.acquire_timeout_ms", 10000)
	vip.SetDefault("http.proxy_url", "")
	vip.SetDefault("http.proxy_username", "")
	vip.SetDefault("http.proxy_password", "")

	vip.SetDefault("audit.async", false)
	vip.SetDefault("audit.buffer_size", 1024)
	vip.SetDefault("audit.include_body", true)

	vip.SetDefault("hide_sensitive_data", true)
}

// Load reads the configuration. With an empty path it looks for config.yaml in ./configs and
// the working directory; a missing file is not an error. Environment variables win over the file.
func Load(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("config")
		vip.AddConfigPath("./configs")
		vip.AddConfigPath(".")
	}

	vip.SetConfigType("yaml")
	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vip.AutomaticEnv()
	setDefaults(vip)

	if err := vip.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, &ndcerrors.ConfigurationError{Field: "file", Message: "failed to read config file", Err: err}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, &ndcerrors.ConfigurationError{Message: "failed to unmarshal config", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags and the log level name.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ndcerrors.ConfigurationError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
				Err:     err,
			}
		}
		return &ndcerrors.ConfigurationError{Message: "config validation failed", Err: err}
	}
	if _, ok := logger.ParseLogLevelFromString(c.Log.Level); !ok {
		return &ndcerrors.ConfigurationError{Field: "Config.Log.Level", Message: fmt.Sprintf("unknown log level %q", c.Log.Level)}
	}
	return nil
}
