// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.musebag/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - HTTP: listen address, proxy trust, rate limiting
//   - Services: multimodal query formulator, profile service, weather service
//   - Upload: temporary media directory and its public URL prefix
//   - Sessions: in-memory store or PostgreSQL via DATABASE_URL
//   - Observability: OTLP trace export
//
// Validation uses sentinel errors so callers can check failures with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidListenAddr indicates the HTTP listen address is invalid.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidServiceURL indicates a backing service URL is missing or malformed.
	ErrInvalidServiceURL = errors.New("invalid service URL")

	// ErrInvalidTmpDir indicates the temporary media directory is invalid.
	ErrInvalidTmpDir = errors.New("invalid tmp directory")

	// ErrInvalidRateLimit indicates the rate limit settings are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidSessionBackend indicates an unknown session backend name.
	ErrInvalidSessionBackend = errors.New("invalid session backend")

	// ErrInvalidDatabaseURL indicates DATABASE_URL is malformed.
	ErrInvalidDatabaseURL = errors.New("invalid DATABASE_URL")
)

// Session backend identifiers used in Config.SessionBackend.
const (
	SessionBackendMemory   = "memory"
	SessionBackendPostgres = "postgres"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, connection strings), update MarshalJSON.
type Config struct {
	// HTTP server configuration
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
	DevMode    bool   `mapstructure:"dev_mode" json:"dev_mode"`       // Relaxes cookie security for plain-HTTP development

	// Per-IP rate limiting
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Backing services
	QueryFormulatorURL string `mapstructure:"query_formulator_url" json:"query_formulator_url"`
	ProfileServiceURL  string `mapstructure:"profile_service_url" json:"profile_service_url"`
	WeatherServiceURL  string `mapstructure:"weather_service_url" json:"weather_service_url"` // Optional; empty disables weather enrichment

	// Uploaded media staging
	TmpDir string `mapstructure:"tmp_dir" json:"tmp_dir"`
	TmpURL string `mapstructure:"tmp_url" json:"tmp_url"` // Public URL prefix under which TmpDir is served

	// Session persistence
	SessionBackend string `mapstructure:"session_backend" json:"session_backend"`
	DatabaseURL    string `mapstructure:"database_url" json:"database_url"` // SENSITIVE: masked in MarshalJSON

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Observability (OTLP trace export; empty endpoint disables tracing)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".musebag")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env cover everything.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("listen_addr", ":3030")
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("dev_mode", false)

	viper.SetDefault("rate_limit_rps", 10.0)
	viper.SetDefault("rate_limit_burst", 30)

	viper.SetDefault("query_formulator_url", "http://localhost:8080/mqf")
	viper.SetDefault("profile_service_url", "http://localhost:8081/profile")
	viper.SetDefault("weather_service_url", "")

	viper.SetDefault("tmp_dir", "./tmp")
	viper.SetDefault("tmp_url", "/tmp")

	viper.SetDefault("session_backend", SessionBackendMemory)

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)

	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("service_name", "musebag")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("listen_addr", "MUSEBAG_LISTEN_ADDR")
	mustBind("trust_proxy", "MUSEBAG_TRUST_PROXY")
	mustBind("dev_mode", "MUSEBAG_DEV_MODE")

	mustBind("query_formulator_url", "MUSEBAG_QUERY_FORMULATOR_URL")
	mustBind("profile_service_url", "MUSEBAG_PROFILE_SERVICE_URL")
	mustBind("weather_service_url", "MUSEBAG_WEATHER_SERVICE_URL")

	mustBind("tmp_dir", "MUSEBAG_TMP_DIR")
	mustBind("tmp_url", "MUSEBAG_TMP_URL")

	mustBind("session_backend", "MUSEBAG_SESSION_BACKEND")
	mustBind("database_url", "DATABASE_URL")

	mustBind("log_level", "MUSEBAG_LOG_LEVEL")
	mustBind("log_json", "MUSEBAG_LOG_JSON")

	mustBind("otlp_endpoint", "MUSEBAG_OTLP_ENDPOINT")
	mustBind("service_name", "MUSEBAG_SERVICE_NAME")
	mustBind("environment", "MUSEBAG_ENVIRONMENT")
}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr cannot be empty", ErrInvalidListenAddr)
	}

	if err := validateServiceURL("query_formulator_url", c.QueryFormulatorURL, true); err != nil {
		return err
	}
	if err := validateServiceURL("profile_service_url", c.ProfileServiceURL, true); err != nil {
		return err
	}
	// Weather enrichment is best effort, an empty URL simply disables it.
	if err := validateServiceURL("weather_service_url", c.WeatherServiceURL, false); err != nil {
		return err
	}

	if c.TmpDir == "" {
		return fmt.Errorf("%w: tmp_dir cannot be empty", ErrInvalidTmpDir)
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("%w: rate_limit_rps must be positive, got %g", ErrInvalidRateLimit, c.RateLimitRPS)
	}
	if c.RateLimitBurst < 1 {
		return fmt.Errorf("%w: rate_limit_burst must be at least 1, got %d", ErrInvalidRateLimit, c.RateLimitBurst)
	}

	switch c.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres session backend", ErrInvalidDatabaseURL)
		}
		parsed, err := url.Parse(c.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDatabaseURL, err)
		}
		if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
			return fmt.Errorf("%w: must start with postgres:// or postgresql://, got %q",
				ErrInvalidDatabaseURL, parsed.Scheme)
		}
	default:
		return fmt.Errorf("%w: %q is not valid, must be %q or %q",
			ErrInvalidSessionBackend, c.SessionBackend, SessionBackendMemory, SessionBackendPostgres)
	}

	return nil
}

func validateServiceURL(name, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%w: %s cannot be empty", ErrInvalidServiceURL, name)
		}
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidServiceURL, name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: %s must use http or https, got %q", ErrInvalidServiceURL, name, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: %s has no host", ErrInvalidServiceURL, name)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// DatabaseURL carries credentials, so it is never emitted verbatim.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	if a.DatabaseURL != "" {
		a.DatabaseURL = maskedValue
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
