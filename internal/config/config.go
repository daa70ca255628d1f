package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "JURIS"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "juris.db"
	defaultLogLevel           = "info"
	defaultLogMaxSizeMB       = 100
	defaultLogMaxBackups      = 5
	defaultAuthIssuer         = "tauth"
	defaultCookieName         = "app_session"
	defaultDatajudBaseURL     = "https://api-publica.datajud.cnj.jus.br"
	defaultDatajudTimeoutSecs = 30
	defaultDatajudRate        = 2.0
	defaultStaleAfterHours    = 12
	defaultBatchHour          = 3
	defaultBatchMinute        = 0
	defaultBatchTimezone      = "Local"
)

// ErrMissingDatajudAPIKey is returned by Load when no judiciary API key is configured.
var ErrMissingDatajudAPIKey = errors.New("datajud.api_key is required")

// AppConfig captures runtime configuration. It is built once at startup and
// passed by value into constructors.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	AuthSigningKey string
	AuthIssuer     string
	AuthAudience   string
	AuthCookieName string

	DatajudBaseURL           string
	DatajudAPIKey            string
	DatajudTimeout           time.Duration
	DatajudRequestsPerSecond float64

	StaleAfter time.Duration

	BatchEnabled  bool
	BatchHour     int
	BatchMinute   int
	BatchLocation *time.Location

	OTLPEndpoint string
	OTLPInsecure bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("log.max_size_mb", defaultLogMaxSizeMB)
	configViper.SetDefault("log.max_backups", defaultLogMaxBackups)
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.audience", "")
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("datajud.base_url", defaultDatajudBaseURL)
	configViper.SetDefault("datajud.api_key", "")
	configViper.SetDefault("datajud.timeout_seconds", defaultDatajudTimeoutSecs)
	configViper.SetDefault("datajud.requests_per_second", defaultDatajudRate)
	configViper.SetDefault("movements.stale_after_hours", defaultStaleAfterHours)
	configViper.SetDefault("batch.enabled", true)
	configViper.SetDefault("batch.hour", defaultBatchHour)
	configViper.SetDefault("batch.minute", defaultBatchMinute)
	configViper.SetDefault("batch.timezone", defaultBatchTimezone)
	configViper.SetDefault("tracing.otlp_endpoint", "")
	configViper.SetDefault("tracing.insecure", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	location, err := time.LoadLocation(strings.TrimSpace(configViper.GetString("batch.timezone")))
	if err != nil {
		return AppConfig{}, fmt.Errorf("batch.timezone: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:              configViper.GetString("http.address"),
		DatabasePath:             configViper.GetString("database.path"),
		LogLevel:                 configViper.GetString("log.level"),
		LogFile:                  configViper.GetString("log.file"),
		LogMaxSizeMB:             configViper.GetInt("log.max_size_mb"),
		LogMaxBackups:            configViper.GetInt("log.max_backups"),
		AuthSigningKey:           configViper.GetString("auth.signing_secret"),
		AuthIssuer:               configViper.GetString("auth.issuer"),
		AuthAudience:             configViper.GetString("auth.audience"),
		AuthCookieName:           configViper.GetString("auth.cookie_name"),
		DatajudBaseURL:           configViper.GetString("datajud.base_url"),
		DatajudAPIKey:            strings.TrimSpace(configViper.GetString("datajud.api_key")),
		DatajudTimeout:           time.Duration(configViper.GetInt("datajud.timeout_seconds")) * time.Second,
		DatajudRequestsPerSecond: configViper.GetFloat64("datajud.requests_per_second"),
		StaleAfter:               time.Duration(configViper.GetInt("movements.stale_after_hours")) * time.Hour,
		BatchEnabled:             configViper.GetBool("batch.enabled"),
		BatchHour:                configViper.GetInt("batch.hour"),
		BatchMinute:              configViper.GetInt("batch.minute"),
		BatchLocation:            location,
		OTLPEndpoint:             configViper.GetString("tracing.otlp_endpoint"),
		OTLPInsecure:             configViper.GetBool("tracing.insecure"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AuthSigningKey) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AuthCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.DatajudAPIKey == "" {
		return ErrMissingDatajudAPIKey
	}
	if strings.TrimSpace(c.DatajudBaseURL) == "" {
		return fmt.Errorf("datajud.base_url is required")
	}
	if c.DatajudTimeout <= 0 {
		return fmt.Errorf("datajud.timeout_seconds must be positive")
	}
	if c.DatajudRequestsPerSecond < 0 {
		return fmt.Errorf("datajud.requests_per_second must not be negative")
	}
	if c.StaleAfter < 0 {
		return fmt.Errorf("movements.stale_after_hours must not be negative")
	}
	if c.BatchHour < 0 || c.BatchHour > 23 {
		return fmt.Errorf("batch.hour must be between 0 and 23")
	}
	if c.BatchMinute < 0 || c.BatchMinute > 59 {
		return fmt.Errorf("batch.minute must be between 0 and 59")
	}
	return nil
}
