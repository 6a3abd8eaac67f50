package config

import (
	"errors"
	"time"

	"github.com/vietddude/oanda/internal/core/domain"
	redisclient "github.com/vietddude/oanda/internal/infra/redis"
	"github.com/vietddude/oanda/internal/infra/storage/postgres"
)

const (
	PracticeURL = "https://api-fxpractice.oanda.com"
	LiveURL     = "https://api-fxtrade.oanda.com"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Oanda    OandaConfig        `yaml:"oanda"`
	Server   ServerConfig       `yaml:"server"`
	Sync     SyncConfig         `yaml:"sync"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SyncConfig controls the background candle syncer.
type SyncConfig struct {
	Instruments   []string             `yaml:"instruments"`
	Granularities []domain.Granularity `yaml:"granularities"`
	Interval      time.Duration        `yaml:"interval"`
	Count         int                  `yaml:"count"`
	Concurrency   int                  `yaml:"concurrency"`
}

// OandaConfig is the immutable bundle handed to the API client.
type OandaConfig struct {
	APIKey    string `yaml:"api_key"`
	AccountID string `yaml:"account_id"`
	Practice  bool   `yaml:"practice"`
	BaseURL   string `yaml:"base_url"` // overrides Practice when set

	TimeoutSeconds    int `yaml:"timeout_seconds"`
	RequestsPerSecond int `yaml:"requests_per_second"`

	EnableRetries   bool          `yaml:"enable_retries"`
	MaxRetries      int           `yaml:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	Jitter          float64       `yaml:"jitter"`
	OverallTimeout  time.Duration `yaml:"overall_timeout"` // 0 = none
	RefundOnFailure bool          `yaml:"refund_on_failure"`
}

var (
	ErrMissingAPIKey    = errors.New("API key is required")
	ErrMissingAccountID = errors.New("account ID is required")
	ErrInvalidTimeout   = errors.New("timeout must be greater than 0")
	ErrInvalidRateLimit = errors.New("requests per second must be greater than 0")
	ErrInvalidRetries   = errors.New("max retries must not be negative")
	ErrInvalidJitter    = errors.New("jitter must be between 0 and 1")
)

// DefaultOandaConfig returns a practice-account configuration with the
// standard limits.
func DefaultOandaConfig(apiKey, accountID string) OandaConfig {
	return OandaConfig{
		APIKey:            apiKey,
		AccountID:         accountID,
		Practice:          true,
		TimeoutSeconds:    10,
		RequestsPerSecond: 100,
		EnableRetries:     true,
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          30 * time.Second,
	}
}

// BaseURLOrDefault returns BaseURL, or the practice/live host.
func (c OandaConfig) BaseURLOrDefault() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Practice {
		return PracticeURL
	}
	return LiveURL
}

// Timeout returns the per-attempt timeout.
func (c OandaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks the settings the client cannot work without.
func (c OandaConfig) Validate() error {
	switch {
	case c.APIKey == "":
		return ErrMissingAPIKey
	case c.AccountID == "":
		return ErrMissingAccountID
	case c.TimeoutSeconds <= 0:
		return ErrInvalidTimeout
	case c.RequestsPerSecond <= 0:
		return ErrInvalidRateLimit
	case c.MaxRetries < 0:
		return ErrInvalidRetries
	case c.Jitter < 0 || c.Jitter > 1:
		return ErrInvalidJitter
	}
	return nil
}

func (c *OandaConfig) applyDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 100
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
}
