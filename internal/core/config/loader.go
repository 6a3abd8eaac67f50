package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/oanda/internal/core/domain"
)

// Load reads configuration from a YAML file. OANDA_* environment variables
// override the oanda section.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := AppConfig{
		Oanda: OandaConfig{Practice: true, EnableRetries: true, MaxRetries: 3},
	}
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := ApplyEnv(&cfg.Oanda); err != nil {
		return nil, err
	}

	// Set defaults if necessary
	cfg.Oanda.applyDefaults()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = time.Minute
	}
	if cfg.Sync.Count == 0 {
		cfg.Sync.Count = 500
	}
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = 4
	}
	if len(cfg.Sync.Granularities) == 0 && len(cfg.Sync.Instruments) > 0 {
		cfg.Sync.Granularities = []domain.Granularity{domain.GranularityM1}
	}

	return &cfg, nil
}

// FromEnv builds the client configuration from environment variables alone.
// OANDA_API_KEY and OANDA_ACCOUNT_ID are required.
func FromEnv() (OandaConfig, error) {
	cfg := DefaultOandaConfig("", "")
	if err := ApplyEnv(&cfg); err != nil {
		return OandaConfig{}, err
	}
	if cfg.APIKey == "" {
		return OandaConfig{}, fmt.Errorf("OANDA_API_KEY: %w", ErrMissingAPIKey)
	}
	if cfg.AccountID == "" {
		return OandaConfig{}, fmt.Errorf("OANDA_ACCOUNT_ID: %w", ErrMissingAccountID)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any OANDA_* variables that are set.
func ApplyEnv(cfg *OandaConfig) error {
	if v, ok := lookup("OANDA_API_KEY"); ok {
		cfg.APIKey = v
	}
	if v, ok := lookup("OANDA_ACCOUNT_ID"); ok {
		cfg.AccountID = v
	}
	if v, ok := lookup("OANDA_BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok := lookup("OANDA_PRACTICE"); ok {
		practice, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OANDA_PRACTICE %q: %w", v, err)
		}
		cfg.Practice = practice
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"OANDA_TIMEOUT_SECONDS", &cfg.TimeoutSeconds},
		{"OANDA_REQUESTS_PER_SECOND", &cfg.RequestsPerSecond},
		{"OANDA_MAX_RETRIES", &cfg.MaxRetries},
	}
	for _, e := range ints {
		v, ok := lookup(e.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.name, v, err)
		}
		*e.dst = n
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
