// ABOUTME: Configuration loading and parsing for the access gateway.
// ABOUTME: YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Access    AccessConfig    `yaml:"access"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	ADP       ADPConfig       `yaml:"adp"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds listen address configuration.
type ServerConfig struct {
	WSAddr   string `yaml:"ws_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds signing and admin-token configuration.
type AuthConfig struct {
	// JWTSecret signs admin tokens (role assignment).
	JWTSecret string `yaml:"jwt_secret"`

	// AuditSigningSeed is the base64 ed25519 seed used to sign audit
	// entries. Generated by the init command if absent.
	AuditSigningSeed string `yaml:"audit_signing_seed"`
}

// LedgerConfig points at the external ledger service. An empty base URL
// leaves the payment path unconfigured; balance-gated grants then fail as
// collaborator-unavailable.
type LedgerConfig struct {
	BaseURL string `yaml:"base_url"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// AccessConfig holds the admission policy tunables. Amounts are in
// currency minor units.
type AccessConfig struct {
	BalanceThreshold  int64 `yaml:"balance_threshold"`
	PaymentAmount     int64 `yaml:"payment_amount"`
	MaxPaymentRetries int   `yaml:"max_payment_retries"`

	PaymentRetryDelay    time.Duration `yaml:"-"`
	PaymentRetryDelayRaw string        `yaml:"payment_retry_delay"`
}

// RateLimitConfig holds the per-connection sliding window parameters.
type RateLimitConfig struct {
	MaxRequests int `yaml:"max_requests"`

	Window    time.Duration `yaml:"-"`
	WindowRaw string        `yaml:"window"`
}

// ADPConfig holds domain verification retry parameters.
type ADPConfig struct {
	MaxRetries int `yaml:"max_retries"`

	InitialBackoff    time.Duration `yaml:"-"`
	InitialBackoffRaw string        `yaml:"initial_backoff"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, and
// duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that required fields are present and values are sane.
// Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Server.WSAddr == "" {
		return fmt.Errorf("server.ws_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Access.BalanceThreshold < 0 {
		return fmt.Errorf("access.balance_threshold must not be negative")
	}
	if c.Access.PaymentAmount < 0 {
		return fmt.Errorf("access.payment_amount must not be negative")
	}
	if c.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("rate_limit.max_requests must not be negative")
	}
	return nil
}

// parseDurations converts raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Ledger.TimeoutRaw != "" {
		cfg.Ledger.Timeout, err = time.ParseDuration(cfg.Ledger.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing ledger.timeout %q: %w", cfg.Ledger.TimeoutRaw, err)
		}
	}

	if cfg.Access.PaymentRetryDelayRaw != "" {
		cfg.Access.PaymentRetryDelay, err = time.ParseDuration(cfg.Access.PaymentRetryDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing payment_retry_delay %q: %w", cfg.Access.PaymentRetryDelayRaw, err)
		}
	}

	if cfg.RateLimit.WindowRaw != "" {
		cfg.RateLimit.Window, err = time.ParseDuration(cfg.RateLimit.WindowRaw)
		if err != nil {
			return fmt.Errorf("parsing rate_limit.window %q: %w", cfg.RateLimit.WindowRaw, err)
		}
	}

	if cfg.ADP.InitialBackoffRaw != "" {
		cfg.ADP.InitialBackoff, err = time.ParseDuration(cfg.ADP.InitialBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing adp.initial_backoff %q: %w", cfg.ADP.InitialBackoffRaw, err)
		}
	}

	return nil
}
