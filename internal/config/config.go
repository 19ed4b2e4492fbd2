// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/engine"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

// Config represents the full application configuration.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Execution ExecutionConfig `yaml:"execution"`
	Journal   JournalConfig   `yaml:"journal"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GatewayConfig holds exchange gateway settings.
type GatewayConfig struct {
	Type               string `yaml:"type"` // binance | paper
	APIKey             string `yaml:"api_key"`
	APISecret          string `yaml:"api_secret"`
	BaseURL            string `yaml:"base_url"`
	WSURL              string `yaml:"ws_url"`
	Testnet            bool   `yaml:"testnet"`
	RecvWindowMs       int    `yaml:"recv_window_ms"`
	RateLimitPerSecond int    `yaml:"rate_limit_per_second"`
	TimeoutSec         int    `yaml:"timeout_sec"`
}

// ExecutionConfig holds execution engine settings.
type ExecutionConfig struct {
	PollIntervalMs  int `yaml:"poll_interval_ms"`
	ChunkTimeoutSec int `yaml:"chunk_timeout_sec"`
	RetryBudget     int `yaml:"retry_budget"`
}

// JournalConfig holds report journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// AlertingConfig holds alerting settings.
type AlertingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration and applies defaults.
func (c *Config) Validate() error {
	var errs []string

	// Gateway validation
	switch c.Gateway.Type {
	case "", "paper":
		c.Gateway.Type = "paper"
	case "binance":
		if c.Gateway.APIKey == "" {
			errs = append(errs, "gateway.api_key is required for binance")
		}
		if c.Gateway.APISecret == "" {
			errs = append(errs, "gateway.api_secret is required for binance")
		}
	default:
		errs = append(errs, fmt.Sprintf("gateway.type '%s' is not supported (binance, paper)", c.Gateway.Type))
	}
	if c.Gateway.RecvWindowMs < 0 {
		errs = append(errs, "gateway.recv_window_ms must not be negative")
	}
	if c.Gateway.RateLimitPerSecond < 0 {
		errs = append(errs, "gateway.rate_limit_per_second must not be negative")
	}

	// Execution validation
	if c.Execution.PollIntervalMs < 0 {
		errs = append(errs, "execution.poll_interval_ms must not be negative")
	}
	if c.Execution.ChunkTimeoutSec < 0 {
		errs = append(errs, "execution.chunk_timeout_sec must not be negative")
	}
	if c.Execution.RetryBudget < 0 {
		errs = append(errs, "execution.retry_budget must not be negative")
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when journal is enabled")
	}

	// Metrics validation
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			errs = append(errs, "metrics.port must be between 1 and 65535")
		}
	}

	// Logging validation
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level '%s' is not supported (debug, info, warn, error)", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format '%s' is not supported (text, json)", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// ToEngineConfig converts execution settings to engine.Config, falling back
// to engine defaults for unset values.
func (c *Config) ToEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if c.Execution.PollIntervalMs > 0 {
		cfg.PollInterval = time.Duration(c.Execution.PollIntervalMs) * time.Millisecond
	}
	if c.Execution.ChunkTimeoutSec > 0 {
		cfg.ChunkTimeout = time.Duration(c.Execution.ChunkTimeoutSec) * time.Second
	}
	if c.Execution.RetryBudget > 0 {
		cfg.RetryBudget = c.Execution.RetryBudget
	}
	return cfg
}

// GatewayTimeout returns the HTTP timeout for gateway requests.
func (c *Config) GatewayTimeout() time.Duration {
	if c.Gateway.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Gateway.TimeoutSec) * time.Second
}

// RecvWindow returns the request validity window for signed requests.
func (c *Config) RecvWindow() time.Duration {
	if c.Gateway.RecvWindowMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Gateway.RecvWindowMs) * time.Millisecond
}
