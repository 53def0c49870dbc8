// Package config provides the unified configuration system for Meridian.
// It defines a single BrokerConfig structure shared by the broker and every
// connector adapter, ensuring consistent timeout, retry, and security
// settings across the system.
//
// The configuration is organized into logical sections:
//   - Timeouts: Connection and per-operation deadlines
//   - Reliability: Retry attempts, backoff, and delay caps
//   - Security: Key material source for the credential cipher
//   - Observability: Metrics and logging settings
//
// Example usage:
//
//	cfg := config.NewBrokerConfig()
//	cfg.Reliability.RetryAttempts = 5
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// BrokerConfig is the single configuration structure used by the broker
// and all connector adapters.
type BrokerConfig struct {
	// Timeouts define deadlines for connection attempts and operations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Reliability settings for retry behavior against flaky backends
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Security configuration for the credential cipher key material
	Security SecurityConfig `yaml:"security" json:"security"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// TimeoutConfig contains deadline settings. These prevent a hung backend
// from blocking a test or metadata call indefinitely.
type TimeoutConfig struct {
	// Connect bounds establishing a connection to a backend
	Connect time.Duration `yaml:"connect" json:"connect"`
	// Operation bounds a full test or metadata call, all attempts included
	Operation time.Duration `yaml:"operation" json:"operation"`
}

// ReliabilityConfig contains retry settings. Only transient failures
// (connection, timeout, rate limit) are retried; the attempt budget covers
// the initial try.
type ReliabilityConfig struct {
	// RetryAttempts sets the total attempt budget for transient failures
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
}

// SecurityConfig describes where the cipher key material comes from.
// The key itself is loaded once at startup and never appears here.
type SecurityConfig struct {
	// KeySource selects the key material source: "env" or "file"
	KeySource string `yaml:"key_source" json:"key_source"`
	// KeyEnv names the environment variable holding the secret (env source)
	KeyEnv string `yaml:"key_env" json:"key_env"`
	// KeyFile is the path to the secret file (file source)
	KeyFile string `yaml:"key_file" json:"key_file"`
	// KeyVersion tags payloads for a future rotation path
	KeyVersion int `yaml:"key_version" json:"key_version"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// EnableMetrics activates prometheus metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Development switches the logger to console encoding
	Development bool `yaml:"development" json:"development"`
}

// NewBrokerConfig returns a BrokerConfig with production defaults.
// The numeric retry and timeout values are configurable defaults, not
// contracts; deployments tune them per environment.
func NewBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		Timeouts: TimeoutConfig{
			Connect:   10 * time.Second,
			Operation: 30 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      500 * time.Millisecond,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   10 * time.Second,
		},
		Security: SecurityConfig{
			KeySource:  "env",
			KeyEnv:     "MERIDIAN_SECRET_KEY",
			KeyVersion: 1,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			LogLevel:      "info",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *BrokerConfig) Validate() error {
	if c.Timeouts.Connect <= 0 {
		return fmt.Errorf("timeouts.connect must be positive")
	}
	if c.Timeouts.Operation <= 0 {
		return fmt.Errorf("timeouts.operation must be positive")
	}
	if c.Reliability.RetryAttempts < 1 {
		return fmt.Errorf("reliability.retry_attempts must be at least 1")
	}
	if c.Reliability.RetryMultiplier < 1.0 {
		return fmt.Errorf("reliability.retry_multiplier must be at least 1.0")
	}
	switch c.Security.KeySource {
	case "env":
		if c.Security.KeyEnv == "" {
			return fmt.Errorf("security.key_env is required for env key source")
		}
	case "file":
		if c.Security.KeyFile == "" {
			return fmt.Errorf("security.key_file is required for file key source")
		}
	default:
		return fmt.Errorf("security.key_source must be env or file, got %q", c.Security.KeySource)
	}
	if c.Security.KeyVersion < 1 {
		return fmt.Errorf("security.key_version must be at least 1")
	}
	return nil
}
