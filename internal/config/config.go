// Package config loads application configuration from environment
// variables and an optional YAML config file. Environment variables take
// precedence over config file values.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the fetch aggregator application.
type Config struct {
	// Endpoints to fetch. May also be supplied as CLI arguments, which
	// take precedence.
	Endpoints []string `mapstructure:"endpoints"`

	// Rate limiting
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`

	// Per-attempt request timeout
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Retry policy
	MaxRetryAttempts int           `mapstructure:"max_retry_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`

	// Circuit breaker
	CircuitFailureThreshold int           `mapstructure:"circuit_failure_threshold"`
	CircuitRecoveryTimeout  time.Duration `mapstructure:"circuit_recovery_timeout"`

	// Optional Redis payload cache. Empty address disables caching.
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`

	// Optional Prometheus metrics listener. Empty address disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads configuration from environment variables (FETCH_ prefix) and
// an optional config.yaml in the working directory or $HOME/.fetchagg.
//
// Expected environment variables:
//   - FETCH_RATE_LIMIT, FETCH_RATE_WINDOW
//   - FETCH_REQUEST_TIMEOUT
//   - FETCH_MAX_RETRY_ATTEMPTS, FETCH_RETRY_BASE_DELAY
//   - FETCH_CIRCUIT_FAILURE_THRESHOLD, FETCH_CIRCUIT_RECOVERY_TIMEOUT
//   - FETCH_REDIS_ADDR, FETCH_REDIS_PASSWORD, FETCH_REDIS_DB, FETCH_CACHE_TTL
//   - FETCH_LOG_LEVEL, FETCH_LOG_PRETTY
//   - FETCH_METRICS_ADDR
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("FETCH")
	v.AutomaticEnv()

	v.SetDefault("rate_limit", 10)
	v.SetDefault("rate_window", time.Second)
	v.SetDefault("request_timeout", 5*time.Second)
	v.SetDefault("max_retry_attempts", 3)
	v.SetDefault("retry_base_delay", 100*time.Millisecond)
	v.SetDefault("circuit_failure_threshold", 5)
	v.SetDefault("circuit_recovery_timeout", 30*time.Second)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl", 5*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("metrics_addr", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.fetchagg")

	// Config file is optional.
	_ = v.ReadInConfig()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects values that would fail aggregator construction, so
// misconfiguration surfaces before any fetch starts.
func (c *Config) Validate() error {
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive (got %d)", c.RateLimit)
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("rate_window must be positive (got %v)", c.RateWindow)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive (got %v)", c.RequestTimeout)
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("max_retry_attempts must be >= 1 (got %d)", c.MaxRetryAttempts)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("retry_base_delay must be positive (got %v)", c.RetryBaseDelay)
	}
	if c.CircuitFailureThreshold < 1 {
		return fmt.Errorf("circuit_failure_threshold must be >= 1 (got %d)", c.CircuitFailureThreshold)
	}
	if c.CircuitRecoveryTimeout <= 0 {
		return fmt.Errorf("circuit_recovery_timeout must be positive (got %v)", c.CircuitRecoveryTimeout)
	}
	if c.RedisAddr != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive when redis_addr is set (got %v)", c.CacheTTL)
	}
	return nil
}
