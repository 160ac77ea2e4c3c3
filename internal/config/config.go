// Package config loads runtime configuration from a YAML file with
// environment variable overrides under the ORFREE_ namespace.
package config

import (
	"fmt"
	"strings"
	"time"

	"orfree-go/internal/constants"
)

// Config is the root configuration object.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Keys     []string       `yaml:"keys"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Security SecurityConfig `yaml:"security"`
	Probe    ProbeConfig    `yaml:"probe"`
	Stats    StatsConfig    `yaml:"stats"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// UpstreamConfig controls the OpenRouter transport and retry policy.
type UpstreamConfig struct {
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	ProxyURL          string `yaml:"proxy_url"`
	Referer           string `yaml:"referer"`
	Title             string `yaml:"title"`
	MaxRetries        int    `yaml:"max_retries"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	StreamTimeoutSec  int    `yaml:"stream_timeout_sec"`
}

// SecurityConfig controls inbound auth, logging and rate limiting.
type SecurityConfig struct {
	Debug             bool     `yaml:"debug"`
	LogFile           string   `yaml:"log_file"`
	APIKeys           []string `yaml:"api_keys"`
	ManagementKey     string   `yaml:"management_key"`
	ManagementKeyHash string   `yaml:"management_key_hash"`
	RateLimitPerMin   int      `yaml:"rate_limit_per_min"`
}

// ProbeConfig controls the health probe.
type ProbeConfig struct {
	Model       string  `yaml:"model"`
	Concurrency int     `yaml:"concurrency"`
	TimeoutSec  int     `yaml:"timeout_sec"`
	LaunchRate  float64 `yaml:"launch_rate"`
}

// StatsConfig controls usage tracking storage.
type StatsConfig struct {
	// RedisURL enables the Redis usage store when set, e.g.
	// redis://localhost:6379/0. Empty selects the in-memory store.
	RedisURL string `yaml:"redis_url"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Upstream: UpstreamConfig{
			Model:      "openai/gpt-4o-mini",
			MaxRetries: constants.DefaultMaxRetries,
		},
		Probe: ProbeConfig{
			Concurrency: constants.DefaultProbeConcurrency,
			TimeoutSec:  int(constants.DefaultProbeTimeout / time.Second),
		},
	}
}

// Validate checks cross-field consistency. Key presence is not validated
// here: an operator may start with zero keys and add them via the management
// API, but the pool construction will fail fast in that case.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("upstream.max_retries must not be negative")
	}
	if bp := c.Server.BasePath; bp != "" && !strings.HasPrefix(bp, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}
	return nil
}

// RequestTimeout returns the configured per-call timeout for completions.
func (c *Config) RequestTimeout() time.Duration {
	if c.Upstream.RequestTimeoutSec > 0 {
		return time.Duration(c.Upstream.RequestTimeoutSec) * time.Second
	}
	return constants.UpstreamRequestTimeout
}

// StreamTimeout returns the configured per-call timeout for streams.
func (c *Config) StreamTimeout() time.Duration {
	if c.Upstream.StreamTimeoutSec > 0 {
		return time.Duration(c.Upstream.StreamTimeoutSec) * time.Second
	}
	return constants.UpstreamStreamTimeout
}

// ProbeTimeout returns the configured per-probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	if c.Probe.TimeoutSec > 0 {
		return time.Duration(c.Probe.TimeoutSec) * time.Second
	}
	return constants.DefaultProbeTimeout
}
