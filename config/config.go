// Package config carries the engine's tunables, loadable from AGENTFORGE_*
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the engine configuration. Zero values are replaced by the
// documented defaults via Load or Default.
type Config struct {
	// StrictTools makes cross-bundle tool name collisions fail the registry
	// build instead of resolving last-wins.
	StrictTools bool `env:"AGENTFORGE_STRICT_TOOLS" envDefault:"false"`

	// MaxParallelSteps caps concurrently executing children of a parallel
	// workflow step.
	MaxParallelSteps int `env:"AGENTFORGE_MAX_PARALLEL_STEPS" envDefault:"8"`

	// DefaultRetryCount applies to workflow declarations that leave
	// retry_count unset.
	DefaultRetryCount int `env:"AGENTFORGE_DEFAULT_RETRY_COUNT" envDefault:"0"`

	// ShutdownTimeout bounds how long graceful shutdown waits for executing
	// instances to drain before forcing them down.
	ShutdownTimeout time.Duration `env:"AGENTFORGE_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// DrainPollInterval is the graceful shutdown polling cadence.
	DrainPollInterval time.Duration `env:"AGENTFORGE_DRAIN_POLL_INTERVAL" envDefault:"100ms"`

	// HealthCheckTimeout bounds a single adapter health probe.
	HealthCheckTimeout time.Duration `env:"AGENTFORGE_HEALTH_CHECK_TIMEOUT" envDefault:"5s"`

	// MaxLifecycleEvents caps the per-instance transition history.
	MaxLifecycleEvents int `env:"AGENTFORGE_MAX_LIFECYCLE_EVENTS" envDefault:"500"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"AGENTFORGE_LOG_LEVEL" envDefault:"info"`

	// LogFormat is json or text.
	LogFormat string `env:"AGENTFORGE_LOG_FORMAT" envDefault:"json"`
}

// Default returns the configuration with all defaults applied and no
// environment lookup.
func Default() *Config {
	return &Config{
		MaxParallelSteps:   8,
		ShutdownTimeout:    30 * time.Second,
		DrainPollInterval:  100 * time.Millisecond,
		HealthCheckTimeout: 5 * time.Second,
		MaxLifecycleEvents: 500,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.MaxParallelSteps <= 0 {
		return fmt.Errorf("max_parallel_steps must be positive, got %d", c.MaxParallelSteps)
	}
	if c.DefaultRetryCount < 0 {
		return fmt.Errorf("default_retry_count must not be negative, got %d", c.DefaultRetryCount)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.DrainPollInterval <= 0 {
		return fmt.Errorf("drain_poll_interval must be positive, got %s", c.DrainPollInterval)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("health_check_timeout must be positive, got %s", c.HealthCheckTimeout)
	}
	if c.MaxLifecycleEvents <= 0 {
		return fmt.Errorf("max_lifecycle_events must be positive, got %d", c.MaxLifecycleEvents)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	return nil
}
