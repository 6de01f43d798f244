package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.False(t, cfg.StrictTools)
	assert.Equal(t, 8, cfg.MaxParallelSteps)
	assert.Equal(t, 0, cfg.DefaultRetryCount)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.DrainPollInterval)
	assert.Equal(t, 5*time.Second, cfg.HealthCheckTimeout)
	assert.Equal(t, 500, cfg.MaxLifecycleEvents)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("AGENTFORGE_STRICT_TOOLS", "true")
	t.Setenv("AGENTFORGE_MAX_PARALLEL_STEPS", "3")
	t.Setenv("AGENTFORGE_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("AGENTFORGE_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.StrictTools)
	assert.Equal(t, 3, cfg.MaxParallelSteps)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("AGENTFORGE_MAX_PARALLEL_STEPS", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero parallel steps", func(c *Config) { c.MaxParallelSteps = 0 }},
		{"negative retry count", func(c *Config) { c.DefaultRetryCount = -1 }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"zero drain poll interval", func(c *Config) { c.DrainPollInterval = 0 }},
		{"zero health check timeout", func(c *Config) { c.HealthCheckTimeout = 0 }},
		{"zero lifecycle events", func(c *Config) { c.MaxLifecycleEvents = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
