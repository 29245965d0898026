package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "agents", cfg.Agents.Name)
	assert.Equal(t, "tools", cfg.Tools.Name)
	assert.Equal(t, 5*time.Minute, cfg.Agents.CacheTTL)
	assert.True(t, cfg.Agents.EnableHotSwap)
	assert.True(t, cfg.Agents.PreserveCountersOnSwap)
	assert.Equal(t, 10, cfg.Tools.MaxConcurrentExecutions)
	assert.Equal(t, "sequential", cfg.Tools.DefaultStrategy)
	assert.Equal(t, "fail_fast", cfg.Workflow.FailureHandling)
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 2.0, cfg.Resilience.BackoffMultiplier)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("AGENT_MAX_AGENTS", "25")
	t.Setenv("AGENT_ALLOWED_TYPES", "llm, scripted ,")
	t.Setenv("AGENT_HOT_SWAP_ENABLED", "false")
	t.Setenv("TOOL_CACHE_TTL", "90s")
	t.Setenv("WORKFLOW_FAILURE_HANDLING", "continue")
	t.Setenv("RESILIENCE_BACKOFF_MULTIPLIER", "1.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Agents.MaxAgents)
	assert.Equal(t, []string{"llm", "scripted"}, cfg.Agents.AllowedTypes)
	assert.False(t, cfg.Agents.EnableHotSwap)
	assert.Equal(t, 90*time.Second, cfg.Tools.CacheTTL)
	assert.Equal(t, "continue", cfg.Workflow.FailureHandling)
	assert.Equal(t, 1.5, cfg.Resilience.BackoffMultiplier)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("TOOL_CACHE_TTL", "eleven seconds")
	t.Setenv("AGENT_HOT_SWAP_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Tools.CacheTTL)
	assert.True(t, cfg.Agents.EnableHotSwap)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"empty registry name", func(c *Config) { c.Agents.Name = "" }},
		{"negative max agents", func(c *Config) { c.Agents.MaxAgents = -5 }},
		{"zero concurrency", func(c *Config) { c.Tools.MaxConcurrentExecutions = 0 }},
		{"unknown failure mode", func(c *Config) { c.Workflow.FailureHandling = "panic" }},
		{"zero failure threshold", func(c *Config) { c.Resilience.FailureThreshold = 0 }},
		{"zero retry attempts", func(c *Config) { c.Resilience.RetryMaxAttempts = 0 }},
		{"blank allowed type", func(c *Config) { c.Tools.AllowedTypes = []string{"  "} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
