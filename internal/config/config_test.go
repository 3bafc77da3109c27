package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "anima", cfg.Agent.ID)
	assert.Equal(t, "Anima", cfg.Agent.Name)
	assert.Empty(t, cfg.Agent.SigningKey)
	assert.Equal(t, 20000, cfg.BudgetTokens())
	require.NoError(t, cfg.Validate())

	low, medium, high := cfg.DecayAfter()
	assert.Equal(t, 24*time.Hour, low)
	assert.Equal(t, 7*24*time.Hour, medium)
	assert.Equal(t, 30*24*time.Hour, high)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agent":{"name":"Muse"},"budget":{"context_percent":0.05}}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anima", cfg.Agent.ID)
	assert.Equal(t, "Muse", cfg.Agent.Name)
	assert.Equal(t, 10000, cfg.BudgetTokens())
	assert.Equal(t, 7, cfg.Decay.MediumDays)
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agent":`), 0600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LTM_AGENT_ID", "muse")
	t.Setenv("LTM_SIGNING_KEY", "deadbeef")
	t.Setenv("LTM_DECAY_LOW_DAYS", "3")
	t.Setenv("LTM_DB", "/tmp/ltm-test.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "muse", cfg.Agent.ID)
	assert.Equal(t, "deadbeef", cfg.Agent.SigningKey)
	assert.Equal(t, 3, cfg.Decay.LowDays)
	assert.Equal(t, "/tmp/ltm-test.db", cfg.Database.Path)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero percent", func(c *Config) { c.Budget.ContextPercent = 0 }},
		{"percent above one", func(c *Config) { c.Budget.ContextPercent = 1.5 }},
		{"zero size", func(c *Config) { c.Budget.ContextSize = 0 }},
		{"zero decay", func(c *Config) { c.Decay.HighDays = 0 }},
		{"negative limit", func(c *Config) { c.Limits.PerKind = -1 }},
		{"no agent", func(c *Config) { c.Agent.ID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := Default()
	cfg.Agent.SigningKey = "abc123"
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
