package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all ltm configuration. It is read from ~/.ltm/config.json and
// then overridden from LTM_* environment variables.
type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Budget   BudgetConfig   `json:"budget"`
	Decay    DecayConfig    `json:"decay"`
	Limits   LimitsConfig   `json:"limits"`
	Database DatabaseConfig `json:"database"`
}

// AgentConfig is the fallback agent used when no agent definition file is
// found.
type AgentConfig struct {
	ID         string `json:"id" env:"LTM_AGENT_ID"`
	Name       string `json:"name" env:"LTM_AGENT_NAME"`
	SigningKey string `json:"signing_key,omitempty" env:"LTM_SIGNING_KEY"`
}

type BudgetConfig struct {
	ContextPercent float64 `json:"context_percent" env:"LTM_CONTEXT_PERCENT"`
	ContextSize    int     `json:"context_size" env:"LTM_CONTEXT_SIZE"` // tokens
}

// DecayConfig holds days without access before each impact decays.
// CRITICAL never decays and is not configurable.
type DecayConfig struct {
	LowDays    int `json:"low_days" env:"LTM_DECAY_LOW_DAYS"`
	MediumDays int `json:"medium_days" env:"LTM_DECAY_MEDIUM_DAYS"`
	HighDays   int `json:"high_days" env:"LTM_DECAY_HIGH_DAYS"`
}

type LimitsConfig struct {
	PerAgent   int `json:"max_memories_per_agent"`
	PerProject int `json:"max_memories_per_project"`
	PerKind    int `json:"max_memories_per_kind"`
}

type DatabaseConfig struct {
	Path string `json:"path,omitempty" env:"LTM_DB"` // empty: ~/.ltm/memories.db
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			ID:   "anima",
			Name: "Anima",
		},
		Budget: BudgetConfig{
			ContextPercent: 0.10,
			ContextSize:    200000,
		},
		Decay: DecayConfig{
			LowDays:    1,
			MediumDays: 7,
			HighDays:   30,
		},
		Limits: LimitsConfig{
			PerAgent:   10000,
			PerProject: 5000,
			PerKind:    2000,
		},
	}
}

// Dir returns ~/.ltm.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".ltm"), nil
}

// DefaultPath returns ~/.ltm/config.json.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error; an unreadable or malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config as indented JSON. The file may hold a signing key,
// so it is only readable by the owner.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects values the engine cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Agent.ID == "":
		return fmt.Errorf("config: agent.id is required")
	case c.Budget.ContextPercent <= 0 || c.Budget.ContextPercent > 1:
		return fmt.Errorf("config: budget.context_percent must be in (0, 1], got %v", c.Budget.ContextPercent)
	case c.Budget.ContextSize <= 0:
		return fmt.Errorf("config: budget.context_size must be positive, got %d", c.Budget.ContextSize)
	case c.Decay.LowDays <= 0 || c.Decay.MediumDays <= 0 || c.Decay.HighDays <= 0:
		return fmt.Errorf("config: decay days must be positive")
	case c.Limits.PerAgent < 0 || c.Limits.PerProject < 0 || c.Limits.PerKind < 0:
		return fmt.Errorf("config: limits must not be negative")
	}
	return nil
}

// BudgetTokens returns floor(context_percent * context_size).
func (c *Config) BudgetTokens() int {
	return int(c.Budget.ContextPercent * float64(c.Budget.ContextSize))
}

// DecayAfter returns the configured decay durations for LOW, MEDIUM and HIGH.
func (c *Config) DecayAfter() (low, medium, high time.Duration) {
	day := 24 * time.Hour
	return time.Duration(c.Decay.LowDays) * day,
		time.Duration(c.Decay.MediumDays) * day,
		time.Duration(c.Decay.HighDays) * day
}
