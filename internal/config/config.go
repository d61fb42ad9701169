// Package config holds the study run configuration. A Config is loaded once
// at startup and threaded through the pipeline stages as an immutable value;
// nothing reads ambient process state after Load returns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pemstudy configuration.
type Config struct {
	// Seed drives every pseudo-random decision (sampling, per-rater
	// presentation order). Fixing it makes the whole study reproducible.
	Seed int64 `yaml:"seed"`

	// Sample configures the stratified draw.
	Sample SampleConfig `yaml:"sample"`

	// LLM configures the Gemini-backed variants.
	LLM LLMConfig `yaml:"llm"`

	// Tool configures the secondary-toolchain variant.
	Tool ToolConfig `yaml:"tool"`

	// Enhance configures coordinator retry and parallelism behavior.
	Enhance EnhanceConfig `yaml:"enhance"`

	// Assign configures rater work-list construction.
	Assign AssignConfig `yaml:"assign"`
}

// SampleConfig configures the stratified sampler.
type SampleConfig struct {
	PerCategory int `yaml:"per_category"`
}

// LLMConfig configures the remote LLM generator.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`

	// MaxSourceLen caps the source body sent with with-context prompts.
	// Larger units are skipped rather than truncated, so a rater never
	// judges an explanation of code the model did not fully see.
	MaxSourceLen int `yaml:"max_source_len"`
}

// ToolConfig configures the external enhancement CLI.
type ToolConfig struct {
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	Timeout string   `yaml:"timeout"`
}

// EnhanceConfig configures coordinator behavior shared by all generators.
type EnhanceConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BackoffBase string `yaml:"backoff_base"`
	Workers     int    `yaml:"workers"`
}

// AssignConfig configures the assignment scheduler.
type AssignConfig struct {
	PilotSize int `yaml:"pilot_size"`
	// Overlap is how many raters see each full-batch scenario. 1 means
	// disjoint assignments; higher values are only for inter-rater
	// reliability checks and are recorded in the assignment files.
	Overlap int `yaml:"overlap"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Seed:   42,
		Sample: SampleConfig{PerCategory: 20},
		LLM: LLMConfig{
			Model:        "gemini-2.0-flash",
			Timeout:      "120s",
			MaxSourceLen: 13919,
		},
		Tool: ToolConfig{
			Binary:  "decaf",
			Timeout: "30s",
		},
		Enhance: EnhanceConfig{
			MaxAttempts: 4,
			BackoffBase: "1s",
			Workers:     1,
		},
		Assign: AssignConfig{
			PilotSize: 5,
			Overlap:   1,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; an unreadable or malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides. API keys live in
// the environment, never in the checked-in config file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if bin := os.Getenv("PEMSTUDY_TOOL"); bin != "" {
		c.Tool.Binary = bin
	}
}

// LLMTimeout parses the LLM call timeout, falling back to the default when
// the config value is unset or unparseable.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// ToolTimeout parses the tool invocation timeout.
func (c *Config) ToolTimeout() time.Duration {
	return parseDuration(c.Tool.Timeout, 30*time.Second)
}

// BackoffBase parses the initial retry delay.
func (c *Config) BackoffBase() time.Duration {
	return parseDuration(c.Enhance.BackoffBase, time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
