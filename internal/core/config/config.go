// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration. Values come from defaults,
// optionally overridden by a YAML config file.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	LLM          LLMConfig          `yaml:"llm"`
	Verification VerificationConfig `yaml:"verification"`
	Retry        RetryConfig        `yaml:"retry"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LLMConfig selects the language-model provider used by the planner,
// replanner and verifier.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // openai or ollama
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

// VerificationConfig carries the tunable acceptance policy. The acceptance
// threshold is deliberately permissive (see the step executor); it is a
// policy knob, not a fixed law.
type VerificationConfig struct {
	AcceptThreshold float64 `yaml:"accept_threshold"`
	PassThreshold   float64 `yaml:"pass_threshold"`
	RuleWeight      float64 `yaml:"rule_weight"`
	LLMWeight       float64 `yaml:"llm_weight"`
}

// RetryConfig controls retries of LLM requests.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Verification: VerificationConfig{
			AcceptThreshold: 0.3,
			PassThreshold:   0.7,
			RuleWeight:      0.3,
			LLMWeight:       0.7,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			BackoffBase:       2 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        30 * time.Second,
		},
	}
}

// Load returns the defaults merged with the YAML file at path. An empty
// path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %q: %w", path, err)
	}
	return cfg, nil
}

// APIKey resolves the provider API key from the configured environment
// variable. Empty is allowed; some providers (ollama) need no key.
func (c *Config) APIKey() string {
	return os.Getenv(c.LLM.APIKeyEnv)
}
