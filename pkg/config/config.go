// Package config loads the outreach configuration from a JSON file plus
// environment overrides for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Model identifiers used when the config file does not override them.
const (
	DefaultModel      = "claude-sonnet-4-5"
	DefaultLightModel = "claude-haiku-4-5"
)

// Models selects the model per agent role. The finder defaults to the light
// model: its work is tool routing, not prose.
type Models struct {
	Prospector string `json:"prospector"`
	Finder     string `json:"finder"`
	Mailer     string `json:"mailer"`
}

// Keys holds vendor API keys. Env vars override file values so keys can stay
// out of the config file entirely.
type Keys struct {
	Anthropic string `json:"anthropic,omitempty"`
	OpenAI    string `json:"openai,omitempty"`
	Hunter    string `json:"hunter,omitempty"`
	Findymail string `json:"findymail,omitempty"`
	GMass     string `json:"gmass,omitempty"`
}

// Policy holds the loop and completion-policy thresholds.
type Policy struct {
	MaxForcedContinuations int `json:"max_forced_continuations"`
	MaxResets              int `json:"max_resets"`
	ResetAfterMessages     int `json:"reset_after_messages"`
	VerifyWorkers          int `json:"verify_workers"`
	ToolWorkers            int `json:"tool_workers"`
}

// Config is the full application configuration.
type Config struct {
	Models      Models `json:"models"`
	Keys        Keys   `json:"keys"`
	Policy      Policy `json:"policy"`
	DBPath      string `json:"db_path"`
	DataDir     string `json:"data_dir"`
	OutputDir   string `json:"output_dir"`
	MetricsAddr string `json:"metrics_addr,omitempty"`
	SheetsURL   string `json:"sheets_webhook_url,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Models: Models{
			Prospector: DefaultModel,
			Finder:     DefaultLightModel,
			Mailer:     DefaultModel,
		},
		Policy: Policy{
			MaxForcedContinuations: 3,
			MaxResets:              3,
			ResetAfterMessages:     60,
			VerifyWorkers:          5,
			ToolWorkers:            8,
		},
		DBPath:    "outreach.db",
		DataDir:   "data",
		OutputDir: "output",
	}
}

// Load reads path (optional), applies env overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrideEnv(&c.Keys.Anthropic, "ANTHROPIC_API_KEY")
	overrideEnv(&c.Keys.OpenAI, "OPENAI_API_KEY")
	overrideEnv(&c.Keys.Hunter, "HUNTER_API_KEY")
	overrideEnv(&c.Keys.Findymail, "FINDYMAIL_API_KEY")
	overrideEnv(&c.Keys.GMass, "GMASS_API_KEY")
}

func overrideEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks invariants that would otherwise surface mid-run.
func (c *Config) Validate() error {
	if c.Keys.Anthropic == "" && c.Keys.OpenAI == "" {
		return fmt.Errorf("config: no model API key set (ANTHROPIC_API_KEY or OPENAI_API_KEY)")
	}
	if c.Policy.MaxForcedContinuations < 0 || c.Policy.MaxResets < 0 {
		return fmt.Errorf("config: policy caps must be non-negative")
	}
	if c.Policy.ResetAfterMessages < 4 {
		return fmt.Errorf("config: reset_after_messages %d is too small to hold a single exchange", c.Policy.ResetAfterMessages)
	}
	if c.Policy.VerifyWorkers < 1 {
		return fmt.Errorf("config: verify_workers must be at least 1")
	}
	if c.Policy.ToolWorkers < 1 {
		return fmt.Errorf("config: tool_workers must be at least 1")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	return nil
}
