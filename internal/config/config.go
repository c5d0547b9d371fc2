package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models ferry.yml. Engine tunables that are part of the copy
// pipeline contract (concurrency, chunk size, progress interval) are
// constants in the engine package, not configuration.
type Config struct {
	Server struct {
		Listen   string `yaml:"listen"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		APIKeys   bool   `yaml:"api_keys"`
	} `yaml:"auth"`
	Transfer struct {
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"transfer"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one outbound event subscription.
type WebhookConfig struct {
	URL     string   `yaml:"url"`
	Events  []string `yaml:"events"`
	Enabled *bool    `yaml:"enabled"`
}

// Default returns the config used when no ferry.yml exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Listen = "127.0.0.1:4070"
	cfg.Server.BasePath = "/v0"
	cfg.Transfer.MaxAttempts = 3
	return cfg
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".ferry", "ferry.yml")
}

// Load reads config from the workspace, falling back to defaults when
// the file is absent.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return fmt.Errorf("config.server.listen is required")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Transfer.MaxAttempts < 1 || c.Transfer.MaxAttempts > 10 {
		return fmt.Errorf("config.transfer.max_attempts must be between 1 and 10")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}
