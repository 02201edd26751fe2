// Package config loads the engine and CLI settings from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of the YAML document
type Config struct {
	Context   ContextConfig `yaml:"context"`
	Repo      string        `yaml:"repo"`
	CacheSize int           `yaml:"cache_size"`
	Log       LogConfig     `yaml:"log"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// ContextConfig selects the state backend
type ContextConfig struct {
	Type   string `yaml:"type"`    // memory, db or badger
	DBPath string `yaml:"db_path"` // db backend
	Dir    string `yaml:"dir"`     // badger backend, empty for in-memory
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file"`   // rotate into this file when set
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig toggles prometheus collection
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the settings used when no file is given
func Default() *Config {
	return &Config{
		Context: ContextConfig{
			Type:   "db",
			DBPath: ".hellokv/state.db",
		},
		Repo:      ".hellokv/repo",
		CacheSize: 128,
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path on top of Default. A missing path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would fail later in less obvious ways
func (c *Config) Validate() error {
	switch c.Context.Type {
	case "memory", "db", "badger":
	default:
		return fmt.Errorf("unknown context type %q", c.Context.Type)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("invalid cache size: %d", c.CacheSize)
	}
	if c.Repo == "" {
		return fmt.Errorf("repository directory is empty")
	}
	return nil
}

// ContextParams converts the backend section into registry params
func (c *Config) ContextParams() map[string]any {
	switch c.Context.Type {
	case "db":
		return map[string]any{"db_path": c.Context.DBPath}
	case "badger":
		return map[string]any{"dir": c.Context.Dir}
	default:
		return nil
	}
}
