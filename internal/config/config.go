package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retention RetentionConfig `yaml:"retention"`
	Alerts    AlertsConfig    `yaml:"alerts"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// IngestConfig holds defaults applied to uploaded files.
type IngestConfig struct {
	// Delimiter forces a separator ("tab" or "comma"); empty means
	// auto-detect per file.
	Delimiter string `yaml:"delimiter"`

	// DefaultCountry fills rows whose country field is blank.
	DefaultCountry string `yaml:"default_country"`
}

// DelimiterRune returns the forced delimiter, 0 for auto-detect.
func (c IngestConfig) DelimiterRune() rune {
	switch c.Delimiter {
	case "tab":
		return '\t'
	case "comma":
		return ','
	default:
		return 0
	}
}

// RetentionConfig configures the periodic observation prune.
type RetentionConfig struct {
	// KeepDays is the observation history window; 0 disables pruning.
	KeepDays int `yaml:"keep_days"`

	// SweepInterval is how often the prune runs (Go duration string).
	SweepInterval string `yaml:"sweep_interval"`
}

// AlertsConfig configures rank-drop notifications.
type AlertsConfig struct {
	// DropThreshold is the minimum rank loss (delta <= -threshold) that
	// triggers a notification; 0 disables drop alerts.
	DropThreshold int `yaml:"drop_threshold"`

	Slack   SlackConfig   `yaml:"slack"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database:  DatabaseConfig{Path: "./rankmatrix.db"},
		Server:    ServerConfig{Port: 8080},
		Ingest:    IngestConfig{DefaultCountry: "US"},
		Retention: RetentionConfig{KeepDays: 0, SweepInterval: "24h"},
		Alerts:    AlertsConfig{DropThreshold: 10},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RANKMATRIX_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RANKMATRIX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RANKMATRIX_DEFAULT_COUNTRY"); v != "" {
		cfg.Ingest.DefaultCountry = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("RANKMATRIX_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
}
