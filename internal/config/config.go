// Package config loads blinky's YAML configuration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds blinky configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Chat       ChatConfig       `yaml:"chat"`
	Moderation ModerationConfig `yaml:"moderation"`
	Relay      RelayConfig      `yaml:"relay"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServiceConfig struct {
	Addr    string        `yaml:"addr"`     // listen address of `blinky serve`, e.g. "127.0.0.1:5000"
	BaseURL string        `yaml:"base_url"` // where the monitor reaches the service
	Timeout time.Duration `yaml:"timeout"`  // per-request timeout, e.g. "10s"
}

type MonitorConfig struct {
	DispatchThreshold int           `yaml:"dispatch_threshold"`
	Debounce          time.Duration `yaml:"debounce"`
	MinLength         int           `yaml:"min_length"`
	MaxLength         int           `yaml:"max_length"`
	SweepMinLength    int           `yaml:"sweep_min_length"`
	SweepMaxLength    int           `yaml:"sweep_max_length"`
	MaxFindings       int           `yaml:"max_findings"`
	MaxSuggestions    int           `yaml:"max_suggestions"`
	MarkerIDs         []string      `yaml:"marker_ids"`    // ids of the monitor's own UI; empty keeps the built-in list
	MarkerClass       string        `yaml:"marker_class"`  // class substring of the monitor's own UI
	InitialSweep      *bool         `yaml:"initial_sweep"` // nil means true
}

type AlertsConfig struct {
	DismissAfter time.Duration `yaml:"dismiss_after"`
	Sinks        []SinkConfig  `yaml:"sinks"`
}

type SinkConfig struct {
	Type    string            `yaml:"type"` // file_jsonl | sqlite | webhook | log
	Path    string            `yaml:"path"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

type ChatConfig struct {
	Provider  string `yaml:"provider"` // openai | canned
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

type ModerationConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

type RelayConfig struct {
	Addr string `yaml:"addr"` // listen address of `blinky watch`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// InitialSweepEnabled reports whether the monitor sweeps the page on start.
func (m MonitorConfig) InitialSweepEnabled() bool {
	return m.InitialSweep == nil || *m.InitialSweep
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Addr == "" {
		cfg.Service.Addr = "127.0.0.1:5000"
	}
	if cfg.Service.BaseURL == "" {
		cfg.Service.BaseURL = "http://localhost:5000"
	}
	if cfg.Service.Timeout == 0 {
		cfg.Service.Timeout = 10 * time.Second
	}

	m := &cfg.Monitor
	if m.DispatchThreshold == 0 {
		m.DispatchThreshold = 20
	}
	if m.Debounce == 0 {
		m.Debounce = 2 * time.Second
	}
	if m.MinLength == 0 {
		m.MinLength = 3
	}
	if m.MaxLength == 0 {
		m.MaxLength = 500
	}
	if m.SweepMinLength == 0 {
		m.SweepMinLength = 5
	}
	if m.SweepMaxLength == 0 {
		m.SweepMaxLength = 1000
	}
	if m.MaxFindings == 0 {
		m.MaxFindings = 5
	}
	if m.MaxSuggestions == 0 {
		m.MaxSuggestions = 3
	}

	if cfg.Alerts.DismissAfter == 0 {
		cfg.Alerts.DismissAfter = 15 * time.Second
	}
	for i := range cfg.Alerts.Sinks {
		s := &cfg.Alerts.Sinks[i]
		if s.Type == "webhook" && s.Timeout == 0 {
			s.Timeout = 5 * time.Second
		}
	}

	if cfg.Chat.Provider == "" {
		cfg.Chat.Provider = "canned"
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = "gpt-4o-mini"
	}
	if cfg.Chat.APIKeyEnv == "" {
		cfg.Chat.APIKeyEnv = "OPENAI_API_KEY"
	}

	if cfg.Moderation.Model == "" {
		cfg.Moderation.Model = "omni-moderation-latest"
	}
	if cfg.Moderation.APIKeyEnv == "" {
		cfg.Moderation.APIKeyEnv = "OPENAI_API_KEY"
	}

	if cfg.Relay.Addr == "" {
		cfg.Relay.Addr = "127.0.0.1:6143"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}
