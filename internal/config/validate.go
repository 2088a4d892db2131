package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and sane values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Service.Addr) == "" {
		return errors.New("service.addr must be set")
	}
	if err := validateHTTPURL("service.base_url", cfg.Service.BaseURL); err != nil {
		return err
	}
	if cfg.Service.Timeout < 0 {
		return errors.New("service.timeout must not be negative")
	}

	if err := validateMonitorConfig(cfg.Monitor); err != nil {
		return err
	}

	if cfg.Alerts.DismissAfter < 0 {
		return errors.New("alerts.dismiss_after must not be negative")
	}
	for i, s := range cfg.Alerts.Sinks {
		if err := validateSinkConfig(i, s); err != nil {
			return err
		}
	}

	switch cfg.Chat.Provider {
	case "canned":
	case "openai":
		if strings.TrimSpace(cfg.Chat.Model) == "" {
			return errors.New("chat.model must be set for the openai provider")
		}
		if strings.TrimSpace(cfg.Chat.APIKeyEnv) == "" {
			return errors.New("chat.api_key_env must be set for the openai provider")
		}
		if cfg.Chat.BaseURL != "" {
			if err := validateHTTPURL("chat.base_url", cfg.Chat.BaseURL); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("chat.provider %q must be one of: openai, canned", cfg.Chat.Provider)
	}

	if cfg.Moderation.Enabled {
		if strings.TrimSpace(cfg.Moderation.APIKeyEnv) == "" {
			return errors.New("moderation.api_key_env must be set when moderation is enabled")
		}
		if cfg.Moderation.BaseURL != "" {
			if err := validateHTTPURL("moderation.base_url", cfg.Moderation.BaseURL); err != nil {
				return err
			}
		}
	}

	if strings.TrimSpace(cfg.Relay.Addr) == "" {
		return errors.New("relay.addr must be set")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of: debug, info, warn, error", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be one of: console, json", cfg.Logging.Format)
	}

	return nil
}

func validateMonitorConfig(m MonitorConfig) error {
	if m.DispatchThreshold < 0 || m.DispatchThreshold > 100 {
		return fmt.Errorf("monitor.dispatch_threshold %d must be within 0..100", m.DispatchThreshold)
	}
	if m.Debounce < 0 {
		return errors.New("monitor.debounce must not be negative")
	}
	if m.MinLength < 1 {
		return errors.New("monitor.min_length must be at least 1")
	}
	if m.MaxLength < m.MinLength {
		return fmt.Errorf("monitor.max_length %d is below min_length %d", m.MaxLength, m.MinLength)
	}
	if m.SweepMinLength < 1 {
		return errors.New("monitor.sweep_min_length must be at least 1")
	}
	if m.SweepMaxLength < m.SweepMinLength {
		return fmt.Errorf("monitor.sweep_max_length %d is below sweep_min_length %d", m.SweepMaxLength, m.SweepMinLength)
	}
	if m.MaxFindings < 1 || m.MaxSuggestions < 1 {
		return errors.New("monitor.max_findings and monitor.max_suggestions must be positive")
	}
	return nil
}

func validateSinkConfig(i int, s SinkConfig) error {
	switch s.Type {
	case "file_jsonl", "sqlite":
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("alerts.sinks[%d]: %s requires path", i, s.Type)
		}
	case "webhook":
		if err := validateHTTPURL(fmt.Sprintf("alerts.sinks[%d].url", i), s.URL); err != nil {
			return err
		}
		if s.Timeout < 0 {
			return fmt.Errorf("alerts.sinks[%d].timeout must not be negative", i)
		}
	case "log":
	default:
		return fmt.Errorf("alerts.sinks[%d]: unknown type %q (want file_jsonl, sqlite, webhook or log)", i, s.Type)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must be set", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}
