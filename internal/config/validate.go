package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateRescue(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/rpanode/config.toml"
		}
		return fmt.Errorf("backend.url is required. Set RPANODE_BACKEND_URL env var or edit %s (create with 'rpanode config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Backend.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend.url %q must be an absolute http(s) URL", c.Backend.URL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend.url scheme %q is not supported", parsed.Scheme)
	}
	for name, value := range map[string]int{
		"backend.register_timeout":  c.Backend.RegisterTimeout,
		"backend.config_timeout":    c.Backend.ConfigTimeout,
		"backend.heartbeat_timeout": c.Backend.HeartbeatTimeout,
		"backend.ingest_timeout":    c.Backend.IngestTimeout,
		"backend.error_timeout":     c.Backend.ErrorTimeout,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateRescue() error {
	if c.Rescue.Attempts <= 0 {
		return errors.New("rescue.attempts must be at least 1")
	}
	if c.Rescue.AttemptTimeout <= 0 {
		return errors.New("rescue.attempt_timeout must be positive")
	}
	if c.Rescue.Retries < 0 {
		return errors.New("rescue.retries must be zero or positive")
	}
	if c.Rescue.SettleSeconds < 0 {
		return errors.New("rescue.settle_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ExtractionInterval <= 0 {
		return errors.New("workflow.extraction_interval must be positive")
	}
	if c.Workflow.HospitalPause < 0 {
		return errors.New("workflow.hospital_pause must be zero or positive")
	}
	if c.Workflow.EmptyConfigRetry <= 0 {
		return errors.New("workflow.empty_config_retry must be positive")
	}
	if c.Workflow.TaskTimeout <= 0 {
		return errors.New("workflow.task_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("llm.base_url: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console or json)", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}
