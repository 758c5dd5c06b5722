package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeBackend()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScreen()
	c.normalizeRescue()
	c.normalizeWorkflow()
	c.normalizeOCR()
	c.normalizeLLM()
	c.normalizeArtifacts()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeBackend() {
	c.Backend.URL = strings.TrimSpace(c.Backend.URL)
	if c.Backend.URL == "" {
		if value, ok := os.LookupEnv("RPANODE_BACKEND_URL"); ok {
			c.Backend.URL = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("BACKEND_URL"); ok {
			c.Backend.URL = strings.TrimSpace(value)
		}
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	c.Backend.Hostname = strings.TrimSpace(c.Backend.Hostname)
	if c.Backend.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			c.Backend.Hostname = host
		}
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ScreenshotDir, err = expandPath(c.Paths.ScreenshotDir); err != nil {
		return fmt.Errorf("paths.screenshot_dir: %w", err)
	}
	if c.Paths.Catalog, err = expandPath(c.Paths.Catalog); err != nil {
		return fmt.Errorf("paths.catalog: %w", err)
	}
	if c.Paths.LegacyUUIDFile, err = expandPath(strings.TrimSpace(c.Paths.LegacyUUIDFile)); err != nil {
		return fmt.Errorf("paths.legacy_uuid_file: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("RPANODE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeScreen() {
	c.Screen.DriverBinary = strings.TrimSpace(c.Screen.DriverBinary)
	if c.Screen.DriverBinary == "" {
		c.Screen.DriverBinary = defaultDriverBinary
	}
	if c.Screen.CommandTimeout <= 0 {
		c.Screen.CommandTimeout = defaultDriverTimeout
	}
	if c.Screen.PollIntervalMS <= 0 {
		c.Screen.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Watcher.IntervalMS <= 0 {
		c.Watcher.IntervalMS = defaultWatcherIntervalMS
	}
	if c.Watcher.CooldownSeconds < 0 {
		c.Watcher.CooldownSeconds = 0
	}
}

func (c *Config) normalizeRescue() {
	keys := make([]string, 0, len(c.Rescue.Keys))
	for _, key := range c.Rescue.Keys {
		if key = strings.ToLower(strings.TrimSpace(key)); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		keys = append(keys, defaultRescueKeys...)
	}
	c.Rescue.Keys = keys
	if c.Rescue.WakeSettleMS < 0 {
		c.Rescue.WakeSettleMS = 0
	}
}

func (c *Config) normalizeWorkflow() {
	seen := make(map[string]struct{}, len(c.Workflow.DisabledEMRTypes))
	disabled := make([]string, 0, len(c.Workflow.DisabledEMRTypes))
	for _, value := range c.Workflow.DisabledEMRTypes {
		value = strings.ToUpper(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		disabled = append(disabled, value)
	}
	c.Workflow.DisabledEMRTypes = disabled
}

func (c *Config) normalizeOCR() {
	c.OCR.APIKey = strings.TrimSpace(c.OCR.APIKey)
	if c.OCR.APIKey == "" {
		if value, ok := os.LookupEnv("GOOGLE_VISION_API_KEY"); ok && strings.TrimSpace(value) != "" {
			c.OCR.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("GOOGLE_API_KEY"); ok {
			c.OCR.APIKey = strings.TrimSpace(value)
		}
	}
	c.OCR.Endpoint = strings.TrimSpace(c.OCR.Endpoint)
	if c.OCR.Endpoint == "" {
		c.OCR.Endpoint = defaultVisionEndpoint
	}
	if len(c.OCR.LanguageHints) == 0 {
		c.OCR.LanguageHints = []string{"en", "es"}
	}
	if c.OCR.TimeoutSeconds <= 0 {
		c.OCR.TimeoutSeconds = defaultOCRTimeout
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		for _, env := range []string{"LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY"} {
			if value, ok := os.LookupEnv(env); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
}

func (c *Config) normalizeArtifacts() {
	c.Artifacts.BucketURL = strings.TrimSpace(c.Artifacts.BucketURL)
	if c.Artifacts.BucketURL == "" && c.Paths.ScreenshotDir != "" {
		c.Artifacts.BucketURL = fileBucketURL(c.Paths.ScreenshotDir)
	}
	if c.Artifacts.SignedURLExpiry <= 0 {
		c.Artifacts.SignedURLExpiry = defaultSignedURLExpiry
	}
	if c.Artifacts.UploadTimeoutSecs <= 0 {
		c.Artifacts.UploadTimeoutSecs = defaultUploadTimeout
	}
}

func fileBucketURL(dir string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(dir)}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u.String()
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
