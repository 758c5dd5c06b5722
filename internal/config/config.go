package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Backend contains the HTTP endpoint and per-call timeouts for the backend.
type Backend struct {
	URL              string `toml:"url"`
	Hostname         string `toml:"hostname"`
	RegisterTimeout  int    `toml:"register_timeout"`
	ConfigTimeout    int    `toml:"config_timeout"`
	HeartbeatTimeout int    `toml:"heartbeat_timeout"`
	IngestTimeout    int    `toml:"ingest_timeout"`
	ErrorTimeout     int    `toml:"error_timeout"`
}

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir       string `toml:"state_dir"`
	LogDir         string `toml:"log_dir"`
	ScreenshotDir  string `toml:"screenshot_dir"`
	Catalog        string `toml:"catalog"`
	LegacyUUIDFile string `toml:"legacy_uuid_file"`
	APIBind        string `toml:"api_bind"`
	APIToken       string `toml:"api_token"`
}

// Screen configures the external screen driver.
type Screen struct {
	DriverBinary   string `toml:"driver_binary"`
	CommandTimeout int    `toml:"command_timeout"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
}

// Watcher configures the background modal watcher.
type Watcher struct {
	Enabled         bool `toml:"enabled"`
	IntervalMS      int  `toml:"interval_ms"`
	CooldownSeconds int  `toml:"cooldown_seconds"`
}

// Rescue holds the default rescue escalation policy. Hospitals may override
// these values in the template catalog.
type Rescue struct {
	Attempts       int      `toml:"attempts"`
	AttemptTimeout int      `toml:"attempt_timeout"`
	Retries        int      `toml:"retries"`
	SettleSeconds  int      `toml:"settle_seconds"`
	WakeSettleMS   int      `toml:"wake_settle_ms"`
	Keys           []string `toml:"keys"`
}

// Workflow contains the orchestrator cycle timing and stage toggles.
type Workflow struct {
	ExtractionInterval int      `toml:"extraction_interval"`
	HospitalPause      int      `toml:"hospital_pause"`
	EmptyConfigRetry   int      `toml:"empty_config_retry"`
	TaskTimeout        int      `toml:"task_timeout"`
	SkipPatientList    bool     `toml:"skip_patient_list"`
	SkipBatchSummaries bool     `toml:"skip_batch_summaries"`
	SkipBatchInsurance bool     `toml:"skip_batch_insurance"`
	DisabledEMRTypes   []string `toml:"disabled_emr_types"`
	KeepAwake          bool     `toml:"keep_awake"`
}

// OCR configures the Google Cloud Vision client.
type OCR struct {
	APIKey         string   `toml:"api_key"`
	Endpoint       string   `toml:"endpoint"`
	LanguageHints  []string `toml:"language_hints"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// LLM contains OpenAI-compatible connection settings used to structure OCR text.
type LLM struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Temperature    float32 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Artifacts configures where error screenshots are uploaded.
type Artifacts struct {
	BucketURL         string `toml:"bucket_url"`
	SignedURLExpiry   int    `toml:"signed_url_expiry"`
	KeepLocalCopy     bool   `toml:"keep_local_copy"`
	UploadTimeoutSecs int    `toml:"upload_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for rpanode.
//
// Configuration sections by subsystem:
//   - Backend: registration, config refresh, ingest, and error endpoints
//   - Paths: state, logs, screenshots, template catalog, API bind address
//   - Screen: external screen driver binary and polling cadence
//   - Watcher: modal watcher cadence and cooldown
//   - Rescue: default rescue escalation policy
//   - Workflow: cycle timing, stage toggles, disabled hospital types
//   - OCR / LLM: extraction collaborators
//   - Artifacts: error screenshot storage
//   - Logging: log format, level, and retention
type Config struct {
	Backend   Backend   `toml:"backend"`
	Paths     Paths     `toml:"paths"`
	Screen    Screen    `toml:"screen"`
	Watcher   Watcher   `toml:"watcher"`
	Rescue    Rescue    `toml:"rescue"`
	Workflow  Workflow  `toml:"workflow"`
	OCR       OCR       `toml:"ocr"`
	LLM       LLM       `toml:"llm"`
	Artifacts Artifacts `toml:"artifacts"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/rpanode/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("rpanode.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.ScreenshotDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite file holding node identity and the run journal.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "rpanode.db")
}

// LockPath returns the single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "rpanode.lock")
}

// APIBaseURL returns the local status API URL used by CLI commands.
func (c *Config) APIBaseURL() string {
	return "http://" + c.Paths.APIBind
}

// Seconds converts an integer seconds setting into a duration.
func Seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

// Millis converts an integer milliseconds setting into a duration.
func Millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
