package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything a run needs. It is built once at startup and
// passed to the supervisor; nothing reads process-wide settings.
type Config struct {
	// Worklist source
	Worklist WorklistConfig `yaml:"worklist" json:"worklist"`

	// Browser control channel
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Per-step timeouts of one interaction
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Item and whole-run retry policy
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// UI selectors, ordered by priority
	Selectors SelectorConfig `yaml:"selectors" json:"selectors"`

	// Output layout and packaging
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// WorklistConfig locates the spreadsheet holding the conversation URLs.
type WorklistConfig struct {
	Path   string `yaml:"path" json:"path" env:"CONVOEXPORT_WORKLIST"`
	Sheet  string `yaml:"sheet" json:"sheet" env:"CONVOEXPORT_SHEET"`
	Column string `yaml:"column" json:"column" env:"CONVOEXPORT_COLUMN"`
}

// BrowserConfig defines how the remote browser is reached.
type BrowserConfig struct {
	// CDPEndpoint is the remote-debugging endpoint of an already running Chrome
	CDPEndpoint string `yaml:"cdp_endpoint" json:"cdp_endpoint" env:"CONVOEXPORT_CDP_ENDPOINT"`

	// InstallDriver downloads the Playwright driver before connecting
	InstallDriver bool `yaml:"install_driver" json:"install_driver" env:"CONVOEXPORT_INSTALL_DRIVER"`
}

// TimeoutConfig bounds every suspension point of an interaction.
type TimeoutConfig struct {
	Navigation  time.Duration `yaml:"navigation" json:"navigation" env:"CONVOEXPORT_TIMEOUT_NAVIGATION"`
	MenuClick   time.Duration `yaml:"menu_click" json:"menu_click" env:"CONVOEXPORT_TIMEOUT_MENU_CLICK"`
	Popover     time.Duration `yaml:"popover" json:"popover" env:"CONVOEXPORT_TIMEOUT_POPOVER"`
	ExportClick time.Duration `yaml:"export_click" json:"export_click" env:"CONVOEXPORT_TIMEOUT_EXPORT_CLICK"`
	Download    time.Duration `yaml:"download" json:"download" env:"CONVOEXPORT_TIMEOUT_DOWNLOAD"`
}

// RetryConfig holds the per-item attempt loop and the whole-run crash policy.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts" env:"CONVOEXPORT_MAX_ATTEMPTS"`
	Backoff       time.Duration `yaml:"backoff" json:"backoff" env:"CONVOEXPORT_BACKOFF"`
	RunRetries    int           `yaml:"run_retries" json:"run_retries" env:"CONVOEXPORT_RUN_RETRIES"`
	RunRetryDelay time.Duration `yaml:"run_retry_delay" json:"run_retry_delay" env:"CONVOEXPORT_RUN_RETRY_DELAY"`
}

// SelectorConfig lists the alternative selectors tried, first match wins.
type SelectorConfig struct {
	Menu    []string `yaml:"menu" json:"menu" env:"CONVOEXPORT_MENU_SELECTORS" env-separator:"|"`
	Popover string   `yaml:"popover" json:"popover" env:"CONVOEXPORT_POPOVER_SELECTOR"`
	Export  []string `yaml:"export" json:"export" env:"CONVOEXPORT_EXPORT_SELECTORS" env-separator:"|"`
}

// DiagnosticsPolicy decides on which failed attempt a snapshot is captured.
type DiagnosticsPolicy string

const (
	// DiagnosticsFirstFailure captures on the first failed attempt only
	DiagnosticsFirstFailure DiagnosticsPolicy = "first_failure"
	// DiagnosticsFinalFailure captures once all attempts are exhausted
	DiagnosticsFinalFailure DiagnosticsPolicy = "final_failure"
	// DiagnosticsNever disables capture
	DiagnosticsNever DiagnosticsPolicy = "never"
)

// OutputConfig defines where artifacts go and how they are packed.
type OutputConfig struct {
	DownloadDir    string            `yaml:"download_dir" json:"download_dir" env:"CONVOEXPORT_DOWNLOAD_DIR"`
	DiagnosticsDir string            `yaml:"diagnostics_dir" json:"diagnostics_dir" env:"CONVOEXPORT_DIAGNOSTICS_DIR"`
	Diagnostics    DiagnosticsPolicy `yaml:"diagnostics" json:"diagnostics" env:"CONVOEXPORT_DIAGNOSTICS"`
	Pattern        string            `yaml:"pattern" json:"pattern" env:"CONVOEXPORT_PATTERN"`
	BatchSize      int               `yaml:"batch_size" json:"batch_size" env:"CONVOEXPORT_BATCH_SIZE"`
	ReportFile     string            `yaml:"report_file" json:"report_file" env:"CONVOEXPORT_REPORT_FILE"`
}

// LoggingConfig defines the error log.
type LoggingConfig struct {
	File  string `yaml:"file" json:"file" env:"CONVOEXPORT_LOG_FILE"`
	Level string `yaml:"level" json:"level" env:"CONVOEXPORT_LOG_LEVEL"`
}

// DefaultConfig returns the settings the exporter was tuned with against
// the live UI.
func DefaultConfig() *Config {
	return &Config{
		Worklist: WorklistConfig{
			Path:   "links.xlsx",
			Sheet:  "convos",
			Column: "url",
		},
		Browser: BrowserConfig{
			CDPEndpoint: "http://localhost:9222",
		},
		Timeouts: TimeoutConfig{
			Navigation:  30 * time.Second,
			MenuClick:   4 * time.Second,
			Popover:     6 * time.Second,
			ExportClick: 4 * time.Second,
			Download:    10 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			Backoff:       time.Second,
			RunRetries:    1,
			RunRetryDelay: 2 * time.Second,
		},
		Selectors: SelectorConfig{
			Menu: []string{
				`div[data-popover-opener] > button`,
				`button:has(svg.o__standard__small-ellipsis):visible`,
				`button[aria-label="More"]`,
			},
			Popover: `div[data-popover-content]`,
			Export: []string{
				`div[data-popover-content] div[role="button"]:has-text("Export conversation")`,
			},
		},
		Output: OutputConfig{
			DownloadDir:    "downloads",
			DiagnosticsDir: ".",
			Diagnostics:    DiagnosticsFirstFailure,
			Pattern:        "*.txt",
			BatchSize:      100,
		},
		Logging: LoggingConfig{
			File:  "errors.log",
			Level: "error",
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file, an
// optional dotenv file and finally CONVOEXPORT_* environment variables.
// Empty paths are skipped; a dotenv file that does not exist is ignored.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	// Variables that are unset leave the loaded value alone
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Worklist.Path == "" {
		return fmt.Errorf("worklist path is required")
	}

	if c.Worklist.Column == "" {
		return fmt.Errorf("worklist column is required")
	}

	if c.Browser.CDPEndpoint == "" {
		return fmt.Errorf("cdp_endpoint is required")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}

	if c.Retry.RunRetries < 0 {
		return fmt.Errorf("run_retries cannot be negative")
	}

	if c.Retry.Backoff < 0 || c.Retry.RunRetryDelay < 0 {
		return fmt.Errorf("retry delays cannot be negative")
	}

	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"navigation", c.Timeouts.Navigation},
		{"menu_click", c.Timeouts.MenuClick},
		{"popover", c.Timeouts.Popover},
		{"export_click", c.Timeouts.ExportClick},
		{"download", c.Timeouts.Download},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return fmt.Errorf("timeout %s must be positive", t.name)
		}
	}

	if len(c.Selectors.Menu) == 0 || len(c.Selectors.Export) == 0 {
		return fmt.Errorf("menu and export selectors are required")
	}

	if c.Selectors.Popover == "" {
		return fmt.Errorf("popover selector is required")
	}

	if c.Output.DownloadDir == "" {
		return fmt.Errorf("download directory is required")
	}

	if c.Output.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}

	if c.Output.Pattern == "" {
		c.Output.Pattern = "*.txt"
	}

	switch c.Output.Diagnostics {
	case DiagnosticsFirstFailure, DiagnosticsFinalFailure, DiagnosticsNever:
	case "":
		c.Output.Diagnostics = DiagnosticsFirstFailure
	default:
		return fmt.Errorf("invalid diagnostics policy: %s (must be 'first_failure', 'final_failure' or 'never')", c.Output.Diagnostics)
	}

	if c.Logging.File == "" {
		c.Logging.File = "errors.log"
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "error"
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}

	return nil
}
