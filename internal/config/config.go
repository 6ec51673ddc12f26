// Package config manages tgwebd configuration: a YAML file with environment
// overrides, so containerized deployments can run file-less.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	// Listen is the HTTP bind address, host:port.
	Listen string `yaml:"listen"`

	// SessionsDir is where exported session files are stored.
	SessionsDir string `yaml:"sessions_dir"`

	// DBPath is the run-log sqlite database. Empty disables run logging.
	DBPath string `yaml:"db_path"`

	// MaxConcurrent caps simultaneously open browser handles.
	MaxConcurrent int `yaml:"max_concurrent"`

	// InputDeadline is how long a job may wait for a code or password.
	InputDeadline time.Duration `yaml:"input_deadline"`

	// SweepInterval is how often overdue jobs are expired.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// JobRetention is how long terminal jobs stay queryable.
	JobRetention time.Duration `yaml:"job_retention"`

	// MaxCodeAttempts is how many rejected credentials end a job.
	MaxCodeAttempts int `yaml:"max_code_attempts"`

	// LaunchRetries is how many extra launch attempts follow a driver error.
	LaunchRetries int `yaml:"launch_retries"`

	// LaunchTimeout bounds one browser launch-and-navigate cycle.
	LaunchTimeout time.Duration `yaml:"launch_timeout"`

	// Headless is the default browser mode; requests may override per job.
	Headless bool `yaml:"headless"`

	// LoginURL overrides the login page, mainly for tests.
	LoginURL string `yaml:"login_url,omitempty"`

	// EncryptionKey, when set, encrypts session files at rest. Prefer the
	// TGWEB_ENCRYPTION_KEY environment variable over the file.
	EncryptionKey string `yaml:"encryption_key,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8484",
		SessionsDir:     defaultSessionsDir(),
		DBPath:          filepath.Join(defaultStateDir(), "runs.db"),
		MaxConcurrent:   4,
		InputDeadline:   5 * time.Minute,
		SweepInterval:   15 * time.Second,
		JobRetention:    time.Hour,
		MaxCodeAttempts: 3,
		LaunchRetries:   2,
		LaunchTimeout:   90 * time.Second,
		Headless:        true,
		LogLevel:        "info",
	}
}

func defaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "tgwebd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "tgwebd")
	}
	return filepath.Join(home, ".local", "state", "tgwebd")
}

func defaultSessionsDir() string {
	return filepath.Join(defaultStateDir(), "sessions")
}

// Load reads path, layering defaults, file, then TGWEB_* environment
// overrides. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults only
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TGWEB_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("TGWEB_SESSIONS_DIR"); v != "" {
		c.SessionsDir = v
	}
	if v := os.Getenv("TGWEB_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("TGWEB_LOGIN_URL"); v != "" {
		c.LoginURL = v
	}
	if v := os.Getenv("TGWEB_ENCRYPTION_KEY"); v != "" {
		c.EncryptionKey = v
	}
	if v := os.Getenv("TGWEB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TGWEB_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TGWEB_MAX_CONCURRENT: %w", err)
		}
		c.MaxConcurrent = n
	}
	if v := os.Getenv("TGWEB_MAX_CODE_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TGWEB_MAX_CODE_ATTEMPTS: %w", err)
		}
		c.MaxCodeAttempts = n
	}
	if v := os.Getenv("TGWEB_INPUT_DEADLINE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TGWEB_INPUT_DEADLINE: %w", err)
		}
		c.InputDeadline = d
	}
	if v := os.Getenv("TGWEB_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TGWEB_SWEEP_INTERVAL: %w", err)
		}
		c.SweepInterval = d
	}
	if v := os.Getenv("TGWEB_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TGWEB_HEADLESS: %w", err)
		}
		c.Headless = b
	}
	return nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.SessionsDir == "" {
		return fmt.Errorf("sessions_dir must not be empty")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.MaxCodeAttempts < 1 {
		return fmt.Errorf("max_code_attempts must be at least 1, got %d", c.MaxCodeAttempts)
	}
	if c.InputDeadline <= 0 {
		return fmt.Errorf("input_deadline must be positive, got %s", c.InputDeadline)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	return nil
}
