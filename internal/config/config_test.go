package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}
	if cfg.Listen != "127.0.0.1:8484" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want 4", cfg.MaxConcurrent)
	}
	if cfg.InputDeadline != 5*time.Minute {
		t.Errorf("InputDeadline = %s, want 5m", cfg.InputDeadline)
	}
	if cfg.MaxCodeAttempts != 3 {
		t.Errorf("MaxCodeAttempts = %d, want 3", cfg.MaxCodeAttempts)
	}
	if !cfg.Headless {
		t.Error("Headless should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != DefaultConfig().Listen {
		t.Errorf("Listen = %q, want default", cfg.Listen)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen: ":9000"
sessions_dir: /var/lib/tgwebd/sessions
max_concurrent: 8
input_deadline: 2m
max_code_attempts: 5
headless: false
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.SessionsDir != "/var/lib/tgwebd/sessions" {
		t.Errorf("SessionsDir = %q", cfg.SessionsDir)
	}
	if cfg.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d", cfg.MaxConcurrent)
	}
	if cfg.InputDeadline != 2*time.Minute {
		t.Errorf("InputDeadline = %s", cfg.InputDeadline)
	}
	if cfg.Headless {
		t.Error("Headless should be false")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	// Untouched keys keep defaults.
	if cfg.SweepInterval != DefaultConfig().SweepInterval {
		t.Errorf("SweepInterval = %s, want default", cfg.SweepInterval)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unterminated"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML accepted")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9000\"\nmax_concurrent: 8\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TGWEB_LISTEN", ":7000")
	t.Setenv("TGWEB_MAX_CONCURRENT", "2")
	t.Setenv("TGWEB_INPUT_DEADLINE", "90s")
	t.Setenv("TGWEB_HEADLESS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":7000" {
		t.Errorf("Listen = %q, want env override", cfg.Listen)
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want env override", cfg.MaxConcurrent)
	}
	if cfg.InputDeadline != 90*time.Second {
		t.Errorf("InputDeadline = %s", cfg.InputDeadline)
	}
	if cfg.Headless {
		t.Error("Headless env override ignored")
	}
}

func TestEnvParseErrors(t *testing.T) {
	t.Setenv("TGWEB_MAX_CONCURRENT", "many")
	if _, err := Load(""); err == nil {
		t.Error("bad TGWEB_MAX_CONCURRENT accepted")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"empty sessions dir", func(c *Config) { c.SessionsDir = "" }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrent = 0 }},
		{"zero attempts", func(c *Config) { c.MaxCodeAttempts = 0 }},
		{"negative deadline", func(c *Config) { c.InputDeadline = -time.Second }},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }},
		{"bogus log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}
