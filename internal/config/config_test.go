package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Rules.Builtin {
		t.Error("Rules.Builtin = false, want true")
	}

	if cfg.Analysis.MaxFiles != 50 {
		t.Errorf("Analysis.MaxFiles = %v, want 50", cfg.Analysis.MaxFiles)
	}

	if cfg.Analysis.MaxChanges != 2000 {
		t.Errorf("Analysis.MaxChanges = %v, want 2000", cfg.Analysis.MaxChanges)
	}

	if cfg.Report.OutputDir != "reports" {
		t.Errorf("Report.OutputDir = %v, want reports", cfg.Report.OutputDir)
	}

	if cfg.Report.TopIssues != 5 {
		t.Errorf("Report.TopIssues = %v, want 5", cfg.Report.TopIssues)
	}

	// Check cache defaults
	if !cfg.Cache.Enabled || cfg.Cache.Backend != "memory" {
		t.Errorf("Cache = %+v, want enabled memory cache", cfg.Cache)
	}

	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
	}

	if cfg.History.Enabled {
		t.Error("History.Enabled = true, want false")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "negative workers",
			modify: func(c *Config) {
				c.Analysis.Workers = -1
			},
			wantErr: true,
			errMsg:  "analysis.workers",
		},
		{
			name: "zero max files",
			modify: func(c *Config) {
				c.Analysis.MaxFiles = 0
			},
			wantErr: true,
			errMsg:  "analysis.max_files",
		},
		{
			name: "zero max changes",
			modify: func(c *Config) {
				c.Analysis.MaxChanges = 0
			},
			wantErr: true,
			errMsg:  "analysis.max_changes",
		},
		{
			name: "zero loop depth",
			modify: func(c *Config) {
				c.Analysis.MaxLoopDepth = 0
			},
			wantErr: true,
			errMsg:  "analysis.max_loop_depth",
		},
		{
			name: "invalid report format",
			modify: func(c *Config) {
				c.Report.Formats = []string{"json", "pdf"}
			},
			wantErr: true,
			errMsg:  "report.formats",
		},
		{
			name: "all report formats",
			modify: func(c *Config) {
				c.Report.Formats = []string{"json", "md", "markdown", "html", "csv", "sarif"}
			},
			wantErr: false,
		},
		{
			name: "invalid cache backend",
			modify: func(c *Config) {
				c.Cache.Backend = "redis"
			},
			wantErr: true,
			errMsg:  "cache.backend",
		},
		{
			name: "badger without dir",
			modify: func(c *Config) {
				c.Cache.Backend = "badger"
				c.Cache.Dir = ""
			},
			wantErr: true,
			errMsg:  "cache.dir",
		},
		{
			name: "disabled cache skips backend check",
			modify: func(c *Config) {
				c.Cache.Enabled = false
				c.Cache.Backend = "redis"
			},
			wantErr: false,
		},
		{
			name: "history enabled without path",
			modify: func(c *Config) {
				c.History.Enabled = true
				c.History.Path = ""
			},
			wantErr: true,
			errMsg:  "history.path",
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "loud"
			},
			wantErr: true,
			errMsg:  "log.level",
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Log.Format = "xml"
			},
			wantErr: true,
			errMsg:  "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()

			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tt.wantErr && tt.errMsg != "" {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("Validate() error type = %T, want *ValidationError", err)
				}
				if !strings.Contains(verr.Field, tt.errMsg) {
					t.Errorf("Validate() field = %v, want %q", verr.Field, tt.errMsg)
				}
			}
		})
	}
}

func TestLoaderDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	loader := NewLoader()

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Analysis.MaxFiles != 50 {
		t.Errorf("Analysis.MaxFiles = %v, want 50", cfg.Analysis.MaxFiles)
	}
}

func TestLoaderEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	// AutomaticEnv binds KIROLINT_ANALYSIS_WORKERS to analysis.workers
	t.Setenv("KIROLINT_ANALYSIS_WORKERS", "8")
	t.Setenv("KIROLINT_CACHE_BACKEND", "badger")
	t.Setenv("KIROLINT_LOG_LEVEL", "debug")

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Analysis.Workers != 8 {
		t.Errorf("Analysis.Workers = %v, want 8", cfg.Analysis.Workers)
	}

	if cfg.Cache.Backend != "badger" {
		t.Errorf("Cache.Backend = %v, want badger", cfg.Cache.Backend)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %v, want debug", cfg.Log.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kirolint.yaml")
	content := `
rules:
  dir: ./rules
  disable: [console-log]
analysis:
  max_files: 10
report:
  formats: [html, sarif]
  redact_snippets: true
cache:
  ttl: 1h
history:
  enabled: true
  path: /tmp/history.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Rules.Dir != "./rules" {
		t.Errorf("Rules.Dir = %v, want ./rules", cfg.Rules.Dir)
	}
	if len(cfg.Rules.Disable) != 1 || cfg.Rules.Disable[0] != "console-log" {
		t.Errorf("Rules.Disable = %v, want [console-log]", cfg.Rules.Disable)
	}
	if cfg.Analysis.MaxFiles != 10 {
		t.Errorf("Analysis.MaxFiles = %v, want 10", cfg.Analysis.MaxFiles)
	}
	if cfg.Analysis.MaxChanges != 2000 {
		t.Errorf("Analysis.MaxChanges = %v, want default 2000", cfg.Analysis.MaxChanges)
	}
	if len(cfg.Report.Formats) != 2 || !cfg.Report.RedactSnippets {
		t.Errorf("Report = %+v", cfg.Report)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", cfg.Cache.TTL)
	}
	if !cfg.History.Enabled || cfg.History.Path != "/tmp/history.db" {
		t.Errorf("History = %+v", cfg.History)
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("analysis: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("LoadFromFile() with malformed YAML should fail")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("cache:\n  backend: redis\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFromFile(invalid)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "cache.backend" {
		t.Errorf("LoadFromFile() error = %v, want cache.backend validation error", err)
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:   "test.field",
		Message: "test message",
	}

	want := "config validation error: test.field: test message"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestMarshal(t *testing.T) {
	data, err := Marshal(DefaultConfig())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out := string(data)
	for _, want := range []string{"analysis:", "max_files: 50", "backend: memory", "ttl: 24h0m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("Marshal() output missing %q", want)
		}
	}
}

func TestDefaultIgnorePatterns(t *testing.T) {
	patterns := DefaultIgnorePatterns()

	expectedPatterns := []string{"**/go.sum", "**/node_modules/**", "vendor/**"}

	for _, expected := range expectedPatterns {
		found := false
		for _, p := range patterns {
			if p == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("DefaultIgnorePatterns() missing %q", expected)
		}
	}
}
