// Package config handles all configuration management for kirolint.
//
// Configuration is loaded from multiple sources in order of precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables (KIROLINT_*)
// 3. Configuration file (.kirolint.yaml)
// 4. Default values (lowest priority)
package config

import (
	"time"

	"github.com/JNZader/kirolint/internal/logger"
)

// Config is the main configuration structure for kirolint.
type Config struct {
	// Rules configures where rule sets come from
	Rules RulesConfig `mapstructure:"rules" yaml:"rules"`

	// Analysis configures the analysis engine
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`

	// Report configures report output
	Report ReportConfig `mapstructure:"report" yaml:"report"`

	// Cache configures the findings cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// History configures the run history database
	History HistoryConfig `mapstructure:"history" yaml:"history"`

	// Metrics configures metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// RulesConfig configures the rule repository.
type RulesConfig struct {
	// Dir is a directory of rule set files (.yaml, .yml, .json)
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Sources are extra rule set files or https URLs, loaded after Dir
	Sources []string `mapstructure:"sources" yaml:"sources"`

	// Builtin loads the built-in rule set before any other source
	Builtin bool `mapstructure:"builtin" yaml:"builtin"`

	// Enable lists rules to force on
	Enable []string `mapstructure:"enable" yaml:"enable"`

	// Disable lists rules to force off
	Disable []string `mapstructure:"disable" yaml:"disable"`

	// Debounce delays a reload after the last change under "rules watch"
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// AnalysisConfig configures the analysis engine.
type AnalysisConfig struct {
	// Workers is the number of files analyzed in parallel (0 = default)
	Workers int `mapstructure:"workers" yaml:"workers"`

	// MaxFiles rejects batches with more files
	MaxFiles int `mapstructure:"max_files" yaml:"max_files"`

	// MaxChanges rejects batches with more changed lines
	MaxChanges int `mapstructure:"max_changes" yaml:"max_changes"`

	// IgnorePatterns are glob patterns of files never analyzed
	IgnorePatterns []string `mapstructure:"ignore_patterns" yaml:"ignore_patterns"`

	// MaxLoopDepth is the limit of the nested-loops check
	MaxLoopDepth int `mapstructure:"max_loop_depth" yaml:"max_loop_depth"`

	// MaxFileLines is the limit of the long-file check
	MaxFileLines int `mapstructure:"max_file_lines" yaml:"max_file_lines"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	// Formats are written on every analyze run
	Formats []string `mapstructure:"formats" yaml:"formats"`

	// OutputDir receives report files
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`

	// TopIssues is the length of the top-issues list
	TopIssues int `mapstructure:"top_issues" yaml:"top_issues"`

	// RedactSnippets masks matched text of security findings
	RedactSnippets bool `mapstructure:"redact_snippets" yaml:"redact_snippets"`
}

// CacheConfig configures caching behavior.
type CacheConfig struct {
	// Enabled enables caching
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Backend is "memory" or "badger"
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Dir is the cache directory (badger only)
	Dir string `mapstructure:"dir" yaml:"dir"`

	// TTL is the cache entry time-to-live
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// MaxEntries is the maximum number of cache entries (for LRU)
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the SQLite database file
	Path string `mapstructure:"path" yaml:"path"`

	// TrendWindow is the number of runs considered for trends
	TrendWindow int `mapstructure:"trend_window" yaml:"trend_window"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// File receives Prometheus text output after each run (empty = none)
	File string `mapstructure:"file" yaml:"file"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`

	// Format is text or json
	Format string `mapstructure:"format" yaml:"format"`
}

var validFormats = map[string]bool{
	"json": true, "markdown": true, "md": true, "html": true, "csv": true, "sarif": true,
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	// Analysis validation
	if c.Analysis.Workers < 0 {
		return &ValidationError{Field: "analysis.workers", Message: "must not be negative"}
	}
	if c.Analysis.MaxFiles <= 0 {
		return &ValidationError{Field: "analysis.max_files", Message: "must be positive"}
	}
	if c.Analysis.MaxChanges <= 0 {
		return &ValidationError{Field: "analysis.max_changes", Message: "must be positive"}
	}
	if c.Analysis.MaxLoopDepth <= 0 {
		return &ValidationError{Field: "analysis.max_loop_depth", Message: "must be positive"}
	}
	if c.Analysis.MaxFileLines <= 0 {
		return &ValidationError{Field: "analysis.max_file_lines", Message: "must be positive"}
	}

	// Report validation
	for _, f := range c.Report.Formats {
		if !validFormats[f] {
			return &ValidationError{Field: "report.formats", Message: "invalid format " + f + ", must be one of: json, markdown, html, csv, sarif"}
		}
	}
	if c.Report.TopIssues < 0 {
		return &ValidationError{Field: "report.top_issues", Message: "must not be negative"}
	}

	// Cache validation
	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory":
		case "badger":
			if c.Cache.Dir == "" {
				return &ValidationError{Field: "cache.dir", Message: "cache directory is required for the badger backend"}
			}
		default:
			return &ValidationError{Field: "cache.backend", Message: "invalid backend, must be one of: memory, badger"}
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		return &ValidationError{Field: "history.path", Message: "database path is required when history is enabled"}
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{Field: "log.level", Message: err.Error()}
	}
	if _, err := logger.ParseFormat(c.Log.Format); err != nil {
		return &ValidationError{Field: "log.format", Message: err.Error()}
	}

	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config validation error: " + e.Field + ": " + e.Message
}
