package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = ".kirolint.yaml"
	envPrefix      = "KIROLINT"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetConfigName(".kirolint")
	v.SetConfigType("yaml")

	// Add search paths in order of priority
	v.AddConfigPath(".")             // Current directory (highest priority)
	v.AddConfigPath("$HOME")         // Home directory
	v.AddConfigPath("/etc/kirolint") // System config (lowest priority)

	// Environment variable support
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// SetConfigFile sets a specific config file to use.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
	l.v.SetConfigFile(path)
}

// Load loads the configuration from all sources.
// Priority (highest to lowest):
// 1. Flags bound through GetViper().BindPFlag
// 2. Environment variables (KIROLINT_*)
// 3. Config file (explicit, or .kirolint.yaml from the search paths)
// 4. Default values
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setDefaults(cfg)

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file found but error reading it
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found - that's ok, we'll use defaults
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override it.
func (l *Loader) setDefaults(cfg *Config) {
	// Rules defaults
	l.v.SetDefault("rules.dir", cfg.Rules.Dir)
	l.v.SetDefault("rules.sources", cfg.Rules.Sources)
	l.v.SetDefault("rules.builtin", cfg.Rules.Builtin)
	l.v.SetDefault("rules.enable", cfg.Rules.Enable)
	l.v.SetDefault("rules.disable", cfg.Rules.Disable)
	l.v.SetDefault("rules.debounce", cfg.Rules.Debounce)

	// Analysis defaults
	l.v.SetDefault("analysis.workers", cfg.Analysis.Workers)
	l.v.SetDefault("analysis.max_files", cfg.Analysis.MaxFiles)
	l.v.SetDefault("analysis.max_changes", cfg.Analysis.MaxChanges)
	l.v.SetDefault("analysis.ignore_patterns", cfg.Analysis.IgnorePatterns)
	l.v.SetDefault("analysis.max_loop_depth", cfg.Analysis.MaxLoopDepth)
	l.v.SetDefault("analysis.max_file_lines", cfg.Analysis.MaxFileLines)

	// Report defaults
	l.v.SetDefault("report.formats", cfg.Report.Formats)
	l.v.SetDefault("report.output_dir", cfg.Report.OutputDir)
	l.v.SetDefault("report.top_issues", cfg.Report.TopIssues)
	l.v.SetDefault("report.redact_snippets", cfg.Report.RedactSnippets)

	// Cache defaults
	l.v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	l.v.SetDefault("cache.backend", cfg.Cache.Backend)
	l.v.SetDefault("cache.dir", cfg.Cache.Dir)
	l.v.SetDefault("cache.ttl", cfg.Cache.TTL)
	l.v.SetDefault("cache.max_entries", cfg.Cache.MaxEntries)

	// History defaults
	l.v.SetDefault("history.enabled", cfg.History.Enabled)
	l.v.SetDefault("history.path", cfg.History.Path)
	l.v.SetDefault("history.trend_window", cfg.History.TrendWindow)

	l.v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	l.v.SetDefault("metrics.file", cfg.Metrics.File)

	l.v.SetDefault("log.level", cfg.Log.Level)
	l.v.SetDefault("log.format", cfg.Log.Format)
}

// ConfigFileUsed returns the path of the config file used, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	loader := NewLoader()
	return loader.Load()
}

// FindConfigFile searches for a config file and returns its path.
// Returns empty string if no config file is found.
func FindConfigFile() string {
	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		if abs, err := filepath.Abs(configFileName); err == nil {
			return abs
		}
	}

	// Check home directory
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, configFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// Check /etc
	etcPath := "/etc/kirolint/" + configFileName
	if _, err := os.Stat(etcPath); err == nil {
		return etcPath
	}

	return ""
}

// Marshal renders cfg as YAML in the config file layout.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
