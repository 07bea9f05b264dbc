package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/JNZader/kirolint/internal/analysis"
	"github.com/JNZader/kirolint/internal/matcher"
	"github.com/JNZader/kirolint/internal/score"
)

// DefaultConfig returns a Config with sensible default values. Out of the
// box only the built-in rules run and nothing is persisted besides reports.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()

	return &Config{
		Rules:    defaultRulesConfig(),
		Analysis: defaultAnalysisConfig(),
		Report:   defaultReportConfig(),
		Cache:    defaultCacheConfig(dataDir),
		History: HistoryConfig{
			Enabled:     false,
			Path:        filepath.Join(dataDir, "history.db"),
			TrendWindow: 10,
		},
		Metrics: MetricsConfig{Enabled: false},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// defaultDataDir returns the default cache and history directory.
func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".cache", "kirolint")
}

func defaultRulesConfig() RulesConfig {
	return RulesConfig{
		Dir:      "",
		Builtin:  true,
		Debounce: 250 * time.Millisecond,
	}
}

func defaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Workers:        analysis.DefaultWorkers,
		MaxFiles:       analysis.DefaultMaxFiles,
		MaxChanges:     analysis.DefaultMaxChanges,
		IgnorePatterns: DefaultIgnorePatterns(),
		MaxLoopDepth:   matcher.DefaultMaxLoopDepth,
		MaxFileLines:   matcher.DefaultMaxFileLines,
	}
}

func defaultReportConfig() ReportConfig {
	return ReportConfig{
		Formats:   []string{"json", "markdown"},
		OutputDir: "reports",
		TopIssues: score.DefaultTopIssues,
	}
}

// defaultCacheConfig returns the default cache configuration.
func defaultCacheConfig(dataDir string) CacheConfig {
	return CacheConfig{
		Enabled:    true,
		Backend:    "memory",
		Dir:        filepath.Join(dataDir, "cache"),
		TTL:        24 * time.Hour,
		MaxEntries: 1000,
	}
}

// DefaultIgnorePatterns returns the default file patterns to ignore.
// These are files that never carry reviewable source.
func DefaultIgnorePatterns() []string {
	return []string{
		// Images
		"**/*.png",
		"**/*.jpg",
		"**/*.jpeg",
		"**/*.gif",
		"**/*.ico",

		// Dependencies
		"**/go.sum",
		"**/package-lock.json",
		"**/yarn.lock",
		"**/pnpm-lock.yaml",

		// Build output
		"dist/**",
		"build/**",
		"**/*.min.js",

		// Vendored code
		"**/node_modules/**",
		"vendor/**",
	}
}
