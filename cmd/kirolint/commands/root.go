// Package commands contains all CLI commands for kirolint.
//
// This package uses the Cobra library for CLI management.
// Each command is defined in its own file and registered in init().
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JNZader/kirolint/internal/config"
	"github.com/JNZader/kirolint/internal/logger"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitBlocked = 2
)

var (
	// cfgFile holds the path to the config file (from --config flag)
	cfgFile string

	// verbose enables debug logging
	verbose bool

	// quiet suppresses all output except errors
	quiet bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kirolint",
	Short: "Rule-based static analysis for pull requests",
	Long: `Kirolint checks changed files against configurable rule sets of
regular expressions and produces a scored report for the pull request.

Examples:
  # Analyze files in the working tree
  kirolint analyze src/app.js src/config.js

  # Analyze a unified diff
  git diff main | kirolint analyze --diff -

  # Analyze a file batch and merge an external review
  kirolint analyze --batch files.json --review review.json --pr 42

  # List enabled rules
  kirolint rules list

  # Show current configuration
  kirolint config show`,

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeLogging()
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errMergeBlocked) {
			return exitBlocked
		}
		return exitError
	}
	return exitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .kirolint.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
}

// loadConfig loads the configuration honoring --config.
func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, loader, nil
}

// initializeLogging applies the configured log format and level; --quiet
// and --verbose override the level. A broken config file is reported by the
// command itself.
func initializeLogging() error {
	level, format := logger.LevelInfo, logger.FormatText

	if cfg, _, err := loadConfig(); err == nil {
		// Validate already checked both values.
		level, _ = logger.ParseLevel(cfg.Log.Level)
		format, _ = logger.ParseFormat(cfg.Log.Format)
	}

	switch {
	case quiet:
		level = logger.LevelError
	case verbose:
		level = logger.LevelDebug
	}
	logger.SetLevel(level)
	logger.SetFormat(format)
	return nil
}

// isVerbose returns true if verbose mode is enabled
func isVerbose() bool {
	return verbose && !quiet
}

// isQuiet returns true if quiet mode is enabled
func isQuiet() bool {
	return quiet
}
