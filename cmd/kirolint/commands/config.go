package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JNZader/kirolint/internal/config"
	"github.com/JNZader/kirolint/internal/logger"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage kirolint configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the current configuration, including values from
config file, environment variables, and defaults.

Examples:
  # Show config in YAML format
  kirolint config show

  # Show config as JSON
  kirolint config show --json`,

	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configShowJSON bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "output as JSON")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}

	masked := maskSensitiveConfig(cfg)
	w := cmd.OutOrStdout()

	if configShowJSON {
		return writeJSON(w, masked)
	}

	if !isQuiet() {
		if configFile := loader.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(w, "# Config file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(w, "# No config file found, using defaults\n\n")
		}
	}

	data, err := config.Marshal(masked)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// maskSensitiveConfig masks credentials embedded in rule source URLs.
func maskSensitiveConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Rules.Sources = make([]string, len(cfg.Rules.Sources))
	for i, src := range cfg.Rules.Sources {
		masked.Rules.Sources[i] = logger.MaskSecrets(src)
	}
	return &masked
}
