package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JNZader/kirolint/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Work with saved reports",
}

var reportConvertCmd = &cobra.Command{
	Use:   "convert <report.json>",
	Short: "Render a saved JSON report in another format",
	Long: `Render a JSON report written by "kirolint analyze" in another format.
Scores are taken from the saved report, never recomputed.

Examples:
  # Print as markdown
  kirolint report convert reports/report-2026-03-14T09-26-53-589Z.json -f markdown

  # Write SARIF, format inferred from the file name
  kirolint report convert report.json -o results.sarif`,

	Args: cobra.ExactArgs(1),
	RunE: runReportConvert,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportConvertCmd)

	reportConvertCmd.Flags().StringP("format", "f", "",
		"Output format ("+strings.Join(report.AvailableFormats(), ", ")+")")
	reportConvertCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
}

func runReportConvert(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	if format == "" {
		format = detectFormatFromPath(output)
	}
	if format == "" {
		format = "markdown"
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening report: %w", err)
	}
	defer f.Close()

	rep, err := report.Decode(f)
	if err != nil {
		return err
	}

	content, err := report.Render(rep, format)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), cmd.ErrOrStderr(), content, output)
}
