package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// CSVWriter renders one row per finding.
type CSVWriter struct{}

func (w *CSVWriter) Format() string    { return "csv" }
func (w *CSVWriter) Extension() string { return "csv" }

var csvHeader = []string{
	"file", "line", "column", "rule", "severity", "category",
	"message", "matched_text", "fix_suggestion", "auto_fix", "pr_number", "timestamp",
}

func (w *CSVWriter) Write(report *Report, out io.Writer) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, f := range report.RuleEngine.Findings {
		ts := ""
		if !f.Timestamp.IsZero() {
			ts = f.Timestamp.Format(time.RFC3339)
		}
		record := []string{
			f.File,
			strconv.Itoa(f.Line),
			strconv.Itoa(f.Column),
			f.RuleName,
			string(f.Severity),
			string(f.Category),
			f.Message,
			f.MatchedText,
			f.FixSuggestion,
			strconv.FormatBool(f.AutoFix),
			strconv.Itoa(f.PRNumber),
			ts,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
