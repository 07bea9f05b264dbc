package report

import (
	"fmt"
	"io"

	"github.com/JNZader/kirolint/internal/matcher"
	"github.com/JNZader/kirolint/internal/rules"
)

// MarkdownWriter renders summary tables and action lists.
type MarkdownWriter struct{}

func (w *MarkdownWriter) Format() string    { return "markdown" }
func (w *MarkdownWriter) Extension() string { return "md" }

func (w *MarkdownWriter) Write(report *Report, out io.Writer) error {
	ew := &errWriter{w: out}
	md := report.Metadata
	s := report.Summary

	ew.printf("# Code Review Report\n\n")
	if md.PRNumber > 0 {
		ew.printf("**PR #%d**", md.PRNumber)
		if md.Title != "" {
			ew.printf(": %s", md.Title)
		}
		ew.printf("\n\n")
	}
	ew.printf("- **Repository:** %s\n", orDefault(md.Repository, NotAvailable))
	ew.printf("- **Branch:** %s → %s\n", md.Branch, md.BaseBranch)
	ew.printf("- **Generated:** %s\n", md.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	ew.printf("- **Report ID:** %s\n\n", md.ReportID)

	ew.printf("## Summary\n\n")
	ew.printf("| Metric | Value |\n|--------|-------|\n")
	ew.printf("| Overall Score | %d/10 |\n", s.OverallScore)
	ew.printf("| Status | %s |\n", s.Status)
	ew.printf("| Total Issues | %d |\n", s.TotalIssues)
	ew.printf("| Files Analyzed | %d |\n", s.FilesAnalyzed)
	if s.FilesIgnored > 0 {
		ew.printf("| Files Ignored | %d |\n", s.FilesIgnored)
	}
	ew.printf("| Rules Applied | %d |\n", s.RulesApplied)
	ew.printf("| Security Score | %d/10 |\n", report.Security.SecurityScore)
	ew.printf("| Performance Score | %d/10 |\n", report.Performance.PerformanceScore)
	ew.printf("| Maintainability Index | %d |\n", report.Quality.MaintainabilityIndex)
	ew.printf("| Technical Debt | %s |\n", report.Quality.TechnicalDebtEstimate)
	ew.printf("| Compliance | %s |\n", report.Security.ComplianceStatus)
	ew.printf("| Duration | %s |\n\n", s.ReviewDuration)

	if s.Gate.Blocked {
		ew.printf("> **Merge blocked:** %s\n\n", s.Gate.Reason)
	}

	if report.Review.Summary != "" {
		ew.printf("## Reviewer Summary\n\n%s\n\n", report.Review.Summary)
		w.writeNotes(ew, "Reviewer Issues", report.Review.Issues)
		w.writeNotes(ew, "Suggestions", report.Review.Suggestions)
	}

	ew.printf("## Issues by Severity\n\n| Severity | Count |\n|----------|-------|\n")
	for _, sev := range rules.Severities {
		ew.printf("| %s %s | %d |\n", severityIcon(sev), sev, report.RuleEngine.IssuesBySeverity.Get(sev))
	}
	ew.printf("\n## Issues by Category\n\n| Category | Count |\n|----------|-------|\n")
	for _, cat := range rules.Categories {
		ew.printf("| %s | %d |\n", cat, report.RuleEngine.IssuesByCategory.Get(cat))
	}
	ew.printf("\n")

	if len(report.RuleEngine.TopIssues) > 0 {
		ew.printf("## Top Issues\n\n")
		for i, ti := range report.RuleEngine.TopIssues {
			ew.printf("%d. `%s` (%d)\n", i+1, ti.Rule, ti.Count)
		}
		ew.printf("\n")
	}

	ew.printf("## Action Items\n\n")
	w.writeFindings(ew, "Must Fix", report.Actionable.MustFix)
	w.writeFindings(ew, "Should Fix", report.Actionable.ShouldFix)
	w.writeFindings(ew, "Consider Fixing", report.Actionable.ConsiderFixing)
	if n := len(report.Actionable.AutoFixable); n > 0 {
		ew.printf("_%d issues can be fixed automatically._\n\n", n)
	}
	if s.TotalIssues == 0 {
		ew.printf("No issues found.\n\n")
	}

	if recs := report.Security.Recommendations; len(recs) > 0 {
		ew.printf("## Security Recommendations\n\n")
		for _, rec := range recs {
			ew.printf("- %s\n", rec)
		}
		ew.printf("\n")
	}
	if ops := report.Performance.OptimizationOpportunities; len(ops) > 0 {
		ew.printf("## Optimization Opportunities\n\n")
		for _, op := range ops {
			ew.printf("- %s\n", op)
		}
		ew.printf("\n")
	}

	ew.printf("---\n*Report generated by kirolint*\n")
	return ew.err
}

func (w *MarkdownWriter) writeNotes(ew *errWriter, title string, notes []Note) {
	if len(notes) == 0 {
		return
	}
	ew.printf("### %s\n\n", title)
	for _, n := range notes {
		ew.printf("- %s\n", n)
	}
	ew.printf("\n")
}

func (w *MarkdownWriter) writeFindings(ew *errWriter, title string, findings []matcher.Finding) {
	if len(findings) == 0 {
		return
	}
	ew.printf("### %s (%d)\n\n", title, len(findings))
	for _, f := range findings {
		ew.printf("- %s **%s** `%s`: %s\n", severityIcon(f.Severity), f.RuleName, f.Location(), f.Message)
		if f.FixSuggestion != "" {
			ew.printf("  - Fix: %s\n", f.FixSuggestion)
		}
	}
	ew.printf("\n")
}

func severityIcon(s rules.Severity) string {
	switch s {
	case rules.SeverityCritical:
		return "🔴"
	case rules.SeverityHigh:
		return "🟠"
	case rules.SeverityMedium:
		return "🟡"
	case rules.SeverityLow:
		return "🔵"
	default:
		return "⚪"
	}
}

// errWriter keeps the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	if len(args) == 0 {
		_, e.err = io.WriteString(e.w, format)
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
