package report

import (
	"html/template"
	"io"

	"github.com/JNZader/kirolint/internal/rules"
)

// HTMLWriter renders a styled single-page document.
type HTMLWriter struct{}

func (w *HTMLWriter) Format() string    { return "html" }
func (w *HTMLWriter) Extension() string { return "html" }

type countRow struct {
	Name  string
	Count int
}

type htmlView struct {
	*Report
	Severities []countRow
	Categories []countRow
}

func (w *HTMLWriter) Write(report *Report, out io.Writer) error {
	view := htmlView{Report: report}
	for _, sev := range rules.Severities {
		view.Severities = append(view.Severities, countRow{string(sev), report.RuleEngine.IssuesBySeverity.Get(sev)})
	}
	for _, cat := range rules.Categories {
		view.Categories = append(view.Categories, countRow{string(cat), report.RuleEngine.IssuesByCategory.Get(cat)})
	}
	return htmlTemplate.Execute(out, view)
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"scoreClass": func(score int) string {
		switch {
		case score >= 8:
			return "good"
		case score >= 5:
			return "fair"
		default:
			return "poor"
		}
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Code Review Report{{if .Metadata.PRNumber}} - PR #{{.Metadata.PRNumber}}{{end}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 0; background: #f5f6f8; color: #222; }
header { background: #24292e; color: #fff; padding: 24px 32px; }
main { padding: 24px 32px; }
.metrics { display: flex; flex-wrap: wrap; gap: 16px; margin-bottom: 24px; }
.metric { background: #fff; border-radius: 8px; padding: 16px 20px; min-width: 140px; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
.metric-value { font-size: 28px; font-weight: 600; }
.metric-label { color: #666; font-size: 13px; }
.good { color: #2da44e; } .fair { color: #bf8700; } .poor { color: #cf222e; }
section { background: #fff; border-radius: 8px; padding: 16px 20px; margin-bottom: 16px; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
table { border-collapse: collapse; }
td, th { padding: 4px 12px; text-align: left; border-bottom: 1px solid #eee; }
li.critical { border-left: 4px solid #cf222e; } li.high { border-left: 4px solid #fb8500; }
li.medium { border-left: 4px solid #bf8700; } li.low { border-left: 4px solid #0969da; } li.info { border-left: 4px solid #8c959f; }
li { list-style: none; padding: 6px 10px; margin-bottom: 6px; background: #fafbfc; }
code { background: #eff1f3; padding: 1px 4px; border-radius: 4px; }
</style>
</head>
<body>
<header>
<h1>Code Review Report</h1>
<div>{{with .Metadata}}{{if .Repository}}{{.Repository}} · {{end}}{{if .PRNumber}}PR #{{.PRNumber}} · {{end}}{{.Branch}} → {{.BaseBranch}} · {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}{{end}}</div>
</header>
<main>
<div class="metrics">
<div class="metric"><div class="metric-value {{scoreClass .Summary.OverallScore}}" id="overall-score">{{.Summary.OverallScore}}/10</div><div class="metric-label">Overall Score</div></div>
<div class="metric"><div class="metric-value">{{.Summary.Status}}</div><div class="metric-label">Status</div></div>
<div class="metric"><div class="metric-value">{{.Summary.TotalIssues}}</div><div class="metric-label">Total Issues</div></div>
<div class="metric"><div class="metric-value">{{.Summary.FilesAnalyzed}}</div><div class="metric-label">Files Analyzed</div></div>
<div class="metric"><div class="metric-value">{{.Summary.RulesApplied}}</div><div class="metric-label">Rules Applied</div></div>
<div class="metric"><div class="metric-value {{scoreClass .Security.SecurityScore}}">{{.Security.SecurityScore}}/10</div><div class="metric-label">Security</div></div>
<div class="metric"><div class="metric-value {{scoreClass .Performance.PerformanceScore}}">{{.Performance.PerformanceScore}}/10</div><div class="metric-label">Performance</div></div>
<div class="metric"><div class="metric-value">{{.Quality.MaintainabilityIndex}}</div><div class="metric-label">Maintainability</div></div>
</div>
{{if .Summary.Gate.Blocked}}<section><strong class="poor">Merge blocked:</strong> {{.Summary.Gate.Reason}}</section>{{end}}
{{if .Review.Summary}}<section>
<h2>Reviewer Summary</h2>
<p>{{.Review.Summary}}</p>
{{if .Review.Issues}}<h3>Issues</h3><ul>{{range .Review.Issues}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Review.Suggestions}}<h3>Suggestions</h3><ul>{{range .Review.Suggestions}}<li>{{.}}</li>{{end}}</ul>{{end}}
</section>{{end}}
<section>
<h2>Breakdown</h2>
<table><tr><th>Severity</th><th>Count</th></tr>{{range .Severities}}<tr><td>{{.Name}}</td><td>{{.Count}}</td></tr>{{end}}</table>
<table><tr><th>Category</th><th>Count</th></tr>{{range .Categories}}<tr><td>{{.Name}}</td><td>{{.Count}}</td></tr>{{end}}</table>
<p>Compliance: <strong>{{.Security.ComplianceStatus}}</strong> · Technical debt: {{.Quality.TechnicalDebtEstimate}}</p>
</section>
<section>
<h2>Findings</h2>
{{if .RuleEngine.Findings}}<ul>{{range .RuleEngine.Findings}}
<li class="{{.Severity}}"><strong>{{.RuleName}}</strong> <code>{{.Location}}</code> {{.Message}}{{if .FixSuggestion}}<br><em>Fix: {{.FixSuggestion}}</em>{{end}}</li>{{end}}
</ul>{{else}}<p>No issues found.</p>{{end}}
</section>
{{if .Security.Recommendations}}<section><h2>Security Recommendations</h2><ul>{{range .Security.Recommendations}}<li>{{.}}</li>{{end}}</ul></section>{{end}}
{{if .Performance.OptimizationOpportunities}}<section><h2>Optimization Opportunities</h2><ul>{{range .Performance.OptimizationOpportunities}}<li>{{.}}</li>{{end}}</ul></section>{{end}}
</main>
</body>
</html>
`))
