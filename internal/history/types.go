// Package history provides SQLite-based storage for analysis runs. Each run
// keeps its headline numbers and its findings, which back the trend section
// of later reports and CLI commands like `kirolint history`.
package history

import "time"

// RunRecord is one stored analysis run.
type RunRecord struct {
	ID             string    `json:"id"`
	ReportID       string    `json:"report_id"`
	PRNumber       int       `json:"pr_number,omitempty"`
	Repository     string    `json:"repository,omitempty"`
	Branch         string    `json:"branch,omitempty"`
	RulesetVersion string    `json:"ruleset_version,omitempty"`
	OverallScore   int       `json:"overall_score"`
	SecurityScore  int       `json:"security_score"`
	Status         string    `json:"status"`
	TotalIssues    int       `json:"total_issues"`
	Critical       int       `json:"critical"`
	High           int       `json:"high"`
	Medium         int       `json:"medium"`
	Low            int       `json:"low"`
	Info           int       `json:"info"`
	FilesAnalyzed  int       `json:"files_analyzed"`
	CreatedAt      time.Time `json:"created_at"`
}

// FindingRecord is one stored finding.
type FindingRecord struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	RuleName      string    `json:"rule_name"`
	Category      string    `json:"category"`
	Severity      string    `json:"severity"`
	File          string    `json:"file"`
	Line          int       `json:"line_number"`
	Column        int       `json:"column"`
	Message       string    `json:"message"`
	FixSuggestion string    `json:"fix_suggestion,omitempty"`
	Team          string    `json:"team,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// RunQuery filters ListRuns.
type RunQuery struct {
	Repository string
	Branch     string
	Since      time.Time
	// Limit restricts result count
	Limit  int
	Offset int
}

// SearchQuery represents a search over stored findings.
type SearchQuery struct {
	// Text performs full-text search on message and rule name
	Text string
	// File filters by file path (supports glob patterns)
	File string
	// Rule filters by rule name
	Rule     string
	Severity string
	Category string
	// RunID restricts the search to one run
	RunID string
	Since time.Time
	Until time.Time
	// Limit restricts result count
	Limit int
	// Offset for pagination
	Offset int
}

// SearchResult contains search results with metadata.
type SearchResult struct {
	Records    []FindingRecord `json:"records"`
	TotalCount int64           `json:"total_count"`
	Query      SearchQuery     `json:"-"`
}

// FileHistory summarizes the findings recorded for a file or directory.
type FileHistory struct {
	Path          string         `json:"path"`
	TotalFindings int64          `json:"total_findings"`
	Runs          int64          `json:"runs"`
	BySeverity    map[string]int `json:"by_severity"`
	ByRule        map[string]int `json:"by_rule"`
}

// Stats contains aggregate statistics from the history database.
type Stats struct {
	TotalRuns     int64            `json:"total_runs"`
	TotalFindings int64            `json:"total_findings"`
	AverageScore  float64          `json:"average_score"`
	BySeverity    map[string]int64 `json:"by_severity"`
	ByCategory    map[string]int64 `json:"by_category"`
	ByRule        map[string]int64 `json:"by_rule"`
	ByFile        map[string]int64 `json:"by_file"`
}

// Trend directions.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// TrendPoint is one run on a trend line.
type TrendPoint struct {
	RunID        string    `json:"run_id"`
	PRNumber     int       `json:"pr_number,omitempty"`
	OverallScore int       `json:"overall_score"`
	TotalIssues  int       `json:"total_issues"`
	Critical     int       `json:"critical"`
	CreatedAt    time.Time `json:"created_at"`
}

// Trend is the score trajectory of recent runs, oldest first.
type Trend struct {
	Repository   string       `json:"repository,omitempty"`
	Points       []TrendPoint `json:"points"`
	AverageScore float64      `json:"average_score"`
	Direction    string       `json:"direction"`
}

// SummaryQuery scopes a security or team summary.
type SummaryQuery struct {
	Repository string
	Team       string
	Since      time.Time
}

// SecuritySummary aggregates security findings across runs.
type SecuritySummary struct {
	Since                time.Time        `json:"since,omitempty"`
	Runs                 int64            `json:"runs"`
	RunsBlocked          int64            `json:"runs_with_critical"`
	AverageSecurityScore float64          `json:"average_security_score"`
	ComplianceRate       float64          `json:"compliance_rate"`
	Findings             int64            `json:"security_findings"`
	BySeverity           map[string]int64 `json:"by_severity"`
	ByRule               map[string]int64 `json:"by_rule"`
	ByRepository         map[string]int64 `json:"by_repository"`
}

// TeamSummary aggregates the findings raised by one team's rules.
type TeamSummary struct {
	Team          string           `json:"team"`
	Since         time.Time        `json:"since,omitempty"`
	Runs          int64            `json:"runs"`
	AverageScore  float64          `json:"average_score"`
	TotalFindings int64            `json:"total_findings"`
	BySeverity    map[string]int64 `json:"by_severity"`
	ByCategory    map[string]int64 `json:"by_category"`
	ByRule        map[string]int64 `json:"by_rule"`
	ByFile        map[string]int64 `json:"by_file"`
}
