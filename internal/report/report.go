// Package report assembles analysis results and an external review into a
// single report and renders it in several formats.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JNZader/kirolint/internal/analysis"
	"github.com/JNZader/kirolint/internal/logger"
	"github.com/JNZader/kirolint/internal/matcher"
	"github.com/JNZader/kirolint/internal/rules"
	"github.com/JNZader/kirolint/internal/score"
)

// Review statuses.
const (
	StatusApproved     = "APPROVED"
	StatusNeedsChanges = "NEEDS_CHANGES"
)

// DefaultConfidence is assumed when a reviewer reports none.
const DefaultConfidence = 0.85

// NotAvailable fills trend fields the caller did not supply.
const NotAvailable = "N/A"

// Note is one reviewer issue or suggestion. Reviewers send either plain
// strings or objects carrying a message.
type Note string

func (n *Note) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = Note(s)
		return nil
	}
	var obj struct {
		Message     string `json:"message"`
		Description string `json:"description"`
		Text        string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("review note must be a string or an object: %w", err)
	}
	switch {
	case obj.Message != "":
		*n = Note(obj.Message)
	case obj.Description != "":
		*n = Note(obj.Description)
	default:
		*n = Note(obj.Text)
	}
	return nil
}

// ExternalReview is the verdict of a reviewer outside the rule engine.
type ExternalReview struct {
	Approved    bool     `json:"approved"`
	Summary     string   `json:"summary"`
	Issues      []Note   `json:"issues"`
	Suggestions []Note   `json:"suggestions"`
	Score       *float64 `json:"score,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// DecodeReview reads an ExternalReview from JSON.
func DecodeReview(r io.Reader) (*ExternalReview, error) {
	var review ExternalReview
	if err := json.NewDecoder(r).Decode(&review); err != nil {
		return nil, fmt.Errorf("decoding review: %w", err)
	}
	return &review, nil
}

// Metadata attributes the report.
type Metadata struct {
	ReportID       string    `json:"report_id"`
	GeneratedAt    time.Time `json:"generated_at"`
	PRNumber       int       `json:"pr_number"`
	Repository     string    `json:"repository,omitempty"`
	Author         string    `json:"author,omitempty"`
	Title          string    `json:"title,omitempty"`
	Branch         string    `json:"branch"`
	BaseBranch     string    `json:"base_branch"`
	RulesetVersion string    `json:"ruleset_version,omitempty"`
}

// Summary holds the headline numbers.
type Summary struct {
	OverallScore      int                `json:"overall_score"`
	Status            string             `json:"status"`
	TotalIssues       int                `json:"total_issues"`
	FilesAnalyzed     int                `json:"files_analyzed"`
	FilesIgnored      int                `json:"files_ignored,omitempty"`
	RulesApplied      int                `json:"rules_applied"`
	RulesWithFindings int                `json:"rules_with_findings"`
	ReviewDuration    string             `json:"review_duration"`
	MergeReady        bool               `json:"merge_ready"`
	Gate              score.GateDecision `json:"merge_gate"`
}

// ReviewAnalysis carries the external reviewer's output.
type ReviewAnalysis struct {
	Summary     string   `json:"summary"`
	Issues      []Note   `json:"issues"`
	Suggestions []Note   `json:"suggestions"`
	Score       *float64 `json:"score,omitempty"`
	Confidence  float64  `json:"confidence_score"`
}

// RuleEngineAnalysis is the analysis result as carried by the report.
type RuleEngineAnalysis struct {
	IssuesBySeverity analysis.SeverityCounts `json:"issues_by_severity"`
	IssuesByCategory analysis.CategoryCounts `json:"issues_by_category"`
	Findings         []matcher.Finding       `json:"rule_violations"`
	TopIssues        []score.RuleCount       `json:"top_issues"`
	RuleErrors       []analysis.RuleError    `json:"rule_errors,omitempty"`
}

// SecurityAnalysis groups security-specific output.
type SecurityAnalysis struct {
	CriticalVulnerabilities []matcher.Finding `json:"critical_vulnerabilities"`
	SecurityScore           int               `json:"security_score"`
	ComplianceStatus        score.Compliance  `json:"compliance_status"`
	Recommendations         []string          `json:"recommendations"`
}

// PerformanceAnalysis groups performance-specific output.
type PerformanceAnalysis struct {
	PerformanceIssues         []matcher.Finding `json:"performance_issues"`
	PerformanceScore          int               `json:"performance_score"`
	OptimizationOpportunities []string          `json:"optimization_opportunities"`
}

// QualityMetrics groups the derived quality numbers.
type QualityMetrics struct {
	CodeQualityScore      int     `json:"code_quality_score"`
	RuleScore             int     `json:"rule_score"`
	MaintainabilityIndex  int     `json:"maintainability_index"`
	TechnicalDebtHours    float64 `json:"technical_debt_hours"`
	TechnicalDebtEstimate string  `json:"technical_debt_estimate"`
}

// Trends carries caller-supplied comparisons.
type Trends struct {
	ImprovementFromLastPR string `json:"improvement_from_last_pr"`
	TeamAverageComparison string `json:"team_average_comparison"`
	RepositoryTrend       string `json:"repository_trend"`
}

// Report is the assembled, immutable output of one run.
type Report struct {
	Metadata    Metadata            `json:"metadata"`
	Summary     Summary             `json:"summary"`
	Review      ReviewAnalysis      `json:"ai_analysis"`
	RuleEngine  RuleEngineAnalysis  `json:"rule_engine_analysis"`
	Security    SecurityAnalysis    `json:"security_analysis"`
	Performance PerformanceAnalysis `json:"performance_analysis"`
	Quality     QualityMetrics      `json:"quality_metrics"`
	Actionable  score.Actionable    `json:"actionable_items"`
	Trends      Trends              `json:"trends"`
}

// Options tunes Build.
type Options struct {
	ReportID       string
	Now            func() time.Time
	Duration       time.Duration
	TopIssues      int
	RedactSnippets bool
	Trends         Trends
}

// Build assembles a report. Scores are computed here once; every output
// format renders these values as they are.
func Build(review *ExternalReview, result *analysis.Result, pr analysis.PRContext, opts Options) *Report {
	if review == nil {
		review = &ExternalReview{}
	}
	if result == nil {
		result = analysis.NewResult()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReportID == "" {
		opts.ReportID = uuid.NewString()
	}

	findings := append([]matcher.Finding{}, result.Findings...)
	if opts.RedactSnippets {
		redact(findings)
	}
	view := *result
	view.Findings = findings

	overall := score.Overall(review.Score, &view)
	gate := score.Gate(&view, overall)

	status := StatusNeedsChanges
	if review.Approved {
		status = StatusApproved
	}

	confidence := DefaultConfidence
	if review.Confidence != nil {
		confidence = *review.Confidence
	}

	duration := NotAvailable
	if opts.Duration > 0 {
		duration = opts.Duration.Round(time.Millisecond).String()
	}

	debt := score.TechnicalDebtHours(&view)

	return &Report{
		Metadata: Metadata{
			ReportID:       opts.ReportID,
			GeneratedAt:    opts.Now().UTC(),
			PRNumber:       pr.Number,
			Repository:     pr.Repository,
			Author:         pr.Author,
			Title:          pr.Title,
			Branch:         orDefault(pr.Branch, "unknown"),
			BaseBranch:     orDefault(pr.BaseBranch, "main"),
			RulesetVersion: result.RulesetVersion,
		},
		Summary: Summary{
			OverallScore:      overall,
			Status:            status,
			TotalIssues:       view.TotalIssues,
			FilesAnalyzed:     view.FilesAnalyzed,
			FilesIgnored:      view.FilesIgnored,
			RulesApplied:      view.RulesApplied,
			RulesWithFindings: view.RulesWithFindings,
			ReviewDuration:    duration,
			MergeReady:        score.MergeReady(review.Approved, &view, overall),
			Gate:              gate,
		},
		Review: ReviewAnalysis{
			Summary:     review.Summary,
			Issues:      nonNilNotes(review.Issues),
			Suggestions: nonNilNotes(review.Suggestions),
			Score:       review.Score,
			Confidence:  confidence,
		},
		RuleEngine: RuleEngineAnalysis{
			IssuesBySeverity: view.IssuesBySeverity,
			IssuesByCategory: view.IssuesByCategory,
			Findings:         findings,
			TopIssues:        score.TopIssues(&view, opts.TopIssues),
			RuleErrors:       view.RuleErrors,
		},
		Security: SecurityAnalysis{
			CriticalVulnerabilities: score.FilterBySeverity(&view, rules.SeverityCritical),
			SecurityScore:           score.Security(&view),
			ComplianceStatus:        score.ComplianceStatus(&view),
			Recommendations:         score.SecurityRecommendations(&view),
		},
		Performance: PerformanceAnalysis{
			PerformanceIssues:         score.FilterByCategory(&view, rules.CategoryPerformance),
			PerformanceScore:          score.Performance(&view),
			OptimizationOpportunities: score.OptimizationOpportunities(&view),
		},
		Quality: QualityMetrics{
			CodeQualityScore:      overall,
			RuleScore:             score.RuleQuality(&view),
			MaintainabilityIndex:  score.Maintainability(&view),
			TechnicalDebtHours:    debt,
			TechnicalDebtEstimate: fmt.Sprintf("%g hours estimated", debt),
		},
		Actionable: score.Partition(&view),
		Trends: Trends{
			ImprovementFromLastPR: orDefault(opts.Trends.ImprovementFromLastPR, NotAvailable),
			TeamAverageComparison: orDefault(opts.Trends.TeamAverageComparison, NotAvailable),
			RepositoryTrend:       orDefault(opts.Trends.RepositoryTrend, NotAvailable),
		},
	}
}

// redact masks the matched text of security findings.
func redact(findings []matcher.Finding) {
	for i := range findings {
		if findings[i].Category != rules.CategorySecurity {
			continue
		}
		masked := logger.MaskSecrets(findings[i].MatchedText)
		if masked == findings[i].MatchedText {
			masked = logger.MaskString(masked)
		}
		findings[i].MatchedText = masked
	}
}

// Decode loads a report previously written as JSON.
func Decode(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &rep, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func nonNilNotes(n []Note) []Note {
	if n == nil {
		return []Note{}
	}
	return n
}
