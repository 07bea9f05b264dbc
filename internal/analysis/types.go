// Package analysis runs every enabled rule over a batch of changed files and
// aggregates the findings into severity and category tallies.
package analysis

import (
	"time"

	"github.com/JNZader/kirolint/internal/matcher"
	"github.com/JNZader/kirolint/internal/rules"
)

// File statuses as reported by source-hosting APIs.
const (
	StatusAdded     = "added"
	StatusModified  = "modified"
	StatusRemoved   = "removed"
	StatusRenamed   = "renamed"
	StatusCopied    = "copied"
	StatusChanged   = "changed"
	StatusUnchanged = "unchanged"
)

// FileChange is one changed file in a batch.
type FileChange struct {
	Filename  string `json:"filename" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=added modified removed renamed copied changed unchanged"`
	Additions int    `json:"additions" validate:"gte=0"`
	Deletions int    `json:"deletions" validate:"gte=0"`
	Patch     string `json:"patch,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Text is what the rules scan: the full content when present, otherwise the
// patch.
func (f FileChange) Text() string {
	if f.Content != "" {
		return f.Content
	}
	return f.Patch
}

// Removed reports whether the file was deleted.
func (f FileChange) Removed() bool {
	return f.Status == StatusRemoved
}

// PRContext attributes a run to a pull request.
type PRContext struct {
	Number     int    `json:"number"`
	Repository string `json:"repository,omitempty"`
	Author     string `json:"author,omitempty"`
	Title      string `json:"title,omitempty"`
	Branch     string `json:"branch,omitempty"`
	BaseBranch string `json:"base_branch,omitempty"`
}

// SeverityCounts holds one bucket per severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

func (c *SeverityCounts) bucket(s rules.Severity) *int {
	switch s {
	case rules.SeverityCritical:
		return &c.Critical
	case rules.SeverityHigh:
		return &c.High
	case rules.SeverityMedium:
		return &c.Medium
	case rules.SeverityLow:
		return &c.Low
	case rules.SeverityInfo:
		return &c.Info
	}
	return nil
}

// Add increments the bucket for s. Unknown severities are not counted.
func (c *SeverityCounts) Add(s rules.Severity) bool {
	if b := c.bucket(s); b != nil {
		*b++
		return true
	}
	return false
}

// Get returns the count for s.
func (c SeverityCounts) Get(s rules.Severity) int {
	if b := c.bucket(s); b != nil {
		return *b
	}
	return 0
}

// Total sums all buckets.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// CategoryCounts holds one bucket per category.
type CategoryCounts struct {
	Security    int `json:"security"`
	Performance int `json:"performance"`
	Quality     int `json:"quality"`
	Style       int `json:"style"`
	Compliance  int `json:"compliance"`
}

func (c *CategoryCounts) bucket(cat rules.Category) *int {
	switch cat {
	case rules.CategorySecurity:
		return &c.Security
	case rules.CategoryPerformance:
		return &c.Performance
	case rules.CategoryQuality:
		return &c.Quality
	case rules.CategoryStyle:
		return &c.Style
	case rules.CategoryCompliance:
		return &c.Compliance
	}
	return nil
}

// Add increments the bucket for cat.
func (c *CategoryCounts) Add(cat rules.Category) bool {
	if b := c.bucket(cat); b != nil {
		*b++
		return true
	}
	return false
}

// Get returns the count for cat.
func (c CategoryCounts) Get(cat rules.Category) int {
	if b := c.bucket(cat); b != nil {
		return *b
	}
	return 0
}

// Total sums all buckets.
func (c CategoryCounts) Total() int {
	return c.Security + c.Performance + c.Quality + c.Style + c.Compliance
}

// RuleError records a rule that failed on one file and was skipped there.
type RuleError struct {
	Rule    string `json:"rule"`
	File    string `json:"file"`
	Message string `json:"message"`
}

// Result aggregates one analysis run.
type Result struct {
	TotalIssues       int               `json:"total_issues"`
	IssuesBySeverity  SeverityCounts    `json:"issues_by_severity"`
	IssuesByCategory  CategoryCounts    `json:"issues_by_category"`
	Findings          []matcher.Finding `json:"rule_violations"`
	FilesAnalyzed     int               `json:"files_analyzed"`
	FilesIgnored      int               `json:"files_ignored,omitempty"`
	RulesApplied      int               `json:"rules_applied"`
	RulesWithFindings int               `json:"rules_with_findings"`
	RuleErrors        []RuleError       `json:"rule_errors,omitempty"`
	RulesetVersion    string            `json:"ruleset_version,omitempty"`
	Duration          time.Duration     `json:"-"`
	CacheHits         int               `json:"-"`
}

// NewResult returns an empty result with a non-nil findings list.
func NewResult() *Result {
	return &Result{Findings: []matcher.Finding{}}
}

// Add appends f and updates the tallies.
func (r *Result) Add(f matcher.Finding) {
	r.Findings = append(r.Findings, f)
	r.TotalIssues++
	r.IssuesBySeverity.Add(f.Severity)
	r.IssuesByCategory.Add(f.Category)
}

// CountByRule returns finding counts per rule name.
func (r *Result) CountByRule() map[string]int {
	counts := make(map[string]int)
	for _, f := range r.Findings {
		counts[f.RuleName]++
	}
	return counts
}
