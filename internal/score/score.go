// Package score derives scores and classifications from an analysis
// result. Every function is pure.
package score

import (
	"math"
	"sort"

	"github.com/JNZader/kirolint/internal/analysis"
	"github.com/JNZader/kirolint/internal/matcher"
	"github.com/JNZader/kirolint/internal/rules"
)

// Compliance classifies a result by its severity tallies.
type Compliance string

const (
	Compliant      Compliance = "COMPLIANT"
	NeedsAttention Compliance = "NEEDS_ATTENTION"
	NonCompliant   Compliance = "NON_COMPLIANT"
)

// DefaultTopIssues is the default length of the top-issues list.
const DefaultTopIssues = 5

// DebtWeights are hours of remediation per finding.
var DebtWeights = map[rules.Severity]float64{
	rules.SeverityCritical: 8,
	rules.SeverityHigh:     4,
	rules.SeverityMedium:   2,
	rules.SeverityLow:      1,
	rules.SeverityInfo:     0.5,
}

// Security scores 0-10. Critical findings dominate high ones.
func Security(r *analysis.Result) int {
	if c := r.IssuesBySeverity.Critical; c > 0 {
		return max(1, 5-c)
	}
	if h := r.IssuesBySeverity.High; h > 0 {
		return max(3, 8-h)
	}
	return 10
}

// Performance scores 0-10 from the performance category count.
func Performance(r *analysis.Result) int {
	return max(1, 10-r.IssuesByCategory.Performance)
}

// RuleQuality bands the total finding count into a 0-10 score.
func RuleQuality(r *analysis.Result) int {
	switch n := r.TotalIssues; {
	case n == 0:
		return 10
	case n <= 2:
		return 8
	case n <= 5:
		return 6
	case n <= 10:
		return 4
	default:
		return 2
	}
}

// Overall averages an external reviewer score with the rule score and
// rounds half up. Without an external score the rule score stands alone.
func Overall(external *float64, r *analysis.Result) int {
	rule := float64(RuleQuality(r))
	if external == nil {
		return int(rule)
	}
	return int(math.Floor((*external+rule)/2 + 0.5))
}

// Maintainability is a 0-100 index penalizing quality and style findings.
func Maintainability(r *analysis.Result) int {
	return max(0, 100-5*r.IssuesByCategory.Quality-2*r.IssuesByCategory.Style)
}

// TechnicalDebtHours weights each finding by severity.
func TechnicalDebtHours(r *analysis.Result) float64 {
	c := r.IssuesBySeverity
	return float64(c.Critical)*DebtWeights[rules.SeverityCritical] +
		float64(c.High)*DebtWeights[rules.SeverityHigh] +
		float64(c.Medium)*DebtWeights[rules.SeverityMedium] +
		float64(c.Low)*DebtWeights[rules.SeverityLow] +
		float64(c.Info)*DebtWeights[rules.SeverityInfo]
}

// ComplianceStatus classifies r.
func ComplianceStatus(r *analysis.Result) Compliance {
	if r.IssuesBySeverity.Critical > 0 {
		return NonCompliant
	}
	if r.IssuesBySeverity.High > 2 {
		return NeedsAttention
	}
	return Compliant
}

// Actionable partitions findings by urgency. AutoFixable cuts across the
// severity groups.
type Actionable struct {
	MustFix        []matcher.Finding `json:"must_fix"`
	ShouldFix      []matcher.Finding `json:"should_fix"`
	ConsiderFixing []matcher.Finding `json:"consider_fixing"`
	AutoFixable    []matcher.Finding `json:"auto_fixable"`
}

// Partition sorts every finding into exactly one severity group, and
// additionally into AutoFixable when flagged.
func Partition(r *analysis.Result) Actionable {
	a := Actionable{
		MustFix:        []matcher.Finding{},
		ShouldFix:      []matcher.Finding{},
		ConsiderFixing: []matcher.Finding{},
		AutoFixable:    []matcher.Finding{},
	}
	for _, f := range r.Findings {
		switch f.Severity {
		case rules.SeverityCritical, rules.SeverityHigh:
			a.MustFix = append(a.MustFix, f)
		case rules.SeverityMedium:
			a.ShouldFix = append(a.ShouldFix, f)
		default:
			a.ConsiderFixing = append(a.ConsiderFixing, f)
		}
		if f.AutoFix {
			a.AutoFixable = append(a.AutoFixable, f)
		}
	}
	return a
}

// RuleCount is a rule name with its finding count.
type RuleCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// TopIssues ranks rules by finding count, ties broken by first appearance.
// A non-positive limit means DefaultTopIssues.
func TopIssues(r *analysis.Result, limit int) []RuleCount {
	if limit <= 0 {
		limit = DefaultTopIssues
	}
	index := make(map[string]int)
	counts := []RuleCount{}
	for _, f := range r.Findings {
		i, ok := index[f.RuleName]
		if !ok {
			i = len(counts)
			index[f.RuleName] = i
			counts = append(counts, RuleCount{Rule: f.RuleName})
		}
		counts[i].Count++
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// FilterBySeverity returns findings with severity s, in order.
func FilterBySeverity(r *analysis.Result, s rules.Severity) []matcher.Finding {
	out := []matcher.Finding{}
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

// FilterByCategory returns findings in category c, in order.
func FilterByCategory(r *analysis.Result, c rules.Category) []matcher.Finding {
	out := []matcher.Finding{}
	for _, f := range r.Findings {
		if f.Category == c {
			out = append(out, f)
		}
	}
	return out
}
