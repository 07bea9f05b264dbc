package score

import (
	"fmt"

	"github.com/JNZader/kirolint/internal/analysis"
)

// SecurityRecommendations lists follow-ups implied by the security tallies.
func SecurityRecommendations(r *analysis.Result) []string {
	recs := []string{}
	if r.IssuesBySeverity.Critical > 0 {
		recs = append(recs, "Address all critical security vulnerabilities immediately")
	}
	if r.IssuesByCategory.Security > 5 {
		recs = append(recs, "Consider security training for the development team")
	}
	return recs
}

// OptimizationOpportunities lists follow-ups implied by performance findings.
func OptimizationOpportunities(r *analysis.Result) []string {
	ops := []string{}
	if r.IssuesByCategory.Performance > 0 {
		ops = append(ops, "Review and optimize performance-critical code paths")
	}
	return ops
}

// MergeReady reports whether a change can merge without further review.
func MergeReady(approved bool, r *analysis.Result, overall int) bool {
	return approved && r.IssuesBySeverity.Critical == 0 && overall >= 7
}

// Gate thresholds.
const (
	MinOverallScore = 4
	MaxHighIssues   = 5
)

// GateDecision is the outcome of the merge gate.
type GateDecision struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// Gate applies the merge-blocking checks in order: critical findings, a
// low overall score, non-compliance, then too many high findings.
func Gate(r *analysis.Result, overall int) GateDecision {
	switch {
	case r.IssuesBySeverity.Critical > 0:
		return GateDecision{Blocked: true,
			Reason: fmt.Sprintf("%d critical issues", r.IssuesBySeverity.Critical)}
	case overall < MinOverallScore:
		return GateDecision{Blocked: true,
			Reason: fmt.Sprintf("code quality score %d below minimum %d", overall, MinOverallScore)}
	case ComplianceStatus(r) == NonCompliant:
		return GateDecision{Blocked: true, Reason: "security compliance failure"}
	case r.IssuesBySeverity.High > MaxHighIssues:
		return GateDecision{Blocked: true,
			Reason: fmt.Sprintf("%d high-priority issues exceed %d", r.IssuesBySeverity.High, MaxHighIssues)}
	}
	return GateDecision{}
}
