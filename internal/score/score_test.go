package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JNZader/kirolint/internal/analysis"
	"github.com/JNZader/kirolint/internal/matcher"
	"github.com/JNZader/kirolint/internal/rules"
)

func finding(rule string, sev rules.Severity, cat rules.Category) matcher.Finding {
	return matcher.Finding{RuleName: rule, Severity: sev, Category: cat}
}

func resultOf(fs ...matcher.Finding) *analysis.Result {
	r := analysis.NewResult()
	for _, f := range fs {
		r.Add(f)
	}
	return r
}

func repeat(n int, f matcher.Finding) []matcher.Finding {
	out := make([]matcher.Finding, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func TestSecurity(t *testing.T) {
	crit := finding("c", rules.SeverityCritical, rules.CategorySecurity)
	high := finding("h", rules.SeverityHigh, rules.CategorySecurity)

	tests := []struct {
		name     string
		findings []matcher.Finding
		want     int
	}{
		{"clean", nil, 10},
		{"one high", repeat(1, high), 7},
		{"five high floors at 3", repeat(5, high), 3},
		{"one critical", repeat(1, crit), 4},
		{"critical dominates high", append(repeat(1, crit), repeat(3, high)...), 4},
		{"many critical floors at 1", repeat(9, crit), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Security(resultOf(tt.findings...)))
		})
	}
}

func TestSecurity_MonotoneInCritical(t *testing.T) {
	crit := finding("c", rules.SeverityCritical, rules.CategorySecurity)
	base := []matcher.Finding{finding("h", rules.SeverityHigh, rules.CategorySecurity)}
	prev := Security(resultOf(base...))
	for i := 1; i <= 8; i++ {
		base = append(base, crit)
		got := Security(resultOf(base...))
		assert.LessOrEqual(t, got, prev, "adding critical #%d", i)
		prev = got
	}
}

func TestPerformanceAndMaintainability(t *testing.T) {
	perf := finding("p", rules.SeverityMedium, rules.CategoryPerformance)
	assert.Equal(t, 10, Performance(resultOf()))
	assert.Equal(t, 7, Performance(resultOf(repeat(3, perf)...)))
	assert.Equal(t, 1, Performance(resultOf(repeat(15, perf)...)))

	q := finding("q", rules.SeverityLow, rules.CategoryQuality)
	s := finding("s", rules.SeverityInfo, rules.CategoryStyle)
	assert.Equal(t, 100, Maintainability(resultOf()))
	assert.Equal(t, 81, Maintainability(resultOf(append(repeat(3, q), repeat(2, s)...)...)))
	assert.Equal(t, 0, Maintainability(resultOf(repeat(30, q)...)))
}

func TestRuleQualityAndOverall(t *testing.T) {
	f := finding("x", rules.SeverityLow, rules.CategoryStyle)
	bands := map[int]int{0: 10, 1: 8, 2: 8, 3: 6, 5: 6, 6: 4, 10: 4, 11: 2}
	for n, want := range bands {
		assert.Equal(t, want, RuleQuality(resultOf(repeat(n, f)...)), "%d issues", n)
	}

	r := resultOf(repeat(3, f)...) // rule score 6
	ext := func(v float64) *float64 { return &v }

	assert.Equal(t, 6, Overall(nil, r))
	assert.Equal(t, 7, Overall(ext(8), r))
	assert.Equal(t, 8, Overall(ext(9), r), "7.5 rounds half up")
	assert.Equal(t, 3, Overall(ext(0), r))
}

func TestTechnicalDebtHours(t *testing.T) {
	r := resultOf(
		finding("a", rules.SeverityCritical, rules.CategorySecurity),
		finding("b", rules.SeverityHigh, rules.CategorySecurity),
		finding("c", rules.SeverityMedium, rules.CategoryQuality),
		finding("d", rules.SeverityLow, rules.CategoryStyle),
		finding("e", rules.SeverityInfo, rules.CategoryStyle),
	)
	assert.Equal(t, 15.5, TechnicalDebtHours(r))
	assert.Equal(t, 0.0, TechnicalDebtHours(resultOf()))
}

func TestComplianceStatus(t *testing.T) {
	high := finding("h", rules.SeverityHigh, rules.CategorySecurity)
	assert.Equal(t, Compliant, ComplianceStatus(resultOf(repeat(2, high)...)))
	assert.Equal(t, NeedsAttention, ComplianceStatus(resultOf(repeat(3, high)...)))
	assert.Equal(t, NonCompliant, ComplianceStatus(resultOf(finding("c", rules.SeverityCritical, rules.CategorySecurity))))
}

func TestPartition(t *testing.T) {
	fix := finding("fixable", rules.SeverityLow, rules.CategoryStyle)
	fix.AutoFix = true
	critFix := finding("crit", rules.SeverityCritical, rules.CategorySecurity)
	critFix.AutoFix = true

	r := resultOf(
		critFix,
		finding("high", rules.SeverityHigh, rules.CategorySecurity),
		finding("med", rules.SeverityMedium, rules.CategoryQuality),
		fix,
		finding("info", rules.SeverityInfo, rules.CategoryStyle),
	)
	a := Partition(r)

	assert.Len(t, a.MustFix, 2)
	assert.Len(t, a.ShouldFix, 1)
	assert.Len(t, a.ConsiderFixing, 2)
	assert.Len(t, a.AutoFixable, 2)
	assert.Equal(t, r.TotalIssues, len(a.MustFix)+len(a.ShouldFix)+len(a.ConsiderFixing))

	empty := Partition(resultOf())
	assert.NotNil(t, empty.AutoFixable)
}

func TestTopIssues(t *testing.T) {
	r := resultOf(
		finding("b", rules.SeverityLow, rules.CategoryStyle),
		finding("a", rules.SeverityLow, rules.CategoryStyle),
		finding("c", rules.SeverityLow, rules.CategoryStyle),
		finding("a", rules.SeverityLow, rules.CategoryStyle),
		finding("c", rules.SeverityLow, rules.CategoryStyle),
		finding("d", rules.SeverityLow, rules.CategoryStyle),
	)

	assert.Equal(t, []RuleCount{{"a", 2}, {"c", 2}, {"b", 1}, {"d", 1}}, TopIssues(r, 0))
	assert.Equal(t, []RuleCount{{"a", 2}, {"c", 2}}, TopIssues(r, 2))
	assert.Empty(t, TopIssues(resultOf(), 5))
}

func TestFilters(t *testing.T) {
	r := resultOf(
		finding("a", rules.SeverityCritical, rules.CategorySecurity),
		finding("b", rules.SeverityLow, rules.CategoryPerformance),
	)
	assert.Len(t, FilterBySeverity(r, rules.SeverityCritical), 1)
	assert.Len(t, FilterByCategory(r, rules.CategoryPerformance), 1)
	assert.Empty(t, FilterByCategory(r, rules.CategoryCompliance))
}

func TestAdvice(t *testing.T) {
	sec := finding("s", rules.SeverityCritical, rules.CategorySecurity)
	perf := finding("p", rules.SeverityLow, rules.CategoryPerformance)

	assert.Empty(t, SecurityRecommendations(resultOf()))
	assert.Equal(t, []string{
		"Address all critical security vulnerabilities immediately",
		"Consider security training for the development team",
	}, SecurityRecommendations(resultOf(repeat(6, sec)...)))

	assert.Empty(t, OptimizationOpportunities(resultOf()))
	assert.Len(t, OptimizationOpportunities(resultOf(perf)), 1)
}

func TestMergeReadyAndGate(t *testing.T) {
	clean := resultOf()
	crit := resultOf(finding("c", rules.SeverityCritical, rules.CategorySecurity))
	high := finding("h", rules.SeverityHigh, rules.CategorySecurity)

	assert.True(t, MergeReady(true, clean, 8))
	assert.False(t, MergeReady(false, clean, 8))
	assert.False(t, MergeReady(true, clean, 6))
	assert.False(t, MergeReady(true, crit, 9))

	assert.False(t, Gate(clean, 8).Blocked)
	assert.Equal(t, "1 critical issues", Gate(crit, 8).Reason)
	assert.Contains(t, Gate(clean, 3).Reason, "below minimum 4")
	assert.True(t, Gate(resultOf(repeat(6, high)...), 5).Blocked)
	assert.False(t, Gate(resultOf(repeat(5, high)...), 5).Blocked)
}
