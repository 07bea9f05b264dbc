// Package rules holds the rule repository: rule definitions, the sources
// they are loaded from and the registry the analysis engine reads.
package rules

import (
	"regexp"
	"strings"
)

// Category categorizes rules.
type Category string

const (
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
	CategoryQuality     Category = "quality"
	CategoryStyle       Category = "style"
	CategoryCompliance  Category = "compliance"
)

// Categories lists every category in reporting order.
var Categories = []Category{
	CategorySecurity,
	CategoryPerformance,
	CategoryQuality,
	CategoryStyle,
	CategoryCompliance,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Severity indicates rule importance.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists every severity from most to least important.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
}

// Rank orders severities; higher is more important. Unknown severities rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0
	default:
		return -1
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// Pattern is a compiled detection expression.
type Pattern struct {
	Expr          string `json:"pattern" yaml:"pattern"`
	Flags         string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Message       string `json:"message,omitempty" yaml:"message,omitempty"`
	FixSuggestion string `json:"fix_suggestion,omitempty" yaml:"fix_suggestion,omitempty"`
	AutoFix       bool   `json:"auto_fix,omitempty" yaml:"auto_fix,omitempty"`

	re *regexp.Regexp
}

// Regexp returns the compiled expression.
func (p *Pattern) Regexp() *regexp.Regexp {
	return p.re
}

// MessageOrDefault returns the pattern message, or a generic one naming the expression.
func (p *Pattern) MessageOrDefault() string {
	if p.Message != "" {
		return p.Message
	}
	return "Pattern violation: " + p.Expr
}

// Rule is a named check made of patterns, anti-patterns and metadata.
// Rules are immutable once published in a Snapshot.
type Rule struct {
	Name          string    `json:"name" yaml:"name"`
	Team          string    `json:"team" yaml:"team"`
	Source        string    `json:"source" yaml:"source"`
	Category      Category  `json:"category" yaml:"category"`
	Severity      Severity  `json:"severity" yaml:"severity"`
	Description   string    `json:"description" yaml:"description"`
	Patterns      []Pattern `json:"patterns" yaml:"patterns"`
	AntiPatterns  []Pattern `json:"anti_patterns,omitempty" yaml:"anti_patterns,omitempty"`
	FileTypes     []string  `json:"file_types" yaml:"file_types"`
	Exceptions    []string  `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
	Enabled       bool      `json:"enabled" yaml:"enabled"`
	AutoFix       bool      `json:"auto_fix,omitempty" yaml:"auto_fix,omitempty"`
	FixSuggestion string    `json:"fix_suggestion,omitempty" yaml:"fix_suggestion,omitempty"`
	CustomCheck   string    `json:"custom_check,omitempty" yaml:"custom_check,omitempty"`
	Tags          []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Suppressed reports whether any anti-pattern matches text.
func (r *Rule) Suppressed(text string) bool {
	for i := range r.AntiPatterns {
		if r.AntiPatterns[i].re.MatchString(text) {
			return true
		}
	}
	return false
}

// HasTag reports whether the rule carries tag (case-insensitive).
func (r *Rule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// clone returns a copy whose slices can be changed without touching r.
func (r *Rule) clone() *Rule {
	c := *r
	c.Patterns = append([]Pattern(nil), r.Patterns...)
	c.AntiPatterns = append([]Pattern(nil), r.AntiPatterns...)
	c.FileTypes = append([]string(nil), r.FileTypes...)
	c.Exceptions = append([]string(nil), r.Exceptions...)
	c.Tags = append([]string(nil), r.Tags...)
	return &c
}

// GlobalSettings are the rule-set wide options a source may declare.
type GlobalSettings struct {
	DefaultSeverity Severity `json:"default_severity,omitempty" yaml:"default_severity,omitempty"`
	IgnorePatterns  []string `json:"ignore_patterns,omitempty" yaml:"ignore_patterns,omitempty"`
}

// Stats summarizes a rule collection.
type Stats struct {
	Total      int              `json:"total_rules"`
	Enabled    int              `json:"enabled_rules"`
	ByCategory map[Category]int `json:"by_category"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByTeam     map[string]int   `json:"by_team"`
}

func computeStats(rules []*Rule) Stats {
	s := Stats{
		Total:      len(rules),
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
		ByTeam:     make(map[string]int),
	}
	for _, r := range rules {
		s.ByCategory[r.Category]++
		s.BySeverity[r.Severity]++
		s.ByTeam[r.Team]++
		if r.Enabled {
			s.Enabled++
		}
	}
	return s
}
