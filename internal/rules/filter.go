package rules

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// AppliesTo reports whether the rule should run against filename: the file
// type filter must match (unless it is the wildcard) and no exception
// substring may occur in the name.
func (r *Rule) AppliesTo(filename string) bool {
	if len(r.FileTypes) > 0 && !containsExact(r.FileTypes, "*") {
		ext := filepath.Ext(filename)
		matched := false
		for _, ft := range r.FileTypes {
			if strings.HasSuffix(filename, ft) || ext == ft {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, exc := range r.Exceptions {
		if strings.Contains(filename, exc) {
			return false
		}
	}
	return true
}

// Filter returns the enabled rules that apply to filePath.
func Filter(rules []*Rule, filePath string) []*Rule {
	var filtered []*Rule
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if !rule.AppliesTo(filePath) {
			continue
		}
		filtered = append(filtered, rule)
	}
	return filtered
}

// GetRulesByCategory returns rules for a specific category.
func GetRulesByCategory(rules []*Rule, category Category) []*Rule {
	var filtered []*Rule
	for _, rule := range rules {
		if rule.Category == category {
			filtered = append(filtered, rule)
		}
	}
	return filtered
}

// GetRulesBySeverity returns rules at or above severity.
func GetRulesBySeverity(rules []*Rule, minSeverity Severity) []*Rule {
	minRank := minSeverity.Rank()
	var filtered []*Rule
	for _, rule := range rules {
		if rule.Severity.Rank() >= minRank {
			filtered = append(filtered, rule)
		}
	}
	return filtered
}

// GetRulesByTeam returns rules contributed by team (case-insensitive).
func GetRulesByTeam(rules []*Rule, team string) []*Rule {
	var filtered []*Rule
	for _, rule := range rules {
		if strings.EqualFold(rule.Team, team) {
			filtered = append(filtered, rule)
		}
	}
	return filtered
}

// Ignored reports whether path matches any of the doublestar patterns.
// Patterns without a slash also match against the base name.
func Ignored(patterns []string, path string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range patterns {
		if m, _ := doublestar.Match(pattern, path); m {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if m, _ := doublestar.Match(pattern, filepath.Base(path)); m {
				return true
			}
		}
	}
	return false
}

func containsString(slice []string, s string) bool {
	for _, item := range slice {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

func containsExact(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}
