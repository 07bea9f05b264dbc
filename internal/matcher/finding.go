// Package matcher applies a single rule to a single file's text and turns
// surviving regular-expression matches into findings.
package matcher

import (
	"fmt"
	"time"

	"github.com/JNZader/kirolint/internal/rules"
)

// Finding is one rule violation at a file position. Findings are values and
// are never modified after the analysis run that produced them.
type Finding struct {
	RuleName      string         `json:"rule_name"`
	Category      rules.Category `json:"category"`
	Severity      rules.Severity `json:"severity"`
	Description   string         `json:"description"`
	Message       string         `json:"message"`
	Line          int            `json:"line_number"`
	Column        int            `json:"column"`
	MatchedText   string         `json:"matched_text"`
	FixSuggestion string         `json:"fix_suggestion,omitempty"`
	AutoFix       bool           `json:"auto_fix"`
	File          string         `json:"file"`
	PRNumber      int            `json:"pr_number,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Team          string         `json:"team,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
}

// Location formats the finding position as file:line:column.
func (f Finding) Location() string {
	return fmt.Sprintf("%s:%d:%d", f.File, f.Line, f.Column)
}
