package matcher

import (
	"fmt"

	"github.com/JNZader/kirolint/internal/logger"
	"github.com/JNZader/kirolint/internal/rules"
)

// Matcher applies rules to file text.
type Matcher struct {
	checks *CheckRegistry
	log    *logger.Logger
}

// New creates a matcher. A nil registry means the built-in checks.
func New(checks *CheckRegistry) *Matcher {
	if checks == nil {
		checks = DefaultChecks()
	}
	return &Matcher{
		checks: checks,
		log:    logger.Default().WithPrefix("MATCHER"),
	}
}

// Checks returns the custom check registry.
func (m *Matcher) Checks() *CheckRegistry {
	return m.checks
}

// Apply runs rule against text. Custom check failures are logged and the
// pattern findings are still returned. File type and exception filtering is
// the caller's job.
func (m *Matcher) Apply(rule *rules.Rule, text, filename string) []Finding {
	findings, err := m.Evaluate(rule, NewDocument(filename, text))
	if err != nil {
		m.log.Warn("%v", err)
	}
	return findings
}

// Evaluate runs rule against an indexed document. A non-nil error is always
// a *RuleExecutionError from the custom check; findings from patterns are
// returned alongside it.
func (m *Matcher) Evaluate(rule *rules.Rule, doc *Document) ([]Finding, error) {
	var findings []Finding

	for i := range rule.Patterns {
		p := &rule.Patterns[i]
		re := p.Regexp()
		if re == nil {
			continue
		}
		// FindAllStringIndex always advances past empty matches.
		for _, loc := range re.FindAllStringIndex(doc.Text, -1) {
			matched := doc.Text[loc[0]:loc[1]]
			if rule.Suppressed(matched) {
				continue
			}
			line, col := doc.Position(loc[0])
			if doc.Ignored(line, rule.Name) {
				continue
			}
			findings = append(findings, m.newFinding(rule, doc, Finding{
				Message:       p.MessageOrDefault(),
				Line:          line,
				Column:        col,
				MatchedText:   matched,
				FixSuggestion: p.FixSuggestion,
				AutoFix:       p.AutoFix,
			}))
		}
	}

	if rule.CustomCheck == "" {
		return findings, nil
	}
	custom, err := m.runCheck(rule, doc)
	if err != nil {
		return findings, err
	}
	return append(findings, custom...), nil
}

func (m *Matcher) runCheck(rule *rules.Rule, doc *Document) (out []Finding, err error) {
	fn, ok := m.checks.Get(rule.CustomCheck)
	if !ok {
		return nil, &RuleExecutionError{
			Rule: rule.Name,
			File: doc.Filename,
			Err:  fmt.Errorf("unknown custom check %q", rule.CustomCheck),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &RuleExecutionError{
				Rule: rule.Name,
				File: doc.Filename,
				Err:  fmt.Errorf("custom check %s panicked: %v", rule.CustomCheck, r),
			}
		}
	}()

	raw, cerr := fn(doc.Text, doc.Filename, rule)
	if cerr != nil {
		return nil, &RuleExecutionError{
			Rule: rule.Name,
			File: doc.Filename,
			Err:  fmt.Errorf("custom check %s: %w", rule.CustomCheck, cerr),
		}
	}

	for _, f := range raw {
		if doc.Ignored(f.Line, rule.Name) {
			continue
		}
		if f.Message == "" {
			f.Message = rule.Description
		}
		out = append(out, m.newFinding(rule, doc, f))
	}
	return out, nil
}

// newFinding stamps rule metadata onto base. A rule-level fix suggestion
// wins over the pattern's. A finding is auto-fixable only when both the
// rule and the pattern allow it.
func (m *Matcher) newFinding(rule *rules.Rule, doc *Document, base Finding) Finding {
	base.RuleName = rule.Name
	base.Category = rule.Category
	base.Severity = rule.Severity
	base.Description = rule.Description
	base.File = doc.Filename
	base.Team = rule.Team
	base.Tags = rule.Tags
	if rule.FixSuggestion != "" {
		base.FixSuggestion = rule.FixSuggestion
	}
	base.AutoFix = base.AutoFix && rule.AutoFix
	return base
}
