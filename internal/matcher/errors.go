package matcher

import "fmt"

// RuleExecutionError reports a rule that failed on one file. The rule is
// skipped for that file only.
type RuleExecutionError struct {
	Rule string
	File string
	Err  error
}

func (e *RuleExecutionError) Error() string {
	return fmt.Sprintf("rule %s on %s: %v", e.Rule, e.File, e.Err)
}

func (e *RuleExecutionError) Unwrap() error {
	return e.Err
}
