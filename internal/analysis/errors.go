package analysis

import (
	"fmt"

	"github.com/JNZader/kirolint/internal/matcher"
)

// ValidationError rejects a batch before any file is analyzed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid batch: %s: %s", e.Field, e.Message)
}

// RuleExecutionError is the matcher's per-rule, per-file failure.
type RuleExecutionError = matcher.RuleExecutionError
