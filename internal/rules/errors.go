package rules

import "fmt"

// ConfigurationError reports a rule source that could not be read, parsed
// or validated. The source is skipped; loading continues with the others.
type ConfigurationError struct {
	Source string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rule source %s: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
