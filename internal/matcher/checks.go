package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/JNZader/kirolint/internal/rules"
)

// CheckFunc is a custom predicate for checks a single expression cannot
// express. Returned findings need only position, message and matched text;
// rule metadata is filled in by the matcher.
type CheckFunc func(text, filename string, rule *rules.Rule) ([]Finding, error)

// CheckRegistry maps custom_check names to functions.
type CheckRegistry struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	params map[string]string
}

// NewCheckRegistry returns an empty registry.
func NewCheckRegistry() *CheckRegistry {
	return &CheckRegistry{
		checks: make(map[string]CheckFunc),
		params: make(map[string]string),
	}
}

// DefaultChecks returns a registry holding the built-in checks with their
// default limits.
func DefaultChecks() *CheckRegistry {
	return BuiltinChecks(DefaultMaxLoopDepth, DefaultMaxFileLines)
}

// BuiltinChecks returns a registry holding the built-in checks with the
// given limits.
func BuiltinChecks(maxLoopDepth, maxFileLines int) *CheckRegistry {
	r := NewCheckRegistry()
	_ = r.Register("nested-loops", NestedLoops(maxLoopDepth), maxLoopDepth)
	_ = r.Register("long-file", LongFile(maxFileLines), maxFileLines)
	return r
}

// Register adds fn under name. Names are unique. params describe how fn
// was configured and feed Fingerprint.
func (r *CheckRegistry) Register(name string, fn CheckFunc, params ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; exists {
		return fmt.Errorf("custom check %q already registered", name)
	}
	r.checks[name] = fn
	r.params[name] = fmt.Sprint(params...)
	return nil
}

// Fingerprint identifies the registered checks and their parameters.
// Registries configured alike share a fingerprint.
func (r *CheckRegistry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name+"("+r.params[name]+")")
	}
	sort.Strings(names)
	sum := sha256.Sum256([]byte(strings.Join(names, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// Get looks up a check by name.
func (r *CheckRegistry) Get(name string) (CheckFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.checks[name]
	return fn, ok
}

// Names lists registered checks in sorted order.
func (r *CheckRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const (
	DefaultMaxLoopDepth = 2
	DefaultMaxFileLines = 500
)

var loopKeyword = regexp.MustCompile(`\b(for|while|do)\b`)

// NestedLoops reports loops nested deeper than maxDepth, tracking nesting
// through braces. Strings and comments are not excluded.
func NestedLoops(maxDepth int) CheckFunc {
	return func(text, filename string, _ *rules.Rule) ([]Finding, error) {
		doc := NewDocument(filename, text)

		keywords := make(map[int]int) // offset -> keyword length
		for _, loc := range loopKeyword.FindAllStringIndex(text, -1) {
			keywords[loc[0]] = loc[1] - loc[0]
		}
		if len(keywords) == 0 {
			return nil, nil
		}

		var findings []Finding
		var frames []bool // true for a loop body
		// depth counts open loop frames; pending is the offset of a loop
		// keyword still waiting for its body.
		depth, parens, pending := 0, 0, -1
		for i := 0; i < len(text); i++ {
			if n, ok := keywords[i]; ok {
				pending = i
				i += n - 1
				continue
			}
			switch text[i] {
			case '(':
				parens++
			case ')':
				if parens > 0 {
					parens--
				}
			case '\n':
				// Loop bodies open on the keyword's line.
				if parens == 0 {
					pending = -1
				}
			case '{':
				isLoop := pending >= 0
				frames = append(frames, isLoop)
				if isLoop {
					depth++
					if depth > maxDepth {
						line, col := doc.Position(pending)
						findings = append(findings, Finding{
							Line:        line,
							Column:      col,
							MatchedText: doc.Line(line),
							Message: fmt.Sprintf("Loop nested %d levels deep (limit %d)",
								depth, maxDepth),
						})
					}
				}
				pending = -1
			case '}':
				if len(frames) > 0 {
					if frames[len(frames)-1] {
						depth--
					}
					frames = frames[:len(frames)-1]
				}
			}
		}
		return findings, nil
	}
}

// LongFile reports a file with more than maxLines lines, once.
func LongFile(maxLines int) CheckFunc {
	return func(text, filename string, _ *rules.Rule) ([]Finding, error) {
		doc := NewDocument(filename, text)
		n := doc.LineCount()
		if n <= maxLines {
			return nil, nil
		}
		return []Finding{{
			Line:    maxLines + 1,
			Column:  1,
			Message: fmt.Sprintf("File has %d lines (limit %d)", n, maxLines),
		}}, nil
	}
}
