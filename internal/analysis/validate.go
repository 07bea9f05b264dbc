package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/go-diff/diff"
)

const (
	DefaultMaxFiles   = 50
	DefaultMaxChanges = 2000
)

// Limits bounds the size of a batch.
type Limits struct {
	MaxFiles   int
	MaxChanges int
}

// DefaultLimits returns the standard batch limits.
func DefaultLimits() Limits {
	return Limits{MaxFiles: DefaultMaxFiles, MaxChanges: DefaultMaxChanges}
}

var batchValidate *validator.Validate

func init() {
	batchValidate = validator.New()
	batchValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

// prepare validates files and returns a copy with line counts derived from
// the patch where the caller supplied none.
func prepare(files []FileChange, limits Limits) ([]FileChange, error) {
	if limits.MaxFiles > 0 && len(files) > limits.MaxFiles {
		return nil, &ValidationError{
			Field:   "files",
			Message: fmt.Sprintf("%d files exceeds the limit of %d", len(files), limits.MaxFiles),
		}
	}

	out := make([]FileChange, len(files))
	changes := 0
	for i, f := range files {
		if err := batchValidate.Struct(f); err != nil {
			return nil, fieldError(i, err)
		}
		if f.Additions == 0 && f.Deletions == 0 && f.Patch != "" {
			adds, dels, err := CountPatchLines(f.Patch)
			if err != nil {
				return nil, &ValidationError{
					Field:   fmt.Sprintf("files[%d].patch", i),
					Message: err.Error(),
				}
			}
			f.Additions, f.Deletions = adds, dels
		}
		changes += f.Additions + f.Deletions
		out[i] = f
	}

	if limits.MaxChanges > 0 && changes > limits.MaxChanges {
		return nil, &ValidationError{
			Field:   "files",
			Message: fmt.Sprintf("%d changed lines exceeds the limit of %d", changes, limits.MaxChanges),
		}
	}
	return out, nil
}

func fieldError(index int, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:   fmt.Sprintf("files[%d].%s", index, fe.Field()),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		}
	}
	return &ValidationError{Field: fmt.Sprintf("files[%d]", index), Message: err.Error()}
}

// CountPatchLines counts added and deleted lines in a hunk-only patch, the
// form source-hosting APIs return per file.
func CountPatchLines(patch string) (additions, deletions int, err error) {
	if !strings.HasPrefix(patch, "@@") {
		// Plain text, not a diff: every line counts as added.
		return strings.Count(strings.TrimSuffix(patch, "\n"), "\n") + 1, 0, nil
	}
	hunks, err := diff.ParseHunks([]byte(patch))
	if err != nil {
		return 0, 0, fmt.Errorf("parsing patch: %w", err)
	}
	for _, h := range hunks {
		for _, line := range bytes.Split(h.Body, []byte("\n")) {
			if len(line) == 0 {
				continue
			}
			switch line[0] {
			case '+':
				additions++
			case '-':
				deletions++
			}
		}
	}
	return additions, deletions, nil
}
