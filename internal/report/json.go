package report

import (
	"encoding/json"
	"io"
)

// JSONWriter renders the full report structure.
type JSONWriter struct {
	Indent bool
}

func (w *JSONWriter) Format() string    { return "json" }
func (w *JSONWriter) Extension() string { return "json" }

func (w *JSONWriter) Write(report *Report, out io.Writer) error {
	encoder := json.NewEncoder(out)
	if w.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(report)
}
