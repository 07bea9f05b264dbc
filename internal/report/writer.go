package report

import (
	"fmt"
	"io"
	"strings"
)

// Writer renders a report in one format.
type Writer interface {
	// Write renders report to w.
	Write(report *Report, w io.Writer) error

	// Format returns the canonical format name.
	Format() string

	// Extension returns the file extension, without the dot.
	Extension() string
}

// NewWriter returns the writer for format.
func NewWriter(format string) (Writer, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONWriter{Indent: true}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "html":
		return &HTMLWriter{}, nil
	case "csv":
		return &CSVWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s", format)
	}
}

// AvailableFormats returns the supported format names.
func AvailableFormats() []string {
	return []string{"json", "markdown", "html", "csv", "sarif"}
}

// Render returns the report rendered in format.
func Render(report *Report, format string) (string, error) {
	w, err := NewWriter(format)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := w.Write(report, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
