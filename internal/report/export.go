package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JNZader/kirolint/internal/logger"
	"github.com/JNZader/kirolint/internal/metrics"
)

// DefaultDir is where reports go when no path is given.
const DefaultDir = "reports"

// ExportError reports a format that could not be written.
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export %s: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("export %s to %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Exporter writes rendered reports to disk.
type Exporter struct {
	Dir     string
	Metrics *metrics.Collector
	log     *logger.Logger
}

// NewExporter creates an exporter rooted at dir. Metrics may be nil.
func NewExporter(dir string, collector *metrics.Collector) *Exporter {
	if dir == "" {
		dir = DefaultDir
	}
	return &Exporter{
		Dir:     dir,
		Metrics: collector,
		log:     logger.Default().WithPrefix("REPORT"),
	}
}

// DefaultFilename is report-<timestamp>.<ext>, with the timestamp taken from
// the report so that every format of one report shares a name.
func DefaultFilename(report *Report, ext string) string {
	ts := report.Metadata.GeneratedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("report-%s.%s", ts, ext)
}

// Export renders report in format and writes it to path, or to a default
// file under the exporter directory when path is empty. It returns the path
// written.
func (e *Exporter) Export(report *Report, format, path string) (string, error) {
	out, err := e.export(report, format, path)
	if e.Metrics != nil {
		e.Metrics.ObserveExport(format, err)
	}
	if err != nil {
		e.log.Error("%v", err)
		return "", err
	}
	e.log.Info("wrote %s report to %s", format, out)
	return out, nil
}

func (e *Exporter) export(report *Report, format, path string) (string, error) {
	w, err := NewWriter(format)
	if err != nil {
		return "", &ExportError{Format: format, Err: err}
	}
	if path == "" {
		path = filepath.Join(e.Dir, DefaultFilename(report, w.Extension()))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", &ExportError{Format: w.Format(), Path: path, Err: err}
		}
	}

	f, err := os.Create(path) // #nosec G304 - user-provided output path
	if err != nil {
		return "", &ExportError{Format: w.Format(), Path: path, Err: err}
	}
	if err := w.Write(report, f); err != nil {
		_ = f.Close()
		return "", &ExportError{Format: w.Format(), Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &ExportError{Format: w.Format(), Path: path, Err: err}
	}
	return path, nil
}

// ExportAll writes one file per format concurrently. Aliases of one format
// are written once. The returned map holds the paths that were written,
// keyed by canonical format name; the error is the first failure.
func (e *Exporter) ExportAll(ctx context.Context, report *Report, formats []string) (map[string]string, error) {
	formats = uniqueFormats(formats)

	var mu sync.Mutex
	paths := make(map[string]string, len(formats))

	g, gctx := errgroup.WithContext(ctx)
	for _, format := range formats {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path, err := e.Export(report, format, "")
			if err != nil {
				return err
			}
			mu.Lock()
			paths[format] = path
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return paths, err
}

// uniqueFormats maps each format to its canonical name and drops repeats,
// keeping first-seen order. Unknown names pass through so that Export
// reports them.
func uniqueFormats(formats []string) []string {
	seen := make(map[string]bool, len(formats))
	out := make([]string, 0, len(formats))
	for _, format := range formats {
		if w, err := NewWriter(format); err == nil {
			format = w.Format()
		}
		if seen[format] {
			continue
		}
		seen[format] = true
		out = append(out, format)
	}
	return out
}

// Export writes report with a default exporter and no metrics.
func Export(report *Report, format, path string) (string, error) {
	return NewExporter(DefaultDir, nil).Export(report, format, path)
}
