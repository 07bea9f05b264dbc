package rules

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

//go:embed defaults/*.yaml
var embeddedDefaults embed.FS

//go:embed seed/*.yaml
var embeddedSeed embed.FS

// Source yields the raw bytes of one rule set.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
}

// FileSource reads a rule set from a local file.
type FileSource string

func (f FileSource) Name() string { return string(f) }

func (f FileSource) Read(_ context.Context) ([]byte, error) {
	return os.ReadFile(string(f)) //nolint:gosec // Path comes from config
}

// BytesSource serves an in-memory rule set.
type BytesSource struct {
	Label string
	Data  []byte
}

func (b BytesSource) Name() string { return b.Label }

func (b BytesSource) Read(_ context.Context) ([]byte, error) {
	return b.Data, nil
}

type embeddedSource struct {
	fsys fs.FS
	path string
}

func (e embeddedSource) Name() string { return "built-in:" + path.Base(e.path) }

func (e embeddedSource) Read(_ context.Context) ([]byte, error) {
	return fs.ReadFile(e.fsys, e.path)
}

// URLSource fetches a shared rule set over HTTPS.
type URLSource struct {
	URL    string
	Client *http.Client
}

func (u URLSource) Name() string { return u.URL }

func (u URLSource) Read(ctx context.Context) ([]byte, error) {
	if !strings.HasPrefix(u.URL, "https://") {
		return nil, fmt.Errorf("insecure URL (must use HTTPS): %s", u.URL)
	}
	client := u.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "kirolint/1.0")
	req.Header.Set("Accept", "application/yaml, text/yaml, application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
}

// Builtin returns the rules that ship with the binary.
func Builtin() []Source {
	return embeddedSources(embeddedDefaults, "defaults")
}

// Seed returns the starter rule sets written on first run.
func Seed() []Source {
	return embeddedSources(embeddedSeed, "seed")
}

func embeddedSources(fsys embed.FS, dir string) []Source {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil
	}
	sources := make([]Source, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sources = append(sources, embeddedSource{fsys: fsys, path: dir + "/" + entry.Name()})
	}
	return sources
}

// SourceFor maps a configured location to a Source.
func SourceFor(location string) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return URLSource{URL: location}
	}
	return FileSource(location)
}

// IsRuleFile reports whether name has a rule-set extension.
func IsRuleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// DirSources lists the rule files in dir in name order. A missing dir is
// created and seeded with the starter rule sets first.
func DirSources(dir string) ([]Source, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := Bootstrap(dir); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading rules dir: %w", err)
	}

	var sources []Source
	for _, entry := range entries {
		if entry.IsDir() || !IsRuleFile(entry.Name()) {
			continue
		}
		sources = append(sources, FileSource(filepath.Join(dir, entry.Name())))
	}
	return sources, nil
}

// Bootstrap creates dir and writes the starter rule sets into it. Existing
// files are left untouched.
func Bootstrap(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating rules dir: %w", err)
	}
	for _, src := range Seed() {
		es := src.(embeddedSource)
		target := filepath.Join(dir, path.Base(es.path))
		if _, err := os.Stat(target); err == nil {
			continue
		}
		data, err := es.Read(context.Background())
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", target, err)
		}
	}
	return nil
}
