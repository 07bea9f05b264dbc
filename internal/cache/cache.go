// Package cache stores per-file findings so unchanged files are not
// rescanned under an unchanged rule set.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/JNZader/kirolint/internal/matcher"
)

// Cache holds the findings of one file under one rule-set version.
type Cache interface {
	// Get returns the cached findings for key. A miss is (nil, false, nil).
	Get(key string) ([]matcher.Finding, bool, error)

	// Set stores findings under key.
	Set(key string, findings []matcher.Finding) error

	// Clear removes all entries.
	Clear() error

	// Stats reports lookups since open and the current entry count.
	Stats() Stats

	// Close releases resources.
	Close() error
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// HitRate returns hits as a percentage of lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// ComputeKey derives a key from the rule-set version, filename and the
// scanned text. A rule change alters the version and so invalidates every key.
func ComputeKey(version, filename, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", version, filename)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Options selects and configures a backend.
type Options struct {
	Backend    string // memory or badger
	Dir        string
	TTL        time.Duration
	MaxEntries int
}

// New opens the configured backend.
func New(opts Options) (Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	switch opts.Backend {
	case "", "memory":
		if opts.MaxEntries <= 0 {
			opts.MaxEntries = 1000
		}
		return NewLRUCache(opts.MaxEntries, opts.TTL), nil
	case "badger":
		c, err := NewBadgerCache(opts.Dir, opts.TTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
