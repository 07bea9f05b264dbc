package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JNZader/kirolint/internal/logger"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// SourceFunc produces the full, ordered source list for a reload.
type SourceFunc func() ([]Source, error)

// Watcher reloads a registry when rule files in a directory change.
type Watcher struct {
	dir      string
	registry *Registry
	sources  SourceFunc
	debounce time.Duration
	watcher  *fsnotify.Watcher
	log      *logger.Logger

	done     chan struct{}
	stopOnce sync.Once
	reloads  chan LoadReport
}

// NewWatcher watches dir and rebuilds registry from sources on change.
func NewWatcher(dir string, registry *Registry, sources SourceFunc, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return &Watcher{
		dir:      dir,
		registry: registry,
		sources:  sources,
		debounce: debounce,
		watcher:  fw,
		log:      logger.Default().WithPrefix("RULES"),
		done:     make(chan struct{}),
		reloads:  make(chan LoadReport, 1),
	}, nil
}

// Reloads delivers the report of each reload. Reports are dropped when
// nobody is reading.
func (w *Watcher) Reloads() <-chan LoadReport {
	return w.reloads
}

// Start begins watching until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	go w.loop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsRuleFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug("Rule file changed: %s (%s)", event.Name, event.Op)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			w.reload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	sources, err := w.sources()
	if err != nil {
		w.log.Error("Listing rule sources: %v", err)
		return
	}
	report := w.registry.Reload(ctx, sources...)
	w.log.Info("Reloaded %d rules (%d sources, %d skipped)",
		report.Rules, len(report.Loaded), len(report.Failed))

	select {
	case w.reloads <- report:
	default:
	}
}
