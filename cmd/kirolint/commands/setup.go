package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JNZader/kirolint/internal/cache"
	"github.com/JNZader/kirolint/internal/config"
	"github.com/JNZader/kirolint/internal/history"
	"github.com/JNZader/kirolint/internal/logger"
	"github.com/JNZader/kirolint/internal/matcher"
	"github.com/JNZader/kirolint/internal/metrics"
	"github.com/JNZader/kirolint/internal/rules"
)

var cliLog = logger.Default().WithPrefix("CLI")

// ruleSources returns the ordered sources for cfg: built-ins, then the rules
// directory, then the explicitly listed files and URLs.
func ruleSources(cfg *config.Config) rules.SourceFunc {
	return func() ([]rules.Source, error) {
		var sources []rules.Source
		if cfg.Rules.Builtin {
			sources = append(sources, rules.Builtin()...)
		}
		if cfg.Rules.Dir != "" {
			dirSources, err := rules.DirSources(cfg.Rules.Dir)
			if err != nil {
				return nil, fmt.Errorf("rules dir %s: %w", cfg.Rules.Dir, err)
			}
			sources = append(sources, dirSources...)
		}
		for _, loc := range cfg.Rules.Sources {
			sources = append(sources, rules.SourceFor(loc))
		}
		return sources, nil
	}
}

// buildRegistry loads every configured source and applies the enable and
// disable lists. Broken sources are skipped and reported, never fatal.
func buildRegistry(ctx context.Context, cfg *config.Config, collector *metrics.Collector) (*rules.Registry, rules.LoadReport, error) {
	sources, err := ruleSources(cfg)()
	if err != nil {
		return nil, rules.LoadReport{}, err
	}

	registry := rules.NewRegistry()
	report := registry.Reload(ctx, sources...)
	applyToggles(registry, cfg)
	if collector != nil {
		collector.ObserveReload(registry.Len(), len(report.Failed))
	}
	return registry, report, nil
}

func applyToggles(registry *rules.Registry, cfg *config.Config) {
	if len(cfg.Rules.Enable) > 0 {
		for _, name := range registry.SetEnabled(true, cfg.Rules.Enable...) {
			cliLog.Warn("Cannot enable unknown rule %s", name)
		}
	}
	if len(cfg.Rules.Disable) > 0 {
		for _, name := range registry.SetEnabled(false, cfg.Rules.Disable...) {
			cliLog.Warn("Cannot disable unknown rule %s", name)
		}
	}
}

// buildChecks registers the built-in custom checks with configured limits.
func buildChecks(cfg *config.Config) *matcher.CheckRegistry {
	return matcher.BuiltinChecks(cfg.Analysis.MaxLoopDepth, cfg.Analysis.MaxFileLines)
}

// newCollector returns the process collector when metrics are enabled and a
// private one otherwise, so instrumentation never needs nil checks.
func newCollector(cfg *config.Config) *metrics.Collector {
	if cfg.Metrics.Enabled {
		return metrics.Global()
	}
	return metrics.NewCollector(false)
}

// openCache returns nil when caching is off.
func openCache(cfg *config.Config, disabled bool) (cache.Cache, error) {
	if !cfg.Cache.Enabled || disabled {
		return nil, nil
	}
	return cache.New(cache.Options{
		Backend:    cfg.Cache.Backend,
		Dir:        cfg.Cache.Dir,
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	})
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0o750); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	store, err := history.NewStore(history.StoreConfig{Path: cfg.History.Path})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	return store, nil
}
