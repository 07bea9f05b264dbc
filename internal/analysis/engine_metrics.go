package analysis

import (
	"context"
	"time"

	"github.com/JNZader/kirolint/internal/metrics"
)

// InstrumentedEngine wraps Engine with metrics collection.
type InstrumentedEngine struct {
	engine    *Engine
	collector *metrics.Collector
}

// NewInstrumentedEngine creates an engine reporting to the global collector.
func NewInstrumentedEngine(engine *Engine) *InstrumentedEngine {
	return NewInstrumentedEngineWithCollector(engine, metrics.Global())
}

// NewInstrumentedEngineWithCollector creates an engine with a custom collector.
func NewInstrumentedEngineWithCollector(engine *Engine, collector *metrics.Collector) *InstrumentedEngine {
	return &InstrumentedEngine{
		engine:    engine,
		collector: collector,
	}
}

// Analyze runs the wrapped engine and records the run.
func (ie *InstrumentedEngine) Analyze(ctx context.Context, files []FileChange, pr PRContext) (*Result, error) {
	start := time.Now()
	ie.collector.RulesLoaded.Set(float64(ie.engine.Snapshot().Len()))

	result, err := ie.engine.Analyze(ctx, files, pr)
	ie.collector.ObserveRun(time.Since(start), err)
	if err != nil {
		return result, err
	}

	ie.collector.FilesAnalyzed.Add(float64(result.FilesAnalyzed))
	ie.collector.RuleErrors.Add(float64(len(result.RuleErrors)))
	for _, f := range result.Findings {
		ie.collector.Findings.WithLabelValues(string(f.Severity), string(f.Category)).Inc()
	}
	if ie.engine.cache != nil {
		ie.collector.CacheRequests.WithLabelValues("hit").Add(float64(result.CacheHits))
		ie.collector.CacheRequests.WithLabelValues("miss").Add(float64(result.FilesAnalyzed - result.FilesIgnored - result.CacheHits))
		ie.collector.CacheEntries.Set(float64(ie.engine.cache.Stats().Entries))
	}
	return result, nil
}

// Collector returns the collector receiving the metrics.
func (ie *InstrumentedEngine) Collector() *metrics.Collector {
	return ie.collector
}
