package metrics

import "sync"

var (
	globalCollector *Collector
	once            sync.Once
)

// Global returns the process-wide collector, with runtime metrics.
func Global() *Collector {
	once.Do(func() {
		globalCollector = NewCollector(true)
	})
	return globalCollector
}
