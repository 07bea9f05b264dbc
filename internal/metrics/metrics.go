// Package metrics collects analysis run metrics in a Prometheus registry.
package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "kirolint"

// Collector owns a private registry and the kirolint metric set.
type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	FilesAnalyzed prometheus.Counter
	Findings      *prometheus.CounterVec
	RuleErrors    prometheus.Counter
	CacheRequests *prometheus.CounterVec
	CacheEntries  prometheus.Gauge
	RulesLoaded   prometheus.Gauge
	RuleReloads   *prometheus.CounterVec
	Exports       *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry. Go runtime
// metrics are included when withRuntime is set.
func NewCollector(withRuntime bool) *Collector {
	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Analysis runs by outcome",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Wall time of one analysis run",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		FilesAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "files_total",
			Help:      "Files analyzed",
		}),
		Findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "findings_total",
			Help:      "Findings by severity and category",
		}, []string{"severity", "category"}),
		RuleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "rule_errors_total",
			Help:      "Rules skipped on a file after failing",
		}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Findings cache lookups by result",
		}, []string{"result"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries held by the findings cache",
		}),
		RulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "loaded",
			Help:      "Rules in the current registry snapshot",
		}),
		RuleReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "reloads_total",
			Help:      "Registry reloads by outcome",
		}, []string{"status"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "exports_total",
			Help:      "Report exports by format and outcome",
		}, []string{"format", "status"}),
	}

	c.registry.MustRegister(
		c.Runs, c.RunDuration, c.FilesAnalyzed, c.Findings, c.RuleErrors,
		c.CacheRequests, c.CacheEntries, c.RulesLoaded, c.RuleReloads, c.Exports,
	)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Uptime returns the duration since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// ObserveRun records the outcome and duration of one run.
func (c *Collector) ObserveRun(d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.Runs.WithLabelValues(status).Inc()
	c.RunDuration.Observe(d.Seconds())
}

// ObserveReload records a registry reload.
func (c *Collector) ObserveReload(rules, failed int) {
	status := "success"
	if failed > 0 {
		status = "partial"
	}
	c.RuleReloads.WithLabelValues(status).Inc()
	c.RulesLoaded.Set(float64(rules))
}

// ObserveExport records one report export.
func (c *Collector) ObserveExport(format string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.Exports.WithLabelValues(format, status).Inc()
}

// WritePrometheus writes every metric family in the text exposition format.
func (c *Collector) WritePrometheus(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// ExportPrometheus returns the text exposition as a string.
func (c *Collector) ExportPrometheus() string {
	var buf bytes.Buffer
	if err := c.WritePrometheus(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// WriteFile writes the text exposition to path, for node_exporter's
// textfile collector.
func (c *Collector) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := c.WritePrometheus(&buf); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Sample is one flattened metric value.
type Sample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Samples flattens counters and gauges, and histogram counts and sums,
// sorted by name.
func (c *Collector) Samples() ([]Sample, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, err
	}
	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := labelMap(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out = append(out, Sample{Name: mf.GetName(), Labels: labels, Value: m.GetCounter().GetValue()})
			case dto.MetricType_GAUGE:
				out = append(out, Sample{Name: mf.GetName(), Labels: labels, Value: m.GetGauge().GetValue()})
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				out = append(out,
					Sample{Name: mf.GetName() + "_count", Labels: labels, Value: float64(h.GetSampleCount())},
					Sample{Name: mf.GetName() + "_sum", Labels: labels, Value: h.GetSampleSum()})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Export returns the samples as indented JSON.
func (c *Collector) Export() ([]byte, error) {
	samples, err := c.Samples()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(struct {
		Uptime  string   `json:"uptime"`
		Metrics []Sample `json:"metrics"`
	}{
		Uptime:  c.Uptime().Round(time.Millisecond).String(),
		Metrics: samples,
	}, "", "  ")
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.GetName()] = p.GetValue()
	}
	return m
}
