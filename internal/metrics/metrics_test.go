package metrics

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	c := NewCollector(false)

	c.ObserveRun(120*time.Millisecond, nil)
	c.ObserveRun(10*time.Millisecond, nil)
	c.ObserveRun(time.Millisecond, errors.New("boom"))

	if v := testutil.ToFloat64(c.Runs.WithLabelValues("success")); v != 2 {
		t.Errorf("runs[success] = %v, want 2", v)
	}
	if v := testutil.ToFloat64(c.Runs.WithLabelValues("error")); v != 1 {
		t.Errorf("runs[error] = %v, want 1", v)
	}
	if n := testutil.CollectAndCount(c.RunDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestObserveReload(t *testing.T) {
	c := NewCollector(false)

	c.ObserveReload(12, 0)
	c.ObserveReload(9, 1)

	if v := testutil.ToFloat64(c.RulesLoaded); v != 9 {
		t.Errorf("rules loaded = %v, want 9", v)
	}
	if v := testutil.ToFloat64(c.RuleReloads.WithLabelValues("partial")); v != 1 {
		t.Errorf("reloads[partial] = %v, want 1", v)
	}
}

func TestWritePrometheus(t *testing.T) {
	c := NewCollector(false)
	c.Findings.WithLabelValues("critical", "security").Add(3)
	c.ObserveExport("json", nil)

	out := c.ExportPrometheus()

	for _, want := range []string{
		"# TYPE kirolint_analysis_findings_total counter",
		`kirolint_analysis_findings_total{category="security",severity="critical"} 3`,
		`kirolint_report_exports_total{format="json",status="success"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q:\n%s", want, out)
		}
	}
}

func TestWriteFile(t *testing.T) {
	c := NewCollector(false)
	c.FilesAnalyzed.Add(4)

	path := filepath.Join(t.TempDir(), "nested", "kirolint.prom")
	if err := c.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "kirolint_analysis_files_total 4") {
		t.Errorf("file content = %s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestExport(t *testing.T) {
	c := NewCollector(false)
	c.RuleErrors.Inc()
	c.ObserveRun(time.Second, nil)

	data, err := c.Export()
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var parsed struct {
		Uptime  string   `json:"uptime"`
		Metrics []Sample `json:"metrics"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	values := make(map[string]float64)
	for _, s := range parsed.Metrics {
		values[s.Name] += s.Value
	}
	if values["kirolint_analysis_rule_errors_total"] != 1 {
		t.Errorf("rule errors = %v, want 1", values["kirolint_analysis_rule_errors_total"])
	}
	if values["kirolint_analysis_duration_seconds_count"] != 1 {
		t.Errorf("duration count = %v, want 1", values["kirolint_analysis_duration_seconds_count"])
	}
	if values["kirolint_analysis_duration_seconds_sum"] != 1 {
		t.Errorf("duration sum = %v, want 1", values["kirolint_analysis_duration_seconds_sum"])
	}
}

func TestSamplesSorted(t *testing.T) {
	c := NewCollector(false)
	c.RulesLoaded.Set(3)
	c.FilesAnalyzed.Inc()

	samples, err := c.Samples()
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(samples); i++ {
		if samples[i-1].Name > samples[i].Name {
			t.Fatalf("samples not sorted at %d: %s > %s", i, samples[i-1].Name, samples[i].Name)
		}
	}
}

func TestGlobal(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() should return the same collector")
	}
	if !strings.Contains(Global().ExportPrometheus(), "go_goroutines") {
		t.Error("global collector should include runtime metrics")
	}
}

func TestUptime(t *testing.T) {
	c := NewCollector(false)
	time.Sleep(5 * time.Millisecond)
	if c.Uptime() < 5*time.Millisecond {
		t.Errorf("Uptime() = %v, want >= 5ms", c.Uptime())
	}
}
