package profiler

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JNZader/kirolint/internal/metrics"
)

func TestNew_Profiles(t *testing.T) {
	dir := t.TempDir()
	cpuFile := filepath.Join(dir, "cpu.prof")
	memFile := filepath.Join(dir, "mem.prof")

	p, err := New(Config{CPUProfile: cpuFile, MemProfile: memFile})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Do some work
	sum := 0
	for i := 0; i < 100000; i++ {
		sum += i
	}
	_ = sum

	if err := p.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	for _, f := range []string{cpuFile, memFile} {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			t.Errorf("%s was not created", filepath.Base(f))
		}
	}
}

func TestNew_InvalidCPUPath(t *testing.T) {
	_, err := New(Config{
		CPUProfile: "/nonexistent/path/cpu.prof",
	})
	if err == nil {
		t.Error("Expected error for invalid CPU profile path")
	}
}

func TestStop_InvalidMemPath(t *testing.T) {
	p, err := New(Config{MemProfile: "/nonexistent/path/mem.prof"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := p.Stop(); err == nil {
		t.Error("Stop() should report the heap profile failure")
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) // #nosec G107 - test server URL
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestDebugServer(t *testing.T) {
	collector := metrics.NewCollector(false)
	collector.ObserveRun(time.Second, nil)

	p, err := New(Config{Addr: "127.0.0.1:0", Metrics: collector})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Stop()

	base := "http://" + p.Addr()

	code, body := get(t, base+"/healthz")
	if code != http.StatusOK || body != "ok\n" {
		t.Errorf("/healthz = %d %q", code, body)
	}

	code, body = get(t, base+"/metrics")
	if code != http.StatusOK {
		t.Errorf("/metrics status = %d", code)
	}
	if !strings.Contains(body, `kirolint_analysis_runs_total{status="success"} 1`) {
		t.Errorf("/metrics missing run counter:\n%s", body)
	}

	code, _ = get(t, base+"/debug/pprof/")
	if code != http.StatusOK {
		t.Errorf("/debug/pprof/ status = %d", code)
	}
}

func TestDebugServer_AddrInUse(t *testing.T) {
	first, err := New(Config{Addr: "127.0.0.1:0", Metrics: metrics.NewCollector(false)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer first.Stop()

	if _, err := New(Config{Addr: first.Addr(), Metrics: metrics.NewCollector(false)}); err == nil {
		t.Error("New() on a busy address should fail")
	}
}

func TestAddr_NoServer(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Stop()
	if p.Addr() != "" {
		t.Errorf("Addr() = %q, want empty", p.Addr())
	}
}

func TestStats(t *testing.T) {
	stats := Stats()

	if stats.Sys == 0 {
		t.Error("Sys should be > 0")
	}
	if stats.HeapAlloc == 0 {
		t.Error("HeapAlloc should be > 0")
	}
}

func TestMemStats_String(t *testing.T) {
	stats := MemStats{
		HeapAlloc: 512 * 1024,
		Sys:       10 * 1024 * 1024,
		NumGC:     5,
	}

	want := "heap=512.0 KiB sys=10.0 MiB gc=5"
	if got := stats.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    uint64
		expected string
	}{
		{500, "500 B"},
		{1024, "1.0 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
	}

	for _, tc := range tests {
		result := formatBytes(tc.bytes)
		if result != tc.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tc.bytes, result, tc.expected)
		}
	}
}

func TestProfiler_Duration(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	duration := p.Duration()
	if duration < 10*time.Millisecond {
		t.Errorf("Duration() = %v, expected >= 10ms", duration)
	}

	p.Stop()
}
