// Package profiler collects CPU and heap profiles for a run and serves a
// debug endpoint with pprof handlers and the Prometheus metrics.
package profiler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JNZader/kirolint/internal/logger"
	"github.com/JNZader/kirolint/internal/metrics"
)

// Profiler handles profile collection for one run.
type Profiler struct {
	cpuFile   *os.File
	memFile   string
	server    *http.Server
	listener  net.Listener
	startTime time.Time
	log       *logger.Logger
}

// Config configures the profiler
type Config struct {
	CPUProfile string // File for CPU profile
	MemProfile string // File for heap profile
	// Addr enables the debug server (e.g. ":6060"). It serves /debug/pprof/,
	// /metrics and /healthz.
	Addr string
	// Metrics is exposed on /metrics; nil means the global collector.
	Metrics *metrics.Collector
}

// New starts the requested profiles and the debug server.
func New(cfg Config) (*Profiler, error) {
	p := &Profiler{
		memFile:   cfg.MemProfile,
		startTime: time.Now(),
		log:       logger.Default().WithPrefix("PROFILER"),
	}

	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU profile: %w", err)
		}
		p.cpuFile = f

		if err := rpprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if cfg.Addr != "" {
		if err := p.serve(cfg); err != nil {
			p.stopCPU()
			return nil, err
		}
	}

	return p, nil
}

func (p *Profiler) serve(cfg Config) error {
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.Global()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}
	p.listener = ln
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error("debug server error: %v", err)
		}
	}()
	p.log.Info("debug server listening on %s", ln.Addr())
	return nil
}

// Addr returns the debug server address, or "" when it is not running.
func (p *Profiler) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

func (p *Profiler) stopCPU() error {
	if p.cpuFile == nil {
		return nil
	}
	rpprof.StopCPUProfile()
	err := p.cpuFile.Close()
	p.cpuFile = nil
	if err != nil {
		return fmt.Errorf("close CPU profile: %w", err)
	}
	return nil
}

// Stop finishes the CPU profile, writes the heap profile and shuts the
// debug server down.
func (p *Profiler) Stop() error {
	var errs []error

	if err := p.stopCPU(); err != nil {
		errs = append(errs, err)
	}

	if p.memFile != "" {
		// Force GC for accurate stats
		runtime.GC()
		if err := writeHeapProfile(p.memFile); err != nil {
			errs = append(errs, err)
		}
	}

	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close debug server: %w", err))
		}
	}

	return errors.Join(errs...)
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create memory profile: %w", err)
	}
	defer f.Close()
	if err := rpprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write memory profile: %w", err)
	}
	return nil
}

// Duration returns the time since profiler started
func (p *Profiler) Duration() time.Duration {
	return time.Since(p.startTime)
}

// MemStats is a snapshot of heap usage.
type MemStats struct {
	HeapAlloc uint64
	Sys       uint64
	NumGC     uint32
}

// Stats returns current memory statistics
func Stats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemStats{HeapAlloc: m.HeapAlloc, Sys: m.Sys, NumGC: m.NumGC}
}

func (m MemStats) String() string {
	return fmt.Sprintf("heap=%s sys=%s gc=%d", formatBytes(m.HeapAlloc), formatBytes(m.Sys), m.NumGC)
}

// formatBytes converts bytes to human-readable format
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
