// Package worker runs analysis tasks on a bounded set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotStarted is returned when submitting to a pool that is not running.
var ErrNotStarted = errors.New("pool not started")

// Task is a unit of work executed by a worker.
type Task interface {
	Execute(ctx context.Context) error
	ID() string
}

// Result reports the outcome of one task.
type Result struct {
	TaskID   string
	Error    error
	Duration time.Duration
}

// PanicError wraps a panic raised by a task. The worker survives it.
type PanicError struct {
	TaskID string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.TaskID, e.Value)
}

// Pool manages a fixed set of workers.
type Pool struct {
	workers   int
	tasks     chan Task
	results   chan Result
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   atomic.Bool
	stopOnce  sync.Once
	processed atomic.Int64
	errors    atomic.Int64
	panics    atomic.Int64
}

// Config configures the worker pool.
type Config struct {
	Workers   int // default: GOMAXPROCS
	QueueSize int // default: workers * 2
}

// NewPool creates a pool bound to parent. Cancelling parent stops the
// workers after their current task.
func NewPool(parent context.Context, cfg Config) *Pool {
	if parent == nil {
		parent = context.Background()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}

	ctx, cancel := context.WithCancel(parent)

	return &Pool{
		workers: cfg.Workers,
		tasks:   make(chan Task, cfg.QueueSize),
		results: make(chan Result, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	if p.started.Swap(true) {
		return
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return

		case task, ok := <-p.tasks:
			if !ok {
				return
			}

			start := time.Now()
			err := p.execute(task)

			p.processed.Add(1)
			if err != nil {
				p.errors.Add(1)
			}

			select {
			case p.results <- Result{TaskID: task.ID(), Error: err, Duration: time.Since(start)}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			err = &PanicError{TaskID: task.ID(), Value: r, Stack: debug.Stack()}
		}
	}()
	return task.Execute(p.ctx)
}

// Submit queues a task, blocking while the queue is full.
func (p *Pool) Submit(task Task) error {
	if !p.started.Load() {
		return ErrNotStarted
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Results returns the results channel. It is closed once the pool stops.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Stop cancels in-flight work and waits for the workers to exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.tasks)
		p.wg.Wait()
		close(p.results)
	})
}

// StopWait drains the queue before stopping. Results must be consumed
// concurrently or the queue must fit in the results buffer.
func (p *Pool) StopWait() {
	p.stopOnce.Do(func() {
		close(p.tasks)
		p.wg.Wait()
		p.cancel()
		close(p.results)
	})
}

// Run executes tasks on a fresh pool and returns their results keyed by
// task ID. It returns early with ctx's error if ctx is cancelled.
func Run(ctx context.Context, cfg Config, tasks []Task) (map[string]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.QueueSize < len(tasks) {
		cfg.QueueSize = len(tasks)
	}
	pool := NewPool(ctx, cfg)
	pool.Start()

	for _, t := range tasks {
		if err := pool.Submit(t); err != nil {
			pool.Stop()
			return nil, err
		}
	}

	results := make(map[string]Result, len(tasks))
	for len(results) < len(tasks) {
		select {
		case r := <-pool.Results():
			results[r.TaskID] = r
		case <-ctx.Done():
			pool.Stop()
			return results, ctx.Err()
		}
	}
	pool.StopWait()
	return results, nil
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Processed: p.processed.Load(),
		Errors:    p.errors.Load(),
		Panics:    p.panics.Load(),
		Pending:   len(p.tasks),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Workers   int
	Processed int64
	Errors    int64
	Panics    int64
	Pending   int
}

func (s Stats) String() string {
	return fmt.Sprintf("workers=%d processed=%d errors=%d panics=%d pending=%d",
		s.Workers, s.Processed, s.Errors, s.Panics, s.Pending)
}
