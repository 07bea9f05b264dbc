package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JNZader/kirolint/internal/cache"
	"github.com/JNZader/kirolint/internal/logger"
	"github.com/JNZader/kirolint/internal/matcher"
	"github.com/JNZader/kirolint/internal/rules"
	"github.com/JNZader/kirolint/internal/worker"
)

const DefaultWorkers = 4

// Options tunes an Engine. The zero value is usable.
type Options struct {
	Workers        int
	Limits         Limits
	IgnorePatterns []string
	Cache          cache.Cache
	Checks         *matcher.CheckRegistry
	Clock          func() time.Time
}

// Engine orchestrates an analysis run over a registry snapshot.
type Engine struct {
	registry *rules.Registry
	matcher  *matcher.Matcher
	cache    cache.Cache
	opts     Options
	log      *logger.Logger
}

// NewEngine creates an engine reading rules from registry.
func NewEngine(registry *rules.Registry, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		registry: registry,
		matcher:  matcher.New(opts.Checks),
		cache:    opts.Cache,
		opts:     opts,
		log:      logger.Default().WithPrefix("ANALYSIS"),
	}
}

// fileResult is the outcome of analyzing one file.
type fileResult struct {
	findings []matcher.Finding
	errors   []RuleError
	cached   bool
}

// fileTask implements worker.Task for one file.
type fileTask struct {
	id       string
	file     FileChange
	rules    []*rules.Rule
	version  string
	engine   *Engine
	result   *fileResult
	resultMu sync.Mutex
}

func (t *fileTask) ID() string {
	return t.id
}

func (t *fileTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result := t.engine.analyzeFile(t.file, t.rules, t.version)
	t.resultMu.Lock()
	t.result = result
	t.resultMu.Unlock()
	return nil
}

func (t *fileTask) Result() *fileResult {
	t.resultMu.Lock()
	defer t.resultMu.Unlock()
	return t.result
}

// Analyze validates files, runs every enabled rule over every file that is
// not removed, and aggregates the findings. Files matched by an ignore glob
// count as analyzed but no rule runs over them. Validation failures
// return a *ValidationError before any work starts; rule failures are
// recorded in Result.RuleErrors and never fail the run.
func (e *Engine) Analyze(ctx context.Context, files []FileChange, pr PRContext) (*Result, error) {
	start := time.Now()

	files, err := prepare(files, e.opts.Limits)
	if err != nil {
		return nil, err
	}

	snap := e.registry.Snapshot()
	enabled := snap.Enabled()
	ignore := append(append([]string(nil), snap.Settings().IgnorePatterns...), e.opts.IgnorePatterns...)

	result := NewResult()
	result.RulesApplied = snap.Len()
	result.RulesetVersion = snap.Version()

	toAnalyze, ignored := e.filterFiles(files, ignore)
	result.FilesAnalyzed = len(toAnalyze) + ignored
	result.FilesIgnored = ignored
	if len(toAnalyze) == 0 {
		e.log.Info("No analyzable files in batch")
		result.Duration = time.Since(start)
		return result, nil
	}

	version := snap.Version()
	if e.cache != nil {
		version += "+" + e.matcher.Checks().Fingerprint()
	}

	tasks := make([]*fileTask, len(toAnalyze))
	poolTasks := make([]worker.Task, len(toAnalyze))
	for i, f := range toAnalyze {
		tasks[i] = &fileTask{
			id:      fmt.Sprintf("analyze:%d:%s", i, f.Filename),
			file:    f,
			rules:   enabled,
			version: version,
			engine:  e,
		}
		poolTasks[i] = tasks[i]
	}

	e.log.Debug("Analyzing %d files against %d rules with %d workers",
		len(toAnalyze), len(enabled), e.opts.Workers)

	outcomes, err := worker.Run(ctx, worker.Config{Workers: e.opts.Workers}, poolTasks)
	if err != nil {
		e.log.Warn("Analysis cancelled: %v", err)
		return nil, err
	}

	e.collectResults(tasks, outcomes, pr, result)
	result.Duration = time.Since(start)

	e.log.Info("Analysis completed: %d files, %d rules, %d issues, %d rule errors in %v",
		result.FilesAnalyzed, result.RulesApplied, result.TotalIssues, len(result.RuleErrors), result.Duration)

	return result, nil
}

// collectResults merges per-file results in file order and stamps every
// finding with the PR number and one run timestamp.
func (e *Engine) collectResults(tasks []*fileTask, outcomes map[string]worker.Result, pr PRContext, result *Result) {
	now := e.opts.Clock().UTC()
	seen := make(map[string]bool)

	for _, task := range tasks {
		fr := task.Result()
		if fr == nil {
			// The task itself failed, which only happens on a panic outside
			// rule evaluation.
			msg := "no result"
			if o, ok := outcomes[task.ID()]; ok && o.Error != nil {
				msg = o.Error.Error()
			}
			result.RuleErrors = append(result.RuleErrors, RuleError{File: task.file.Filename, Message: msg})
			continue
		}
		if fr.cached {
			result.CacheHits++
		}
		for _, f := range fr.findings {
			f.PRNumber = pr.Number
			f.Timestamp = now
			result.Add(f)
			seen[f.RuleName] = true
		}
		result.RuleErrors = append(result.RuleErrors, fr.errors...)
	}
	result.RulesWithFindings = len(seen)
}

// filterFiles drops removed files and returns the files rules run over,
// plus the number of files skipped by an ignore glob.
func (e *Engine) filterFiles(files []FileChange, ignore []string) ([]FileChange, int) {
	out := make([]FileChange, 0, len(files))
	ignored := 0
	for _, f := range files {
		if f.Removed() {
			continue
		}
		if rules.Ignored(ignore, f.Filename) {
			e.log.Debug("Ignoring file: %s", f.Filename)
			ignored++
			continue
		}
		out = append(out, f)
	}
	return out, ignored
}

// analyzeFile applies each applicable rule in snapshot order. Findings are
// ordered by rule, then by position within the rule.
func (e *Engine) analyzeFile(file FileChange, enabled []*rules.Rule, version string) *fileResult {
	text := file.Text()

	var key string
	if e.cache != nil {
		key = cache.ComputeKey(version, file.Filename, text)
		if cached, found, err := e.cache.Get(key); err == nil && found {
			e.log.Debug("Cache hit for %s", file.Filename)
			return &fileResult{findings: cached, cached: true}
		} else if err != nil {
			e.log.Warn("Cache read failed for %s: %v", file.Filename, err)
		}
	}

	doc := matcher.NewDocument(file.Filename, text)
	result := &fileResult{}

	for _, rule := range enabled {
		if !rule.AppliesTo(file.Filename) {
			continue
		}
		findings, err := e.evaluate(rule, doc)
		if err != nil {
			cause := err
			var rerr *RuleExecutionError
			if errors.As(err, &rerr) {
				cause = rerr.Err
			}
			e.log.WithFields(map[string]interface{}{
				"rule": rule.Name,
				"file": file.Filename,
			}).Warn("Rule skipped: %v", cause)
			result.errors = append(result.errors, RuleError{
				Rule:    rule.Name,
				File:    file.Filename,
				Message: err.Error(),
			})
		}
		sort.SliceStable(findings, func(i, j int) bool {
			if findings[i].Line != findings[j].Line {
				return findings[i].Line < findings[j].Line
			}
			return findings[i].Column < findings[j].Column
		})
		result.findings = append(result.findings, findings...)
	}

	// Partial results are not cached.
	if e.cache != nil && len(result.errors) == 0 {
		if err := e.cache.Set(key, result.findings); err != nil {
			e.log.Warn("Cache write failed for %s: %v", file.Filename, err)
		}
	}
	return result
}

// evaluate isolates a panic in one rule to that rule and file.
func (e *Engine) evaluate(rule *rules.Rule, doc *matcher.Document) (findings []matcher.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = &RuleExecutionError{
				Rule: rule.Name,
				File: doc.Filename,
				Err:  fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return e.matcher.Evaluate(rule, doc)
}

// Snapshot exposes the registry snapshot the next run would use.
func (e *Engine) Snapshot() *rules.Snapshot {
	return e.registry.Snapshot()
}
