package rules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JNZader/kirolint/internal/logger"
)

// Snapshot is an immutable view of the registry taken at one point in time.
// An analysis run reads a single snapshot from start to finish.
type Snapshot struct {
	rules    []*Rule
	byName   map[string]*Rule
	settings GlobalSettings
	version  string
	builtAt  time.Time
}

// Rules returns every rule in registration order.
func (s *Snapshot) Rules() []*Rule {
	return append([]*Rule(nil), s.rules...)
}

// Enabled returns the enabled rules in registration order.
func (s *Snapshot) Enabled() []*Rule {
	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Get looks a rule up by name.
func (s *Snapshot) Get(name string) (*Rule, bool) {
	r, ok := s.byName[name]
	return r, ok
}

// Len is the number of rules, enabled or not.
func (s *Snapshot) Len() int { return len(s.rules) }

// Settings returns the merged global settings of every loaded source.
func (s *Snapshot) Settings() GlobalSettings { return s.settings }

// Version fingerprints the rule content; equal rules give equal versions.
func (s *Snapshot) Version() string { return s.version }

// BuiltAt is when the snapshot was published.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Stats summarizes the snapshot.
func (s *Snapshot) Stats() Stats { return computeStats(s.rules) }

// LoadReport lists which sources loaded and which were skipped.
type LoadReport struct {
	Loaded []string
	Failed []*ConfigurationError
	Rules  int
}

// Err joins every skipped source, or returns nil.
func (r LoadReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Registry owns the rule definitions. Reads go through snapshots; loads
// build a new snapshot off-lock and publish it with a single swap.
type Registry struct {
	mu        sync.RWMutex
	snap      *Snapshot
	overrides map[string]bool // rule name -> enabled
	log       *logger.Logger
	onChange  []func(*Snapshot)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		snap:      newBuilder(nil).build(),
		overrides: make(map[string]bool),
		log:       logger.Default().WithPrefix("RULES"),
	}
}

// NewDefaultRegistry returns a registry holding the built-in rules.
func NewDefaultRegistry(ctx context.Context) (*Registry, LoadReport) {
	r := NewRegistry()
	report := r.Load(ctx, Builtin()...)
	return r, report
}

// OnChange registers fn to be called after every published snapshot.
func (r *Registry) OnChange(fn func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Load merges sources into the current rules. Later definitions with the same
// name overwrite earlier ones. Broken sources are logged and skipped.
func (r *Registry) Load(ctx context.Context, sources ...Source) LoadReport {
	return r.apply(ctx, r.Snapshot(), sources)
}

// Reload replaces the rules with those defined by sources. Snapshots already
// handed out are unaffected.
func (r *Registry) Reload(ctx context.Context, sources ...Source) LoadReport {
	return r.apply(ctx, nil, sources)
}

func (r *Registry) apply(ctx context.Context, base *Snapshot, sources []Source) LoadReport {
	b := newBuilder(base)
	var report LoadReport

	for _, src := range sources {
		set, err := r.readSource(ctx, src)
		if err != nil {
			cerr := &ConfigurationError{Source: src.Name(), Err: err}
			r.log.Warn("Skipping %v", cerr)
			report.Failed = append(report.Failed, cerr)
			continue
		}
		b.add(set)
		report.Loaded = append(report.Loaded, src.Name())
		r.log.Debug("Loaded %d rules from %s", len(set.rules), src.Name())
	}

	snap := r.build(b)
	report.Rules = snap.Len()
	r.publish(snap)
	return report
}

func (r *Registry) readSource(ctx context.Context, src Source) (*compiledSet, error) {
	data, err := src.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}
	spec, err := DecodeRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return compileRuleSet(src.Name(), spec)
}

// Add registers rules defined in code, overwriting by name.
func (r *Registry) Add(rules ...*Rule) {
	b := newBuilder(r.Snapshot())
	for _, rule := range rules {
		b.put(rule.clone())
	}
	r.publish(r.build(b))
}

// SetEnabled switches the named rules on or off and returns the names that
// matched no rule. The switch outlives later Load and Reload calls, and
// applies to a named rule once a later source defines it.
func (r *Registry) SetEnabled(enabled bool, names ...string) []string {
	r.mu.Lock()
	for _, name := range names {
		r.overrides[name] = enabled
	}
	r.mu.Unlock()

	current := r.Snapshot()
	var unknown []string
	for _, name := range names {
		if _, ok := current.Get(name); !ok {
			unknown = append(unknown, name)
		}
	}
	r.publish(r.build(newBuilder(current)))
	return unknown
}

// build applies the enable and disable overrides to b and returns the
// resulting snapshot.
func (r *Registry) build(b *builder) *Snapshot {
	r.mu.RLock()
	for name, enabled := range r.overrides {
		rule, ok := b.rules[name]
		if !ok || rule.Enabled == enabled {
			continue
		}
		c := rule.clone()
		c.Enabled = enabled
		b.put(c)
	}
	r.mu.RUnlock()
	return b.build()
}

func (r *Registry) publish(snap *Snapshot) {
	r.mu.Lock()
	r.snap = snap
	hooks := append([]func(*Snapshot){}, r.onChange...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(snap)
	}
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Get looks a rule up by name in the current snapshot.
func (r *Registry) Get(name string) (*Rule, bool) {
	return r.Snapshot().Get(name)
}

// ListEnabled returns the enabled rules of the current snapshot.
func (r *Registry) ListEnabled() []*Rule {
	return r.Snapshot().Enabled()
}

// Stats summarizes the current snapshot.
func (r *Registry) Stats() Stats {
	return r.Snapshot().Stats()
}

// Len is the number of registered rules.
func (r *Registry) Len() int {
	return r.Snapshot().Len()
}

// builder accumulates rules in first-insertion order.
type builder struct {
	order    []string
	rules    map[string]*Rule
	settings GlobalSettings
}

func newBuilder(base *Snapshot) *builder {
	b := &builder{rules: make(map[string]*Rule)}
	if base == nil {
		return b
	}
	for _, r := range base.rules {
		b.put(r)
	}
	b.settings.DefaultSeverity = base.settings.DefaultSeverity
	b.settings.IgnorePatterns = append([]string(nil), base.settings.IgnorePatterns...)
	return b
}

func (b *builder) put(r *Rule) {
	if _, ok := b.rules[r.Name]; !ok {
		b.order = append(b.order, r.Name)
	}
	b.rules[r.Name] = r
}

func (b *builder) add(set *compiledSet) {
	if set.settings.DefaultSeverity != "" {
		b.settings.DefaultSeverity = set.settings.DefaultSeverity
	}
	for _, p := range set.settings.IgnorePatterns {
		if !containsExact(b.settings.IgnorePatterns, p) {
			b.settings.IgnorePatterns = append(b.settings.IgnorePatterns, p)
		}
	}
	for _, r := range set.rules {
		b.put(r)
	}
}

func (b *builder) build() *Snapshot {
	s := &Snapshot{
		rules:    make([]*Rule, 0, len(b.order)),
		byName:   make(map[string]*Rule, len(b.order)),
		settings: b.settings,
		builtAt:  time.Now(),
	}
	h := sha256.New()
	for _, name := range b.order {
		r := b.rules[name]
		s.rules = append(s.rules, r)
		s.byName[name] = r
		fingerprint(h, r)
	}
	for _, p := range s.settings.IgnorePatterns {
		fmt.Fprintf(h, "ignore|%s\n", p)
	}
	s.version = hex.EncodeToString(h.Sum(nil))[:16]
	return s
}

func fingerprint(w io.Writer, r *Rule) {
	fmt.Fprintf(w, "rule|%s|%s|%s|%t|%t|%s|%s|%q|%q\n",
		r.Name, r.Category, r.Severity, r.Enabled, r.AutoFix, r.FixSuggestion,
		r.CustomCheck, r.FileTypes, r.Exceptions)
	for _, p := range r.Patterns {
		fmt.Fprintf(w, "p|%s|%s|%s|%s|%t\n", p.Expr, p.Flags, p.Message, p.FixSuggestion, p.AutoFix)
	}
	for _, p := range r.AntiPatterns {
		fmt.Fprintf(w, "a|%s|%s\n", p.Expr, p.Flags)
	}
}
