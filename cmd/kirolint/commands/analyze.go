package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/JNZader/kirolint/internal/analysis"
	"github.com/JNZader/kirolint/internal/config"
	"github.com/JNZader/kirolint/internal/git"
	"github.com/JNZader/kirolint/internal/metrics"
	"github.com/JNZader/kirolint/internal/profiler"
	"github.com/JNZader/kirolint/internal/report"
)

// errMergeBlocked is returned with --fail-on-gate when the merge gate blocks.
var errMergeBlocked = errors.New("merge blocked")

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Analyze changed files against the rule sets",
	Long: `Analyze a batch of changed files and write the report.

Input is one of: file paths (read from disk), --batch with a JSON file batch,
--diff with a unified diff, or a diff taken from the local git repository
with --staged, --git-base or --commit. Use "-" to read the batch or diff
from stdin.

Examples:
  # Analyze files on disk
  kirolint analyze src/app.js src/config.js

  # Analyze the current branch as a pull request into main
  kirolint analyze --git-base main

  # Analyze a diff and print markdown
  git diff main | kirolint analyze --diff - --stdout markdown

  # Analyze a batch with PR context, fail when the merge gate blocks
  kirolint analyze --batch files.json --pr 42 --repo acme/web --fail-on-gate

  # Merge an external review and write HTML and SARIF
  kirolint analyze --batch files.json --review review.json -f html -f sarif`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Input flags
	analyzeCmd.Flags().String("batch", "", "JSON file batch to analyze (- for stdin)")
	analyzeCmd.Flags().String("diff", "", "Unified diff to analyze (- for stdin)")
	analyzeCmd.Flags().Bool("staged", false, "Analyze the staged changes of the local repository")
	analyzeCmd.Flags().String("git-base", "", "Analyze the local branch against this base branch")
	analyzeCmd.Flags().String("commit", "", "Analyze one commit of the local repository")
	analyzeCmd.Flags().String("review", "", "External review JSON to merge into the report")

	// PR context
	analyzeCmd.Flags().Int("pr", 0, "Pull request number")
	analyzeCmd.Flags().String("repo", "", "Repository name")
	analyzeCmd.Flags().String("branch", "", "Head branch")
	analyzeCmd.Flags().String("base", "", "Base branch")
	analyzeCmd.Flags().String("title", "", "Pull request title")
	analyzeCmd.Flags().String("author", "", "Pull request author")

	// Output flags
	analyzeCmd.Flags().StringSliceP("format", "f", nil, "Report formats to write (json, markdown, html, csv, sarif)")
	analyzeCmd.Flags().StringP("output-dir", "o", "", "Directory for report files")
	analyzeCmd.Flags().String("stdout", "", "Print the report in this format instead of writing files")
	analyzeCmd.Flags().Bool("fail-on-gate", false, "Exit with status 2 when the merge gate blocks")

	// Behavior flags
	analyzeCmd.Flags().Int("workers", 0, "Files analyzed in parallel (0=config)")
	analyzeCmd.Flags().Bool("no-cache", false, "Disable the findings cache")
	analyzeCmd.Flags().Bool("no-history", false, "Do not record this run")

	// Profiling flags
	analyzeCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	analyzeCmd.Flags().String("memprofile", "", "Write memory profile to file")
	analyzeCmd.Flags().String("debug-addr", "", "Serve pprof and /metrics on this address (e.g., :6060)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := validateAnalyzeFlags(cmd, args); err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	applyAnalyzeOverrides(cmd, cfg)

	collector := newCollector(cfg)

	prof, err := startProfiler(cmd, collector)
	if err != nil {
		return err
	}
	if prof != nil {
		defer func() {
			if err := prof.Stop(); err != nil {
				cliLog.Warn("Failed to stop profiler: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	files, err := readAnalyzeInput(ctx, cmd, args)
	if err != nil {
		return err
	}

	registry, loadReport, err := buildRegistry(ctx, cfg, collector)
	if err != nil {
		return err
	}
	if !isQuiet() && len(loadReport.Failed) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: skipped %d rule sources\n", len(loadReport.Failed))
	}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	findingsCache, err := openCache(cfg, noCache)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	if findingsCache != nil {
		defer findingsCache.Close()
	}

	engine := analysis.NewInstrumentedEngineWithCollector(analysis.NewEngine(registry, analysis.Options{
		Workers: cfg.Analysis.Workers,
		Limits: analysis.Limits{
			MaxFiles:   cfg.Analysis.MaxFiles,
			MaxChanges: cfg.Analysis.MaxChanges,
		},
		IgnorePatterns: cfg.Analysis.IgnorePatterns,
		Cache:          findingsCache,
		Checks:         buildChecks(cfg),
	}), collector)

	pr := prContext(cmd)
	if pr.Branch == "" && usesGit(cmd) {
		pr.Branch = currentBranch(ctx)
	}
	if pr.BaseBranch == "" {
		pr.BaseBranch, _ = cmd.Flags().GetString("git-base")
	}
	result, err := engine.Analyze(ctx, files, pr)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if isVerbose() && findingsCache != nil {
		st := findingsCache.Stats()
		fmt.Fprintf(cmd.ErrOrStderr(), "Cache: %d hits, %d misses, %d entries (%.0f%% hit rate)\n",
			st.Hits, st.Misses, st.Entries, st.HitRate())
	}

	review, err := readReview(cmd)
	if err != nil {
		return err
	}

	rep := buildReport(ctx, cmd, cfg, review, result, pr)

	if format, _ := cmd.Flags().GetString("stdout"); format != "" {
		out, err := report.Render(rep, format)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
	} else {
		if err := exportReports(ctx, cmd, cfg, rep, collector); err != nil {
			return err
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.File != "" {
		if err := collector.WriteFile(cfg.Metrics.File); err != nil {
			cliLog.Warn("Failed to write metrics: %v", err)
		}
	}

	if isVerbose() && prof != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Memory after run: %s\n", profiler.Stats())
	}

	failOnGate, _ := cmd.Flags().GetBool("fail-on-gate")
	if failOnGate && rep.Summary.Gate.Blocked {
		return fmt.Errorf("%w: %s", errMergeBlocked, rep.Summary.Gate.Reason)
	}
	return nil
}

func validateAnalyzeFlags(cmd *cobra.Command, args []string) error {
	batch, _ := cmd.Flags().GetString("batch")
	diff, _ := cmd.Flags().GetString("diff")
	staged, _ := cmd.Flags().GetBool("staged")
	gitBase, _ := cmd.Flags().GetString("git-base")
	commit, _ := cmd.Flags().GetString("commit")

	inputs := 0
	for _, set := range []bool{batch != "", diff != "", len(args) > 0, staged, gitBase != "", commit != ""} {
		if set {
			inputs++
		}
	}
	if inputs == 0 {
		return fmt.Errorf("no input: pass file paths, --batch, --diff, --staged, --git-base or --commit")
	}
	if inputs > 1 {
		return fmt.Errorf("file paths, --batch, --diff and the git inputs are mutually exclusive")
	}

	if format, _ := cmd.Flags().GetString("stdout"); format != "" {
		if _, err := report.NewWriter(format); err != nil {
			return err
		}
	}
	return nil
}

// applyAnalyzeOverrides copies explicitly set flags over the config.
func applyAnalyzeOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("workers") {
		cfg.Analysis.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("format") {
		cfg.Report.Formats, _ = cmd.Flags().GetStringSlice("format")
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Report.OutputDir, _ = cmd.Flags().GetString("output-dir")
	}
	if noHistory, _ := cmd.Flags().GetBool("no-history"); noHistory {
		cfg.History.Enabled = false
	}
}

func startProfiler(cmd *cobra.Command, collector *metrics.Collector) (*profiler.Profiler, error) {
	cpuProfile, _ := cmd.Flags().GetString("cpuprofile")
	memProfile, _ := cmd.Flags().GetString("memprofile")
	addr, _ := cmd.Flags().GetString("debug-addr")
	if cpuProfile == "" && memProfile == "" && addr == "" {
		return nil, nil
	}

	prof, err := profiler.New(profiler.Config{
		CPUProfile: cpuProfile,
		MemProfile: memProfile,
		Addr:       addr,
		Metrics:    collector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start profiler: %w", err)
	}
	if addr != "" && !isQuiet() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Debug server listening on %s\n", prof.Addr())
	}
	return prof, nil
}

// readAnalyzeInput resolves the one input source validateAnalyzeFlags allowed.
func readAnalyzeInput(ctx context.Context, cmd *cobra.Command, args []string) ([]analysis.FileChange, error) {
	if len(args) > 0 {
		return analysis.ReadFiles(args)
	}
	if usesGit(cmd) {
		data, err := gitDiff(ctx, cmd)
		if err != nil {
			return nil, err
		}
		return analysis.ParseUnifiedDiff(data)
	}

	if batch, _ := cmd.Flags().GetString("batch"); batch != "" {
		r, closeFn, err := openInput(cmd, batch)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		return analysis.DecodeBatch(r)
	}

	diff, _ := cmd.Flags().GetString("diff")
	r, closeFn, err := openInput(cmd, diff)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading diff: %w", err)
	}
	return analysis.ParseUnifiedDiff(data)
}

func usesGit(cmd *cobra.Command) bool {
	staged, _ := cmd.Flags().GetBool("staged")
	return staged || cmd.Flags().Changed("git-base") || cmd.Flags().Changed("commit")
}

// gitDiff reads the diff selected by the git input flags from the
// repository in the working directory.
func gitDiff(ctx context.Context, cmd *cobra.Command) ([]byte, error) {
	repo, err := git.NewRepo(ctx, ".")
	if err != nil {
		return nil, err
	}
	if base, _ := cmd.Flags().GetString("git-base"); base != "" {
		return repo.BranchDiff(ctx, base)
	}
	if sha, _ := cmd.Flags().GetString("commit"); sha != "" {
		return repo.CommitDiff(ctx, sha)
	}
	return repo.StagedDiff(ctx)
}

func currentBranch(ctx context.Context) string {
	repo, err := git.NewRepo(ctx, ".")
	if err != nil {
		return ""
	}
	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		cliLog.Debug("Cannot resolve current branch: %v", err)
		return ""
	}
	return branch
}

// openInput opens path, or the command's stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func prContext(cmd *cobra.Command) analysis.PRContext {
	var pr analysis.PRContext
	pr.Number, _ = cmd.Flags().GetInt("pr")
	pr.Repository, _ = cmd.Flags().GetString("repo")
	pr.Branch, _ = cmd.Flags().GetString("branch")
	pr.BaseBranch, _ = cmd.Flags().GetString("base")
	pr.Title, _ = cmd.Flags().GetString("title")
	pr.Author, _ = cmd.Flags().GetString("author")
	return pr
}

func readReview(cmd *cobra.Command) (*report.ExternalReview, error) {
	path, _ := cmd.Flags().GetString("review")
	if path == "" {
		return nil, nil
	}
	r, closeFn, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return report.DecodeReview(r)
}

// buildReport assembles the report and, when history is on, fills in the
// trend comparisons and records the run. History failures only warn.
func buildReport(ctx context.Context, cmd *cobra.Command, cfg *config.Config, review *report.ExternalReview, result *analysis.Result, pr analysis.PRContext) *report.Report {
	opts := report.Options{
		Duration:       result.Duration,
		TopIssues:      cfg.Report.TopIssues,
		RedactSnippets: cfg.Report.RedactSnippets,
	}

	if !cfg.History.Enabled {
		return report.Build(review, result, pr, opts)
	}

	store, err := openHistory(cfg)
	if err != nil {
		cliLog.Warn("History disabled for this run: %v", err)
		return report.Build(review, result, pr, opts)
	}
	defer store.Close()

	// Trends compare against earlier runs, so the score is needed before
	// the run itself is saved.
	draft := report.Build(review, result, pr, opts)
	trends, err := store.Compare(ctx, pr.Repository, draft.Summary.OverallScore)
	if err != nil {
		cliLog.Warn("Failed to compute trends: %v", err)
	} else {
		opts.ReportID = draft.Metadata.ReportID
		opts.Now = func() time.Time { return draft.Metadata.GeneratedAt }
		opts.Trends = trends
		draft = report.Build(review, result, pr, opts)
	}

	run, err := store.SaveRun(ctx, draft)
	if err != nil {
		cliLog.Warn("Failed to record run: %v", err)
	} else if isVerbose() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Recorded run %s\n", run.ID)
	}
	return draft
}

func exportReports(ctx context.Context, cmd *cobra.Command, cfg *config.Config, rep *report.Report, collector *metrics.Collector) error {
	exporter := report.NewExporter(cfg.Report.OutputDir, collector)
	paths, err := exporter.ExportAll(ctx, rep, cfg.Report.Formats)
	if err != nil {
		return fmt.Errorf("writing reports: %w", err)
	}
	if isQuiet() {
		return nil
	}

	formats := make([]string, 0, len(paths))
	for format := range paths {
		formats = append(formats, format)
	}
	sort.Strings(formats)

	w := cmd.ErrOrStderr()
	printSummary(w, rep)
	for _, format := range formats {
		fmt.Fprintf(w, "  %-8s %s\n", format, paths[format])
	}
	return nil
}

func printSummary(w io.Writer, rep *report.Report) {
	s := rep.Summary
	fmt.Fprintf(w, "Score %d/10 (%s), %d issues in %d files\n",
		s.OverallScore, s.Status, s.TotalIssues, s.FilesAnalyzed)
	if s.Gate.Blocked {
		fmt.Fprintf(w, "Merge blocked: %s\n", s.Gate.Reason)
	}
}
