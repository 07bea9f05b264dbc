package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JNZader/kirolint/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query recorded analysis runs",
	Long: `Query the runs recorded by "kirolint analyze".

Examples:
  # Latest runs for a repository
  kirolint history list --repo acme/web

  # Score trend over the last 10 runs
  kirolint history trends --repo acme/web

  # Findings mentioning a password in security rules
  kirolint history search password --category security

  # Everything recorded for a directory
  kirolint history file src/api/

  # Security findings of the last 30 days
  kirolint history report security --since 720h`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its findings",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyTrendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show the score trend of recent runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryTrends,
}

var historySearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search recorded findings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistorySearch,
}

var historyFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Summarize findings recorded for a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryFile,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics over all runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

var historyReportCmd = &cobra.Command{
	Use:   "report <security|team>",
	Short: "Summarize security findings or one team's findings",
	Long: `Summarize recorded runs.

"security" aggregates security findings, the security score and the share
of runs without a critical finding. "team" aggregates the findings raised
by the rules of one team (--team).

Examples:
  kirolint history report security --repo acme/web --since 720h
  kirolint history report team --team platform`,

	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"security", "team"},
	RunE:      runHistoryReport,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than a duration",
	Long: `Delete runs, with their findings, older than --older-than.

Examples:
  kirolint history prune --older-than 720h`,

	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyTrendsCmd,
		historySearchCmd, historyFileCmd, historyStatsCmd, historyReportCmd, historyPruneCmd)

	historyCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	historyListCmd.Flags().String("repo", "", "Only runs for this repository")
	historyListCmd.Flags().String("branch", "", "Only runs for this branch")
	historyListCmd.Flags().Int("limit", 20, "Maximum runs to show")

	historyTrendsCmd.Flags().String("repo", "", "Repository to trend")
	historyTrendsCmd.Flags().Int("window", 0, "Number of runs (0=config)")

	historySearchCmd.Flags().String("file", "", "File path or glob")
	historySearchCmd.Flags().String("rule", "", "Rule name")
	historySearchCmd.Flags().String("severity", "", "Severity")
	historySearchCmd.Flags().String("category", "", "Category")
	historySearchCmd.Flags().String("run", "", "Run ID")
	historySearchCmd.Flags().Duration("since", 0, "Only findings newer than this")
	historySearchCmd.Flags().Int("limit", 50, "Maximum findings to show")

	historyReportCmd.Flags().String("team", "", "Team whose rules to summarize (team report)")
	historyReportCmd.Flags().String("repo", "", "Only runs for this repository")
	historyReportCmd.Flags().Duration("since", 0, "Only runs newer than this")

	historyPruneCmd.Flags().Duration("older-than", 0, "Age cutoff (required)")
}

// withStore opens the history database for one command.
func withStore(fn func(cfgWindow int, store *history.Store) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg.History.TrendWindow, store)
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	var q history.RunQuery
	q.Repository, _ = cmd.Flags().GetString("repo")
	q.Branch, _ = cmd.Flags().GetString("branch")
	q.Limit, _ = cmd.Flags().GetInt("limit")

	return withStore(func(_ int, store *history.Store) error {
		runs, err := store.ListRuns(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}

		w := cmd.OutOrStdout()
		if jsonFlag(cmd) {
			if runs == nil {
				runs = []history.RunRecord{}
			}
			return writeJSON(w, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}
		return printRuns(w, runs)
	})
}

func printRuns(w io.Writer, runs []history.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tREPO\tPR\tSCORE\tISSUES\tCRITICAL\tSTATUS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), orDash(r.Repository),
			r.PRNumber, r.OverallScore, r.TotalIssues, r.Critical, r.Status)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	return withStore(func(_ int, store *history.Store) error {
		run, findings, err := store.GetRun(cmd.Context(), args[0])
		if errors.Is(err, history.ErrRunNotFound) {
			return fmt.Errorf("run %s not found", args[0])
		}
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if jsonFlag(cmd) {
			return writeJSON(w, struct {
				Run      *history.RunRecord      `json:"run"`
				Findings []history.FindingRecord `json:"findings"`
			}{run, findings})
		}

		fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.CreatedAt.Local().Format(time.RFC3339))
		fmt.Fprintf(w, "  Repository: %s  PR: %d  Branch: %s\n", orDash(run.Repository), run.PRNumber, orDash(run.Branch))
		fmt.Fprintf(w, "  Score: %d/10  Security: %d/10  Status: %s\n", run.OverallScore, run.SecurityScore, run.Status)
		fmt.Fprintf(w, "  Issues: %d (critical %d, high %d, medium %d, low %d, info %d)\n",
			run.TotalIssues, run.Critical, run.High, run.Medium, run.Low, run.Info)
		printFindings(w, findings)
		return nil
	})
}

func printFindings(w io.Writer, findings []history.FindingRecord) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, f := range findings {
		fmt.Fprintf(w, "  [%s] %s:%d:%d %s (%s)\n",
			strings.ToUpper(f.Severity), f.File, f.Line, f.Column, f.Message, f.RuleName)
	}
}

func runHistoryTrends(cmd *cobra.Command, args []string) error {
	repo, _ := cmd.Flags().GetString("repo")
	window, _ := cmd.Flags().GetInt("window")

	return withStore(func(cfgWindow int, store *history.Store) error {
		if window <= 0 {
			window = cfgWindow
		}
		trend, err := store.Trends(cmd.Context(), repo, window)
		if err != nil {
			return fmt.Errorf("computing trends: %w", err)
		}

		w := cmd.OutOrStdout()
		if jsonFlag(cmd) {
			return writeJSON(w, trend)
		}
		if len(trend.Points) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}

		for _, p := range trend.Points {
			fmt.Fprintf(w, "  %s  %2d/10 %s  %d issues\n",
				p.CreatedAt.Local().Format("2006-01-02 15:04"), p.OverallScore,
				strings.Repeat("#", max(p.OverallScore, 0)), p.TotalIssues)
		}
		fmt.Fprintf(w, "\nAverage %.1f over %d runs, %s\n", trend.AverageScore, len(trend.Points), trend.Direction)
		return nil
	})
}

func runHistorySearch(cmd *cobra.Command, args []string) error {
	var q history.SearchQuery
	if len(args) == 1 {
		q.Text = args[0]
	}
	q.File, _ = cmd.Flags().GetString("file")
	q.Rule, _ = cmd.Flags().GetString("rule")
	q.Severity, _ = cmd.Flags().GetString("severity")
	q.Category, _ = cmd.Flags().GetString("category")
	q.RunID, _ = cmd.Flags().GetString("run")
	q.Limit, _ = cmd.Flags().GetInt("limit")
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		q.Since = time.Now().Add(-since)
	}

	return withStore(func(_ int, store *history.Store) error {
		result, err := store.Search(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("searching findings: %w", err)
		}

		w := cmd.OutOrStdout()
		if jsonFlag(cmd) {
			return writeJSON(w, result)
		}
		if len(result.Records) == 0 {
			fmt.Fprintln(w, "No findings match.")
			return nil
		}
		fmt.Fprintf(w, "%d findings (showing %d)\n", result.TotalCount, len(result.Records))
		printFindings(w, result.Records)
		return nil
	})
}

func runHistoryFile(cmd *cobra.Command, args []string) error {
	return withStore(func(_ int, store *history.Store) error {
		hist, err := store.GetFileHistory(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("getting history: %w", err)
		}

		w := cmd.OutOrStdout()
		if jsonFlag(cmd) {
			return writeJSON(w, hist)
		}
		if hist.TotalFindings == 0 {
			fmt.Fprintf(w, "No findings recorded for: %s\n", args[0])
			return nil
		}

		fmt.Fprintf(w, "%s: %d findings across %d runs\n", hist.Path, hist.TotalFindings, hist.Runs)
		printCounts(w, "By severity", hist.BySeverity)
		printCounts(w, "By rule", hist.ByRule)
		return nil
	})
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	return withStore(func(_ int, store *history.Store) error {
		stats, err := store.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		w := cmd.OutOrStdout()
		if jsonFlag(cmd) {
			return writeJSON(w, stats)
		}
		if stats.TotalRuns == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}

		fmt.Fprintf(w, "Runs: %d  Findings: %d  Average score: %.1f\n",
			stats.TotalRuns, stats.TotalFindings, stats.AverageScore)
		printCounts(w, "By severity", toInt(stats.BySeverity))
		printCounts(w, "By category", toInt(stats.ByCategory))
		printCounts(w, "Top rules", toInt(stats.ByRule))
		printCounts(w, "Top files", toInt(stats.ByFile))
		return nil
	})
}

func runHistoryReport(cmd *cobra.Command, args []string) error {
	var q history.SummaryQuery
	q.Team, _ = cmd.Flags().GetString("team")
	q.Repository, _ = cmd.Flags().GetString("repo")
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		q.Since = time.Now().Add(-since)
	}

	kind := args[0]
	switch kind {
	case "security":
	case "team":
		if q.Team == "" {
			return fmt.Errorf("--team is required for a team report")
		}
	default:
		return fmt.Errorf("unknown report %q (want security or team)", kind)
	}

	return withStore(func(_ int, store *history.Store) error {
		w := cmd.OutOrStdout()
		if kind == "security" {
			sum, err := store.SecuritySummary(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("summarizing security findings: %w", err)
			}
			if jsonFlag(cmd) {
				return writeJSON(w, sum)
			}
			if sum.Runs == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return nil
			}
			fmt.Fprintf(w, "Runs: %d  With critical findings: %d  Compliance: %.0f%%\n",
				sum.Runs, sum.RunsBlocked, sum.ComplianceRate)
			fmt.Fprintf(w, "Security findings: %d  Average security score: %.1f\n",
				sum.Findings, sum.AverageSecurityScore)
			printCounts(w, "By severity", toInt(sum.BySeverity))
			printCounts(w, "By rule", toInt(sum.ByRule))
			printCounts(w, "By repository", toInt(sum.ByRepository))
			return nil
		}

		sum, err := store.TeamSummary(cmd.Context(), q)
		if err != nil {
			return fmt.Errorf("summarizing team findings: %w", err)
		}
		if jsonFlag(cmd) {
			return writeJSON(w, sum)
		}
		if sum.TotalFindings == 0 {
			fmt.Fprintf(w, "No findings recorded for team %s.\n", sum.Team)
			return nil
		}
		fmt.Fprintf(w, "Team %s: %d findings across %d runs, average score %.1f\n",
			sum.Team, sum.TotalFindings, sum.Runs, sum.AverageScore)
		printCounts(w, "By severity", toInt(sum.BySeverity))
		printCounts(w, "By category", toInt(sum.ByCategory))
		printCounts(w, "By rule", toInt(sum.ByRule))
		printCounts(w, "Top files", toInt(sum.ByFile))
		return nil
	})
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be a positive duration")
	}

	return withStore(func(_ int, store *history.Store) error {
		n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
		if err != nil {
			return fmt.Errorf("pruning history: %w", err)
		}
		if !isQuiet() {
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d runs\n", n)
		}
		return nil
	})
}

// printCounts prints counts in descending order, ties by key.
func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range keys[:min(10, len(keys))] {
		fmt.Fprintf(w, "  %-30s %d\n", k, counts[k])
	}
}

func toInt(m map[string]int64) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = int(v)
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
