package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JNZader/kirolint/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and manage rule sets",
	Long:  `List, inspect and bootstrap the rule sets kirolint applies.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded rules",
	Long: `List the rules loaded from every configured source.

Examples:
  # List enabled rules
  kirolint rules list

  # Include disabled rules, only security ones
  kirolint rules list --all --category security

  # Rules at high severity or above, as JSON
  kirolint rules list --severity high --json`,

	Args: cobra.NoArgs,
	RunE: runRulesList,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <rule>",
	Short: "Show one rule with its patterns",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesShow,
}

var rulesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show rule counts by category, severity and team",
	Args:  cobra.NoArgs,
	RunE:  runRulesStats,
}

var rulesInitCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write the starter rule sets into a directory",
	Long: `Create the rules directory and write the starter rule sets into it.
Existing files are left untouched.

Examples:
  # Use the configured rules directory
  kirolint rules init

  # Use a specific directory
  kirolint rules init ./rules`,

	Args: cobra.MaximumNArgs(1),
	RunE: runRulesInit,
}

var rulesWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload rules whenever the rules directory changes",
	Long: `Watch the rules directory and reload on every change, printing what
loaded and what was skipped. Useful while writing rule sets.

Stops on interrupt.`,

	Args: cobra.NoArgs,
	RunE: runRulesWatch,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesShowCmd, rulesStatsCmd, rulesInitCmd, rulesWatchCmd)

	rulesListCmd.Flags().Bool("all", false, "Include disabled rules")
	rulesListCmd.Flags().String("category", "", "Only rules in this category")
	rulesListCmd.Flags().String("severity", "", "Only rules at or above this severity")
	rulesListCmd.Flags().String("team", "", "Only rules from this team")
	rulesListCmd.Flags().Bool("json", false, "Output as JSON")

	rulesShowCmd.Flags().Bool("json", false, "Output as JSON")
	rulesStatsCmd.Flags().Bool("json", false, "Output as JSON")
}

// loadRegistry builds the registry from config and reports skipped sources
// on stderr.
func loadRegistry(cmd *cobra.Command) (*rules.Registry, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	registry, loadReport, err := buildRegistry(cmd.Context(), cfg, nil)
	if err != nil {
		return nil, err
	}
	if !isQuiet() {
		printSkipped(cmd.ErrOrStderr(), loadReport)
	}
	return registry, nil
}

func printSkipped(w io.Writer, r rules.LoadReport) {
	for _, f := range r.Failed {
		fmt.Fprintf(w, "Skipped: %v\n", f)
	}
}

func runRulesList(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")
	selected := registry.ListEnabled()
	if all {
		selected = registry.Snapshot().Rules()
	}

	if category, _ := cmd.Flags().GetString("category"); category != "" {
		c := rules.Category(strings.ToLower(category))
		if !c.Valid() {
			return fmt.Errorf("unknown category %q", category)
		}
		selected = rules.GetRulesByCategory(selected, c)
	}
	if severity, _ := cmd.Flags().GetString("severity"); severity != "" {
		s := rules.Severity(strings.ToLower(severity))
		if !s.Valid() {
			return fmt.Errorf("unknown severity %q", severity)
		}
		selected = rules.GetRulesBySeverity(selected, s)
	}
	if team, _ := cmd.Flags().GetString("team"); team != "" {
		selected = rules.GetRulesByTeam(selected, team)
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if selected == nil {
			selected = []*rules.Rule{}
		}
		return writeJSON(w, selected)
	}

	if len(selected) == 0 {
		fmt.Fprintln(w, "No rules match.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tSEVERITY\tTEAM\tENABLED")
	for _, r := range selected {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", r.Name, r.Category, r.Severity, r.Team, r.Enabled)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d rules\n", len(selected))
	return nil
}

func runRulesShow(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	r, ok := registry.Get(args[0])
	if !ok {
		return fmt.Errorf("rule %q not found", args[0])
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(w, r)
	}

	fmt.Fprintf(w, "%s (%s, %s)\n", r.Name, r.Category, r.Severity)
	fmt.Fprintf(w, "  %s\n", r.Description)
	fmt.Fprintf(w, "  Team:       %s\n", r.Team)
	fmt.Fprintf(w, "  Source:     %s\n", r.Source)
	fmt.Fprintf(w, "  Enabled:    %t\n", r.Enabled)
	fmt.Fprintf(w, "  File types: %s\n", strings.Join(r.FileTypes, ", "))
	if len(r.Exceptions) > 0 {
		fmt.Fprintf(w, "  Exceptions: %s\n", strings.Join(r.Exceptions, ", "))
	}
	if r.CustomCheck != "" {
		fmt.Fprintf(w, "  Check:      %s\n", r.CustomCheck)
	}
	for _, p := range r.Patterns {
		fmt.Fprintf(w, "  pattern:      %s\n", p.Expr)
	}
	for _, p := range r.AntiPatterns {
		fmt.Fprintf(w, "  anti-pattern: %s\n", p.Expr)
	}
	if r.FixSuggestion != "" {
		fmt.Fprintf(w, "  Fix: %s\n", r.FixSuggestion)
	}
	return nil
}

func runRulesStats(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	stats := registry.Stats()
	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(w, stats)
	}

	fmt.Fprintf(w, "Rules: %d total, %d enabled\n", stats.Total, stats.Enabled)

	fmt.Fprintln(w, "\nBy category:")
	for _, c := range rules.Categories {
		if n := stats.ByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", c, n)
		}
	}

	fmt.Fprintln(w, "\nBy severity:")
	for _, s := range rules.Severities {
		if n := stats.BySeverity[s]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", s, n)
		}
	}

	teams := make([]string, 0, len(stats.ByTeam))
	for team := range stats.ByTeam {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	fmt.Fprintln(w, "\nBy team:")
	for _, team := range teams {
		fmt.Fprintf(w, "  %-14s %d\n", team, stats.ByTeam[team])
	}
	return nil
}

func runRulesInit(cmd *cobra.Command, args []string) error {
	dir := ""
	if len(args) == 1 {
		dir = args[0]
	} else {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Rules.Dir
	}
	if dir == "" {
		return fmt.Errorf("no rules directory: pass one or set rules.dir")
	}

	if err := rules.Bootstrap(dir); err != nil {
		return err
	}
	if !isQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), "Starter rule sets written to %s\n", dir)
	}
	return nil
}

func runRulesWatch(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Rules.Dir == "" {
		return fmt.Errorf("rules.dir is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	collector := newCollector(cfg)
	registry, loadReport, err := buildRegistry(ctx, cfg, collector)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Loaded %d rules from %d sources\n", registry.Len(), len(loadReport.Loaded))
	printSkipped(w, loadReport)

	watcher, err := rules.NewWatcher(cfg.Rules.Dir, registry, ruleSources(cfg), cfg.Rules.Debounce)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Fprintf(w, "Watching %s (Ctrl+C to stop)\n", cfg.Rules.Dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-watcher.Reloads():
			collector.ObserveReload(registry.Len(), len(r.Failed))
			fmt.Fprintf(w, "Reloaded %d rules from %d sources\n", registry.Len(), len(r.Loaded))
			printSkipped(w, r)
		}
	}
}
