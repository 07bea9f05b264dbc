package history

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JNZader/kirolint/internal/analysis"
	"github.com/JNZader/kirolint/internal/matcher"
	"github.com/JNZader/kirolint/internal/report"
	"github.com/JNZader/kirolint/internal/rules"
)

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// buildReport makes a report whose overall score equals the rule score of
// the given number of low findings, all in file.
func buildReport(repo string, pr int, at time.Time, file string, lows int, extra ...matcher.Finding) *report.Report {
	result := analysis.NewResult()
	for i := 0; i < lows; i++ {
		result.Add(matcher.Finding{
			RuleName: "no-console-log",
			Category: rules.CategoryQuality,
			Severity: rules.SeverityLow,
			Message:  "Remove console.log before merging",
			File:     file,
			Line:     i + 1,
			Column:   1,
		})
	}
	for _, f := range extra {
		result.Add(f)
	}
	result.FilesAnalyzed = 1
	return report.Build(nil, result, analysis.PRContext{Number: pr, Repository: repo}, report.Options{
		Now: func() time.Time { return at },
	})
}

func TestNewStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewStore(StoreConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	// Verify database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	if _, err := NewStore(StoreConfig{}); err == nil {
		t.Error("NewStore() with empty path should fail")
	}
}

func TestSaveRunAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	secret := matcher.Finding{
		RuleName:      "no-hardcoded-secrets",
		Category:      rules.CategorySecurity,
		Severity:      rules.SeverityCritical,
		Message:       "Hardcoded secret detected. Use environment variables instead.",
		FixSuggestion: "Read it from the environment",
		File:          "src/config.js",
		Line:          3,
		Column:        7,
	}
	rep := buildReport("acme/web", 42, baseTime, "src/app.js", 2, secret)

	run, err := store.SaveRun(ctx, rep)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if run.ID == "" {
		t.Fatal("Run ID was not set after insert")
	}
	if run.Critical != 1 || run.Low != 2 || run.TotalIssues != 3 {
		t.Errorf("counts = critical %d low %d total %d, want 1 2 3", run.Critical, run.Low, run.TotalIssues)
	}

	got, findings, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Repository != "acme/web" || got.PRNumber != 42 {
		t.Errorf("GetRun() = %s #%d, want acme/web #42", got.Repository, got.PRNumber)
	}
	if got.OverallScore != rep.Summary.OverallScore {
		t.Errorf("OverallScore = %d, want %d", got.OverallScore, rep.Summary.OverallScore)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
	}
	if len(findings) != 3 {
		t.Fatalf("len(findings) = %d, want 3", len(findings))
	}
	// Report order is kept.
	if findings[2].RuleName != "no-hardcoded-secrets" || findings[2].Column != 7 {
		t.Errorf("findings[2] = %+v", findings[2])
	}
	if findings[2].FixSuggestion != "Read it from the environment" {
		t.Errorf("FixSuggestion = %q", findings[2].FixSuggestion)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, repo := range []string{"acme/web", "acme/api", "acme/web"} {
		rep := buildReport(repo, i+1, baseTime.Add(time.Duration(i)*time.Hour), "a.js", i)
		if _, err := store.SaveRun(ctx, rep); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	all, err := store.ListRuns(ctx, RunQuery{})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[0].PRNumber != 3 {
		t.Errorf("newest run PR = %d, want 3", all[0].PRNumber)
	}

	web, err := store.ListRuns(ctx, RunQuery{Repository: "acme/web"})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(web) != 2 {
		t.Errorf("len(web) = %d, want 2", len(web))
	}

	recent, err := store.ListRuns(ctx, RunQuery{Since: baseTime.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("len(recent) = %d, want 1", len(recent))
	}

	page, err := store.ListRuns(ctx, RunQuery{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(page) != 1 || page[0].PRNumber != 2 {
		t.Errorf("page = %+v, want PR 2", page)
	}
}

func TestSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sqlFinding := matcher.Finding{
		RuleName: "sql-injection",
		Category: rules.CategorySecurity,
		Severity: rules.SeverityHigh,
		Message:  "Potential SQL injection vulnerability",
		File:     "src/auth/login.go",
		Line:     42,
	}
	if _, err := store.SaveRun(ctx, buildReport("acme/web", 1, baseTime, "src/ui/app.js", 2, sqlFinding)); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	tests := []struct {
		name  string
		query SearchQuery
		want  int64
	}{
		{"full text", SearchQuery{Text: "SQL injection"}, 1},
		{"rule name text", SearchQuery{Text: "console"}, 2},
		{"file glob", SearchQuery{File: "src/auth/*"}, 1},
		{"severity", SearchQuery{Severity: "low"}, 2},
		{"category", SearchQuery{Category: "security"}, 1},
		{"rule", SearchQuery{Rule: "no-console-log"}, 2},
		{"until before run", SearchQuery{Until: baseTime.Add(-time.Hour)}, 0},
		{"all", SearchQuery{}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := store.Search(ctx, tt.query)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if result.TotalCount != tt.want {
				t.Errorf("TotalCount = %d, want %d", result.TotalCount, tt.want)
			}
			if int64(len(result.Records)) != tt.want {
				t.Errorf("len(Records) = %d, want %d", len(result.Records), tt.want)
			}
		})
	}

	limited, err := store.Search(ctx, SearchQuery{Limit: 1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if limited.TotalCount != 3 || len(limited.Records) != 1 {
		t.Errorf("limited = %d total, %d records; want 3, 1", limited.TotalCount, len(limited.Records))
	}
}

func TestGetFileHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.SaveRun(ctx, buildReport("acme/web", i+1, baseTime, "src/app/main.js", 2)); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	h, err := store.GetFileHistory(ctx, "src/app/main.js")
	if err != nil {
		t.Fatalf("GetFileHistory() error = %v", err)
	}
	if h.TotalFindings != 4 {
		t.Errorf("TotalFindings = %d, want 4", h.TotalFindings)
	}
	if h.Runs != 2 {
		t.Errorf("Runs = %d, want 2", h.Runs)
	}
	if h.BySeverity["low"] != 4 {
		t.Errorf("BySeverity[low] = %d, want 4", h.BySeverity["low"])
	}

	dir, err := store.GetFileHistory(ctx, "src/app")
	if err != nil {
		t.Fatalf("GetFileHistory() error = %v", err)
	}
	if dir.TotalFindings != 4 {
		t.Errorf("directory TotalFindings = %d, want 4", dir.TotalFindings)
	}
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if empty.TotalRuns != 0 || empty.AverageScore != 0 {
		t.Errorf("empty stats = %+v", empty)
	}

	// 0 findings scores 10, 3 findings scores 6.
	for i, n := range []int{0, 3} {
		if _, err := store.SaveRun(ctx, buildReport("acme/web", i+1, baseTime, "a.js", n)); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	st, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if st.TotalRuns != 2 {
		t.Errorf("TotalRuns = %d, want 2", st.TotalRuns)
	}
	if st.TotalFindings != 3 {
		t.Errorf("TotalFindings = %d, want 3", st.TotalFindings)
	}
	if st.AverageScore != 8 {
		t.Errorf("AverageScore = %v, want 8", st.AverageScore)
	}
	if st.ByRule["no-console-log"] != 3 || st.ByCategory["quality"] != 3 || st.ByFile["a.js"] != 3 {
		t.Errorf("breakdown = %+v", st)
	}
}

func TestTrends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Scores 4, 6, 8, 10.
	for i, n := range []int{8, 4, 2, 0} {
		rep := buildReport("acme/web", i+1, baseTime.Add(time.Duration(i)*time.Hour), "a.js", n)
		if _, err := store.SaveRun(ctx, rep); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	trend, err := store.Trends(ctx, "acme/web", 3)
	if err != nil {
		t.Fatalf("Trends() error = %v", err)
	}
	if len(trend.Points) != 3 {
		t.Fatalf("len(Points) = %d, want 3", len(trend.Points))
	}
	if trend.Points[0].OverallScore != 6 || trend.Points[2].OverallScore != 10 {
		t.Errorf("points = %+v, want oldest first from 6 to 10", trend.Points)
	}
	if trend.Direction != TrendImproving {
		t.Errorf("Direction = %s, want %s", trend.Direction, TrendImproving)
	}
	if trend.AverageScore != 8 {
		t.Errorf("AverageScore = %v, want 8", trend.AverageScore)
	}

	none, err := store.Trends(ctx, "other/repo", 0)
	if err != nil {
		t.Fatalf("Trends() error = %v", err)
	}
	if len(none.Points) != 0 || none.Direction != TrendStable {
		t.Errorf("empty trend = %+v", none)
	}
}

func TestCompare(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	trends, err := store.Compare(ctx, "acme/web", 8)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if trends.ImprovementFromLastPR != report.NotAvailable || trends.RepositoryTrend != report.NotAvailable {
		t.Errorf("Compare() on empty history = %+v, want N/A", trends)
	}

	// Scores 6 then 4.
	for i, n := range []int{3, 8} {
		rep := buildReport("acme/web", i+1, baseTime.Add(time.Duration(i)*time.Hour), "a.js", n)
		if _, err := store.SaveRun(ctx, rep); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	trends, err = store.Compare(ctx, "acme/web", 8)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if trends.ImprovementFromLastPR != "+4 points" {
		t.Errorf("ImprovementFromLastPR = %q, want +4 points", trends.ImprovementFromLastPR)
	}
	if trends.TeamAverageComparison != "3.0 above average (5.0)" {
		t.Errorf("TeamAverageComparison = %q", trends.TeamAverageComparison)
	}
	if trends.RepositoryTrend != TrendImproving {
		t.Errorf("RepositoryTrend = %q, want %s", trends.RepositoryTrend, TrendImproving)
	}

	trends, err = store.Compare(ctx, "acme/web", 4)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if trends.ImprovementFromLastPR != "no change" {
		t.Errorf("ImprovementFromLastPR = %q, want no change", trends.ImprovementFromLastPR)
	}
	if trends.RepositoryTrend != TrendDeclining {
		t.Errorf("RepositoryTrend = %q, want %s", trends.RepositoryTrend, TrendDeclining)
	}
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rep := buildReport("acme/web", i+1, baseTime.Add(time.Duration(i)*24*time.Hour), "a.js", 1)
		if _, err := store.SaveRun(ctx, rep); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	n, err := store.Prune(ctx, baseTime.Add(36*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() = %d, want 2", n)
	}

	st, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if st.TotalRuns != 1 || st.TotalFindings != 1 {
		t.Errorf("after prune = %d runs, %d findings; want 1, 1", st.TotalRuns, st.TotalFindings)
	}

	// FTS stays in sync with deletions.
	res, err := store.Search(ctx, SearchQuery{Text: "console"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.TotalCount != 1 {
		t.Errorf("Search after prune = %d, want 1", res.TotalCount)
	}
}

func TestNewRun(t *testing.T) {
	rep := buildReport("acme/web", 7, baseTime, "a.js", 1)
	run := NewRun(rep)

	if run.ID != "" {
		t.Errorf("NewRun() ID = %q, want empty", run.ID)
	}
	if run.ReportID != rep.Metadata.ReportID || run.Low != 1 || run.Status != report.StatusNeedsChanges {
		t.Errorf("NewRun() = %+v", run)
	}
}

func seedSummaryRuns(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()

	secret := matcher.Finding{
		RuleName: "no-hardcoded-secrets",
		Category: rules.CategorySecurity,
		Severity: rules.SeverityCritical,
		Message:  "Hardcoded secret detected",
		File:     "src/config.js",
		Team:     "security",
	}
	http := matcher.Finding{
		RuleName: "require-https",
		Category: rules.CategorySecurity,
		Severity: rules.SeverityHigh,
		Message:  "HTTP URL detected",
		File:     "api/client.js",
		Team:     "security",
	}

	reports := []*report.Report{
		buildReport("acme/web", 1, baseTime, "src/app.js", 2, secret),
		buildReport("acme/api", 2, baseTime.Add(time.Hour), "api/app.js", 0, http),
		buildReport("acme/web", 3, baseTime.Add(2*time.Hour), "src/app.js", 1),
	}
	for _, rep := range reports {
		if _, err := store.SaveRun(ctx, rep); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}
}

func TestSecuritySummary(t *testing.T) {
	store := newTestStore(t)
	seedSummaryRuns(t, store)
	ctx := context.Background()

	all, err := store.SecuritySummary(ctx, SummaryQuery{})
	if err != nil {
		t.Fatalf("SecuritySummary() error = %v", err)
	}
	if all.Runs != 3 || all.RunsBlocked != 1 || all.Findings != 2 {
		t.Errorf("SecuritySummary() = runs %d, blocked %d, findings %d; want 3, 1, 2",
			all.Runs, all.RunsBlocked, all.Findings)
	}
	if all.ComplianceRate < 66.6 || all.ComplianceRate > 66.7 {
		t.Errorf("ComplianceRate = %.2f, want 66.67", all.ComplianceRate)
	}
	if all.BySeverity["critical"] != 1 || all.BySeverity["high"] != 1 {
		t.Errorf("BySeverity = %v", all.BySeverity)
	}
	if all.ByRepository["acme/web"] != 1 || all.ByRepository["acme/api"] != 1 {
		t.Errorf("ByRepository = %v", all.ByRepository)
	}
	if all.ByRule["require-https"] != 1 {
		t.Errorf("ByRule = %v", all.ByRule)
	}

	web, err := store.SecuritySummary(ctx, SummaryQuery{Repository: "acme/web"})
	if err != nil {
		t.Fatalf("SecuritySummary() error = %v", err)
	}
	if web.Runs != 2 || web.Findings != 1 || web.ComplianceRate != 50 {
		t.Errorf("SecuritySummary(acme/web) = %+v", web)
	}

	recent, err := store.SecuritySummary(ctx, SummaryQuery{Since: baseTime.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("SecuritySummary() error = %v", err)
	}
	if recent.Runs != 2 || recent.RunsBlocked != 0 || recent.Findings != 1 {
		t.Errorf("SecuritySummary(since) = %+v", recent)
	}
}

func TestTeamSummary(t *testing.T) {
	store := newTestStore(t)
	seedSummaryRuns(t, store)
	ctx := context.Background()

	sum, err := store.TeamSummary(ctx, SummaryQuery{Team: "security"})
	if err != nil {
		t.Fatalf("TeamSummary() error = %v", err)
	}
	if sum.TotalFindings != 2 || sum.Runs != 2 {
		t.Errorf("TeamSummary() = findings %d, runs %d; want 2, 2", sum.TotalFindings, sum.Runs)
	}
	// Runs score 6 (3 issues) and 8 (1 issue).
	if sum.AverageScore != 7 {
		t.Errorf("AverageScore = %.1f, want 7", sum.AverageScore)
	}
	if sum.ByCategory["security"] != 2 || sum.ByFile["api/client.js"] != 1 {
		t.Errorf("TeamSummary() = %+v", sum)
	}

	none, err := store.TeamSummary(ctx, SummaryQuery{Team: "platform"})
	if err != nil {
		t.Fatalf("TeamSummary() error = %v", err)
	}
	if none.TotalFindings != 0 || none.AverageScore != 0 {
		t.Errorf("TeamSummary(platform) = %+v", none)
	}

	if _, err := store.TeamSummary(ctx, SummaryQuery{}); err == nil {
		t.Error("TeamSummary() without team should fail")
	}

	res, err := store.Search(ctx, SearchQuery{Rule: "require-https"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Team != "security" {
		t.Errorf("Search() records = %+v, want team security", res.Records)
	}
}

func TestMigrateAddsTeamColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		rule_name TEXT NOT NULL,
		category TEXT NOT NULL,
		severity TEXT NOT NULL,
		file_path TEXT NOT NULL,
		line INTEGER,
		col INTEGER,
		message TEXT NOT NULL,
		fix_suggestion TEXT,
		created_at DATETIME NOT NULL
	)`); err != nil {
		t.Fatalf("creating old schema: %v", err)
	}
	db.Close()

	store, err := NewStore(StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("NewStore() on old schema error = %v", err)
	}
	defer store.Close()

	if _, err := store.SaveRun(context.Background(), buildReport("acme/web", 1, baseTime, "a.js", 1)); err != nil {
		t.Fatalf("SaveRun() after migration error = %v", err)
	}
}
