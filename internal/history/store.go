package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/JNZader/kirolint/internal/logger"
	"github.com/JNZader/kirolint/internal/report"
	"github.com/JNZader/kirolint/internal/rules"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// DefaultTrendWindow is the number of runs Trends looks at by default.
const DefaultTrendWindow = 10

// Store provides SQLite-based run history storage.
type Store struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// StoreConfig configures the history store.
type StoreConfig struct {
	// Path is the SQLite database file path
	Path string
	// Now overrides the clock used to stamp runs.
	Now func() time.Time
}

// NewStore creates a new history store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("history database path is required")
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	store := &Store{
		db:  db,
		log: logger.Default().WithPrefix("HISTORY"),
		now: cfg.Now,
	}
	if store.now == nil {
		store.now = time.Now
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			report_id TEXT NOT NULL,
			pr_number INTEGER,
			repository TEXT,
			branch TEXT,
			ruleset_version TEXT,
			overall_score INTEGER NOT NULL,
			security_score INTEGER NOT NULL,
			status TEXT NOT NULL,
			total_issues INTEGER NOT NULL,
			critical INTEGER NOT NULL DEFAULT 0,
			high INTEGER NOT NULL DEFAULT 0,
			medium INTEGER NOT NULL DEFAULT 0,
			low INTEGER NOT NULL DEFAULT 0,
			info INTEGER NOT NULL DEFAULT 0,
			files_analyzed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS findings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			rule_name TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			file_path TEXT NOT NULL,
			line INTEGER,
			col INTEGER,
			message TEXT NOT NULL,
			fix_suggestion TEXT,
			team TEXT,
			created_at DATETIME NOT NULL
		)`,

		// Full-text search virtual table
		`CREATE VIRTUAL TABLE IF NOT EXISTS findings_fts USING fts5(
			message,
			rule_name,
			content='findings',
			content_rowid='id'
		)`,

		// Triggers to keep FTS in sync. Findings are never updated.
		`CREATE TRIGGER IF NOT EXISTS findings_ai AFTER INSERT ON findings BEGIN
			INSERT INTO findings_fts(rowid, message, rule_name)
			VALUES (new.id, new.message, new.rule_name);
		END`,

		`CREATE TRIGGER IF NOT EXISTS findings_ad AFTER DELETE ON findings BEGIN
			INSERT INTO findings_fts(findings_fts, rowid, message, rule_name)
			VALUES ('delete', old.id, old.message, old.rule_name);
		END`,

		// Indexes for common queries
		`CREATE INDEX IF NOT EXISTS idx_runs_repository ON runs(repository)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_file ON findings(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_rule ON findings(rule_name)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	// Databases created before findings carried a team.
	if err := s.ensureColumn("findings", "team", "TEXT"); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_findings_team ON findings(team)`); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// ensureColumn adds column to table unless it exists.
func (s *Store) ensureColumn(table, column, decl string) error {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = s.db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}

// NewRun derives a run record from a report. The id is left empty.
func NewRun(rep *report.Report) *RunRecord {
	sev := rep.RuleEngine.IssuesBySeverity
	return &RunRecord{
		ReportID:       rep.Metadata.ReportID,
		PRNumber:       rep.Metadata.PRNumber,
		Repository:     rep.Metadata.Repository,
		Branch:         rep.Metadata.Branch,
		RulesetVersion: rep.Metadata.RulesetVersion,
		OverallScore:   rep.Summary.OverallScore,
		SecurityScore:  rep.Security.SecurityScore,
		Status:         rep.Summary.Status,
		TotalIssues:    rep.Summary.TotalIssues,
		Critical:       sev.Get(rules.SeverityCritical),
		High:           sev.Get(rules.SeverityHigh),
		Medium:         sev.Get(rules.SeverityMedium),
		Low:            sev.Get(rules.SeverityLow),
		Info:           sev.Get(rules.SeverityInfo),
		FilesAnalyzed:  rep.Summary.FilesAnalyzed,
		CreatedAt:      rep.Metadata.GeneratedAt,
	}
}

// SaveRun stores a report's run and its findings in one transaction.
func (s *Store) SaveRun(ctx context.Context, rep *report.Report) (*RunRecord, error) {
	run := NewRun(rep)
	run.ID = uuid.NewString()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	run.CreatedAt = run.CreatedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs (
		id, report_id, pr_number, repository, branch, ruleset_version,
		overall_score, security_score, status, total_issues,
		critical, high, medium, low, info, files_analyzed, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ReportID, run.PRNumber, run.Repository, run.Branch, run.RulesetVersion,
		run.OverallScore, run.SecurityScore, run.Status, run.TotalIssues,
		run.Critical, run.High, run.Medium, run.Low, run.Info, run.FilesAnalyzed, run.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO findings (
		run_id, rule_name, category, severity, file_path, line, col,
		message, fix_suggestion, team, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range rep.RuleEngine.Findings {
		if _, err := stmt.ExecContext(ctx,
			run.ID, f.RuleName, string(f.Category), string(f.Severity), f.File, f.Line, f.Column,
			f.Message, f.FixSuggestion, f.Team, run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("inserting finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing run: %w", err)
	}
	s.log.Debug("saved run %s with %d findings", run.ID, len(rep.RuleEngine.Findings))
	return run, nil
}

const runColumns = `id, report_id, pr_number, repository, branch, ruleset_version,
	overall_score, security_score, status, total_issues,
	critical, high, medium, low, info, files_analyzed, created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var r RunRecord
	var repository, branch, version sql.NullString
	var pr sql.NullInt64
	err := sc.Scan(
		&r.ID, &r.ReportID, &pr, &repository, &branch, &version,
		&r.OverallScore, &r.SecurityScore, &r.Status, &r.TotalIssues,
		&r.Critical, &r.High, &r.Medium, &r.Low, &r.Info, &r.FilesAnalyzed, &r.CreatedAt,
	)
	r.PRNumber = int(pr.Int64)
	r.Repository = repository.String
	r.Branch = branch.String
	r.RulesetVersion = version.String
	return r, err
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, q RunQuery) ([]RunRecord, error) {
	var args []interface{}
	var conditions []string

	if q.Repository != "" {
		conditions = append(conditions, "repository = ?")
		args = append(args, q.Repository)
	}
	if q.Branch != "" {
		conditions = append(conditions, "branch = ?")
		args = append(args, q.Branch)
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, q.Since.UTC())
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, q.Offset)

	//nolint:gosec // Query built with parameterized args, whereClause uses placeholders
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs `+whereClause+
		` ORDER BY seq DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads one run and its findings.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, []FindingRecord, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying run: %w", err)
	}

	res, err := s.Search(ctx, SearchQuery{RunID: id, Limit: -1})
	if err != nil {
		return nil, nil, err
	}
	return &run, res.Records, nil
}

// Search performs full-text search on stored findings.
//
//nolint:gocyclo // Query builder with multiple filter conditions
func (s *Store) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	var args []interface{}
	var conditions []string

	// Full-text search
	if q.Text != "" {
		conditions = append(conditions, "f.id IN (SELECT rowid FROM findings_fts WHERE findings_fts MATCH ?)")
		args = append(args, q.Text)
	}

	// File filter (supports LIKE patterns)
	if q.File != "" {
		pattern := strings.ReplaceAll(q.File, "*", "%")
		conditions = append(conditions, "f.file_path LIKE ?")
		args = append(args, pattern)
	}

	if q.Rule != "" {
		conditions = append(conditions, "f.rule_name = ?")
		args = append(args, q.Rule)
	}
	if q.Severity != "" {
		conditions = append(conditions, "f.severity = ?")
		args = append(args, q.Severity)
	}
	if q.Category != "" {
		conditions = append(conditions, "f.category = ?")
		args = append(args, q.Category)
	}
	if q.RunID != "" {
		conditions = append(conditions, "f.run_id = ?")
		args = append(args, q.RunID)
	}

	// Date filters
	if !q.Since.IsZero() {
		conditions = append(conditions, "f.created_at >= ?")
		args = append(args, q.Since.UTC())
	}
	if !q.Until.IsZero() {
		conditions = append(conditions, "f.created_at <= ?")
		args = append(args, q.Until.UTC())
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM findings f " + whereClause //nolint:gosec // Query built with parameterized args
	var totalCount int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("counting results: %w", err)
	}

	// A negative limit returns every match.
	limit := q.Limit
	if limit == 0 {
		limit = 100
	}

	//nolint:gosec // Query built with parameterized args, whereClause uses placeholders
	selectQuery := `
		SELECT id, run_id, rule_name, category, severity, file_path, line, col,
		       message, fix_suggestion, team, created_at
		FROM findings f
		` + whereClause + `
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying findings: %w", err)
	}
	defer rows.Close()

	records := make([]FindingRecord, 0)
	for rows.Next() {
		var r FindingRecord
		var fix, team sql.NullString
		var line, col sql.NullInt64

		if err := rows.Scan(
			&r.ID, &r.RunID, &r.RuleName, &r.Category, &r.Severity, &r.File,
			&line, &col, &r.Message, &fix, &team, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.Line = int(line.Int64)
		r.Column = int(col.Int64)
		r.FixSuggestion = fix.String
		r.Team = team.String

		records = append(records, r)
	}
	if q.RunID != "" {
		// Within a run, report order.
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}

	return &SearchResult{
		Records:    records,
		TotalCount: totalCount,
		Query:      q,
	}, rows.Err()
}

// GetFileHistory returns the findings history for a file or directory.
// A path ending in "/" or without an extension matches as a prefix.
func (s *Store) GetFileHistory(ctx context.Context, path string) (*FileHistory, error) {
	pattern := path
	if strings.HasSuffix(path, "/") || !strings.Contains(path[strings.LastIndex(path, "/")+1:], ".") {
		pattern = path + "%"
	}

	h := &FileHistory{
		Path:       path,
		BySeverity: make(map[string]int),
		ByRule:     make(map[string]int),
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT run_id)
		FROM findings
		WHERE file_path LIKE ?
	`, pattern).Scan(&h.TotalFindings, &h.Runs); err != nil {
		return nil, fmt.Errorf("querying file history: %w", err)
	}

	if err := s.groupInto(ctx, `SELECT severity, COUNT(*) FROM findings WHERE file_path LIKE ? GROUP BY severity`,
		func(k string, n int64) { h.BySeverity[k] = int(n) }, pattern); err != nil {
		return nil, fmt.Errorf("querying severity breakdown: %w", err)
	}
	if err := s.groupInto(ctx, `SELECT rule_name, COUNT(*) FROM findings WHERE file_path LIKE ? GROUP BY rule_name`,
		func(k string, n int64) { h.ByRule[k] = int(n) }, pattern); err != nil {
		return nil, fmt.Errorf("querying rule breakdown: %w", err)
	}
	return h, nil
}

// GetStats returns aggregate statistics.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		BySeverity: make(map[string]int64),
		ByCategory: make(map[string]int64),
		ByRule:     make(map[string]int64),
		ByFile:     make(map[string]int64),
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(overall_score) FROM runs`).
		Scan(&st.TotalRuns, &avg); err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	st.AverageScore = avg.Float64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM findings`).Scan(&st.TotalFindings); err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}

	groups := []struct {
		query string
		into  map[string]int64
	}{
		{`SELECT severity, COUNT(*) FROM findings GROUP BY severity`, st.BySeverity},
		{`SELECT category, COUNT(*) FROM findings GROUP BY category`, st.ByCategory},
		{`SELECT rule_name, COUNT(*) FROM findings GROUP BY rule_name`, st.ByRule},
		// Top files
		{`SELECT file_path, COUNT(*) as cnt FROM findings GROUP BY file_path ORDER BY cnt DESC LIMIT 10`, st.ByFile},
	}
	for _, g := range groups {
		into := g.into
		if err := s.groupInto(ctx, g.query, func(k string, n int64) { into[k] = n }); err != nil {
			return nil, fmt.Errorf("querying stats: %w", err)
		}
	}
	return st, nil
}

func (s *Store) groupInto(ctx context.Context, query string, add func(string, int64), args ...interface{}) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		add(key, count)
	}
	return rows.Err()
}

// Prune deletes runs created before cutoff along with their findings.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM findings WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("deleting findings: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	if n > 0 {
		s.log.Info("pruned %d runs older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
