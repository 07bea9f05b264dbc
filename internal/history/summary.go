package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// runFilter returns the WHERE conditions selecting runs for q, with column
// names qualified by alias.
func runFilter(q SummaryQuery, alias string) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}
	if q.Repository != "" {
		conditions = append(conditions, alias+".repository = ?")
		args = append(args, q.Repository)
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, alias+".created_at >= ?")
		args = append(args, q.Since.UTC())
	}
	return conditions, args
}

func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

// SecuritySummary aggregates security-category findings and the security
// scores of the runs matched by q. The compliance rate is the percentage of
// runs without a critical finding.
func (s *Store) SecuritySummary(ctx context.Context, q SummaryQuery) (*SecuritySummary, error) {
	sum := &SecuritySummary{
		Since:        q.Since,
		BySeverity:   make(map[string]int64),
		ByRule:       make(map[string]int64),
		ByRepository: make(map[string]int64),
	}

	conds, args := runFilter(q, "r")
	var avg sql.NullFloat64
	//nolint:gosec // Query built with parameterized args
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN r.critical > 0 THEN 1 ELSE 0 END), 0), AVG(r.security_score)
		FROM runs r`+where(conds), args...).Scan(&sum.Runs, &sum.RunsBlocked, &avg); err != nil {
		return nil, fmt.Errorf("querying security runs: %w", err)
	}
	sum.AverageSecurityScore = avg.Float64
	if sum.Runs > 0 {
		sum.ComplianceRate = float64(sum.Runs-sum.RunsBlocked) / float64(sum.Runs) * 100
	}

	fconds := append([]string{"f.category = 'security'"}, conds...)
	from := ` FROM findings f JOIN runs r ON r.id = f.run_id` + where(fconds)

	//nolint:gosec // Query built with parameterized args
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from, args...).Scan(&sum.Findings); err != nil {
		return nil, fmt.Errorf("querying security findings: %w", err)
	}

	groups := []struct {
		column string
		into   map[string]int64
	}{
		{"f.severity", sum.BySeverity},
		{"f.rule_name", sum.ByRule},
		{"COALESCE(r.repository, '')", sum.ByRepository},
	}
	for _, g := range groups {
		into := g.into
		//nolint:gosec // Column names are constants
		query := `SELECT ` + g.column + `, COUNT(*)` + from + ` GROUP BY ` + g.column
		if err := s.groupInto(ctx, query, func(k string, n int64) { into[k] = n }, args...); err != nil {
			return nil, fmt.Errorf("querying security breakdown: %w", err)
		}
	}
	return sum, nil
}

// TeamSummary aggregates the findings raised by rules of q.Team. Runs counts
// the runs with at least one such finding.
func (s *Store) TeamSummary(ctx context.Context, q SummaryQuery) (*TeamSummary, error) {
	if q.Team == "" {
		return nil, errors.New("team is required")
	}
	sum := &TeamSummary{
		Team:       q.Team,
		Since:      q.Since,
		BySeverity: make(map[string]int64),
		ByCategory: make(map[string]int64),
		ByRule:     make(map[string]int64),
		ByFile:     make(map[string]int64),
	}

	conds, runArgs := runFilter(q, "r")
	fconds := append([]string{"f.team = ?"}, conds...)
	args := append([]interface{}{q.Team}, runArgs...)
	from := ` FROM findings f JOIN runs r ON r.id = f.run_id` + where(fconds)

	//nolint:gosec // Query built with parameterized args
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT f.run_id)`+from, args...).
		Scan(&sum.TotalFindings, &sum.Runs); err != nil {
		return nil, fmt.Errorf("querying team findings: %w", err)
	}

	var avg sql.NullFloat64
	//nolint:gosec // Query built with parameterized args
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(overall_score) FROM runs
		WHERE id IN (SELECT DISTINCT f.run_id`+from+`)`, args...).Scan(&avg); err != nil {
		return nil, fmt.Errorf("querying team score: %w", err)
	}
	sum.AverageScore = avg.Float64

	groups := []struct {
		column string
		into   map[string]int64
		suffix string
	}{
		{"f.severity", sum.BySeverity, ""},
		{"f.category", sum.ByCategory, ""},
		{"f.rule_name", sum.ByRule, ""},
		// Top files
		{"f.file_path", sum.ByFile, " ORDER BY COUNT(*) DESC LIMIT 10"},
	}
	for _, g := range groups {
		into := g.into
		//nolint:gosec // Column names are constants
		query := `SELECT ` + g.column + `, COUNT(*)` + from + ` GROUP BY ` + g.column + g.suffix
		if err := s.groupInto(ctx, query, func(k string, n int64) { into[k] = n }, args...); err != nil {
			return nil, fmt.Errorf("querying team breakdown: %w", err)
		}
	}
	return sum, nil
}
