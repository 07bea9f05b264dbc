package history

import (
	"context"
	"fmt"

	"github.com/JNZader/kirolint/internal/report"
)

// Trends returns the last window runs for repository, oldest first. An empty
// repository covers every run.
func (s *Store) Trends(ctx context.Context, repository string, window int) (*Trend, error) {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	runs, err := s.ListRuns(ctx, RunQuery{Repository: repository, Limit: window})
	if err != nil {
		return nil, err
	}

	t := &Trend{
		Repository: repository,
		Points:     make([]TrendPoint, 0, len(runs)),
		Direction:  TrendStable,
	}
	total := 0
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		t.Points = append(t.Points, TrendPoint{
			RunID:        r.ID,
			PRNumber:     r.PRNumber,
			OverallScore: r.OverallScore,
			TotalIssues:  r.TotalIssues,
			Critical:     r.Critical,
			CreatedAt:    r.CreatedAt,
		})
		total += r.OverallScore
	}
	if n := len(t.Points); n > 0 {
		t.AverageScore = float64(total) / float64(n)
		t.Direction = direction(t.Points[n-1].OverallScore - t.Points[0].OverallScore)
	}
	return t, nil
}

func direction(delta int) string {
	switch {
	case delta > 0:
		return TrendImproving
	case delta < 0:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Compare fills a report's trend section by comparing overall against the
// stored runs. It must run before the current report is saved.
func (s *Store) Compare(ctx context.Context, repository string, overall int) (report.Trends, error) {
	out := report.Trends{
		ImprovementFromLastPR: report.NotAvailable,
		TeamAverageComparison: report.NotAvailable,
		RepositoryTrend:       report.NotAvailable,
	}

	last, err := s.ListRuns(ctx, RunQuery{Repository: repository, Limit: 1})
	if err != nil {
		return out, err
	}
	if len(last) == 1 {
		out.ImprovementFromLastPR = formatDelta(overall - last[0].OverallScore)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		return out, err
	}
	if stats.TotalRuns > 0 {
		diff := float64(overall) - stats.AverageScore
		switch {
		case diff > 0:
			out.TeamAverageComparison = fmt.Sprintf("%.1f above average (%.1f)", diff, stats.AverageScore)
		case diff < 0:
			out.TeamAverageComparison = fmt.Sprintf("%.1f below average (%.1f)", -diff, stats.AverageScore)
		default:
			out.TeamAverageComparison = fmt.Sprintf("at average (%.1f)", stats.AverageScore)
		}
	}

	trend, err := s.Trends(ctx, repository, DefaultTrendWindow)
	if err != nil {
		return out, err
	}
	if len(trend.Points) > 0 {
		out.RepositoryTrend = direction(overall - trend.Points[0].OverallScore)
	}
	return out, nil
}

func formatDelta(d int) string {
	switch {
	case d > 0:
		return fmt.Sprintf("+%d points", d)
	case d < 0:
		return fmt.Sprintf("%d points", d)
	default:
		return "no change"
	}
}
