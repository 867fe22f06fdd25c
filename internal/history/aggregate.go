package history

import (
	"context"
	"strings"
	"time"

	"github.com/hpungsan/browsediary/internal/errors"
)

// VisitRow is one aggregated (title, url) group for a day.
type VisitRow struct {
	FirstVisitTime string // HH:MM of the earliest visit, local time
	Title          string // "" when the store has no title
	URL            string
	VisitCount     int
}

// AggregateInput contains parameters for the Aggregate operation.
type AggregateInput struct {
	Day             time.Time // calendar day, interpreted in the converter's location
	ExcludePatterns []string  // case-sensitive URL substrings to drop
	MinVisitCount   int       // groups below this are dropped; < 1 means 1
}

// aggregateQuery groups one day's visits by (title, url).
// The caller appends one exclusion clause per pattern before the GROUP BY.
const aggregateQuery = `
	SELECT MIN(v.visit_time) AS first_visit,
	       COALESCE(v.title, '') AS title,
	       i.url AS url,
	       COUNT(*) AS visit_count
	FROM history_visits v
	JOIN history_items i ON i.id = v.history_item
	WHERE v.visit_time >= ? AND v.visit_time < ?
	  AND i.url IS NOT NULL AND i.url != ''`

const aggregateTail = `
	GROUP BY COALESCE(v.title, ''), i.url
	HAVING COUNT(*) >= ?
	ORDER BY first_visit ASC, MIN(v.id) ASC`

// Aggregate returns the day's visits grouped by (title, url), ordered by
// earliest visit. A day without visits yields an empty slice and no error.
func (s *Store) Aggregate(ctx context.Context, conv Converter, input AggregateInput) ([]VisitRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("aggregate")
	}

	start, end := conv.Bounds(input.Day)
	minCount := input.MinVisitCount
	if minCount < 1 {
		minCount = 1
	}

	var query strings.Builder
	query.WriteString(aggregateQuery)
	args := []any{start, end}

	// instr is case-sensitive, unlike LIKE.
	for _, p := range input.ExcludePatterns {
		if p == "" {
			continue
		}
		query.WriteString("\n\t  AND instr(i.url, ?) = 0")
		args = append(args, p)
	}
	query.WriteString(aggregateTail)
	args = append(args, minCount)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("aggregate")
		}
		return nil, classify(s.path, err)
	}
	defer rows.Close()

	result := make([]VisitRow, 0)
	for rows.Next() {
		var (
			firstVisit float64
			row        VisitRow
			count      int64
		)
		if err := rows.Scan(&firstVisit, &row.Title, &row.URL, &count); err != nil {
			return nil, errors.NewInternal(err)
		}
		_, row.FirstVisitTime = conv.ToLocal(firstVisit)
		row.VisitCount = int(count)
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("aggregate")
		}
		return nil, classify(s.path, err)
	}

	return result, nil
}
