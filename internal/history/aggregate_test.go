package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/browsediary/internal/errors"
	"github.com/hpungsan/browsediary/internal/history/historytest"
)

// openFixture creates a history store containing visits and opens it.
func openFixture(t *testing.T, visits []historytest.Visit) *Store {
	t.Helper()
	store, err := Open(historytest.NewStoreFile(t, visits))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAggregate_GroupsAndCounts(t *testing.T) {
	loc := time.UTC
	at := func(clock string) time.Time { return historytest.At(t, loc, "2025-08-04", clock) }

	store := openFixture(t, []historytest.Visit{
		{At: at("09:15:10"), Title: "Site A", URL: "https://a.example"},
		{At: at("09:15:40"), Title: "Site A", URL: "https://a.example"},
		{At: at("10:30:00"), Title: "Site B", URL: "https://b.example"},
	})
	conv := NewConverter(loc)

	rows, err := store.Aggregate(context.Background(), conv, AggregateInput{
		Day:           time.Date(2025, 8, 4, 0, 0, 0, 0, loc),
		MinVisitCount: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, []VisitRow{
		{FirstVisitTime: "09:15", Title: "Site A", URL: "https://a.example", VisitCount: 2},
		{FirstVisitTime: "10:30", Title: "Site B", URL: "https://b.example", VisitCount: 1},
	}, rows)
}

func TestAggregate_FirstVisitIsMinimum(t *testing.T) {
	loc := time.UTC
	at := func(clock string) time.Time { return historytest.At(t, loc, "2025-08-04", clock) }

	// Inserted out of chronological order.
	store := openFixture(t, []historytest.Visit{
		{At: at("18:00:00"), Title: "Docs", URL: "https://docs.example"},
		{At: at("07:45:00"), Title: "Docs", URL: "https://docs.example"},
		{At: at("12:00:00"), Title: "Docs", URL: "https://docs.example"},
		{At: at("08:00:00"), Title: "News", URL: "https://news.example"},
	})

	rows, err := store.Aggregate(context.Background(), NewConverter(loc), AggregateInput{
		Day: time.Date(2025, 8, 4, 0, 0, 0, 0, loc),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Docs", rows[0].Title)
	assert.Equal(t, "07:45", rows[0].FirstVisitTime)
	assert.Equal(t, 3, rows[0].VisitCount)
	assert.Equal(t, "News", rows[1].Title)
}

func TestAggregate_SameURLDifferentTitles(t *testing.T) {
	loc := time.UTC
	at := func(clock string) time.Time { return historytest.At(t, loc, "2025-08-04", clock) }

	store := openFixture(t, []historytest.Visit{
		{At: at("09:00:00"), Title: "Inbox (3)", URL: "https://mail.example"},
		{At: at("09:05:00"), Title: "Inbox (4)", URL: "https://mail.example"},
		{At: at("09:10:00"), Title: "Inbox (3)", URL: "https://mail.example"},
	})

	rows, err := store.Aggregate(context.Background(), NewConverter(loc), AggregateInput{
		Day: time.Date(2025, 8, 4, 0, 0, 0, 0, loc),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, VisitRow{FirstVisitTime: "09:00", Title: "Inbox (3)", URL: "https://mail.example", VisitCount: 2}, rows[0])
	assert.Equal(t, VisitRow{FirstVisitTime: "09:05", Title: "Inbox (4)", URL: "https://mail.example", VisitCount: 1}, rows[1])
}

func TestAggregate_NullTitleCoalesced(t *testing.T) {
	loc := time.UTC
	at := func(clock string) time.Time { return historytest.At(t, loc, "2025-08-04", clock) }

	store := openFixture(t, []historytest.Visit{
		{At: at("11:00:00"), NullTitle: true, URL: "https://untitled.example"},
		{At: at("11:30:00"), Title: "", URL: "https://untitled.example"},
	})

	rows, err := store.Aggregate(context.Background(), NewConverter(loc), AggregateInput{
		Day: time.Date(2025, 8, 4, 0, 0, 0, 0, loc),
	})
	require.NoError(t, err)

	// NULL and empty titles fall into the same group and are never dropped.
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].Title)
	assert.Equal(t, 2, rows[0].VisitCount)
}

func TestAggregate_DayBoundsInLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	store := openFixture(t, []historytest.Visit{
		// 2025-08-03 23:59 JST: previous day.
		{At: historytest.At(t, tokyo, "2025-08-03", "23:59:59"), Title: "Late", URL: "https://late.example"},
		// 2025-08-04 00:00 JST: first second of the day.
		{At: historytest.At(t, tokyo, "2025-08-04", "00:00:00"), Title: "Early", URL: "https://early.example"},
		// 2025-08-04 23:59:59 JST: last second of the day.
		{At: historytest.At(t, tokyo, "2025-08-04", "23:59:59"), Title: "Night", URL: "https://night.example"},
		// 2025-08-05 00:00 JST: next day.
		{At: historytest.At(t, tokyo, "2025-08-05", "00:00:00"), Title: "Next", URL: "https://next.example"},
	})

	rows, err := store.Aggregate(context.Background(), NewConverter(tokyo), AggregateInput{
		Day: time.Date(2025, 8, 4, 0, 0, 0, 0, tokyo),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, VisitRow{FirstVisitTime: "00:00", Title: "Early", URL: "https://early.example", VisitCount: 1}, rows[0])
	assert.Equal(t, VisitRow{FirstVisitTime: "23:59", Title: "Night", URL: "https://night.example", VisitCount: 1}, rows[1])
}

func TestAggregate_FallBackDayOrdersByInstant(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	utc := func(clock string) time.Time { return historytest.At(t, time.UTC, "2025-11-02", clock) }

	// 01:00-01:59 happens twice on 2025-11-02 in New York.
	store := openFixture(t, []historytest.Visit{
		{At: utc("06:10:00"), Title: "Docs", URL: "https://docs.example"}, // 01:10 EST
		{At: utc("05:30:00"), Title: "Docs", URL: "https://docs.example"}, // 01:30 EDT
		{At: utc("06:00:00"), Title: "Mail", URL: "https://mail.example"}, // 01:00 EST
	})

	rows, err := store.Aggregate(context.Background(), NewConverter(ny), AggregateInput{
		Day: time.Date(2025, 11, 2, 0, 0, 0, 0, ny),
	})
	require.NoError(t, err)

	// The earliest instant wins even though its wall clock reads later.
	assert.Equal(t, []VisitRow{
		{FirstVisitTime: "01:30", Title: "Docs", URL: "https://docs.example", VisitCount: 2},
		{FirstVisitTime: "01:00", Title: "Mail", URL: "https://mail.example", VisitCount: 1},
	}, rows)
}

func TestAggregate_ExcludePatterns(t *testing.T) {
	loc := time.UTC
	at := func(clock string) time.Time { return historytest.At(t, loc, "2025-08-04", clock) }

	visits := []historytest.Visit{
		{At: at("09:00:00"), Title: "Dev", URL: "http://localhost:3000/"},
		{At: at("09:01:00"), Title: "API", URL: "http://127.0.0.1:8080/health"},
		{At: at("09:02:00"), Title: "Shout", URL: "http://LOCALHOST.example/"},
		{At: at("09:03:00"), Title: "Real", URL: "https://real.example"},
	}
	// A heavily visited excluded URL must still be excluded.
	for i := 0; i < 10; i++ {
		visits = append(visits, historytest.Visit{At: at(fmt.Sprintf("10:%02d:00", i)), Title: "Dev", URL: "http://localhost:3000/"})
	}
	store := openFixture(t, visits)

	rows, err := store.Aggregate(context.Background(), NewConverter(loc), AggregateInput{
		Day:             time.Date(2025, 8, 4, 0, 0, 0, 0, loc),
		ExcludePatterns: []string{"localhost", "127.0.0.1", ""},
	})
	require.NoError(t, err)

	urls := make([]string, len(rows))
	for i, r := range rows {
		urls[i] = r.URL
	}
	// Matching is case-sensitive: LOCALHOST stays.
	assert.Equal(t, []string{"http://LOCALHOST.example/", "https://real.example"}, urls)
}

func TestAggregate_MinVisitCount(t *testing.T) {
	loc := time.UTC
	at := func(clock string) time.Time { return historytest.At(t, loc, "2025-08-04", clock) }

	store := openFixture(t, []historytest.Visit{
		{At: at("09:00:00"), Title: "Once", URL: "https://once.example"},
		{At: at("09:10:00"), Title: "Twice", URL: "https://twice.example"},
		{At: at("09:20:00"), Title: "Twice", URL: "https://twice.example"},
	})

	rows, err := store.Aggregate(context.Background(), NewConverter(loc), AggregateInput{
		Day:           time.Date(2025, 8, 4, 0, 0, 0, 0, loc),
		MinVisitCount: 2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Twice", rows[0].Title)
	assert.Equal(t, 2, rows[0].VisitCount)
}

func TestAggregate_TiesKeepInsertionOrder(t *testing.T) {
	loc := time.UTC
	same := historytest.At(t, loc, "2025-08-04", "14:00:00")

	store := openFixture(t, []historytest.Visit{
		{At: same, Title: "Zulu", URL: "https://z.example"},
		{At: same, Title: "Alpha", URL: "https://a.example"},
		{At: same, Title: "Mike", URL: "https://m.example"},
	})

	rows, err := store.Aggregate(context.Background(), NewConverter(loc), AggregateInput{
		Day: time.Date(2025, 8, 4, 0, 0, 0, 0, loc),
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Zulu", rows[0].Title)
	assert.Equal(t, "Alpha", rows[1].Title)
	assert.Equal(t, "Mike", rows[2].Title)
}

func TestAggregate_EmptyDay(t *testing.T) {
	loc := time.UTC
	store := openFixture(t, []historytest.Visit{
		{At: historytest.At(t, loc, "2025-08-03", "12:00:00"), Title: "Yesterday", URL: "https://y.example"},
	})

	rows, err := store.Aggregate(context.Background(), NewConverter(loc), AggregateInput{
		Day: time.Date(2025, 8, 4, 0, 0, 0, 0, loc),
	})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestAggregate_CancelledContext(t *testing.T) {
	store := openFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Aggregate(ctx, NewConverter(time.UTC), AggregateInput{Day: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCancelled))
}
