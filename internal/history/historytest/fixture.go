// Package historytest builds Safari-schema history databases for tests.
package historytest

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// safariEpoch is 2001-01-01T00:00:00Z in Unix seconds.
const safariEpoch = 978307200

// schema mirrors the subset of Safari's History.db the collector reads.
const schema = `
CREATE TABLE history_items (
  id               INTEGER PRIMARY KEY AUTOINCREMENT,
  url              TEXT NOT NULL UNIQUE,
  domain_expansion TEXT NULL,
  visit_count      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE history_visits (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  history_item    INTEGER NOT NULL REFERENCES history_items(id) ON DELETE CASCADE,
  visit_time      REAL NOT NULL,
  title           TEXT NULL,
  load_successful BOOLEAN NOT NULL DEFAULT 1
);
CREATE INDEX history_visits__last_visit ON history_visits (history_item);
`

// Visit is one raw visit row. NullTitle stores SQL NULL instead of Title.
type Visit struct {
	At        time.Time
	Title     string
	NullTitle bool
	URL       string
}

// At builds a time in loc from a date and an HH:MM:SS clock, failing the test on bad input.
func At(tb testing.TB, loc *time.Location, date, clock string) time.Time {
	tb.Helper()
	t, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+clock, loc)
	if err != nil {
		tb.Fatalf("historytest.At(%q, %q): %v", date, clock, err)
	}
	return t
}

// Native converts t to a Safari visit_time value.
func Native(t time.Time) float64 {
	return float64(t.Unix()-safariEpoch) + float64(t.Nanosecond())/1e9
}

// Create writes a history database at path containing visits, inserted in order.
func Create(tb testing.TB, path string, visits []Visit) {
	tb.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		tb.Fatalf("open fixture db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		tb.Fatalf("create fixture schema: %v", err)
	}

	Append(tb, db, visits)
}

// Append inserts more visits into an open fixture database.
func Append(tb testing.TB, db *sql.DB, visits []Visit) {
	tb.Helper()

	for _, v := range visits {
		if _, err := db.Exec(
			`INSERT INTO history_items (url, visit_count) VALUES (?, 1)
			 ON CONFLICT(url) DO UPDATE SET visit_count = visit_count + 1`, v.URL); err != nil {
			tb.Fatalf("insert history_item %q: %v", v.URL, err)
		}

		var itemID int64
		if err := db.QueryRow(`SELECT id FROM history_items WHERE url = ?`, v.URL).Scan(&itemID); err != nil {
			tb.Fatalf("lookup history_item %q: %v", v.URL, err)
		}

		var title any = v.Title
		if v.NullTitle {
			title = nil
		}
		if _, err := db.Exec(
			`INSERT INTO history_visits (history_item, visit_time, title) VALUES (?, ?, ?)`,
			itemID, Native(v.At), title); err != nil {
			tb.Fatalf("insert history_visit %q: %v", v.URL, err)
		}
	}
}

// NewStoreFile creates a fixture database named History.db in a fresh temp dir
// and returns its path.
func NewStoreFile(tb testing.TB, visits []Visit) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "History.db")
	Create(tb, path, visits)
	return path
}
