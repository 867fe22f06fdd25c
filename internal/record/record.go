// Package record turns aggregated visit rows into validated activity records
// and handles their one-object-per-line JSON wire format.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/browsediary/internal/errors"
	"github.com/hpungsan/browsediary/internal/history"
)

// ActivityRecord is one validated, serializable unit of browsing activity.
type ActivityRecord struct {
	Timestamp  string `json:"timestamp"` // HH:MM, local time
	Title      string `json:"title"`
	URL        string `json:"url"`
	VisitCount int    `json:"visit_count"`
	Source     string `json:"source"`
	Date       string `json:"date"` // YYYY-MM-DD
}

// ToRecord builds an ActivityRecord from row for date (YYYY-MM-DD).
// It returns a RECORD_MALFORMED error when the record cannot survive a
// serialization round trip or would not fit on one JSONL line. A non-positive visit count is coerced to 1 and
// reported through coerced.
func ToRecord(row history.VisitRow, date, source string) (rec ActivityRecord, coerced bool, err error) {
	if strings.TrimSpace(row.URL) == "" {
		return ActivityRecord{}, false, errors.NewRecordMalformed(row.URL, "empty url")
	}

	rec = ActivityRecord{
		Timestamp:  row.FirstVisitTime,
		Title:      row.Title,
		URL:        row.URL,
		VisitCount: row.VisitCount,
		Source:     source,
		Date:       date,
	}
	if rec.VisitCount < 1 {
		rec.VisitCount = 1
		coerced = true
	}

	if err := checkRoundTrip(rec); err != nil {
		return ActivityRecord{}, coerced, err
	}
	return rec, coerced, nil
}

// Validate converts rows to records, preserving order. Rows that fail
// validation are logged and skipped; they never abort the batch.
func Validate(rows []history.VisitRow, date, source string, logger *slog.Logger) []ActivityRecord {
	records := make([]ActivityRecord, 0, len(rows))
	for _, row := range rows {
		rec, coerced, err := ToRecord(row, date, source)
		if coerced {
			logger.Warn("visit count coerced to 1", "url", shorten(row.URL), "visit_count", row.VisitCount)
		}
		if err != nil {
			logger.Warn("record skipped", "url", shorten(row.URL), "err", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

// checkRoundTrip encodes rec and parses it back, failing if any field changed.
func checkRoundTrip(rec ActivityRecord) error {
	for name, v := range map[string]string{"timestamp": rec.Timestamp, "title": rec.Title, "url": rec.URL, "source": rec.Source, "date": rec.Date} {
		if !utf8.ValidString(v) {
			return errors.NewRecordMalformed(shorten(rec.URL), fmt.Sprintf("%s is not valid UTF-8", name))
		}
	}

	encoded := Encode(rec)
	if len(encoded) > maxLineBytes {
		return errors.NewRecordMalformed(shorten(rec.URL), fmt.Sprintf("serialized form is %d bytes, limit %d", len(encoded), maxLineBytes))
	}

	var back ActivityRecord
	if err := json.Unmarshal(encoded, &back); err != nil {
		return errors.NewRecordMalformed(shorten(rec.URL), fmt.Sprintf("serialized form does not parse: %v", err))
	}
	if back != rec {
		return errors.NewRecordMalformed(shorten(rec.URL), "serialized form does not round-trip")
	}
	return nil
}

// maxLoggedURL bounds how much of a URL ends up in errors and logs.
const maxLoggedURL = 256

// shorten truncates s to maxLoggedURL bytes on a rune boundary.
func shorten(s string) string {
	if len(s) <= maxLoggedURL {
		return s
	}
	cut := maxLoggedURL
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Encode renders rec as a single-line JSON object with a fixed key order.
func Encode(rec ActivityRecord) []byte {
	var b bytes.Buffer
	b.WriteString(`{"timestamp":`)
	writeString(&b, rec.Timestamp)
	b.WriteString(`,"title":`)
	writeString(&b, rec.Title)
	b.WriteString(`,"url":`)
	writeString(&b, rec.URL)
	b.WriteString(`,"visit_count":`)
	b.WriteString(strconv.Itoa(rec.VisitCount))
	b.WriteString(`,"source":`)
	writeString(&b, rec.Source)
	b.WriteString(`,"date":`)
	writeString(&b, rec.Date)
	b.WriteByte('}')
	return b.Bytes()
}

// writeString writes s as a quoted JSON string.
func writeString(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	b.WriteString(Escape(s))
	b.WriteByte('"')
}

// Escape escapes s for use inside a JSON string literal: quote and backslash,
// the short forms \b \f \n \r \t, and \u00XX for the remaining control
// characters. Everything else, including non-ASCII, passes through.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}
