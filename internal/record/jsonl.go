package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hpungsan/browsediary/internal/errors"
)

// maxLineBytes bounds a single JSONL line; titles and URLs are short in practice.
const maxLineBytes = 1 << 20

// wireRecord accepts visit_count in any JSON shape so it can be coerced.
type wireRecord struct {
	Timestamp  string          `json:"timestamp"`
	Title      string          `json:"title"`
	URL        string          `json:"url"`
	VisitCount json.RawMessage `json:"visit_count"`
	Source     string          `json:"source"`
	Date       string          `json:"date"`
}

// Decode parses one JSONL line. visit_count may be a number, a numeric string
// or anything else; values that are not positive integers become 1 and are
// reported through coerced.
func Decode(line []byte) (rec ActivityRecord, coerced bool, err error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return ActivityRecord{}, false, errors.NewRecordMalformed("", fmt.Sprintf("invalid JSON: %v", err))
	}
	if strings.TrimSpace(w.URL) == "" {
		return ActivityRecord{}, false, errors.NewRecordMalformed(w.URL, "empty url")
	}

	count, ok := parseVisitCount(w.VisitCount)
	if !ok {
		count = 1
		coerced = true
	}

	return ActivityRecord{
		Timestamp:  w.Timestamp,
		Title:      w.Title,
		URL:        w.URL,
		VisitCount: count,
		Source:     w.Source,
		Date:       w.Date,
	}, coerced, nil
}

// parseVisitCount returns the positive integer held by raw, if any.
func parseVisitCount(raw json.RawMessage) (int, bool) {
	s := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// WriteJSONL writes records to w, one encoded object per line.
func WriteJSONL(w io.Writer, records []ActivityRecord) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := bw.Write(Encode(rec)); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadJSONL reads records from r. Blank lines are ignored; malformed or
// oversized lines are logged and skipped. Only read errors are returned.
func ReadJSONL(r io.Reader, logger *slog.Logger) ([]ActivityRecord, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	records := make([]ActivityRecord, 0)
	lineNum := 0
	for {
		raw, tooLong, err := readLine(br, maxLineBytes)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("read records: %w", err))
		}
		lineNum++

		if tooLong {
			logger.Warn("record skipped", "line", lineNum, "err",
				errors.NewRecordMalformed("", fmt.Sprintf("line exceeds %d bytes", maxLineBytes)))
			continue
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}

		rec, coerced, err := Decode(line)
		if err != nil {
			logger.Warn("record skipped", "line", lineNum, "err", err)
			continue
		}
		if coerced {
			logger.Warn("visit count coerced to 1", "line", lineNum, "url", shorten(rec.URL))
		}
		records = append(records, rec)
	}

	return records, nil
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed to its end and reported through tooLong with no data.
// io.EOF is returned only when no line remains.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF && (tooLong || line != nil) {
				return line, tooLong, nil
			}
			return nil, false, err
		}
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if !isPrefix {
			if line == nil && !tooLong {
				line = []byte{}
			}
			return line, tooLong, nil
		}
	}
}
