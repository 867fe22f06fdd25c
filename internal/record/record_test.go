package record

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/browsediary/internal/errors"
	"github.com/hpungsan/browsediary/internal/history"
)

// captureLogger returns a logger writing text lines into buf.
func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestToRecord(t *testing.T) {
	row := history.VisitRow{FirstVisitTime: "09:15", Title: "Site A", URL: "https://a.example", VisitCount: 2}

	rec, coerced, err := ToRecord(row, "2025-08-04", "safari_history")
	require.NoError(t, err)
	assert.False(t, coerced)
	assert.Equal(t, ActivityRecord{
		Timestamp:  "09:15",
		Title:      "Site A",
		URL:        "https://a.example",
		VisitCount: 2,
		Source:     "safari_history",
		Date:       "2025-08-04",
	}, rec)
}

func TestToRecord_CoercesVisitCount(t *testing.T) {
	for _, count := range []int{0, -3} {
		row := history.VisitRow{FirstVisitTime: "09:15", URL: "https://a.example", VisitCount: count}
		rec, coerced, err := ToRecord(row, "2025-08-04", "safari_history")
		require.NoError(t, err)
		assert.True(t, coerced)
		assert.Equal(t, 1, rec.VisitCount)
	}
}

func TestToRecord_RejectsEmptyURL(t *testing.T) {
	_, _, err := ToRecord(history.VisitRow{FirstVisitTime: "09:15", Title: "x", URL: " ", VisitCount: 1}, "2025-08-04", "s")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRecordMalformed))
}

func TestToRecord_RejectsInvalidUTF8(t *testing.T) {
	row := history.VisitRow{FirstVisitTime: "09:15", Title: "broken \xff\xfe title", URL: "https://bad.example", VisitCount: 1}

	_, _, err := ToRecord(row, "2025-08-04", "safari_history")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRecordMalformed))
	assert.Contains(t, err.Error(), "https://bad.example")
}

func TestToRecord_StructuralCharactersRoundTrip(t *testing.T) {
	titles := []string{
		`He said "hi"`,
		`C:\Users\me`,
		"tab\there",
		"line\nbreak",
		"cr\rlf",
		"bell\x07and\x00nul",
		"back\bspace form\ffeed",
		"日本語のタイトル",
		`{"nested": "json"}`,
		"<script>alert('x')</script> & more",
	}

	for _, title := range titles {
		row := history.VisitRow{FirstVisitTime: "10:00", Title: title, URL: "https://x.example/?q=" + title, VisitCount: 1}
		rec, _, err := ToRecord(row, "2025-08-04", "safari_history")
		require.NoError(t, err, "title %q", title)

		var back ActivityRecord
		require.NoError(t, json.Unmarshal(Encode(rec), &back))
		assert.Equal(t, rec, back)
	}
}

func TestEncode_Format(t *testing.T) {
	rec := ActivityRecord{
		Timestamp:  "09:15",
		Title:      "Site \"A\"",
		URL:        "https://a.example",
		VisitCount: 2,
		Source:     "safari_history",
		Date:       "2025-08-04",
	}

	want := `{"timestamp":"09:15","title":"Site \"A\"","url":"https://a.example","visit_count":2,"source":"safari_history","date":"2025-08-04"}`
	assert.Equal(t, want, string(Encode(rec)))
	assert.NotContains(t, string(Encode(ActivityRecord{Title: "a\nb", URL: "u"})), "\n")
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, `plain`},
		{`"`, `\"`},
		{`\`, `\\`},
		{"\b\f\n\r\t", `\b\f\n\r\t`},
		{"\x00\x1f", `\u0000\u001f`},
		{"é", "é"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Escape(tt.in), "Escape(%q)", tt.in)
	}
}

func TestValidate_SkipsMalformedWithoutAborting(t *testing.T) {
	var logs bytes.Buffer
	rows := []history.VisitRow{
		{FirstVisitTime: "09:00", Title: "First", URL: "https://first.example", VisitCount: 1},
		{FirstVisitTime: "09:30", Title: "bad \xff", URL: "https://bad.example", VisitCount: 1},
		{FirstVisitTime: "10:00", Title: "Zero", URL: "https://zero.example", VisitCount: 0},
		{FirstVisitTime: "11:00", Title: "Last", URL: "https://last.example", VisitCount: 4},
	}

	records := Validate(rows, "2025-08-04", "safari_history", captureLogger(&logs))

	require.Len(t, records, 3)
	assert.Equal(t, "https://first.example", records[0].URL)
	assert.Equal(t, "https://zero.example", records[1].URL)
	assert.Equal(t, 1, records[1].VisitCount)
	assert.Equal(t, "https://last.example", records[2].URL)

	out := logs.String()
	assert.Contains(t, out, "record skipped")
	assert.Contains(t, out, "https://bad.example")
	assert.Contains(t, out, "visit count coerced to 1")
}

func TestValidate_Empty(t *testing.T) {
	records := Validate(nil, "2025-08-04", "safari_history", captureLogger(&bytes.Buffer{}))
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantCount   int
		wantCoerced bool
		wantErr     bool
	}{
		{"number", `{"timestamp":"09:15","title":"A","url":"https://a.example","visit_count":3,"source":"s","date":"2025-08-04"}`, 3, false, false},
		{"numeric string", `{"url":"https://a.example","visit_count":"5"}`, 5, false, false},
		{"non-numeric string", `{"url":"https://a.example","visit_count":"many"}`, 1, true, false},
		{"zero", `{"url":"https://a.example","visit_count":0}`, 1, true, false},
		{"negative", `{"url":"https://a.example","visit_count":-2}`, 1, true, false},
		{"missing", `{"url":"https://a.example"}`, 1, true, false},
		{"null", `{"url":"https://a.example","visit_count":null}`, 1, true, false},
		{"missing url", `{"title":"A","visit_count":1}`, 0, false, true},
		{"not json", `{"url":`, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, coerced, err := Decode([]byte(tt.line))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrRecordMalformed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, rec.VisitCount)
			assert.Equal(t, tt.wantCoerced, coerced)
		})
	}
}

func TestJSONLRoundTrip(t *testing.T) {
	records := []ActivityRecord{
		{Timestamp: "09:15", Title: "Site A", URL: "https://a.example", VisitCount: 2, Source: "safari_history", Date: "2025-08-04"},
		{Timestamp: "10:30", Title: "tab\tand \"quote\"", URL: "https://b.example", VisitCount: 1, Source: "safari_history", Date: "2025-08-04"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, records))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	back, err := ReadJSONL(&buf, captureLogger(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Equal(t, records, back)
}

func TestReadJSONL_SkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp":"09:15","title":"A","url":"https://a.example","visit_count":1,"source":"s","date":"2025-08-04"}`,
		``,
		`garbage`,
		`{"timestamp":"10:30","title":"B","url":"https://b.example","visit_count":"x","source":"s","date":"2025-08-04"}`,
	}, "\n")

	var logs bytes.Buffer
	records, err := ReadJSONL(strings.NewReader(input), captureLogger(&logs))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "https://a.example", records[0].URL)
	assert.Equal(t, 1, records[1].VisitCount)
	assert.Contains(t, logs.String(), "line=3")
}

func TestToRecord_RejectsOversizedRecord(t *testing.T) {
	url := "data:text/plain," + strings.Repeat("x", maxLineBytes)
	row := history.VisitRow{FirstVisitTime: "09:15", Title: "Inline", URL: url, VisitCount: 1}

	_, _, err := ToRecord(row, "2025-08-04", "safari_history")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRecordMalformed))
	assert.Less(t, len(err.Error()), 1024, "error message should not carry the whole url")
}

func TestValidate_SkipsOversizedRecord(t *testing.T) {
	var logs bytes.Buffer
	rows := []history.VisitRow{
		{FirstVisitTime: "09:00", Title: "First", URL: "https://first.example", VisitCount: 1},
		{FirstVisitTime: "09:10", Title: "Inline", URL: "data:text/plain," + strings.Repeat("x", maxLineBytes), VisitCount: 1},
		{FirstVisitTime: "10:00", Title: "Last", URL: "https://last.example", VisitCount: 1},
	}

	records := Validate(rows, "2025-08-04", "safari_history", captureLogger(&logs))
	require.Len(t, records, 2)
	assert.Equal(t, "https://first.example", records[0].URL)
	assert.Equal(t, "https://last.example", records[1].URL)
	assert.Contains(t, logs.String(), "record skipped")
	assert.Less(t, logs.Len(), 4096)
}

func TestReadJSONL_SkipsOversizedLine(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp":"09:15","title":"A","url":"https://a.example","visit_count":1,"source":"s","date":"2025-08-04"}`,
		`{"url":"data:text/plain,` + strings.Repeat("x", maxLineBytes+10) + `","visit_count":1}`,
		`{"timestamp":"10:30","title":"B","url":"https://b.example","visit_count":2,"source":"s","date":"2025-08-04"}`,
	}, "\n")

	var logs bytes.Buffer
	records, err := ReadJSONL(strings.NewReader(input), captureLogger(&logs))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "https://a.example", records[0].URL)
	assert.Equal(t, "https://b.example", records[1].URL)
	assert.Equal(t, 2, records[1].VisitCount)
	assert.Contains(t, logs.String(), "line=2")
}

func TestReadJSONL_LineAtLimit(t *testing.T) {
	rec := ActivityRecord{Timestamp: "09:15", URL: "https://a.example/", VisitCount: 1, Source: "s", Date: "2025-08-04"}
	rec.Title = strings.Repeat("t", maxLineBytes-len(Encode(rec)))
	require.Len(t, Encode(rec), maxLineBytes)

	_, _, err := ToRecord(history.VisitRow{FirstVisitTime: rec.Timestamp, Title: rec.Title, URL: rec.URL, VisitCount: 1}, rec.Date, rec.Source)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, []ActivityRecord{rec}))
	records, err := ReadJSONL(&buf, captureLogger(&bytes.Buffer{}))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec, records[0])
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "https://a.example", shorten("https://a.example"))

	long := strings.Repeat("é", maxLoggedURL)
	got := shorten(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxLoggedURL+3)
	assert.True(t, utf8.ValidString(got))
}
