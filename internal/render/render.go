// Package render turns activity records into the markdown block merged into
// the diary.
package render

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/hpungsan/browsediary/internal/errors"
	"github.com/hpungsan/browsediary/internal/record"
)

// Recognized template placeholders.
const (
	PlaceholderTimestamp  = "{timestamp}"
	PlaceholderTitle      = "{title}"
	PlaceholderURL        = "{url}"
	PlaceholderVisitCount = "{visit_count}"
)

var placeholders = []string{PlaceholderTimestamp, PlaceholderTitle, PlaceholderURL, PlaceholderVisitCount}

// lineBreaks folds embedded line breaks so one record is always one line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Block is the rendered text for one run: a header line followed by one line per record.
type Block struct {
	Lines []string
}

// HeaderOnly reports whether the block carries no records.
// The merge stage treats such a block as nothing to append.
func (b Block) HeaderOnly() bool {
	return len(b.Lines) <= 1
}

// String joins the lines with a trailing newline.
func (b Block) String() string {
	if len(b.Lines) == 0 {
		return ""
	}
	return strings.Join(b.Lines, "\n") + "\n"
}

// Renderer formats records with a header and a line template.
type Renderer struct {
	header   string
	template string
}

// New creates a Renderer. The header must be a single markdown heading line;
// the template must be a single line using at least one placeholder.
func New(header, template string) (*Renderer, error) {
	if strings.ContainsAny(header, "\r\n") || strings.TrimSpace(header) == "" {
		return nil, errors.NewInvalidRequest("header must be a single non-empty line")
	}
	if !isHeading(header) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("header %q is not a markdown heading", header))
	}

	if strings.ContainsAny(template, "\r\n") || strings.TrimSpace(template) == "" {
		return nil, errors.NewInvalidRequest("line template must be a single non-empty line")
	}
	found := false
	for _, p := range placeholders {
		if strings.Contains(template, p) {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("line template %q uses none of %v", template, placeholders))
	}

	return &Renderer{header: header, template: template}, nil
}

// Render produces the block for records, in their given order.
// No records yields the header alone.
func (r *Renderer) Render(records []record.ActivityRecord) Block {
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, r.header)
	for _, rec := range records {
		lines = append(lines, r.Line(rec))
	}
	return Block{Lines: lines}
}

// Line formats a single record. Substituted values are never re-scanned for placeholders.
func (r *Renderer) Line(rec record.ActivityRecord) string {
	replacer := strings.NewReplacer(
		PlaceholderTimestamp, lineBreaks.Replace(rec.Timestamp),
		PlaceholderTitle, lineBreaks.Replace(rec.Title),
		PlaceholderURL, lineBreaks.Replace(rec.URL),
		PlaceholderVisitCount, strconv.Itoa(rec.VisitCount),
	)
	return replacer.Replace(r.template)
}

// ToHTML renders the block through goldmark, for previews.
func ToHTML(b Block) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(b.String()), &buf); err != nil {
		return "", errors.NewInternal(fmt.Errorf("render html: %w", err))
	}
	return buf.String(), nil
}

// isHeading reports whether s parses as exactly one markdown heading.
func isHeading(s string) bool {
	doc := goldmark.DefaultParser().Parse(text.NewReader([]byte(s)))
	return doc.ChildCount() == 1 && doc.FirstChild().Kind() == ast.KindHeading
}
