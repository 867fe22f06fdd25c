// Package diary merges rendered blocks into date-bucketed markdown notes.
package diary

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/browsediary/internal/errors"
	"github.com/hpungsan/browsediary/internal/render"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// MergeResult reports what a merge did.
type MergeResult struct {
	Path         string `json:"path"`
	LinesWritten int    `json:"lines_written"`
	Created      bool   `json:"created"`
	NoOp         bool   `json:"no_op"`
}

// Merger appends blocks to notes under Base, laid out as {Base}/YYYY/MM/YYYY-MM-DD.md.
type Merger struct {
	Base string
}

// NewMerger validates base and returns a Merger rooted there.
func NewMerger(base string) (*Merger, error) {
	if err := ValidateBase(base); err != nil {
		return nil, err
	}
	return &Merger{Base: filepath.Clean(base)}, nil
}

// Path returns the note path for day. Only the calendar date of day is used.
func (m *Merger) Path(day time.Time) string {
	return filepath.Join(m.Base, day.Format("2006"), day.Format("01"), day.Format("2006-01-02")+".md")
}

// Merge appends block to the note for day. Existing bytes are never
// truncated or reordered; a header-only block touches nothing.
func (m *Merger) Merge(day time.Time, block render.Block) (*MergeResult, error) {
	path := m.Path(day)
	if block.HeaderOnly() {
		return &MergeResult{Path: path, NoOp: true}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, errors.NewDestinationUnwritable(filepath.Dir(path), err)
	}

	created := false
	if _, err := os.Lstat(path); stderrors.Is(err, os.ErrNotExist) {
		created = true
	}

	f, err := openFileNoFollow(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, filePerm)
	if err != nil {
		return nil, errors.NewDestinationUnwritable(path, err)
	}
	defer f.Close()

	sep, err := separator(f)
	if err != nil {
		return nil, errors.NewDestinationUnwritable(path, err)
	}

	payload := sep + block.String()
	if _, err := io.WriteString(f, payload); err != nil {
		return nil, errors.NewDestinationUnwritable(path, err)
	}
	if err := f.Close(); err != nil {
		return nil, errors.NewDestinationUnwritable(path, err)
	}

	return &MergeResult{
		Path:         path,
		LinesWritten: strings.Count(payload, "\n"),
		Created:      created,
	}, nil
}

// separator returns what must precede a new block so exactly one blank line
// sits between the existing content and the block. Empty files need none.
func separator(f *os.File) (string, error) {
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", f.Name())
	}
	size := info.Size()
	if size == 0 {
		return "", nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return "", fmt.Errorf("read tail: %w", err)
	}
	if last[0] == '\n' {
		return "\n", nil
	}
	return "\n\n", nil
}
