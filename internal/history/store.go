package history

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/browsediary/internal/errors"
	_ "modernc.org/sqlite"
)

// requiredTables are the relations the aggregation query joins.
var requiredTables = []string{"history_items", "history_visits"}

// sideFileSuffixes are the SQLite files that accompany a WAL-mode database.
var sideFileSuffixes = []string{"-wal", "-shm"}

// Store is a read-only handle on a Safari history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the history store at path for reading.
// A missing file is SOURCE_UNAVAILABLE; a file that exists but cannot be read
// (permissions, browser lock) is SOURCE_PERMISSION_DENIED.
func Open(path string) (*Store, error) {
	if err := checkReadable(path); err != nil {
		return nil, err
	}

	// query_only rejects writes on every pooled connection; the file is never created
	// because checkReadable has already confirmed it exists.
	dsn := path + "?_pragma=busy_timeout(2000)&_pragma=query_only(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, classify(path, err)
	}

	if err := verifySchema(db, path); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// verifySchema checks that the relations the aggregation needs exist.
func verifySchema(db *sql.DB, path string) error {
	for _, table := range requiredTables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err == sql.ErrNoRows {
			return errors.NewSourceUnavailable(path, fmt.Errorf("missing table %s", table))
		}
		if err != nil {
			return classify(path, err)
		}
	}
	return nil
}

// checkReadable stats and opens path without touching it as a database.
func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return classify(path, err)
	}
	if info.IsDir() {
		return errors.NewSourceUnavailable(path, fmt.Errorf("is a directory"))
	}

	f, err := os.Open(path)
	if err != nil {
		return classify(path, err)
	}
	return f.Close()
}

// classify maps filesystem and SQLite errors onto the source error kinds.
func classify(path string, err error) error {
	var dErr *errors.DiaryError
	if stderrors.As(err, &dErr) {
		return err
	}

	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return errors.NewSourceUnavailable(path, err)
	case stderrors.Is(err, fs.ErrPermission):
		return errors.NewSourcePermissionDenied(path, err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"database is locked", "sqlite_busy", "permission denied", "authorization denied", "unable to open database"} {
		if strings.Contains(msg, marker) {
			return errors.NewSourcePermissionDenied(path, err)
		}
	}
	return errors.NewSourceUnavailable(path, err)
}

// Snapshot copies the store at src, along with its -wal and -shm side files
// when present, into dir. The copy is what the pipeline opens, so the live
// database is only held for the duration of the file copy.
func Snapshot(src, dir string) (string, error) {
	if err := checkReadable(src); err != nil {
		return "", err
	}

	dst := filepath.Join(dir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", err
	}

	for _, suffix := range sideFileSuffixes {
		side := src + suffix
		if _, err := os.Stat(side); err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", classify(side, err)
		}
		if err := copyFile(side, dst+suffix); err != nil {
			return "", err
		}
	}

	return dst, nil
}

// copyFile copies src to dst. Read failures are source errors; write failures
// inside the workspace are internal.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return classify(src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("create snapshot %s: %w", dst, err))
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		if stderrors.Is(err, fs.ErrPermission) {
			return errors.NewSourcePermissionDenied(src, err)
		}
		return errors.NewInternal(fmt.Errorf("copy %s: %w", src, err))
	}
	if err := out.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("close snapshot %s: %w", dst, err))
	}
	return nil
}
