package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/browsediary/internal/errors"
)

// recordsFile holds the collected records between Collecting and Formatting.
const recordsFile = "records.jsonl"

// Workspace is a temporary directory owned by one run.
type Workspace struct {
	Dir string
}

// AcquireWorkspace creates a fresh workspace under root (the system temp dir
// when empty). The caller must defer Release.
func AcquireWorkspace(root, runID string) (*Workspace, error) {
	dir, err := os.MkdirTemp(root, "browsediary-"+runID+"-")
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("create workspace: %w", err))
	}
	return &Workspace{Dir: dir}, nil
}

// RecordsPath returns the path of the records file inside the workspace.
func (w *Workspace) RecordsPath() string {
	return filepath.Join(w.Dir, recordsFile)
}

// Release removes the workspace and everything in it. Safe to call twice.
func (w *Workspace) Release() error {
	return os.RemoveAll(w.Dir)
}
