package diary

import (
	"path/filepath"
	"strings"

	"github.com/hpungsan/browsediary/internal/errors"
)

// ValidateBase checks that a diary base path is absolute and free of traversal.
func ValidateBase(base string) error {
	if strings.TrimSpace(base) == "" {
		return errors.NewInvalidRequest("diary path is required")
	}
	if containsTraversal(base) {
		return errors.NewInvalidRequest("diary path must not contain directory traversal (..)")
	}
	if !filepath.IsAbs(base) {
		return errors.NewInvalidRequest("diary path must be absolute")
	}
	return nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Forward slashes count on every platform.
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
