//go:build windows

package diary

import (
	"fmt"
	"os"
)

// openFileNoFollow opens path for writing. Windows has no O_NOFOLLOW, so the
// final component is checked with Lstat first.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("refusing to write through symlink: %s", path)
	}
	return os.OpenFile(path, flag, perm)
}
