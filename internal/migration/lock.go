package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofrs/flock"
)

var unsafeLockChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DefaultLockDir returns the directory holding run locks, under the user's
// cache directory.
func DefaultLockDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "esmigrate")
}

// lockPath maps a destination address to its lock file.
func lockPath(dir, destination string) string {
	if dir == "" {
		dir = DefaultLockDir()
	}
	return filepath.Join(dir, unsafeLockChars.ReplaceAllString(destination, "_")+".lock")
}

// acquireRunLock takes the exclusive run lock for destination without
// blocking. It returns ErrLocked if another process holds it.
func acquireRunLock(dir, destination string) (*flock.Flock, error) {
	path := lockPath(dir, destination)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
	}
	logger.Debugf("acquired run lock %s", path)
	return fl, nil
}
