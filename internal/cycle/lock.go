package cycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrAlreadyRunning is returned when another cycle holds the advisory lock.
var ErrAlreadyRunning = errors.New("already_running: another cycle holds the lock")

// lockStaleAfter bounds how long a crashed cycle can keep the lock.
const lockStaleAfter = 30 * time.Minute

// acquireLock takes the process-wide advisory lock keyed by the config
// path. The returned release function removes the lock file.
func acquireLock(path string) (release func(), err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		info, statErr := os.Stat(path)
		if statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			// A crashed cycle left the lock behind; take it over.
			if rmErr := os.Remove(path); rmErr != nil {
				return nil, fmt.Errorf("remove stale lock: %w", rmErr)
			}
			return acquireLock(path)
		}
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	_ = f.Close()

	return func() {
		_ = os.Remove(path)
	}, nil
}
