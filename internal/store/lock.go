package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when a file lock cannot be acquired within the
// configured retry window. Callers may retry with backoff.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// WithLock runs fn while holding an exclusive advisory lock scoped to path.
// The lock is released on every exit path, including fn failure.
//
// The lock is taken on a sidecar .lock file rather than the data file itself:
// appends replace the data file by rename, which would leave a waiter holding
// a lock on an orphaned inode. Readers never take this lock.
func WithLock(ctx context.Context, path string, timeout, retry time.Duration, fn func() error) error {
	fl := flock.New(path + ".lock")

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := fl.TryLockContext(lockCtx, retry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}
		return fmt.Errorf("acquire lock for %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockTimeout, path)
	}
	defer fl.Unlock()

	return fn()
}
