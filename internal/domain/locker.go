package domain

import (
	"context"
	"errors"
)

// ErrLockNotAcquired is returned when a lock is already held by another
// process. Callers treat it as "skip this tick", never as a reason to wait.
var ErrLockNotAcquired = errors.New("lock not acquired")

// TickLockName is the fixed key under which the distribution tick takes its
// cluster-wide mutex.
const TickLockName = "distribution-tick"

// Lock represents an acquired cluster-wide lock.
type Lock interface {
	// Unlock releases the lock.
	Unlock(ctx context.Context) error
}

// Locker is a cluster-wide non-blocking mutual-exclusion primitive.
type Locker interface {
	// Lock attempts to acquire the named lock. It must not block: if the
	// lock is held elsewhere it returns ErrLockNotAcquired immediately.
	Lock(ctx context.Context, name string) (Lock, error)
}
