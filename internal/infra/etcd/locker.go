// Package etcd provides the alternative cluster-lock backend for
// deployments whose Postgres sits behind a pooler that breaks session-level
// advisory locks. Selected with lock_backend: etcd.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	// lockPrefix is the root path of distribution locks in etcd.
	lockPrefix = "/field-service/locks/"
	// lockSessionTTL bounds how long a crashed holder keeps the lock.
	lockSessionTTL = 10 // seconds
	// tryLockTimeout keeps TryLock from blocking: held elsewhere must mean
	// "skip this tick", not "wait for it".
	tryLockTimeout = 100 * time.Millisecond
)

type etcdLock struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
	name    string
}

// Unlock releases the lock and closes the owning session, dropping the lease.
func (l *etcdLock) Unlock(ctx context.Context) error {
	defer func() {
		if l.session != nil {
			_ = l.session.Close()
		}
	}()

	if err := l.mutex.Unlock(ctx); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.name, err)
	}
	return nil
}

type etcdLocker struct {
	client *clientv3.Client
}

// NewLocker creates an etcd-backed domain.Locker.
func NewLocker(client *clientv3.Client) domain.Locker {
	return &etcdLocker{client: client}
}

// Lock attempts to acquire the named lock. Each attempt gets its own session
// so a crash releases the lock when the lease expires.
func (l *etcdLocker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(lockSessionTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session for lock %s: %w", name, err)
	}

	mutex := concurrency.NewMutex(session, lockPrefix+name)

	tryCtx, cancel := context.WithTimeout(ctx, tryLockTimeout)
	defer cancel()

	if err := mutex.TryLock(tryCtx); err != nil {
		_ = session.Close()
		if errors.Is(err, concurrency.ErrLocked) || errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrLockNotAcquired
		}
		return nil, fmt.Errorf("failed to try acquiring etcd lock %s: %w", name, err)
	}

	return &etcdLock{
		mutex:   mutex,
		session: session,
		name:    name,
	}, nil
}
