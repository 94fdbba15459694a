package postgres

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/Dattelon/field-service-sub000/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// advisoryLocker implements domain.Locker on Postgres session-level advisory
// locks. The lock lives on a dedicated pooled connection; releasing the
// connection without unlocking would silently drop the lock, so Unlock always
// does both.
type advisoryLocker struct {
	pool *pgxpool.Pool
}

// NewAdvisoryLocker creates a Postgres-backed cluster lock.
func NewAdvisoryLocker(pool *pgxpool.Pool) domain.Locker {
	return &advisoryLocker{pool: pool}
}

// Lock tries pg_try_advisory_lock with a key derived from the name. Held
// elsewhere means domain.ErrLockNotAcquired, immediately: competing ticks
// skip, they never queue.
func (l *advisoryLocker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for advisory lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockKey(name)).Scan(&acquired); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock %s: %w", name, err)
	}
	if !acquired {
		conn.Release()
		return nil, domain.ErrLockNotAcquired
	}

	return &advisoryLock{conn: conn, key: lockKey(name)}, nil
}

type advisoryLock struct {
	conn *pgxpool.Conn
	key  int64
}

func (l *advisoryLock) Unlock(ctx context.Context) error {
	defer l.conn.Release()
	if _, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}

// lockKey hashes the lock name into the bigint key space advisory locks use.
func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
