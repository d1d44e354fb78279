// Package distlock provides cross-process locks backed by PostgreSQL
// advisory locks.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
)

// =============================================================================
// PostgreSQL Advisory Lock
// =============================================================================
// Advisory locks are session-scoped, so the lock is bound to one *sql.Conn
// and every statement that must run under the lock uses that connection.
// The lock is released automatically if the connection drops.

// PGAdvisoryLock is an advisory lock held on a single connection.
type PGAdvisoryLock struct {
	conn   *sql.Conn
	key    string
	lockID int64
}

// KeyID derives the advisory lock id for key.
func KeyID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// NewPGAdvisoryLock creates a lock for key on conn.
func NewPGAdvisoryLock(conn *sql.Conn, key string) *PGAdvisoryLock {
	return &PGAdvisoryLock{conn: conn, key: key, lockID: KeyID(key)}
}

// Lock blocks until the lock is held or ctx ends.
func (l *PGAdvisoryLock) Lock(ctx context.Context) error {
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.lockID); err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return nil
}

// TryLock acquires the lock without waiting. It reports whether the lock is
// now held.
func (l *PGAdvisoryLock) TryLock(ctx context.Context) (bool, error) {
	var acquired bool
	if err := l.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		return false, fmt.Errorf("try lock %s: %w", l.key, err)
	}
	return acquired, nil
}

// Unlock releases the lock.
func (l *PGAdvisoryLock) Unlock(ctx context.Context) error {
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
