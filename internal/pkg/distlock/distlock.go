// Package distlock guards a dispatch session across processes that share a
// checkpoint backend, so that two workers never drive the same campaign.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is held for the lifetime of one campaign run. An instance is
// owned by one session; separate processes use separate instances.
type DistLock interface {
	// Acquire reports whether the lock was taken. It never blocks waiting
	// for another holder.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this instance holds it.
	Release(ctx context.Context) error
}

// NewLock picks a backend for session: Redis when configured, then a
// PostgreSQL advisory lock, then a process-local lock.
func NewLock(redisClient *redis.Client, db *sql.DB, session string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, session, ttl)
	}
	if db != nil {
		return NewPGAdvisoryLock(db, session)
	}
	return &LocalLock{}
}

// advisoryNamespace is the first key of the two-int advisory lock form, so
// dispatch sessions cannot collide with other users of the same database.
const advisoryNamespace int32 = 0x64697370 // "disp"

// PGAdvisoryLock uses pg_try_advisory_lock(namespace, hash(session)).
// Advisory locks belong to a database session, so one pooled connection is
// pinned while the lock is held and the unlock runs on it.
type PGAdvisoryLock struct {
	db      *sql.DB
	session int32
	conn    *sql.Conn
}

// NewPGAdvisoryLock derives the lock key from the session ID.
func NewPGAdvisoryLock(db *sql.DB, session string) *PGAdvisoryLock {
	h := fnv.New32a()
	_, _ = h.Write([]byte(session))
	return &PGAdvisoryLock{db: db, session: int32(h.Sum32())}
}

// Acquire pins a connection and tries the lock on it.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, fmt.Errorf("advisory lock %d/%d already held by this instance", advisoryNamespace, l.session)
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("pinning connection for advisory lock: %w", err)
	}

	var got bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1, $2)", advisoryNamespace, l.session).Scan(&got)
	if err != nil || !got {
		conn.Close()
		if err != nil {
			return false, fmt.Errorf("pg_try_advisory_lock: %w", err)
		}
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the pinned connection and returns it to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	conn := l.conn
	if conn == nil {
		return nil
	}
	l.conn = nil
	_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1, $2)", advisoryNamespace, l.session)
	if closeErr := conn.Close(); err == nil {
		return closeErr
	}
	return fmt.Errorf("pg_advisory_unlock: %w", err)
}

// LocalLock covers single-process deployments with no shared backend.
type LocalLock struct {
	mu   sync.Mutex
	held bool
}

// Acquire takes the lock unless it is already held.
func (l *LocalLock) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

// Release clears the lock.
func (l *LocalLock) Release(context.Context) error {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
	return nil
}
