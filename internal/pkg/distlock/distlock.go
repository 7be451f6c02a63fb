// Package distlock guards against two imports running at once for the same user.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release when the lock expired or belongs to someone else.
var ErrNotHeld = errors.New("distlock: lock not held")

// Lock is a single named lock.
type Lock interface {
	// Acquire tries to take the lock without blocking. Returns true if taken.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if we still own it.
	Release(ctx context.Context) error
}

// Locker hands out named locks. Import code asks for one lock per user id.
type Locker interface {
	Lock(key string) Lock
}

// NewLocker picks the backend: Redis when a client is configured, PostgreSQL
// advisory locks when only a database is, and process-local locks otherwise.
func NewLocker(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Locker {
	switch {
	case redisClient != nil:
		return redisLocker{client: redisClient, ttl: ttl}
	case db != nil:
		return pgLocker{db: db}
	default:
		return NewLocalLocker()
	}
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func (r redisLocker) Lock(key string) Lock { return NewRedisLock(r.client, key, r.ttl) }

type pgLocker struct{ db *sql.DB }

func (p pgLocker) Lock(key string) Lock { return NewPGAdvisoryLock(p.db, key) }

// PGAdvisoryLock uses pg_try_advisory_lock / pg_advisory_unlock. The lock is
// session-scoped so it is pinned to one pooled connection until released.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock derives a stable advisory lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte("import:" + key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire is non-blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
