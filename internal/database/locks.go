package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DannyMichaels/code-dojo-app/internal/sessionlock"
)

// SessionLocks is a sessionlock.Locker backed by the session_locks table, so
// every server sharing the database sees the same locks.
type SessionLocks struct {
	db  *Database
	ttl time.Duration
	now func() time.Time
}

// SessionLocks returns a locker over this database. A non-positive ttl uses
// sessionlock.DefaultTTL.
func (d *Database) SessionLocks(ttl time.Duration) *SessionLocks {
	if ttl <= 0 {
		ttl = sessionlock.DefaultTTL
	}
	return &SessionLocks{db: d, ttl: ttl, now: time.Now}
}

// Acquire inserts the lock row, or takes over a row whose lease has run out.
// The conditional upsert makes the check and the write a single statement.
func (l *SessionLocks) Acquire(ctx context.Context, key string) (string, bool, error) {
	now := l.now()
	token := uuid.NewString()
	res, err := l.db.db.ExecContext(ctx, l.db.q(`
		INSERT INTO session_locks (session_id, owner, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE session_locks.expires_at <= ?
	`), key, token, toUnix(now), toUnix(now.Add(l.ttl)), toUnix(now))
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to check session lock: %w", err)
	}
	if n != 1 {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes the lock row if token still owns it.
func (l *SessionLocks) Release(ctx context.Context, key, token string) error {
	if _, err := l.db.db.ExecContext(ctx, l.db.q(`DELETE FROM session_locks WHERE session_id = ? AND owner = ?`), key, token); err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}

// PurgeExpired removes stale rows and reports how many were deleted.
func (l *SessionLocks) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := l.db.db.ExecContext(ctx, l.db.q(`DELETE FROM session_locks WHERE expires_at <= ?`), toUnix(l.now()))
	if err != nil {
		return 0, fmt.Errorf("failed to purge session locks: %w", err)
	}
	return res.RowsAffected()
}

var _ sessionlock.Locker = (*SessionLocks)(nil)
