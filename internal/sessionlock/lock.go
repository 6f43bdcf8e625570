// Package sessionlock serializes turns per session with expiring locks.
package sessionlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long a crashed turn can keep a session locked.
const DefaultTTL = 5 * time.Minute

// ErrTimeout is returned by AcquireWait when the lock stays held.
var ErrTimeout = errors.New("timed out waiting for lock")

// Locker grants at most one holder per key. Acquire returns the holder's
// token, or ok=false without error when a live lock is held elsewhere; a lock
// older than the TTL is treated as stale and taken over. Release removes the
// lock only while it is still held under token, so a holder whose lock was
// taken over cannot free its successor's. Release is idempotent.
type Locker interface {
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// SkillKey names the lock that serializes writes to one skill record.
func SkillKey(skillID string) string {
	return "skill:" + skillID
}

const pollInterval = 20 * time.Millisecond

// AcquireWait polls Acquire until the lock is taken, wait elapses or ctx ends.
func AcquireWait(ctx context.Context, l Locker, key string, wait time.Duration) (string, error) {
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		token, ok, err := l.Acquire(wctx, key)
		if err == nil && ok {
			return token, nil
		}
		if err != nil && wctx.Err() == nil {
			return "", err
		}
		select {
		case <-wctx.Done():
		case <-ticker.C:
			continue
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s", ErrTimeout, key)
	}
}

func newToken() string {
	return uuid.NewString()
}
