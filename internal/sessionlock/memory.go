package sessionlock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker keeps locks in process memory. It only serializes turns
// within a single server instance.
type MemoryLocker struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	locks map[string]lease
}

type lease struct {
	token string
	at    time.Time
}

// MemoryOption configures a MemoryLocker.
type MemoryOption func(*MemoryLocker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLocker) {
		m.now = now
	}
}

// NewMemoryLocker creates a process-local locker. A non-positive ttl uses DefaultTTL.
func NewMemoryLocker(ttl time.Duration, opts ...MemoryOption) *MemoryLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &MemoryLocker{
		ttl:   ttl,
		now:   time.Now,
		locks: make(map[string]lease),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire takes the lock for key if it is free or stale.
func (m *MemoryLocker) Acquire(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, held := m.locks[key]; held && now.Sub(l.at) < m.ttl {
		return "", false, nil
	}
	token := newToken()
	m.locks[key] = lease{token: token, at: now}
	return token, true, nil
}

// Release frees the lock for key if token still holds it.
func (m *MemoryLocker) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	if l, held := m.locks[key]; held && l.token == token {
		delete(m.locks, key)
	}
	m.mu.Unlock()
	return nil
}

// Held reports whether a live lock exists for key.
func (m *MemoryLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, held := m.locks[key]
	return held && m.now().Sub(l.at) < m.ttl
}

var _ Locker = (*MemoryLocker)(nil)
