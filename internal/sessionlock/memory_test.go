package sessionlock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker(0)

	token, ok, err := l.Acquire(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = l.Acquire(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	_, ok, err = l.Acquire(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, ok, "locks are per session")

	require.NoError(t, l.Release(ctx, "s1", token))
	require.NoError(t, l.Release(ctx, "s1", token), "release is idempotent")
	require.NoError(t, l.Release(ctx, "never-held", "x"))

	_, ok, err = l.Acquire(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLocker_StaleLockIsTakenOver(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLocker(DefaultTTL, WithClock(clock.Now))

	first, ok, _ := l.Acquire(ctx, "s1")
	require.True(t, ok)

	clock.Advance(4 * time.Minute)
	_, ok, _ = l.Acquire(ctx, "s1")
	assert.False(t, ok, "lock younger than TTL is honored")
	assert.True(t, l.Held("s1"))

	clock.Advance(2 * time.Minute)
	assert.False(t, l.Held("s1"))
	second, ok, _ := l.Acquire(ctx, "s1")
	assert.True(t, ok, "lock older than TTL is stale")

	require.NoError(t, l.Release(ctx, "s1", first))
	assert.True(t, l.Held("s1"), "the stale holder must not free the new holder's lock")
	require.NoError(t, l.Release(ctx, "s1", second))
	assert.False(t, l.Held("s1"))
}

func TestMemoryLocker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := NewMemoryLocker(0).Acquire(ctx, "s1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLocker_ConcurrentAcquireHasOneWinner(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker(0)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := l.Acquire(ctx, "shared"); err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestAcquireWait(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker(0)
	key := SkillKey("sk-1")
	assert.Equal(t, "skill:sk-1", key)

	token, ok, err := l.Acquire(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = AcquireWait(ctx, l, key, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = l.Release(ctx, key, token)
	}()
	next, err := AcquireWait(ctx, l, key, 2*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, token, next)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = AcquireWait(cctx, l, key, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("DOJO_TEST_REDIS_URL")
	if url == "" {
		t.Skip("DOJO_TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	l, err := NewRedisLockerFromURL(ctx, url, 2*time.Second)
	require.NoError(t, err)
	defer l.Close()

	id := "test-" + time.Now().Format("150405.000000000")
	token, ok, err := l.Acquire(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = l.Acquire(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, id, "someone-else"))
	_, ok, err = l.Acquire(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "a foreign token must not release the lock")

	require.NoError(t, l.Release(ctx, id, token))
	require.NoError(t, l.Release(ctx, id, token))

	token, ok, err = l.Acquire(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(ctx, id, token))
}
