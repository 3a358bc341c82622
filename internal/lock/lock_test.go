package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLocker(t *testing.T, opts Options) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLocker(rdb, opts, zap.NewNop()), mr
}

func TestTryAcquireAndRelease(t *testing.T) {
	locker, mr := newTestLocker(t, Options{TTL: 30 * time.Second})
	ctx := context.Background()

	lk, err := locker.TryAcquire(ctx, "seat:42")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:seat:42"))

	_, err = locker.TryAcquire(ctx, "seat:42")
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, lk.Release(ctx))
	assert.False(t, mr.Exists("lock:seat:42"))

	_, err = locker.TryAcquire(ctx, "seat:42")
	assert.NoError(t, err)
}

func TestReleaseOnlyByOwner(t *testing.T) {
	locker, mr := newTestLocker(t, Options{TTL: time.Second})
	ctx := context.Background()

	lk, err := locker.TryAcquire(ctx, "seat:7")
	require.NoError(t, err)

	// Simulate the lock expiring and a second holder taking over.
	mr.FastForward(2 * time.Second)
	other, err := locker.TryAcquire(ctx, "seat:7")
	require.NoError(t, err)

	// The stale holder's release must not remove the new holder's lock.
	require.NoError(t, lk.Release(ctx))
	assert.True(t, mr.Exists("lock:seat:7"))

	require.NoError(t, other.Release(ctx))
	assert.False(t, mr.Exists("lock:seat:7"))
}

func TestExtendKeepsOwnership(t *testing.T) {
	locker, mr := newTestLocker(t, Options{TTL: time.Second})
	ctx := context.Background()

	lk, err := locker.TryAcquire(ctx, "seat:9")
	require.NoError(t, err)

	ok, err := lk.Extend(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(5 * time.Second)
	assert.True(t, mr.Exists("lock:seat:9"))

	mr.FastForward(6 * time.Second)
	assert.False(t, mr.Exists("lock:seat:9"))

	// Extending after expiry reports lost ownership.
	ok, err = lk.Extend(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquireRetries(t *testing.T) {
	locker, mr := newTestLocker(t, Options{
		TTL:        time.Second,
		RetryDelay: 10 * time.Millisecond,
		MaxRetries: 3,
	})
	ctx := context.Background()

	mr.Set("lock:seat:1", "someone-else")
	mr.SetTTL("lock:seat:1", time.Hour)

	_, err := locker.Acquire(ctx, "seat:1")
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestAcquireMultiSortsAndRollsBack(t *testing.T) {
	locker, mr := newTestLocker(t, Options{TTL: 30 * time.Second})
	ctx := context.Background()

	m, err := locker.AcquireMulti(ctx, []string{"seat:3", "seat:1", "seat:2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lock:seat:1", "lock:seat:2", "lock:seat:3"}, m.Keys())
	require.NoError(t, m.Release(ctx))
	for _, k := range []string{"lock:seat:1", "lock:seat:2", "lock:seat:3"} {
		assert.False(t, mr.Exists(k))
	}

	// A conflicting member fails the whole batch and releases the rest.
	mr.Set("lock:seat:2", "someone-else")
	mr.SetTTL("lock:seat:2", time.Hour)
	_, err = locker.AcquireMulti(ctx, []string{"seat:1", "seat:2", "seat:3"})
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, mr.Exists("lock:seat:1"))
	assert.False(t, mr.Exists("lock:seat:3"))
	assert.True(t, mr.Exists("lock:seat:2"))
}
