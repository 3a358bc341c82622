// Package lock implements a Redis-backed distributed mutex with owner
// tokens.  A lock is the key "lock:<name>" holding a random token; only
// the holder of the token can release or extend it, so a slow process
// whose lock already expired cannot stomp on the next holder.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotAcquired is returned when a lock could not be taken within the
// configured retry budget.
var ErrNotAcquired = errors.New("lock: not acquired")

// releaseScript deletes the key only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// extendScript refreshes the TTL only when the caller still owns the key.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

// Options tune acquisition behaviour.
type Options struct {
	// TTL is how long an acquired lock lives without an extend.
	TTL time.Duration
	// RetryDelay is the pause between acquisition attempts.
	RetryDelay time.Duration
	// MaxRetries bounds the attempts after the first one.
	MaxRetries int
}

// Locker acquires named locks against a single Redis instance.
type Locker struct {
	rdb    redis.UniversalClient
	opts   Options
	logger *zap.Logger
}

// NewLocker returns a Locker using the given client and options.
func NewLocker(rdb redis.UniversalClient, opts Options, logger *zap.Logger) *Locker {
	return &Locker{rdb: rdb, opts: opts, logger: logger}
}

// Lock is an acquired mutex.  It is released by the same goroutine flow
// that acquired it; Lock itself is not safe for concurrent use.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// Key returns the full Redis key of the lock.
func (l *Lock) Key() string { return l.key }

func lockKey(name string) string { return "lock:" + name }

// tryOnce makes a single SET NX attempt.
func (l *Locker) tryOnce(ctx context.Context, key, token string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, token, l.opts.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("lock: setnx %s: %w", key, err)
	}
	return ok, nil
}

// TryAcquire attempts to take the named lock exactly once.
func (l *Locker) TryAcquire(ctx context.Context, name string) (*Lock, error) {
	key := lockKey(name)
	token := uuid.NewString()
	ok, err := l.tryOnce(ctx, key, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{locker: l, key: key, token: token}, nil
}

// Acquire takes the named lock, retrying up to MaxRetries times with
// RetryDelay between attempts.  Returns ErrNotAcquired when the budget is
// exhausted.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	key := lockKey(name)
	token := uuid.NewString()
	for attempt := 0; ; attempt++ {
		ok, err := l.tryOnce(ctx, key, token)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{locker: l, key: key, token: token}, nil
		}
		if attempt >= l.opts.MaxRetries {
			l.logger.Debug("lock acquisition exhausted",
				zap.String("key", key), zap.Int("attempts", attempt+1))
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.opts.RetryDelay):
		}
	}
}

// Release drops the lock if this holder still owns it.  Releasing a lock
// that already expired is not an error.
func (l *Lock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.locker.rdb, []string{l.key}, l.token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lock: release %s: %w", l.key, err)
	}
	return nil
}

// Extend pushes the lock's expiry out by ttl if this holder still owns it.
// Returns false when ownership was already lost.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, l.locker.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("lock: extend %s: %w", l.key, err)
	}
	return n == 1, nil
}

// MultiLock holds several locks taken as a unit.
type MultiLock struct {
	locks []*Lock
}

// Keys returns the held keys in acquisition order.
func (m *MultiLock) Keys() []string {
	keys := make([]string, len(m.locks))
	for i, l := range m.locks {
		keys[i] = l.key
	}
	return keys
}

// AcquireMulti takes every named lock in sorted name order, which keeps
// two callers contending over overlapping sets from deadlocking.  On any
// failure the already-held locks are released in reverse order and
// ErrNotAcquired (or the underlying error) is returned.
func (l *Locker) AcquireMulti(ctx context.Context, names []string) (*MultiLock, error) {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	m := &MultiLock{locks: make([]*Lock, 0, len(sorted))}
	for _, name := range sorted {
		lk, err := l.Acquire(ctx, name)
		if err != nil {
			m.release(ctx)
			return nil, err
		}
		m.locks = append(m.locks, lk)
	}
	return m, nil
}

// Release drops every held lock in reverse acquisition order.  The first
// error is reported after all releases have been attempted.
func (m *MultiLock) Release(ctx context.Context) error {
	return m.release(ctx)
}

func (m *MultiLock) release(ctx context.Context) error {
	var firstErr error
	for i := len(m.locks) - 1; i >= 0; i-- {
		if err := m.locks[i].Release(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.locks = m.locks[:0]
	return firstErr
}
