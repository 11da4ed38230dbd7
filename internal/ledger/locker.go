package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockWait  = 2 * time.Second
	lockPollInterval = 25 * time.Millisecond
)

// RowLocker serializes writers of one ledger row across processes. Lock
// blocks for a bounded wait and then fails with CONCURRENCY_ERROR.
type RowLocker interface {
	Lock(ctx context.Context, parts ...string) (unlock func(), err error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	LockKey(parts ...string) string
}

// RedisRowLocker implements RowLocker with SET NX PX and an owner token.
type RedisRowLocker struct {
	store lockStore
	ttl   time.Duration
	wait  time.Duration
	logg  *logger.Logger
}

// NewRedisRowLocker builds a Redis-backed row locker.
func NewRedisRowLocker(store lockStore, ttl, wait time.Duration, logg *logger.Logger) (*RedisRowLocker, error) {
	if store == nil {
		return nil, fmt.Errorf("redis lock store required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait < 0 {
		wait = defaultLockWait
	}
	return &RedisRowLocker{store: store, ttl: ttl, wait: wait, logg: logg}, nil
}

func (l *RedisRowLocker) Lock(ctx context.Context, parts ...string) (func(), error) {
	key := l.store.LockKey(parts...)
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire row lock")
		}
		if ok {
			return l.releaser(ctx, key, owner), nil
		}
		if !time.Now().Before(deadline) {
			return nil, lockContended(key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (l *RedisRowLocker) releaser(ctx context.Context, key, owner string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if _, err := l.store.ReleaseIfOwner(releaseCtx, key, owner); err != nil && l.logg != nil {
				l.logg.Error(l.logg.WithField(ctx, "lock_key", key), "release row lock", err)
			}
		})
	}
}

// MemoryRowLocker is an in-process RowLocker for tests and single-replica dev.
type MemoryRowLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
	wait time.Duration
}

func NewMemoryRowLocker(wait time.Duration) *MemoryRowLocker {
	if wait < 0 {
		wait = defaultLockWait
	}
	return &MemoryRowLocker{held: map[string]chan struct{}{}, wait: wait}
}

func (m *MemoryRowLocker) Lock(ctx context.Context, parts ...string) (func(), error) {
	key := strings.Join(parts, ":")
	timer := time.NewTimer(m.wait)
	defer timer.Stop()

	for {
		m.mu.Lock()
		ch, busy := m.held[key]
		if !busy {
			ch = make(chan struct{})
			m.held[key] = ch
			m.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					m.mu.Lock()
					delete(m.held, key)
					m.mu.Unlock()
					close(ch)
				})
			}, nil
		}
		m.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return nil, lockContended(key)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func lockContended(key string) error {
	return pkgerrors.New(pkgerrors.CodeConcurrency, "row is locked by another writer").
		WithDetails(map[string]any{"lock": key})
}
