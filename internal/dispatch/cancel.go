package dispatch

import (
	"context"
	"sync"
	"time"
)

const defaultCancelTTL = 7 * 24 * time.Hour

// CancelRegistry remembers which customer orders were cancelled so that
// in-flight branches can skip their network call.
type CancelRegistry interface {
	MarkCancelled(ctx context.Context, localOrderID string) error
	IsCancelled(ctx context.Context, localOrderID string) (bool, error)
}

type cancelStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	CancelKey(localOrderID string) string
}

// RedisCancelRegistry keeps cancellation markers in Redis with a TTL.
type RedisCancelRegistry struct {
	store cancelStore
	ttl   time.Duration
}

func NewRedisCancelRegistry(store cancelStore, ttl time.Duration) *RedisCancelRegistry {
	if ttl <= 0 {
		ttl = defaultCancelTTL
	}
	return &RedisCancelRegistry{store: store, ttl: ttl}
}

func (r *RedisCancelRegistry) MarkCancelled(ctx context.Context, localOrderID string) error {
	return r.store.Set(ctx, r.store.CancelKey(localOrderID), time.Now().UTC().Format(time.RFC3339), r.ttl)
}

func (r *RedisCancelRegistry) IsCancelled(ctx context.Context, localOrderID string) (bool, error) {
	return r.store.Exists(ctx, r.store.CancelKey(localOrderID))
}

// MemoryCancelRegistry is the in-process registry used by tests.
type MemoryCancelRegistry struct {
	mu        sync.RWMutex
	cancelled map[string]struct{}
}

func NewMemoryCancelRegistry() *MemoryCancelRegistry {
	return &MemoryCancelRegistry{cancelled: map[string]struct{}{}}
}

func (m *MemoryCancelRegistry) MarkCancelled(_ context.Context, localOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled[localOrderID] = struct{}{}
	return nil
}

func (m *MemoryCancelRegistry) IsCancelled(_ context.Context, localOrderID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.cancelled[localOrderID]
	return ok, nil
}
