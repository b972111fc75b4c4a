package cron

import (
	"context"
	"testing"
	"time"
)

type memoryLockStore struct {
	values map[string]string
	ttl    time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttl = ttl
	return true, nil
}

func (m *memoryLockStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	a, _ := NewRedisLock(store, "sd:lock:cron", 0)
	b, _ := NewRedisLock(store, "sd:lock:cron", 0)

	release, ok, err := a.TryAcquire(ctx)
	if err != nil || !ok || release == nil {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", store.ttl)
	}
	if _, ok, _ := b.TryAcquire(ctx); ok {
		t.Fatalf("second replica must not acquire a held lock")
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := b.TryAcquire(ctx); !ok {
		t.Fatalf("expected lock free after release")
	}
}

func TestRedisLockReleaseLeavesTakenOverLease(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	release, _, _ := lock.TryAcquire(ctx)

	// TTL expiry followed by another replica winning the key.
	store.values["k"] = "someone-else"
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["k"] != "someone-else" {
		t.Fatalf("release must not delete a lease it no longer owns")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewRedisLock(newMemoryLockStore(), "", 0); err == nil {
		t.Fatal("expected error without key")
	}
}
