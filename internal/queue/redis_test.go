package queue

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	redisclient "github.com/angelmondragon/supportdesk-backend/pkg/redis"
	"github.com/google/uuid"
)

type fakeListStore struct {
	lists map[string][]string
	err   error
}

func newFakeListStore() *fakeListStore {
	return &fakeListStore{lists: map[string][]string{}}
}

func (f *fakeListStore) RPush(_ context.Context, key string, values ...string) error {
	if f.err != nil {
		return f.err
	}
	f.lists[key] = append(f.lists[key], values...)
	return nil
}

func (f *fakeListStore) LPop(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	list := f.lists[key]
	if len(list) == 0 {
		return "", redisclient.Nil
	}
	f.lists[key] = list[1:]
	return list[0], nil
}

func (f *fakeListStore) LIndex(_ context.Context, key string, index int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	list := f.lists[key]
	if int(index) >= len(list) {
		return "", redisclient.Nil
	}
	return list[index], nil
}

func (f *fakeListStore) LLen(_ context.Context, key string) (int64, error) {
	return int64(len(f.lists[key])), f.err
}

func (f *fakeListStore) LRange(_ context.Context, key string, _, _ int64) ([]string, error) {
	return append([]string(nil), f.lists[key]...), f.err
}

func (f *fakeListStore) QueueKey(name string) string { return "sd:queue:" + name }

func TestRedisQueueFIFO(t *testing.T) {
	ctx := context.Background()
	store := newFakeListStore()
	q, err := NewRedisQueue(store, "waiting_queue:live_chat", nil)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	first, second := uuid.New(), uuid.New()
	_ = q.Push(ctx, first)
	_ = q.Push(ctx, second)

	if _, ok := store.lists["sd:queue:waiting_queue:live_chat"]; !ok {
		t.Fatalf("expected namespaced list key")
	}
	if n, _ := q.Len(ctx); n != 2 {
		t.Fatalf("expected len 2, got %d", n)
	}
	if head, ok, _ := q.Peek(ctx); !ok || head != first {
		t.Fatalf("expected head %s, got %s", first, head)
	}
	snap, _ := q.Snapshot(ctx)
	if len(snap) != 2 || snap[0] != first || snap[1] != second {
		t.Fatalf("unexpected snapshot %v", snap)
	}
	if got, _, _ := q.Pop(ctx); got != first {
		t.Fatalf("expected %s first", first)
	}
	if got, _, _ := q.Pop(ctx); got != second {
		t.Fatalf("expected %s second", second)
	}
	if _, ok, err := q.Pop(ctx); ok || err != nil {
		t.Fatalf("expected empty queue, ok=%v err=%v", ok, err)
	}
}

func TestRedisQueueMalformedEntryReadsAsNil(t *testing.T) {
	ctx := context.Background()
	store := newFakeListStore()
	q, _ := NewRedisQueue(store, "live", nil)
	store.lists[store.QueueKey("live")] = []string{"not-a-uuid"}

	id, ok, err := q.Peek(ctx)
	if err != nil || !ok || id != uuid.Nil {
		t.Fatalf("expected nil id present, got %s ok=%v err=%v", id, ok, err)
	}
}

func TestRedisQueueWrapsStoreErrors(t *testing.T) {
	ctx := context.Background()
	store := newFakeListStore()
	store.err = errors.New("connection reset")
	q, _ := NewRedisQueue(store, "live", nil)

	err := q.Push(ctx, uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if _, _, err := q.Pop(ctx); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestNewRedisQueueValidates(t *testing.T) {
	if _, err := NewRedisQueue(nil, "x", nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewRedisQueue(newFakeListStore(), "", nil); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
