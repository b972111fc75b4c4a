package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const compactThreshold = 32

// MemoryQueue is a process-local Queue. Entries are lost on restart.
type MemoryQueue struct {
	mu    sync.Mutex
	items []uuid.UUID
	head  int
}

// NewMemoryQueue returns an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, id)
	return nil
}

func (q *MemoryQueue) Pop(_ context.Context) (uuid.UUID, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return uuid.Nil, false, nil
	}
	id := q.items[q.head]
	q.items[q.head] = uuid.Nil
	q.head++
	q.compact()
	return id, true, nil
}

func (q *MemoryQueue) Peek(_ context.Context) (uuid.UUID, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return uuid.Nil, false, nil
	}
	return q.items[q.head], true, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head, nil
}

func (q *MemoryQueue) Snapshot(_ context.Context) ([]uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]uuid.UUID, len(q.items)-q.head)
	copy(out, q.items[q.head:])
	return out, nil
}

// compact drops the consumed prefix once it dominates the backing slice.
// Callers hold mu.
func (q *MemoryQueue) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head < compactThreshold || q.head*2 < len(q.items) {
		return
	}
	n := copy(q.items, q.items[q.head:])
	q.items = q.items[:n]
	q.head = 0
}
