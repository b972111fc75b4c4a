// Package queue holds the FIFO of live-chat complaints waiting for a free agent.
package queue

import (
	"context"

	"github.com/google/uuid"
)

// Queue is the waiting list of complaint ids. Implementations serialise
// Push and Pop so concurrent callers never lose or duplicate an entry.
type Queue interface {
	Push(ctx context.Context, id uuid.UUID) error
	// Pop removes the head; ok is false when the queue is empty.
	Pop(ctx context.Context) (uuid.UUID, bool, error)
	// Peek reads the head without removing it.
	Peek(ctx context.Context) (uuid.UUID, bool, error)
	Len(ctx context.Context) (int, error)
	// Snapshot returns the entries front to back.
	Snapshot(ctx context.Context) ([]uuid.UUID, error)
}
