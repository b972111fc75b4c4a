package queue

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	redisclient "github.com/angelmondragon/supportdesk-backend/pkg/redis"
	"github.com/google/uuid"
)

// RedisQueue keeps the waiting list in one Redis list so it survives restarts.
// Every operation is a single command, which Redis executes atomically.
type RedisQueue struct {
	store redisclient.ListStore
	key   string
	logg  *logger.Logger
}

// NewRedisQueue binds a queue to the namespaced list key for name.
func NewRedisQueue(store redisclient.ListStore, name string, logg *logger.Logger) (*RedisQueue, error) {
	if store == nil {
		return nil, fmt.Errorf("redis list store is required")
	}
	if name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	return &RedisQueue{store: store, key: store.QueueKey(name), logg: logg}, nil
}

func (q *RedisQueue) Push(ctx context.Context, id uuid.UUID) error {
	if err := q.store.RPush(ctx, q.key, id.String()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "push waiting queue")
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (uuid.UUID, bool, error) {
	raw, err := q.store.LPop(ctx, q.key)
	return q.decode(ctx, raw, err, "pop waiting queue")
}

func (q *RedisQueue) Peek(ctx context.Context) (uuid.UUID, bool, error) {
	raw, err := q.store.LIndex(ctx, q.key, 0)
	return q.decode(ctx, raw, err, "peek waiting queue")
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.store.LLen(ctx, q.key)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "waiting queue length")
	}
	return int(n), nil
}

func (q *RedisQueue) Snapshot(ctx context.Context) ([]uuid.UUID, error) {
	raws, err := q.store.LRange(ctx, q.key, 0, -1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "waiting queue snapshot")
	}
	out := make([]uuid.UUID, 0, len(raws))
	for _, raw := range raws {
		id, perr := uuid.Parse(raw)
		if perr != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// decode maps a list read onto (id, ok). A malformed entry is returned as
// uuid.Nil with ok=true so the drain loop pops and discards it like any
// other stale entry.
func (q *RedisQueue) decode(ctx context.Context, raw string, err error, op string) (uuid.UUID, bool, error) {
	if errors.Is(err, redisclient.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
	id, perr := uuid.Parse(raw)
	if perr != nil {
		if q.logg != nil {
			q.logg.Warn(ctx, fmt.Sprintf("%s: discarding malformed entry %q", op, raw))
		}
		return uuid.Nil, true, nil
	}
	return id, true, nil
}
