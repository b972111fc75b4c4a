// Package idempotency replays the stored outcome of a request that was already handled.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/redis"
)

const inFlight = "in-flight"

// Manager records request outcomes per scope using Redis SETNX with a TTL.
// Keys follow the `sd:idempotency:req:<scope>:<key>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds an idempotency guard that keeps outcomes for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Do runs fn at most once per (scope, key). A repeated call returns the stored
// result with replayed=true. A failed fn releases the key so the caller can retry.
func (m *Manager) Do(ctx context.Context, scope, key string, fn func() (any, error)) (result json.RawMessage, replayed bool, err error) {
	storeKey, err := m.key(scope, key)
	if err != nil {
		return nil, false, err
	}

	claimed, err := m.store.SetNX(ctx, storeKey, inFlight, m.ttl)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	if !claimed {
		stored, getErr := m.store.Get(ctx, storeKey)
		if getErr != nil && !errors.Is(getErr, redis.Nil) {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, getErr, "read idempotency record")
		}
		if stored == inFlight {
			return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "request is already being processed")
		}
		if stored != "" {
			return json.RawMessage(stored), true, nil
		}
	}

	value, err := fn()
	if err != nil {
		_ = m.store.Del(ctx, storeKey)
		return nil, false, err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		_ = m.store.Del(ctx, storeKey)
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency record")
	}
	if err := m.store.Set(ctx, storeKey, string(payload), m.ttl); err != nil {
		return payload, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist idempotency record")
	}
	return payload, false, nil
}

// Forget drops a stored outcome.
func (m *Manager) Forget(ctx context.Context, scope, key string) error {
	storeKey, err := m.key(scope, key)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, storeKey)
}

func (m *Manager) key(scope, key string) (string, error) {
	if scope == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "idempotency scope is required")
	}
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("req:%s", scope), key), nil
}
