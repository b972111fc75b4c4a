package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 5 * time.Minute

// Lock elects one API replica per cron cycle. TryAcquire returns a release
// func when the caller won; a false result means another replica holds it.
type Lock interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, acquired bool, err error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a single-key lease: SET NX with a random token and a TTL
// that bounds how long a crashed holder blocks the others.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TryAcquire(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !won {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		// A lease that already expired, or was taken over, is left alone.
		if _, err := l.store.DelIfValue(ctx, l.key, token); err != nil {
			return fmt.Errorf("release %s: %w", l.key, err)
		}
		return nil
	}
	return release, true, nil
}
