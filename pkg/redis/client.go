// Package redis wraps go-redis with the small command surface the support
// desk uses: idempotency records, counters, locks and the waiting queue.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

// Nil is returned when a key or list element does not exist.
var Nil = redis.Nil

var errNotInitialized = errors.New("redis client not initialized")

// cmdable is the subset of *redis.Client the wrapper calls; tests fake it.
type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	TTL(context.Context, string) *redis.DurationCmd
	Del(context.Context, ...string) *redis.IntCmd
	RPush(context.Context, string, ...any) *redis.IntCmd
	LPop(context.Context, string) *redis.StringCmd
	LIndex(context.Context, string, int64) *redis.StringCmd
	LLen(context.Context, string) *redis.IntCmd
	LRange(context.Context, string, int64, int64) *redis.StringSliceCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// IdempotencyStore is what request and socket dedupe need.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Set(context.Context, string, any, time.Duration) error
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// ListStore is what the Redis-backed waiting queue needs.
type ListStore interface {
	RPush(ctx context.Context, key string, values ...string) error
	LPop(ctx context.Context, key string) (string, error)
	LIndex(ctx context.Context, key string, index int64) (string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	QueueKey(name string) string
}

// Client is safe for concurrent use.
type Client struct {
	Keyspace
	store cmdable
	raw   *redis.Client
}

// New dials Redis and pings it before returning.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"redis_db": opts.DB, "redis_namespace": cfg.Namespace}), "redis connection established")
	}
	return &Client{Keyspace: Keyspace(cfg.Namespace), store: raw, raw: raw}, nil
}

// optionsFromConfig prefers the URL; discrete settings only fill what the
// URL leaves at zero.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fill := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	fillDur := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	fill(&opts.DB, cfg.DB)
	fill(&opts.PoolSize, cfg.PoolSize)
	fill(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDur(&opts.DialTimeout, cfg.DialTimeout)
	fillDur(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDur(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func (c *Client) cmd() (cmdable, error) {
	if c == nil || c.store == nil {
		return nil, errNotInitialized
	}
	return c.store, nil
}

func (c *Client) Ping(ctx context.Context) error {
	s, err := c.cmd()
	if err != nil {
		return err
	}
	return s.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
