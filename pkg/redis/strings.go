package redis

import (
	"context"
	"time"
)

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s, err := c.cmd()
	if err != nil {
		return err
	}
	return s.Set(ctx, key, value, ttl).Err()
}

// Get returns Nil when key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	s, err := c.cmd()
	if err != nil {
		return "", err
	}
	return s.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s, err := c.cmd()
	if err != nil {
		return false, err
	}
	return s.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	s, err := c.cmd()
	if err != nil {
		return err
	}
	return s.Del(ctx, keys...).Err()
}

// IncrWithTTL increments key and makes sure it expires. The TTL is set on
// the first increment, and repaired if a crash between INCR and EXPIRE left
// the key without one.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s, err := c.cmd()
	if err != nil {
		return 0, err
	}
	count, err := s.Incr(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return count, err
	}
	needsTTL := count == 1
	if !needsTTL {
		remaining, err := s.TTL(ctx, key).Result()
		if err != nil {
			return count, err
		}
		needsTTL = remaining < 0
	}
	if needsTTL {
		if err := s.Expire(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// FixedWindowAllow counts one hit against scope and reports whether the
// window is still under limit.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	count, err := c.IncrWithTTL(ctx, c.RateLimitKey(scope), window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

const delIfValueScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// DelIfValue deletes key only while it still holds value, in one round
// trip. It reports whether the key was deleted.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	s, err := c.cmd()
	if err != nil {
		return false, err
	}
	n, err := s.Eval(ctx, delIfValueScript, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
