package redis

import "context"

// RPush appends values to the tail of the list at key.
func (c *Client) RPush(ctx context.Context, key string, values ...string) error {
	s, err := c.cmd()
	if err != nil {
		return err
	}
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return s.RPush(ctx, key, args...).Err()
}

// LPop removes the head; Nil when empty.
func (c *Client) LPop(ctx context.Context, key string) (string, error) {
	s, err := c.cmd()
	if err != nil {
		return "", err
	}
	return s.LPop(ctx, key).Result()
}

// LIndex reads without removing; Nil when out of range.
func (c *Client) LIndex(ctx context.Context, key string, index int64) (string, error) {
	s, err := c.cmd()
	if err != nil {
		return "", err
	}
	return s.LIndex(ctx, key, index).Result()
}

func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	s, err := c.cmd()
	if err != nil {
		return 0, err
	}
	return s.LLen(ctx, key).Result()
}

// LRange returns the inclusive slice [start, stop].
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s, err := c.cmd()
	if err != nil {
		return nil, err
	}
	return s.LRange(ctx, key, start, stop).Result()
}
