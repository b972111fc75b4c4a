package redis

import "strings"

const defaultNamespace = "sd"

// Keyspace prefixes every key so several environments can share one Redis.
// The zero value uses "sd".
type Keyspace string

func (k Keyspace) build(kind string, parts ...string) string {
	ns := strings.TrimSpace(string(k))
	if ns == "" {
		ns = defaultNamespace
	}
	out := []string{ns, kind}
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}

func (k Keyspace) IdempotencyKey(scope, id string) string { return k.build("idempotency", scope, id) }
func (k Keyspace) RateLimitKey(scope string) string       { return k.build("rate_limit", scope) }
func (k Keyspace) QueueKey(name string) string            { return k.build("queue", name) }
func (k Keyspace) LockKey(name string) string             { return k.build("lock", name) }
