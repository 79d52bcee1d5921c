// Package ratelimit implements a fixed-window request ceiling per client
// whose counters live in Redis, so every server process observes one count.
//
// When Redis is unreachable the limiter fails open: requests are allowed and
// the condition is reported through the OnFailOpen hook. Availability of the
// ingest endpoint is preferred over strict enforcement during a cache outage.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLimit   = 100
	DefaultWindow  = 60 * time.Second
	DefaultTimeout = 2 * time.Second
	DefaultPrefix  = "ratelimit:webhook:"
)

// incrWithExpiry increments the window counter and arms its expiry on the
// first hit. The expiry is re-armed if the key somehow lost its TTL so a
// counter can never become permanent. Returns {count, pttl_ms}.
var incrWithExpiry = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	Count   int64
	Limit   int
	// RetryAfter is the time until the window resets, set when denied.
	RetryAfter time.Duration
	// FailOpen reports that the store could not be consulted.
	FailOpen bool
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for a Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}

type Options struct {
	Limit   int
	Window  time.Duration
	Timeout time.Duration
	Prefix  string
	// OnFailOpen is called for every request allowed because the store failed.
	OnFailOpen func(key string, err error)
}

// Limiter is safe for concurrent use; it keeps no per-client state in memory.
type Limiter struct {
	client     redis.Scripter
	limit      int
	window     time.Duration
	timeout    time.Duration
	prefix     string
	onFailOpen func(key string, err error)
}

func New(client redis.Scripter, opts Options) *Limiter {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Limiter{
		client:     client,
		limit:      limit,
		window:     window,
		timeout:    timeout,
		prefix:     prefix,
		onFailOpen: opts.OnFailOpen,
	}
}

// Allow counts one request for clientKey and reports whether it fits the
// current window.
func (l *Limiter) Allow(ctx context.Context, clientKey string) Decision {
	key := l.Key(clientKey)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, ttl, err := l.increment(ctx, key)
	if err != nil {
		log.Warnf("[RateLimit] store unavailable, failing open for %s: %v", key, err)
		if l.onFailOpen != nil {
			l.onFailOpen(key, err)
		}
		return Decision{Allowed: true, Limit: l.limit, FailOpen: true}
	}

	decision := Decision{
		Allowed: count <= int64(l.limit),
		Count:   count,
		Limit:   l.limit,
	}
	if !decision.Allowed {
		decision.RetryAfter = ttl
		if decision.RetryAfter < time.Second {
			decision.RetryAfter = time.Second
		}
	}
	return decision
}

// Key returns the Redis key holding clientKey's window counter.
func (l *Limiter) Key(clientKey string) string {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}
	return l.prefix + clientKey
}

func (l *Limiter) Limit() int {
	return l.limit
}

func (l *Limiter) Window() time.Duration {
	return l.window
}

func (l *Limiter) increment(ctx context.Context, key string) (int64, time.Duration, error) {
	if l.client == nil {
		return 0, 0, errors.New("ratelimit: no redis client")
	}
	res, err := incrWithExpiry.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
