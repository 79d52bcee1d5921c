package counter

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// RedisKey is the hash holding cluster-wide totals, one field per outcome.
const RedisKey = "webhook:counters"

type Name string

const (
	Accepted          Name = "accepted"
	Duplicate         Name = "duplicate"
	RateLimited       Name = "rate_limited"
	Unauthorized      Name = "unauthorized"
	Malformed         Name = "malformed"
	TooLarge          Name = "too_large"
	StoreFailed       Name = "store_failed"
	RateLimitFailOpen Name = "ratelimit_fail_open"
	SignatureSkipped  Name = "signature_skipped"
)

var names = []Name{
	Accepted, Duplicate, RateLimited, Unauthorized, Malformed,
	TooLarge, StoreFailed, RateLimitFailOpen, SignatureSkipped,
}

// Names lists every known counter in display order.
func Names() []Name {
	out := make([]Name, len(names))
	copy(out, names)
	return out
}

// Counters holds process-local outcome counts. Values never feed back into
// request decisions. pending tracks what has not been flushed to Redis yet.
type Counters struct {
	totals  map[Name]*atomic.Int64
	pending map[Name]*atomic.Int64
}

func New() *Counters {
	c := &Counters{
		totals:  make(map[Name]*atomic.Int64, len(names)),
		pending: make(map[Name]*atomic.Int64, len(names)),
	}
	for _, n := range names {
		c.totals[n] = new(atomic.Int64)
		c.pending[n] = new(atomic.Int64)
	}
	return c
}

// Incr adds one to the named counter. Unknown names are ignored.
func (c *Counters) Incr(name Name) {
	t, ok := c.totals[name]
	if !ok {
		return
	}
	t.Add(1)
	c.pending[name].Add(1)
}

func (c *Counters) Get(name Name) int64 {
	if t, ok := c.totals[name]; ok {
		return t.Load()
	}
	return 0
}

// Snapshot returns the counts of this process since start.
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(names))
	for _, n := range names {
		out[string(n)] = c.totals[n].Load()
	}
	return out
}

// Flush drains the pending deltas into the Redis hash with one pipelined
// HINCRBY per non-zero counter. Deltas that fail to write are put back.
func (c *Counters) Flush(ctx context.Context, rdb redis.Cmdable) error {
	if rdb == nil {
		return nil
	}
	deltas := make(map[Name]int64)
	for _, n := range names {
		if d := c.pending[n].Swap(0); d != 0 {
			deltas[n] = d
		}
	}
	if len(deltas) == 0 {
		return nil
	}

	pipe := rdb.Pipeline()
	for n, d := range deltas {
		pipe.HIncrBy(ctx, RedisKey, string(n), d)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		for n, d := range deltas {
			c.pending[n].Add(d)
		}
		log.Warnf("[Counter] flush to redis failed: %v", err)
		return err
	}
	return nil
}

// Totals reads the cluster-wide counts flushed by every process.
func Totals(ctx context.Context, rdb redis.Cmdable) (map[string]int64, error) {
	data, err := rdb.HGetAll(ctx, RedisKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, raw := range data {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Warnf("[Counter] invalid value for %s: %q", k, raw)
			continue
		}
		out[k] = v
	}
	return out, nil
}
