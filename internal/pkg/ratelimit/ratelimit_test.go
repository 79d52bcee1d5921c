package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewAppliesDefaults(t *testing.T) {
	l := New(nil, Options{})
	assert.Equal(t, DefaultLimit, l.Limit())
	assert.Equal(t, DefaultWindow, l.Window())
	assert.Equal(t, DefaultPrefix+"unknown", l.Key(""))
	assert.Equal(t, DefaultPrefix+"10.0.0.1", l.Key(" 10.0.0.1 "))
}

func TestAllowDeniesOnlyAboveCeiling(t *testing.T) {
	_, client := setupMiniredis(t)
	l := New(client, Options{Limit: 5, Window: time.Minute})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d := l.Allow(ctx, "1.2.3.4")
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, int64(i), d.Count)
		assert.False(t, d.FailOpen)
	}

	d := l.Allow(ctx, "1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(6), d.Count)
	assert.Equal(t, 60, d.RetryAfterSeconds())

	// Other clients have their own window.
	assert.True(t, l.Allow(ctx, "5.6.7.8").Allowed)
}

func TestWindowExpiryIsNotExtended(t *testing.T) {
	mr, client := setupMiniredis(t)
	l := New(client, Options{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	require.True(t, l.Allow(ctx, "c").Allowed)
	mr.FastForward(20 * time.Second)
	require.True(t, l.Allow(ctx, "c").Allowed)
	mr.FastForward(10 * time.Second)

	d := l.Allow(ctx, "c")
	require.False(t, d.Allowed)
	assert.Equal(t, 30, d.RetryAfterSeconds())
	assert.Equal(t, 30*time.Second, mr.TTL(l.Key("c")))
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	mr, client := setupMiniredis(t)
	l := New(client, Options{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(ctx, "c").Allowed)
	}
	require.False(t, l.Allow(ctx, "c").Allowed)

	mr.FastForward(61 * time.Second)
	assert.False(t, mr.Exists(l.Key("c")))

	d := l.Allow(ctx, "c")
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestAllowRearmsMissingExpiry(t *testing.T) {
	mr, client := setupMiniredis(t)
	l := New(client, Options{Limit: 10, Window: time.Minute})

	require.NoError(t, mr.Set(l.Key("c"), "4"))
	require.Equal(t, time.Duration(0), mr.TTL(l.Key("c")))

	d := l.Allow(context.Background(), "c")
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(5), d.Count)
	assert.Equal(t, time.Minute, mr.TTL(l.Key("c")))
}

func TestConcurrentRequestsCountExactly(t *testing.T) {
	_, client := setupMiniredis(t)
	const limit = 20
	l := New(client, Options{Limit: limit, Window: time.Minute})

	var allowed, denied atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(context.Background(), "burst").Allowed {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed.Load())
	assert.Equal(t, int64(40), denied.Load())
}

func TestFailOpenWhenStoreUnavailable(t *testing.T) {
	mr, client := setupMiniredis(t)

	var hookCalls atomic.Int64
	var lastKey atomic.Value
	l := New(client, Options{
		Limit:   1,
		Window:  time.Minute,
		Timeout: 200 * time.Millisecond,
		OnFailOpen: func(key string, err error) {
			hookCalls.Add(1)
			lastKey.Store(key)
			assert.Error(t, err)
		},
	})
	mr.Close()

	for i := 0; i < 3; i++ {
		d := l.Allow(context.Background(), "c")
		assert.True(t, d.Allowed)
		assert.True(t, d.FailOpen)
	}
	assert.Equal(t, int64(3), hookCalls.Load())
	assert.Equal(t, l.Key("c"), lastKey.Load())
}

func TestFailOpenWithoutClient(t *testing.T) {
	l := New(nil, Options{})
	d := l.Allow(context.Background(), "c")
	assert.True(t, d.Allowed)
	assert.True(t, d.FailOpen)
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, 0, Decision{}.RetryAfterSeconds())
	assert.Equal(t, 1, Decision{RetryAfter: 10 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 2, Decision{RetryAfter: 1500 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 60, Decision{RetryAfter: time.Minute}.RetryAfterSeconds())
}
