package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type payload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func newTestCache(t *testing.T, clock *fakeClock) *MemoryCache {
	t.Helper()
	mc := NewMemoryCache(WithMemoryClock(clock.Now), WithMemoryMaxSize(3))
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, &fakeClock{now: time.Unix(1000, 0)})

	require.NoError(t, mc.Set(ctx, "SNY", payload{Name: "SNY", Price: 46.1}, time.Minute))

	var got payload
	require.NoError(t, mc.Get(ctx, "SNY", &got))
	assert.Equal(t, payload{Name: "SNY", Price: 46.1}, got)
}

func TestMemoryCacheNeverServesExpired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	mc := newTestCache(t, clock)

	require.NoError(t, mc.Set(ctx, "k", "v", 10*time.Second))

	clock.Advance(9 * time.Second)
	var s string
	require.NoError(t, mc.Get(ctx, "k", &s))
	assert.Equal(t, "v", s)

	clock.Advance(time.Second)
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)

	got, err := mc.MGet(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryCacheZeroExpirationKeepsEntry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	mc := newTestCache(t, clock)

	require.NoError(t, mc.Set(ctx, "k", "v", 0))
	clock.Advance(90 * 24 * time.Hour)

	var s string
	require.NoError(t, mc.Get(ctx, "k", &s))
	assert.Equal(t, "v", s)
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheCleanupDropsExpired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	mc := NewMemoryCache(WithMemoryClock(clock.Now), WithMemoryCleanup(5*time.Millisecond))
	t.Cleanup(func() { _ = mc.Close() })

	require.NoError(t, mc.Set(ctx, "short", "1", time.Second))
	require.NoError(t, mc.Set(ctx, "forever", "2", 0))
	clock.Advance(time.Minute)

	assert.Eventually(t, func() bool {
		mc.mutex.Lock()
		defer mc.mutex.Unlock()
		return len(mc.data) == 1
	}, time.Second, 5*time.Millisecond)
	ok, _ := mc.Exists(ctx, "forever")
	assert.True(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	mc := newTestCache(t, clock)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, mc.Set(ctx, k, k, time.Hour))
		clock.Advance(time.Second)
	}
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	clock.Advance(time.Second)

	require.NoError(t, mc.Set(ctx, "d", "d", time.Hour))

	ok, err := mc.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok, "b was least recently used")
	ok, _ = mc.Exists(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryCacheTryLock(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	mc := newTestCache(t, clock)

	ok, err := mc.TryLock(ctx, "lock:SNY", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.TryLock(ctx, "lock:SNY", time.Minute)
	assert.False(t, ok)

	clock.Advance(time.Minute)
	ok, _ = mc.TryLock(ctx, "lock:SNY", time.Minute)
	assert.True(t, ok, "expired lock can be retaken")

	require.NoError(t, mc.Unlock(ctx, "lock:SNY"))
	ok, _ = mc.TryLock(ctx, "lock:SNY", time.Minute)
	assert.True(t, ok)
}

func TestMGetTypedSkipsInvalidJSON(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, &fakeClock{now: time.Unix(1000, 0)})

	require.NoError(t, mc.Set(ctx, "good", payload{Name: "JD", Price: 30}, 0))
	require.NoError(t, mc.Set(ctx, "bad", "{not json", 0))

	got, err := MGetTyped[payload](ctx, mc, "good", "bad", "missing")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 30.0, got["good"].Price)
}

func TestDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, &fakeClock{now: time.Unix(1000, 0)})

	require.NoError(t, mc.Set(ctx, "targets:A", "1", 0))
	require.NoError(t, mc.Set(ctx, "targets:B", "2", 0))
	require.NoError(t, mc.Set(ctx, "other", "3", 0))

	require.NoError(t, mc.DeleteByPattern(ctx, "targets:*"))

	ok, _ := mc.Exists(ctx, "targets:A", "targets:B")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "other")
	assert.True(t, ok)
}
