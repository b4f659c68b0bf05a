package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTTLCacheExpiresAtDeadline(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)}
	c := NewTTLCache[int]().WithClock(clk.Now)

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clk.Advance(59 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry must not be served at its expiry instant")
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	clk := &clock{t: time.Now()}
	c := NewTTLCache[string]().WithClock(clk.Now)

	c.Set("k", "v", 0)
	clk.Advance(24 * 365 * time.Hour)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestTTLCacheDeleteAndPurge(t *testing.T) {
	c := NewTTLCache[int]()
	c.Set("a", 1, time.Hour)
	c.Set("b", 2, time.Hour)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
