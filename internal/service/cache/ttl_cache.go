package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	v   V
	exp time.Time
}

// TTLCache is an in-process typed cache. An entry is never served at or
// after its expiry instant.
type TTLCache[V any] struct {
	mu  sync.RWMutex
	m   map[string]entry[V]
	now func() time.Time
}

func NewTTLCache[V any]() *TTLCache[V] {
	return &TTLCache[V]{m: make(map[string]entry[V]), now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	now := c.now()
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if !e.exp.IsZero() && !now.Before(e.exp) {
		c.mu.Lock()
		if cur, still := c.m[key]; still && cur.exp.Equal(e.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.v, true
}

// Set stores v for ttl. A non-positive ttl never expires.
func (c *TTLCache[V]) Set(key string, v V, ttl time.Duration) {
	c.mu.Lock()
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.m[key] = entry[V]{v: v, exp: exp}
	c.mu.Unlock()
}

func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *TTLCache[V]) Purge() {
	c.mu.Lock()
	c.m = make(map[string]entry[V])
	c.mu.Unlock()
}

func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
