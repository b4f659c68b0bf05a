package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowIsPerKey(t *testing.T) {
	l := New(0.001, 2)

	assert.True(t, l.Allow("query1.finance.yahoo.com"))
	assert.True(t, l.Allow("query1.finance.yahoo.com"))
	assert.False(t, l.Allow("query1.finance.yahoo.com"))

	assert.True(t, l.Allow("www.marketwatch.com"), "other hosts keep their own budget")
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}

func TestDisabledLimiterNeverBlocks(t *testing.T) {
	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow("x"))
	assert.NoError(t, nilLimiter.Wait(context.Background(), "x"))

	l := New(0, 1)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("x"))
	}
}
