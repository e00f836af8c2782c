package pricing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
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

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCachePutGet(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewCache(30*time.Second, nil, clk)

	price, ok := cache.Get(context.Background(), "eth:0xasset")
	assert.False(t, ok)
	assert.True(t, price.IsZero())

	cache.Put(context.Background(), "eth:0xasset", decimal.RequireFromString("10.5"))

	price, ok = cache.Get(context.Background(), "eth:0xasset")
	assert.True(t, ok)
	assert.Equal(t, "10.5", price.String())
}

func TestCacheEntryGoesStale(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewCache(30*time.Second, nil, clk)

	cache.Put(context.Background(), "eth:0xasset", decimal.RequireFromString("10"))
	clk.Advance(31 * time.Second)

	_, ok := cache.Get(context.Background(), "eth:0xasset")
	assert.False(t, ok)
}

func TestCacheLatestWriteWins(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewCache(30*time.Second, nil, clk)

	cache.Put(context.Background(), "eth:0xasset", decimal.RequireFromString("10"))
	cache.Put(context.Background(), "eth:0xasset", decimal.RequireFromString("11"))

	price, ok := cache.Get(context.Background(), "eth:0xasset")
	assert.True(t, ok)
	assert.Equal(t, "11", price.String())
}

func TestCacheEvict(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewCache(30*time.Second, nil, clk)

	cache.Put(context.Background(), "eth:0xold", decimal.RequireFromString("1"))
	clk.Advance(20 * time.Second)
	cache.Put(context.Background(), "eth:0xnew", decimal.RequireFromString("2"))
	clk.Advance(15 * time.Second)

	// 0xold is 35s stale, 0xnew only 15s
	assert.Equal(t, 1, cache.Evict(clk.Now()))
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get(context.Background(), "eth:0xnew")
	assert.True(t, ok)
}
