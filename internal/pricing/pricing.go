// Package pricing caches the last observed price per trigger key. The
// local map exists only to avoid redundant recomputation; the
// authoritative price for matching is always the one carried on the
// incoming tick. When a Redis client is configured, prices are also
// republished there for the rest of the platform, strictly best-effort.
package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/clock"
)

const redisKeyPrefix = "price:"

type entry struct {
	price      decimal.Decimal
	observedAt time.Time
}

type Cache struct {
	mu     sync.RWMutex
	local  map[string]entry
	ttl    time.Duration
	rdb    *redis.Client
	clock  clock.Clock
	logger zerolog.Logger
}

// NewCache builds a price cache with the given retention. rdb may be nil
// to disable republishing.
func NewCache(ttl time.Duration, rdb *redis.Client, clk clock.Clock) *Cache {
	return &Cache{
		local:  make(map[string]entry),
		ttl:    ttl,
		rdb:    rdb,
		clock:  clk,
		logger: log.With().Str("component", "price_cache").Logger(),
	}
}

// Put records the latest price for a trigger key and republishes it.
func (c *Cache) Put(ctx context.Context, triggerKey string, price decimal.Decimal) {
	now := c.clock.Now()

	c.mu.Lock()
	c.local[triggerKey] = entry{price: price, observedAt: now}
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	err := c.rdb.Set(ctx, redisKeyPrefix+triggerKey, price.String(), c.ttl).Err()
	if err != nil {
		// Republishing is advisory; the engine never depends on it.
		c.logger.Debug().Err(err).Str("trigger_key", triggerKey).Msg("redis price publish failed")
	}
}

// Get returns the freshest known price for a trigger key. A cold local
// cache falls through to Redis when configured.
func (c *Cache) Get(ctx context.Context, triggerKey string) (decimal.Decimal, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.local[triggerKey]
	c.mu.RUnlock()
	if ok && now.Sub(e.observedAt) <= c.ttl {
		return e.price, true
	}

	if c.rdb == nil {
		return decimal.Zero, false
	}

	raw, err := c.rdb.Get(ctx, redisKeyPrefix+triggerKey).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug().Err(err).Str("trigger_key", triggerKey).Msg("redis price read failed")
		}
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		c.logger.Warn().Str("trigger_key", triggerKey).Str("raw", raw).Msg("malformed price in redis")
		return decimal.Zero, false
	}

	c.mu.Lock()
	c.local[triggerKey] = entry{price: price, observedAt: now}
	c.mu.Unlock()

	return price, true
}

// Evict drops local entries older than the retention and returns how
// many were removed.
func (c *Cache) Evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.local {
		if now.Sub(e.observedAt) > c.ttl {
			delete(c.local, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live local entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.local)
}
