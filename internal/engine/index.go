package engine

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/trigger-engine/internal/types"
)

// OrderSource is the slice of the order store the index reads through.
type OrderSource interface {
	FindWaiting() ([]types.Order, error)
	FindWaitingByKey(network, assetAddress string) ([]types.Order, error)
}

// TriggerIndex caches the waiting orders per trigger key. It is not
// authoritative: the order store is, and any bucket can be rebuilt from
// it at any time. Only this engine mutates the index.
type TriggerIndex struct {
	mu      sync.RWMutex
	buckets map[string][]types.Order
	store   OrderSource
	logger  zerolog.Logger
}

func NewTriggerIndex(store OrderSource) *TriggerIndex {
	return &TriggerIndex{
		buckets: make(map[string][]types.Order),
		store:   store,
		logger:  log.With().Str("component", "trigger_index").Logger(),
	}
}

// Bootstrap loads every waiting order grouped by trigger key, replacing
// whatever the index held. Running it twice with no store changes yields
// identical buckets.
func (i *TriggerIndex) Bootstrap() error {
	waiting, err := i.store.FindWaiting()
	if err != nil {
		return err
	}

	buckets := make(map[string][]types.Order)
	for _, order := range waiting {
		key := order.TriggerKey()
		buckets[key] = append(buckets[key], order)
	}

	i.mu.Lock()
	i.buckets = buckets
	i.mu.Unlock()

	i.logger.Info().
		Int("orders", len(waiting)).
		Int("trigger_keys", len(buckets)).
		Msg("loaded waiting orders")

	return nil
}

// Peek returns a copy of the cached bucket without touching the store.
// The tick path uses this so unknown assets cost nothing.
func (i *TriggerIndex) Peek(triggerKey string) []types.Order {
	i.mu.RLock()
	defer i.mu.RUnlock()

	bucket, ok := i.buckets[triggerKey]
	if !ok {
		return nil
	}
	out := make([]types.Order, len(bucket))
	copy(out, bucket)
	return out
}

// Load returns the waiting orders for a key, reading through to the
// store when the bucket is not cached.
func (i *TriggerIndex) Load(triggerKey string) ([]types.Order, error) {
	if bucket := i.Peek(triggerKey); bucket != nil {
		return bucket, nil
	}
	if err := i.Refresh(triggerKey); err != nil {
		return nil, err
	}
	return i.Peek(triggerKey), nil
}

// Refresh re-reads the waiting orders for one key and replaces the
// bucket, deleting it entirely when no orders remain.
func (i *TriggerIndex) Refresh(triggerKey string) error {
	network, assetAddress, ok := types.SplitTriggerKey(triggerKey)
	if !ok {
		i.logger.Warn().Str("trigger_key", triggerKey).Msg("malformed trigger key")
		return nil
	}

	waiting, err := i.store.FindWaitingByKey(network, assetAddress)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if len(waiting) == 0 {
		delete(i.buckets, triggerKey)
		i.logger.Debug().Str("trigger_key", triggerKey).Msg("stopped monitoring, no waiting orders")
		return nil
	}

	i.buckets[triggerKey] = waiting
	i.logger.Debug().
		Str("trigger_key", triggerKey).
		Int("waiting", len(waiting)).
		Msg("bucket refreshed")
	return nil
}

// Snapshot returns a copy of every bucket, for the sweeper.
func (i *TriggerIndex) Snapshot() map[string][]types.Order {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make(map[string][]types.Order, len(i.buckets))
	for key, bucket := range i.buckets {
		orders := make([]types.Order, len(bucket))
		copy(orders, bucket)
		out[key] = orders
	}
	return out
}

// Keys lists the monitored trigger keys.
func (i *TriggerIndex) Keys() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	keys := make([]string, 0, len(i.buckets))
	for key := range i.buckets {
		keys = append(keys, key)
	}
	return keys
}
