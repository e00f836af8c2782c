package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/trigger-engine/internal/clock"
	"github.com/ksred/trigger-engine/internal/notify"
	"github.com/ksred/trigger-engine/internal/orders"
	"github.com/ksred/trigger-engine/internal/pricing"
	"github.com/ksred/trigger-engine/internal/types"
)

// Sweeper is the periodic housekeeping loop: stale waiting orders move
// to expired, stale pending TP/SL configs are dropped, and old local
// price entries are evicted. Missing a cycle only delays an expiry.
type Sweeper struct {
	index    *TriggerIndex
	store    *orders.Database
	tpsl     *TPSLWorkflow
	prices   *pricing.Cache
	notifier notify.Publisher
	clock    clock.Clock

	interval time.Duration
	orderTTL time.Duration

	logger zerolog.Logger
}

func NewSweeper(index *TriggerIndex, store *orders.Database, tpsl *TPSLWorkflow, prices *pricing.Cache, notifier notify.Publisher, clk clock.Clock, interval, orderTTL time.Duration) *Sweeper {
	return &Sweeper{
		index:    index,
		store:    store,
		tpsl:     tpsl,
		prices:   prices,
		notifier: notifier,
		clock:    clk,
		interval: interval,
		orderTTL: orderTTL,
		logger:   log.With().Str("component", "sweeper").Logger(),
	}
}

// Start begins the sweep loop and blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("starting sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("shutting down sweeper")
			return
		case <-ticker.C:
			if err := s.Sweep(); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep runs one housekeeping pass.
func (s *Sweeper) Sweep() error {
	now := s.clock.Now()

	expiredTotal := 0
	for key, bucket := range s.index.Snapshot() {
		var candidates []string
		for _, order := range bucket {
			if order.Status == types.StatusWaiting && now.Sub(order.CreatedAt) > s.orderTTL {
				candidates = append(candidates, order.OrderID)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		// The store only expires orders still waiting; anything that
		// executed since the snapshot keeps its terminal state and is
		// excluded from the notification.
		expired, err := s.store.ExpireWaiting(candidates)
		if err != nil {
			s.logger.Error().Err(err).Str("trigger_key", key).Msg("failed to expire orders")
			continue
		}
		if err := s.index.Refresh(key); err != nil {
			s.logger.Error().Err(err).Str("trigger_key", key).Msg("failed to refresh after expiry")
		}
		if len(expired) == 0 {
			continue
		}

		network, assetAddress, _ := types.SplitTriggerKey(key)
		s.notifier.Publish(notify.Event{
			OrderIDs:     expired,
			Status:       types.StatusExpired,
			Network:      network,
			AssetAddress: assetAddress,
			Timestamp:    now,
		})
		expiredTotal += len(expired)
	}

	droppedConfigs := s.tpsl.ExpirePending(now)
	evictedPrices := s.prices.Evict(now)

	if expiredTotal > 0 || droppedConfigs > 0 {
		s.logger.Info().
			Int("expired_orders", expiredTotal).
			Int("dropped_configs", droppedConfigs).
			Int("evicted_prices", evictedPrices).
			Msg("sweep completed")
	}

	return nil
}
