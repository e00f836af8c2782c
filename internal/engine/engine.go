package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/notify"
	"github.com/ksred/trigger-engine/internal/orders"
	"github.com/ksred/trigger-engine/internal/pricing"
	"github.com/ksred/trigger-engine/internal/types"
	"github.com/ksred/trigger-engine/internal/wallets"
)

// WalletResolver maps a wallet address to signing material.
type WalletResolver interface {
	Resolve(address, network string) (*wallets.SigningHandle, error)
}

// Engine evaluates trade ticks against the trigger index and pushes
// matched orders through the execution pipeline. One logical evaluation
// stream per trigger key; unrelated keys run fully in parallel.
type Engine struct {
	index    *TriggerIndex
	guard    *KeyGuard
	store    *orders.Database
	wallets  WalletResolver
	orch     *Orchestrator
	prices   *pricing.Cache
	tpsl     *TPSLWorkflow
	notifier notify.Publisher

	slippage decimal.Decimal
	logger   zerolog.Logger
}

func New(
	index *TriggerIndex,
	store *orders.Database,
	walletStore WalletResolver,
	orch *Orchestrator,
	prices *pricing.Cache,
	tpsl *TPSLWorkflow,
	notifier notify.Publisher,
	defaultSlippage float64,
) *Engine {
	return &Engine{
		index:    index,
		guard:    NewKeyGuard(),
		store:    store,
		wallets:  walletStore,
		orch:     orch,
		prices:   prices,
		tpsl:     tpsl,
		notifier: notifier,
		slippage: decimal.NewFromFloat(defaultSlippage),
		logger:   log.With().Str("component", "engine").Logger(),
	}
}

// Bootstrap loads the trigger index from the order store. Run once at
// startup before ticks flow.
func (e *Engine) Bootstrap() error {
	return e.index.Bootstrap()
}

// Index exposes the trigger index for the sweeper and tests.
func (e *Engine) Index() *TriggerIndex {
	return e.index
}

// OrderPlaced lets the placement flow start monitoring a key without
// waiting for the next bootstrap. Safe to call while an evaluation for
// the key is running.
func (e *Engine) OrderPlaced(network, assetAddress string) {
	key := types.TriggerKey(network, assetAddress)
	if err := e.index.Refresh(key); err != nil {
		e.logger.Error().Err(err).Str("trigger_key", key).Msg("failed to refresh after placement")
	}
}

// HandleTicks runs one evaluation pass over a batch of trade ticks.
// Ticks for a key that is already being evaluated are dropped; the next
// tick re-evaluates against the latest price, so conditions are delayed,
// never lost.
func (e *Engine) HandleTicks(ctx context.Context, ticks []types.TradeTick) {
	for _, tick := range ticks {
		price := tick.Price()
		if !price.IsPositive() {
			continue
		}

		key := tick.TriggerKey()
		e.prices.Put(ctx, key, price)

		bucket := e.index.Peek(key)
		if len(bucket) == 0 {
			continue
		}

		if !e.guard.TryAcquire(key) {
			e.logger.Debug().Str("trigger_key", key).Msg("evaluation in flight, dropping tick")
			continue
		}
		func() {
			defer e.guard.Release(key)
			e.evaluate(ctx, key, bucket, price)
		}()
	}
}

// evaluate matches one bucket against one price and executes the hits.
// Caller holds the key guard.
func (e *Engine) evaluate(ctx context.Context, key string, bucket []types.Order, price decimal.Decimal) {
	var matched []types.Order
	for _, order := range bucket {
		if Matches(&order, price) {
			matched = append(matched, order)
		}
	}
	if len(matched) == 0 {
		return
	}

	e.logger.Info().
		Str("trigger_key", key).
		Str("price", price.String()).
		Int("matched", len(matched)).
		Msg("orders triggered")

	for _, order := range matched {
		e.executeOrder(ctx, order, price)
	}

	if err := e.index.Refresh(key); err != nil {
		e.logger.Error().Err(err).Str("trigger_key", key).Msg("failed to refresh after execution")
	}
}

// executeOrder is the execution pipeline for one matched order. Every
// path ends in a persisted terminal status and one notification; nothing
// escapes uncaught.
func (e *Engine) executeOrder(ctx context.Context, order types.Order, price decimal.Decimal) {
	logger := e.logger.With().
		Str("order_id", order.OrderID).
		Str("trigger_key", order.TriggerKey()).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("execution pipeline panicked")
			e.failOrder(&order, "internal error during execution")
		}
	}()

	// The conditional waiting -> triggered write is the concurrency
	// anchor: it is persisted before any external call, so a racing
	// evaluator (even on another instance) loses the claim here.
	claimed, err := e.store.ClaimTriggered(order.OrderID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim order")
		return
	}
	if !claimed {
		logger.Debug().Msg("order already claimed, skipping")
		return
	}

	handle, err := e.wallets.Resolve(order.WalletAddress, order.Network)
	if err != nil {
		if err == wallets.ErrWalletNotFound {
			e.failOrder(&order, "wallet not found")
		} else {
			e.failOrder(&order, err.Error())
		}
		return
	}

	amountIn, err := decimal.NewFromString(order.AmountIn)
	if err != nil {
		e.failOrder(&order, "malformed order amount: "+order.AmountIn)
		return
	}

	extra, err := order.DecodeExtra()
	if err != nil {
		logger.Warn().Err(err).Msg("unreadable extra payload, continuing without it")
		extra = types.OrderExtra{}
	}

	result := e.orch.Execute(ctx, TradeParams{
		OrderID:       order.OrderID,
		SourceNetwork: order.Network,
		TargetNetwork: order.Network,
		Handle:        handle,
		AssetAddress:  order.AssetAddress,
		Action:        order.Action,
		AmountIn:      amountIn,
		Slippage:      e.slippage,
	})

	if !result.Success {
		msg := result.Error
		if result.Partial {
			msg = PartialSettlementError(result, order.Network)
		}
		e.failOrder(&order, msg)
		return
	}

	execPrice := result.Price
	if !execPrice.IsPositive() {
		execPrice = price
	}
	extra.Execution = &types.ExecutionDetail{
		Ref:        result.SettleRef,
		Price:      execPrice,
		ExecutedAt: time.Now(),
	}
	if err := order.EncodeExtra(extra); err != nil {
		logger.Error().Err(err).Msg("failed to encode execution detail")
	}

	err = e.store.UpdateStatus(order.OrderID, types.StatusSuccess, map[string]interface{}{
		"extra": order.Extra,
		"error": "",
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist success")
	}

	e.publish(&order, types.StatusSuccess, "")
	logger.Info().Str("settle_ref", result.SettleRef).Msg("order executed")

	// A buy carrying TP/SL settings spawns the derivation workflow once
	// the fill reference is known.
	if order.Action == types.ActionBuy && len(extra.TPSLSettings) > 0 {
		e.tpsl.Register(ctx, PendingTPSL{
			WalletAddress:  order.WalletAddress,
			AssetAddress:   order.AssetAddress,
			Network:        order.Network,
			Side:           order.Action,
			ExpectedAmount: result.AmountOut,
			ExpectedRef:    result.SettleRef,
			Settings:       extra.TPSLSettings,
		})
	}
}

// failOrder persists the terminal failure and emits its notification.
func (e *Engine) failOrder(order *types.Order, message string) {
	err := e.store.UpdateStatus(order.OrderID, types.StatusFailed, map[string]interface{}{
		"error": message,
	})
	if err != nil {
		e.logger.Error().Err(err).
			Str("order_id", order.OrderID).
			Msg("failed to persist failure status")
	}
	e.publish(order, types.StatusFailed, message)
	e.logger.Warn().
		Str("order_id", order.OrderID).
		Str("error", message).
		Msg("order failed")
}

func (e *Engine) publish(order *types.Order, status types.OrderStatus, message string) {
	e.notifier.Publish(notify.Event{
		OrderID:      order.OrderID,
		Status:       status,
		Network:      order.Network,
		AssetAddress: order.AssetAddress,
		Timestamp:    time.Now(),
		Error:        message,
	})
}
