package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/clock"
	"github.com/ksred/trigger-engine/internal/txlog"
	"github.com/ksred/trigger-engine/internal/types"
)

// PendingTPSL is an unconfirmed take-profit/stop-loss configuration. It
// is never persisted: the derived sell orders cannot be computed until
// the parent fill is confirmed, because only the confirmed entry carries
// the true entry price and filled amount.
type PendingTPSL struct {
	WalletAddress  string
	AssetAddress   string
	Network        string
	Side           types.Action
	ExpectedAmount decimal.Decimal
	ExpectedRef    string
	Settings       []types.TPSLSetting
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// TxLookup is the transaction-log read the confirmation poll uses.
type TxLookup interface {
	FindByRef(ref string) (*txlog.Transaction, error)
}

// OrderInserter persists derived sell orders.
type OrderInserter interface {
	Create(order *types.Order) error
}

// TPSLWorkflow converts a confirmed buy plus its TP/SL settings into
// derived sell orders in the trigger index.
type TPSLWorkflow struct {
	mu      sync.Mutex
	pending map[string]PendingTPSL

	store OrderInserter
	txs   TxLookup
	index *TriggerIndex
	clock clock.Clock

	pollInterval time.Duration
	pollTimeout  time.Duration
	ttl          time.Duration

	logger zerolog.Logger
}

func NewTPSLWorkflow(store OrderInserter, txs TxLookup, index *TriggerIndex, clk clock.Clock, pollInterval, pollTimeout, ttl time.Duration) *TPSLWorkflow {
	return &TPSLWorkflow{
		pending:      make(map[string]PendingTPSL),
		store:        store,
		txs:          txs,
		index:        index,
		clock:        clk,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		ttl:          ttl,
		logger:       log.With().Str("component", "tpsl").Logger(),
	}
}

// Register stores the configuration and starts the confirmation poll in
// the background. The poll must outlive the caller: a registering HTTP
// request returns long before the fill confirms, so the poll detaches
// from the caller's cancellation and is bounded by its own timeout.
func (w *TPSLWorkflow) Register(ctx context.Context, cfg PendingTPSL) {
	now := w.clock.Now()
	cfg.CreatedAt = now
	cfg.ExpiresAt = now.Add(w.ttl)

	w.mu.Lock()
	w.pending[cfg.ExpectedRef] = cfg
	w.mu.Unlock()

	w.logger.Info().
		Str("ref", cfg.ExpectedRef).
		Int("settings", len(cfg.Settings)).
		Msg("registered pending config")

	go w.confirm(context.WithoutCancel(ctx), cfg)
}

// confirm polls for the parent fill and derives the sell orders once it
// lands. A timeout discards the configuration; the parent trade already
// succeeded on its own, so this is logged, not escalated.
func (w *TPSLWorkflow) confirm(ctx context.Context, cfg PendingTPSL) {
	tx, err := w.Poll(ctx, cfg.ExpectedRef)
	if err != nil {
		w.logger.Error().Err(err).Str("ref", cfg.ExpectedRef).Msg("confirmation poll failed")
		w.discard(cfg.ExpectedRef)
		return
	}
	if tx == nil {
		w.logger.Warn().Str("ref", cfg.ExpectedRef).Msg("fill not confirmed within timeout, dropping config")
		w.discard(cfg.ExpectedRef)
		return
	}

	if err := w.derive(cfg, tx); err != nil {
		w.logger.Error().Err(err).Str("ref", cfg.ExpectedRef).Msg("failed to derive sell orders")
	}
	w.discard(cfg.ExpectedRef)
}

// Poll checks the transaction log for ref every pollInterval until it
// appears, the timeout elapses, or ctx is cancelled. Returns nil without
// error on timeout.
func (w *TPSLWorkflow) Poll(ctx context.Context, ref string) (*txlog.Transaction, error) {
	deadline := w.clock.Now().Add(w.pollTimeout)

	for {
		tx, err := w.txs.FindByRef(ref)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			return tx, nil
		}
		if !w.clock.Now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.clock.After(w.pollInterval):
		}
	}
}

// derive persists one sell order per usable setting and refreshes the
// trigger index so they are monitored immediately.
func (w *TPSLWorkflow) derive(cfg PendingTPSL, tx *txlog.Transaction) error {
	entryPrice := tx.Price
	totalAmount := tx.AssetAmount
	hundred := decimal.NewFromInt(100)

	created := 0
	for _, setting := range cfg.Settings {
		// {-100, 100} is the client's "no TP/SL" marker.
		if setting.NoOp() {
			continue
		}
		if setting.SellPercentage.IsZero() || setting.TriggerValue.IsZero() {
			continue
		}

		triggerPrice := entryPrice.Mul(decimal.NewFromInt(1).Add(setting.TriggerValue.Div(hundred)))
		kind := types.KindStop
		if setting.TriggerValue.IsPositive() {
			kind = types.KindLimit
		}
		amountToSell := totalAmount.Mul(setting.SellPercentage.Div(hundred))

		order := &types.Order{
			OrderID:       uuid.New().String(),
			Network:       cfg.Network,
			WalletAddress: cfg.WalletAddress,
			AssetAddress:  cfg.AssetAddress,
			AmountIn:      amountToSell.String(),
			Action:        types.ActionSell,
			OrderKind:     kind,
			TriggerPrice:  triggerPrice,
			Status:        types.StatusWaiting,
			CreatedAt:     w.clock.Now(),
			UpdatedAt:     w.clock.Now(),
		}
		err := order.EncodeExtra(types.OrderExtra{
			DerivedFrom: &types.DerivedFrom{
				ParentRef:      cfg.ExpectedRef,
				TriggerValue:   setting.TriggerValue,
				SellPercentage: setting.SellPercentage,
				EntryPrice:     entryPrice,
				EntryAmount:    totalAmount,
			},
		})
		if err != nil {
			return err
		}

		if err := w.store.Create(order); err != nil {
			return err
		}
		created++
	}

	if created == 0 {
		w.logger.Info().Str("ref", cfg.ExpectedRef).Msg("no usable settings, nothing derived")
		return nil
	}

	key := types.TriggerKey(cfg.Network, cfg.AssetAddress)
	if err := w.index.Refresh(key); err != nil {
		return err
	}

	w.logger.Info().
		Str("ref", cfg.ExpectedRef).
		Int("orders", created).
		Str("entry_price", entryPrice.String()).
		Msg("derived sell orders")

	return nil
}

func (w *TPSLWorkflow) discard(ref string) {
	w.mu.Lock()
	delete(w.pending, ref)
	w.mu.Unlock()
}

// ExpirePending drops configurations past their expiry and returns how
// many were removed. No side effects beyond the drop.
func (w *TPSLWorkflow) ExpirePending(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	dropped := 0
	for ref, cfg := range w.pending {
		if now.After(cfg.ExpiresAt) {
			delete(w.pending, ref)
			dropped++
		}
	}
	return dropped
}

// PendingCount reports the live configurations.
func (w *TPSLWorkflow) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
