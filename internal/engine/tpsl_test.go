package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/trigger-engine/internal/orders"
	"github.com/ksred/trigger-engine/internal/txlog"
	"github.com/ksred/trigger-engine/internal/types"
)

func newTestWorkflow(t *testing.T) (*TPSLWorkflow, *orders.Database, *fakeTxs, *fakeClock) {
	t.Helper()
	store := orders.NewDatabase(newTestDB(t))
	txs := newFakeTxs()
	clk := newFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	index := NewTriggerIndex(store)
	w := NewTPSLWorkflow(store, txs, index, clk, 500*time.Millisecond, 10*time.Second, 5*time.Minute)
	return w, store, txs, clk
}

func pendingConfig(settings ...types.TPSLSetting) PendingTPSL {
	return PendingTPSL{
		WalletAddress: "0xwallet",
		AssetAddress:  "0xasset",
		Network:       "eth",
		Side:          types.ActionBuy,
		ExpectedRef:   "STL-1",
		Settings:      settings,
	}
}

func confirmedFill(ref, price, amount string) *txlog.Transaction {
	return &txlog.Transaction{
		Ref:          ref,
		Network:      "eth",
		AssetAddress: "0xasset",
		IsBuy:        true,
		AssetAmount:  decimal.RequireFromString(amount),
		Price:        decimal.RequireFromString(price),
		ConfirmedAt:  time.Now(),
	}
}

func TestTPSLDeriveTakeProfitAndStopLoss(t *testing.T) {
	w, store, _, _ := newTestWorkflow(t)

	cfg := pendingConfig(
		types.TPSLSetting{TriggerValue: decimal.RequireFromString("50"), SellPercentage: decimal.RequireFromString("50")},
		types.TPSLSetting{TriggerValue: decimal.RequireFromString("-20"), SellPercentage: decimal.RequireFromString("100")},
	)
	require.NoError(t, w.derive(cfg, confirmedFill("STL-1", "10", "1000")))

	derived, err := store.FindWaitingByKey("eth", "0xasset")
	require.NoError(t, err)
	require.Len(t, derived, 2)

	byKind := map[types.OrderKind]types.Order{}
	for _, o := range derived {
		byKind[o.OrderKind] = o
	}

	// +50% on an entry of 10 is a take-profit limit sell at 15 for half
	// the filled amount
	tp := byKind[types.KindLimit]
	assert.Equal(t, types.ActionSell, tp.Action)
	assert.True(t, tp.TriggerPrice.Equal(decimal.RequireFromString("15")), "got %s", tp.TriggerPrice)
	assert.Equal(t, "500", tp.AmountIn)

	// -20% is a stop-loss sell at 8 for the full amount
	sl := byKind[types.KindStop]
	assert.Equal(t, types.ActionSell, sl.Action)
	assert.True(t, sl.TriggerPrice.Equal(decimal.RequireFromString("8")), "got %s", sl.TriggerPrice)
	assert.Equal(t, "1000", sl.AmountIn)

	// Both carry the parent link
	extra, err := tp.DecodeExtra()
	require.NoError(t, err)
	require.NotNil(t, extra.DerivedFrom)
	assert.Equal(t, "STL-1", extra.DerivedFrom.ParentRef)
	assert.True(t, extra.DerivedFrom.EntryPrice.Equal(decimal.RequireFromString("10")))
}

func TestTPSLDeriveSkipsNoOpAndZeroSettings(t *testing.T) {
	w, store, _, _ := newTestWorkflow(t)

	cfg := pendingConfig(
		// The {-100, 100} pair means "no TP/SL"
		types.TPSLSetting{TriggerValue: decimal.RequireFromString("-100"), SellPercentage: decimal.RequireFromString("100")},
		types.TPSLSetting{TriggerValue: decimal.Zero, SellPercentage: decimal.RequireFromString("50")},
		types.TPSLSetting{TriggerValue: decimal.RequireFromString("25"), SellPercentage: decimal.Zero},
	)
	require.NoError(t, w.derive(cfg, confirmedFill("STL-1", "10", "1000")))

	derived, err := store.FindWaitingByKey("eth", "0xasset")
	require.NoError(t, err)
	assert.Empty(t, derived)
}

func TestTPSLDerivedOrdersEnterIndex(t *testing.T) {
	w, _, txs, _ := newTestWorkflow(t)
	txs.add(confirmedFill("STL-1", "10", "1000"))

	cfg := pendingConfig(
		types.TPSLSetting{TriggerValue: decimal.RequireFromString("50"), SellPercentage: decimal.RequireFromString("50")},
	)
	w.Register(context.Background(), cfg)

	require.Eventually(t, func() bool {
		return w.PendingCount() == 0 && len(w.index.Peek("eth:0xasset")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTPSLConfirmationOutlivesCallerContext(t *testing.T) {
	w, store, txs, _ := newTestWorkflow(t)

	// The fill is not visible on the first lookup, so the poll has to
	// wait at least once before it can confirm
	txs.addAfter(confirmedFill("STL-1", "10", "1000"), 4)

	// Registration happens on a request-scoped context that is already
	// gone by the time the fill lands
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Register(ctx, pendingConfig(
		types.TPSLSetting{TriggerValue: decimal.RequireFromString("50"), SellPercentage: decimal.RequireFromString("50")},
	))

	require.Eventually(t, func() bool {
		derived, err := store.FindWaitingByKey("eth", "0xasset")
		return err == nil && len(derived) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, w.PendingCount())
}

func TestTPSLPollReturnsNilOnTimeout(t *testing.T) {
	w, _, _, _ := newTestWorkflow(t)

	// The fake clock advances on every poll wait, so the deadline passes
	// after a bounded number of iterations
	tx, err := w.Poll(context.Background(), "STL-missing")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestTPSLPollFindsLateFill(t *testing.T) {
	w, _, txs, _ := newTestWorkflow(t)
	txs.add(confirmedFill("STL-1", "10", "1000"))

	tx, err := w.Poll(context.Background(), "STL-1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "STL-1", tx.Ref)
}

func TestTPSLTimeoutDiscardsConfig(t *testing.T) {
	w, store, _, _ := newTestWorkflow(t)

	cfg := pendingConfig(
		types.TPSLSetting{TriggerValue: decimal.RequireFromString("50"), SellPercentage: decimal.RequireFromString("50")},
	)
	w.Register(context.Background(), cfg)

	require.Eventually(t, func() bool {
		return w.PendingCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	derived, err := store.FindWaitingByKey("eth", "0xasset")
	require.NoError(t, err)
	assert.Empty(t, derived, "an unconfirmed fill derives nothing")
}

func TestTPSLExpirePending(t *testing.T) {
	w, _, _, clk := newTestWorkflow(t)

	w.mu.Lock()
	w.pending["STL-old"] = PendingTPSL{ExpectedRef: "STL-old", ExpiresAt: clk.Now().Add(-time.Minute)}
	w.pending["STL-new"] = PendingTPSL{ExpectedRef: "STL-new", ExpiresAt: clk.Now().Add(time.Minute)}
	w.mu.Unlock()

	assert.Equal(t, 1, w.ExpirePending(clk.Now()))
	assert.Equal(t, 1, w.PendingCount())
}
