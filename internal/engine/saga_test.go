package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/trigger-engine/internal/bridge"
	"github.com/ksred/trigger-engine/internal/history"
	"github.com/ksred/trigger-engine/internal/settlement"
	"github.com/ksred/trigger-engine/internal/types"
	"github.com/ksred/trigger-engine/internal/wallets"
)

func testHandle() *wallets.SigningHandle {
	return &wallets.SigningHandle{Address: "0xwallet", Network: "eth", Key: "k"}
}

func tradeParams(source, target string) TradeParams {
	return TradeParams{
		OrderID:       "ord-1",
		SourceNetwork: source,
		TargetNetwork: target,
		Handle:        testHandle(),
		AssetAddress:  "0xasset",
		Action:        types.ActionBuy,
		AmountIn:      decimal.RequireFromString("1000"),
		Slippage:      decimal.RequireFromString("30"),
	}
}

func TestOrchestratorSameNetworkSkipsBridge(t *testing.T) {
	attempts := history.NewStore(newTestDB(t))
	b := &stubBridge{result: &bridge.Result{Ref: "BRG-1", AmountOut: decimal.RequireFromString("990")}}
	venue := &stubVenue{network: "eth", result: &settlement.Result{
		Ref:       "STL-1",
		AmountIn:  decimal.RequireFromString("1000"),
		AmountOut: decimal.RequireFromString("99"),
		Price:     decimal.RequireFromString("10.1"),
	}}

	orch := NewOrchestrator(b, settlement.NewRegistry(venue), attempts, 5)
	result := orch.Execute(context.Background(), tradeParams("eth", "eth"))

	require.True(t, result.Success)
	assert.Equal(t, history.StepDone, result.Step)
	assert.Zero(t, b.callCount())
	assert.Empty(t, result.BridgeRef)

	// The full input amount reaches the venue when no bridge ran
	assert.True(t, venue.lastRequest().Amount.Equal(decimal.RequireFromString("1000")),
		"got %s", venue.lastRequest().Amount)

	rows, err := attempts.ByOrder("ord-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].BridgeUsed)
	assert.True(t, rows[0].Success)
	assert.Equal(t, history.StepDone, rows[0].Step)
}

func TestOrchestratorCrossNetworkReservesMargin(t *testing.T) {
	attempts := history.NewStore(newTestDB(t))
	b := &stubBridge{result: &bridge.Result{Ref: "BRG-1", AmountOut: decimal.RequireFromString("1000")}}
	venue := &stubVenue{network: "sol", result: &settlement.Result{
		Ref:       "STL-1",
		AmountIn:  decimal.RequireFromString("950"),
		AmountOut: decimal.RequireFromString("95"),
		Price:     decimal.RequireFromString("10"),
	}}

	orch := NewOrchestrator(b, settlement.NewRegistry(venue), attempts, 5)
	result := orch.Execute(context.Background(), tradeParams("eth", "sol"))

	require.True(t, result.Success)
	assert.Equal(t, 1, b.callCount())
	assert.Equal(t, "BRG-1", result.BridgeRef)

	// 5% of the bridged amount is held back for target-network costs
	assert.True(t, venue.lastRequest().Amount.Equal(decimal.RequireFromString("950")),
		"got %s", venue.lastRequest().Amount)

	rows, err := attempts.ByOrder("ord-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].BridgeUsed)
	assert.Equal(t, "BRG-1", rows[0].BridgeRef)
}

func TestOrchestratorBridgeFailureStopsSaga(t *testing.T) {
	attempts := history.NewStore(newTestDB(t))
	b := &stubBridge{err: errors.New("bridge unavailable")}
	venue := &stubVenue{network: "sol", result: &settlement.Result{Ref: "STL-1"}}

	orch := NewOrchestrator(b, settlement.NewRegistry(venue), attempts, 5)
	result := orch.Execute(context.Background(), tradeParams("eth", "sol"))

	require.False(t, result.Success)
	assert.Equal(t, history.StepBridge, result.Step)
	assert.False(t, result.Partial, "nothing bridged, nothing stranded")
	assert.Zero(t, venue.callCount())

	rows, err := attempts.ByOrder("ord-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, history.StepBridge, rows[0].Step)
	assert.Equal(t, "bridge unavailable", rows[0].Error)
}

func TestOrchestratorSettleFailureAfterBridgeIsPartial(t *testing.T) {
	attempts := history.NewStore(newTestDB(t))
	b := &stubBridge{result: &bridge.Result{Ref: "BRG-9", AmountOut: decimal.RequireFromString("500")}}
	venue := &stubVenue{network: "sol", err: errors.New("venue rejected")}

	orch := NewOrchestrator(b, settlement.NewRegistry(venue), attempts, 5)
	result := orch.Execute(context.Background(), tradeParams("eth", "sol"))

	require.False(t, result.Success)
	assert.True(t, result.Partial)
	assert.Equal(t, history.StepSettle, result.Step)

	// The bridge leg outcome survives the failed settle leg; recovery
	// needs the ref and the stranded amount
	assert.Equal(t, "BRG-9", result.BridgeRef)
	assert.True(t, result.BridgeAmountOut.Equal(decimal.RequireFromString("500")))

	msg := PartialSettlementError(result, "sol")
	assert.Contains(t, msg, "BRG-9")
	assert.Contains(t, msg, "sol")
	assert.Contains(t, msg, "venue rejected")

	rows, err := attempts.ByOrder("ord-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "BRG-9", rows[0].BridgeRef)
	assert.False(t, rows[0].Success)
}

func TestOrchestratorSameNetworkSettleFailureNotPartial(t *testing.T) {
	attempts := history.NewStore(newTestDB(t))
	b := &stubBridge{}
	venue := &stubVenue{network: "eth", err: errors.New("venue rejected")}

	orch := NewOrchestrator(b, settlement.NewRegistry(venue), attempts, 5)
	result := orch.Execute(context.Background(), tradeParams("eth", "eth"))

	require.False(t, result.Success)
	assert.False(t, result.Partial)
	assert.Equal(t, history.StepSettle, result.Step)
}

func TestOrchestratorUnknownNetworkRecordsAttempt(t *testing.T) {
	attempts := history.NewStore(newTestDB(t))
	orch := NewOrchestrator(&stubBridge{}, settlement.NewRegistry(), attempts, 5)

	result := orch.Execute(context.Background(), tradeParams("eth", "eth"))

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "no settlement adapter")

	rows, err := attempts.ByOrder("ord-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestOrchestratorEachExecuteAppendsOneAttempt(t *testing.T) {
	attempts := history.NewStore(newTestDB(t))
	venue := &stubVenue{network: "eth", result: &settlement.Result{
		Ref:       "STL-1",
		AmountIn:  decimal.RequireFromString("1000"),
		AmountOut: decimal.RequireFromString("99"),
		Price:     decimal.RequireFromString("10.1"),
	}}
	orch := NewOrchestrator(&stubBridge{}, settlement.NewRegistry(venue), attempts, 5)

	for i := 0; i < 3; i++ {
		orch.Execute(context.Background(), tradeParams("eth", "eth"))
	}

	rows, err := attempts.ByOrder("ord-1")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
