package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/bridge"
	"github.com/ksred/trigger-engine/internal/history"
	"github.com/ksred/trigger-engine/internal/settlement"
	"github.com/ksred/trigger-engine/internal/types"
	"github.com/ksred/trigger-engine/internal/wallets"
)

// TradeParams is one execution request through the orchestrator.
type TradeParams struct {
	OrderID       string
	SourceNetwork string
	TargetNetwork string
	Handle        *wallets.SigningHandle
	AssetAddress  string
	Action        types.Action
	AmountIn      decimal.Decimal
	Slippage      decimal.Decimal
}

// TradeResult is the outcome of one attempt. Partial marks the accepted
// saga failure mode: funds bridged to the target network but never
// traded. Downstream consumers need that distinct from a same-network
// failure.
type TradeResult struct {
	Success bool
	Step    string
	Partial bool
	Error   string

	BridgeRef       string
	BridgeAmountOut decimal.Decimal

	SettleRef string
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	Price     decimal.Decimal
}

// Orchestrator runs the two-leg bridge+settle saga. Forward-only: a
// failed settle leg never unwinds the bridge leg, and no leg is retried
// internally; a retry is a new attempt with its own record.
type Orchestrator struct {
	bridge      bridge.Adapter
	settlements *settlement.Registry
	attempts    *history.Store
	margin      decimal.Decimal // share of the bridged amount reserved for target-network costs
	logger      zerolog.Logger
}

// NewOrchestrator wires the saga. marginPercent is the bridge-leg safety
// margin, e.g. 5 for 5%.
func NewOrchestrator(b bridge.Adapter, settlements *settlement.Registry, attempts *history.Store, marginPercent float64) *Orchestrator {
	return &Orchestrator{
		bridge:      b,
		settlements: settlements,
		attempts:    attempts,
		margin:      decimal.NewFromFloat(marginPercent).Div(decimal.NewFromInt(100)),
		logger:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// Execute runs the saga to completion and records exactly one trade
// attempt row, success or not. It never panics and never returns nil.
func (o *Orchestrator) Execute(ctx context.Context, params TradeParams) *TradeResult {
	logger := o.logger.With().
		Str("order_id", params.OrderID).
		Str("source_network", params.SourceNetwork).
		Str("target_network", params.TargetNetwork).
		Str("asset", params.AssetAddress).
		Str("action", string(params.Action)).
		Logger()

	result := &TradeResult{Step: history.StepSettle}
	settleAmount := params.AmountIn
	bridged := false

	if params.SourceNetwork != params.TargetNetwork {
		result.Step = history.StepBridge
		logger.Info().Str("amount", params.AmountIn.String()).Msg("starting bridge leg")

		bridgeResult, err := o.bridge.Move(ctx, params.SourceNetwork, params.TargetNetwork, params.Handle, params.AmountIn)
		if err != nil {
			result.Error = err.Error()
			o.record(params, result)
			logger.Warn().Err(err).Msg("bridge leg failed")
			return result
		}

		bridged = true
		result.BridgeRef = bridgeResult.Ref
		result.BridgeAmountOut = bridgeResult.AmountOut

		// Reserve a slice of the bridged amount for the destination
		// network's own transaction cost. Not refunded within this flow.
		settleAmount = bridgeResult.AmountOut.Mul(decimal.NewFromInt(1).Sub(o.margin))
		result.Step = history.StepSettle
	}

	adapter, err := o.settlements.ForNetwork(params.TargetNetwork)
	if err != nil {
		result.Error = err.Error()
		result.Partial = bridged
		o.record(params, result)
		logger.Error().Err(err).Msg("no settlement adapter")
		return result
	}

	settleResult, err := adapter.Execute(ctx, settlement.Request{
		Handle:       params.Handle,
		AssetAddress: params.AssetAddress,
		Action:       params.Action,
		Amount:       settleAmount,
		Slippage:     params.Slippage,
	})
	if err != nil {
		result.Error = err.Error()
		result.Partial = bridged
		o.record(params, result)
		if bridged {
			logger.Warn().Err(err).
				Str("bridge_ref", result.BridgeRef).
				Str("stranded_amount", result.BridgeAmountOut.String()).
				Msg("settle leg failed after bridge, funds stranded on target network")
		} else {
			logger.Warn().Err(err).Msg("settle leg failed")
		}
		return result
	}

	result.Success = true
	result.Step = history.StepDone
	result.SettleRef = settleResult.Ref
	result.AmountIn = settleResult.AmountIn
	result.AmountOut = settleResult.AmountOut
	result.Price = settleResult.Price
	o.record(params, result)

	logger.Info().
		Str("settle_ref", result.SettleRef).
		Str("amount_out", result.AmountOut.String()).
		Msg("trade executed")

	return result
}

// record appends the attempt row. A failed write is logged, not
// propagated: losing one history row must not fail the trade path.
func (o *Orchestrator) record(params TradeParams, result *TradeResult) {
	attempt := &history.TradeAttempt{
		AttemptID:     uuid.New().String(),
		OrderID:       params.OrderID,
		SourceNetwork: params.SourceNetwork,
		SourceWallet:  params.Handle.Address,
		SourceAmount:  params.AmountIn.String(),
		TargetNetwork: params.TargetNetwork,
		TargetWallet:  params.Handle.Address,
		AssetAddress:  params.AssetAddress,
		Action:        string(params.Action),
		BridgeUsed:    params.SourceNetwork != params.TargetNetwork,
		BridgeRef:     result.BridgeRef,
		Step:          result.Step,
		Success:       result.Success,
		Error:         result.Error,
	}
	if !result.BridgeAmountOut.IsZero() {
		attempt.BridgeAmountOut = result.BridgeAmountOut.String()
	}
	if result.Success {
		attempt.SettleRef = result.SettleRef
		attempt.AmountIn = result.AmountIn.String()
		attempt.AmountOut = result.AmountOut.String()
	}

	if err := o.attempts.Append(attempt); err != nil {
		o.logger.Error().Err(err).
			Str("order_id", params.OrderID).
			Msg("failed to record trade attempt")
	}
}

// PartialSettlementError renders the user-visible message for stranded
// funds with enough detail for recovery outside this engine.
func PartialSettlementError(result *TradeResult, targetNetwork string) string {
	return fmt.Sprintf(
		"partial settlement: %s; funds bridged to %s (ref %s, amount %s) but not traded",
		result.Error, targetNetwork, result.BridgeRef, result.BridgeAmountOut,
	)
}
