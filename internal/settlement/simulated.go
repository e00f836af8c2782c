package settlement

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/txlog"
	"github.com/ksred/trigger-engine/internal/types"
)

// PriceSource supplies the reference price the simulator executes around.
type PriceSource interface {
	Get(ctx context.Context, triggerKey string) (decimal.Decimal, bool)
}

// Simulated is a mock settlement venue for one network. Confirmations
// land in the transaction log after a short delay, the way a chain
// confirmation lags the broadcast response.
type Simulated struct {
	NetworkID    string
	MinLatency   int // in milliseconds
	MaxLatency   int
	SuccessRate  float64
	ConfirmDelay time.Duration

	prices PriceSource
	txs    *txlog.Store
}

// NewSimulated builds a venue for the given network.
func NewSimulated(network string, prices PriceSource, txs *txlog.Store) *Simulated {
	return &Simulated{
		NetworkID:    network,
		MinLatency:   20,
		MaxLatency:   150,
		SuccessRate:  0.95,
		ConfirmDelay: 1500 * time.Millisecond,
		prices:       prices,
		txs:          txs,
	}
}

func (s *Simulated) Network() string {
	return s.NetworkID
}

// Execute simulates a swap at the cached reference price with a small
// variance, then schedules the confirmation row.
func (s *Simulated) Execute(ctx context.Context, req Request) (*Result, error) {
	logger := log.With().
		Str("component", "settlement").
		Str("network", s.NetworkID).
		Str("asset", req.AssetAddress).
		Str("action", string(req.Action)).
		Str("amount", req.Amount.String()).
		Logger()

	logger.Info().Msg("attempting settlement")

	latency := rand.Intn(s.MaxLatency-s.MinLatency+1) + s.MinLatency
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(latency) * time.Millisecond):
	}

	if rand.Float64() > s.SuccessRate {
		logger.Warn().Float64("success_rate", s.SuccessRate).Msg("settlement rejected")
		return nil, fmt.Errorf("settlement failed on network %s", s.NetworkID)
	}

	key := types.TriggerKey(s.NetworkID, req.AssetAddress)
	refPrice, ok := s.prices.Get(ctx, key)
	if !ok || !refPrice.IsPositive() {
		logger.Warn().Msg("no reference price for asset")
		return nil, fmt.Errorf("no reference price for %s", key)
	}

	// Executed price varies within +-2% of reference.
	variance := decimal.NewFromFloat(1 + (rand.Float64()*0.04 - 0.02))
	price := refPrice.Mul(variance)

	var amountOut decimal.Decimal
	if req.Action == types.ActionBuy {
		amountOut = req.Amount.Div(price)
	} else {
		amountOut = req.Amount.Mul(price)
	}

	result := &Result{
		Ref:       "STL-" + uuid.New().String(),
		AmountIn:  req.Amount,
		AmountOut: amountOut,
		Price:     price,
	}

	s.scheduleConfirmation(req, result)

	logger.Info().
		Str("ref", result.Ref).
		Str("price", price.String()).
		Str("amount_out", amountOut.String()).
		Msg("settlement executed")

	return result, nil
}

// scheduleConfirmation appends the transaction-log row after the
// configured delay.
func (s *Simulated) scheduleConfirmation(req Request, result *Result) {
	if s.txs == nil {
		return
	}

	isBuy := req.Action == types.ActionBuy
	assetAmount := result.AmountOut
	nativeAmount := result.AmountIn
	if !isBuy {
		assetAmount = result.AmountIn
		nativeAmount = result.AmountOut
	}

	entry := &txlog.Transaction{
		Ref:           result.Ref,
		Network:       s.NetworkID,
		AssetAddress:  req.AssetAddress,
		WalletAddress: req.Handle.Address,
		IsBuy:         isBuy,
		AssetAmount:   assetAmount,
		NativeAmount:  nativeAmount,
		Price:         result.Price,
	}

	go func() {
		time.Sleep(s.ConfirmDelay)
		entry.ConfirmedAt = time.Now()
		if err := s.txs.Append(entry); err != nil {
			log.Warn().Err(err).Str("ref", entry.Ref).Msg("failed to append confirmation")
		}
	}()
}
