package bridge

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/wallets"
)

// Simulated stands in for a real cross-chain bridge. Latency, fees and
// failure rate roughly follow what the production routes show.
type Simulated struct {
	MinLatency  int // in milliseconds
	MaxLatency  int
	FeeRate     float64 // share of the amount consumed by the route
	SuccessRate float64 // 0-1, probability of a completed transfer
}

// NewSimulated returns a bridge with realistic defaults.
func NewSimulated() *Simulated {
	return &Simulated{
		MinLatency:  50,
		MaxLatency:  400,
		FeeRate:     0.003, // 0.3%
		SuccessRate: 0.97,
	}
}

// Move simulates a transfer between networks.
func (s *Simulated) Move(ctx context.Context, sourceNetwork, targetNetwork string, handle *wallets.SigningHandle, amount decimal.Decimal) (*Result, error) {
	logger := log.With().
		Str("component", "bridge").
		Str("source_network", sourceNetwork).
		Str("target_network", targetNetwork).
		Str("amount", amount.String()).
		Logger()

	logger.Info().Msg("starting cross-network transfer")

	latency := rand.Intn(s.MaxLatency-s.MinLatency+1) + s.MinLatency
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(latency) * time.Millisecond):
	}

	if rand.Float64() > s.SuccessRate {
		logger.Warn().Msg("bridge route rejected the transfer")
		return nil, fmt.Errorf("bridge transfer %s -> %s failed", sourceNetwork, targetNetwork)
	}

	fee := amount.Mul(decimal.NewFromFloat(s.FeeRate))
	result := &Result{
		Ref:       "BRG-" + uuid.New().String(),
		AmountOut: amount.Sub(fee),
	}

	logger.Info().
		Str("ref", result.Ref).
		Str("amount_out", result.AmountOut.String()).
		Msg("transfer completed")

	return result, nil
}
