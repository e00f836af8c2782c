// Package settlement holds the per-network trade execution contract and
// the registry the engine routes through. Real adapters sign and
// broadcast on their chain; this core only sees the narrow interface.
package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/types"
	"github.com/ksred/trigger-engine/internal/wallets"
)

// Request is one settlement instruction on a single network.
type Request struct {
	Handle       *wallets.SigningHandle
	AssetAddress string
	Action       types.Action
	Amount       decimal.Decimal
	Slippage     decimal.Decimal
}

// Result is a completed settlement.
type Result struct {
	Ref       string
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	Price     decimal.Decimal
}

// Adapter executes trades on one network.
type Adapter interface {
	Network() string
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Registry routes settlement requests to the adapter for a network.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Network()] = a
	}
	return r
}

// Register adds or replaces the adapter for its network.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Network()] = a
}

// ForNetwork returns the adapter for a network.
func (r *Registry) ForNetwork(network string) (Adapter, error) {
	a, ok := r.adapters[network]
	if !ok {
		return nil, fmt.Errorf("no settlement adapter for network %q", network)
	}
	return a, nil
}
