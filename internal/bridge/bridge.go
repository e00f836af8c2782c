// Package bridge moves value between settlement networks. The adapter is
// responsible for leaving source funds untouched when a transfer fails;
// the engine treats a returned error as "nothing moved".
package bridge

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/wallets"
)

// Result is a completed transfer: the reference on the target network
// and the net amount that arrived after bridge fees.
type Result struct {
	Ref       string
	AmountOut decimal.Decimal
}

// Adapter is the cross-network transfer capability.
type Adapter interface {
	Move(ctx context.Context, sourceNetwork, targetNetwork string, handle *wallets.SigningHandle, amount decimal.Decimal) (*Result, error)
}
