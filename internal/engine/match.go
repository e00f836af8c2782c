package engine

import (
	"github.com/shopspring/decimal"

	"github.com/ksred/trigger-engine/internal/types"
)

// Matches decides whether an order fires at the current price. Pure
// function; both boundaries are inclusive.
//
// A limit order waits for a favorable price, a stop order for an adverse
// breach, which is why the comparisons invert between the two kinds.
func Matches(order *types.Order, currentPrice decimal.Decimal) bool {
	if order.Status != types.StatusWaiting {
		return false
	}
	if !order.TriggerPrice.IsPositive() {
		return false
	}

	if order.OrderKind == types.KindLimit {
		if order.Action == types.ActionBuy {
			return currentPrice.LessThanOrEqual(order.TriggerPrice)
		}
		return currentPrice.GreaterThanOrEqual(order.TriggerPrice)
	}

	// stop
	if order.Action == types.ActionBuy {
		return currentPrice.GreaterThanOrEqual(order.TriggerPrice)
	}
	return currentPrice.LessThanOrEqual(order.TriggerPrice)
}
