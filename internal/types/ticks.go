package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeTick is one observed trade for an asset on a network, as delivered
// by the upstream market-data pipeline. Delivery is at-least-once and
// unordered across networks; ordering only matters within a trigger key.
type TradeTick struct {
	Network          string          `json:"network"`
	AssetAddress     string          `json:"asset_address"`
	AssetAmount      decimal.Decimal `json:"asset_amount"`
	CounterAmountUSD decimal.Decimal `json:"counter_amount_usd"`
	ObservedAt       time.Time       `json:"observed_at"`
}

// TriggerKey returns the bucket key the tick applies to.
func (t TradeTick) TriggerKey() string {
	return TriggerKey(t.Network, t.AssetAddress)
}

// Price derives the USD price of the monitored asset from the tick as
// counter-asset USD amount over asset amount. Returns zero when the tick
// carries no priceable amounts; a zero price never matches anything.
func (t TradeTick) Price() decimal.Decimal {
	if t.AssetAmount.IsPositive() && t.CounterAmountUSD.IsPositive() {
		return t.CounterAmountUSD.Div(t.AssetAmount)
	}
	return decimal.Zero
}
