package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of a conditional order.
// Valid transitions: waiting -> triggered -> success|failed, waiting -> expired.
// Terminal states are never left and never deleted.
type OrderStatus string

const (
	StatusWaiting   OrderStatus = "waiting"
	StatusTriggered OrderStatus = "triggered"
	StatusSuccess   OrderStatus = "success"
	StatusFailed    OrderStatus = "failed"
	StatusExpired   OrderStatus = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusExpired
}

// OrderKind distinguishes limit semantics (wait for a favorable price)
// from stop semantics (wait for an adverse breach).
type OrderKind string

const (
	KindLimit OrderKind = "limit"
	KindStop  OrderKind = "stop"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Order is a conditional instruction to trade an asset once its price
// crosses the trigger price. AmountIn is source-denominated and kept as a
// decimal string end to end.
type Order struct {
	gorm.Model    `json:"-"`
	OrderID       string          `gorm:"uniqueIndex" json:"order_id"`
	Network       string          `gorm:"index:idx_orders_trigger_key" json:"network"`
	WalletAddress string          `json:"wallet_address"`
	AssetAddress  string          `gorm:"index:idx_orders_trigger_key" json:"asset_address"`
	AmountIn      string          `json:"amount_in"`
	Action        Action          `json:"action"`
	OrderKind     OrderKind       `json:"order_kind"`
	TriggerPrice  decimal.Decimal `gorm:"type:decimal(38,18)" json:"trigger_price"`
	Status        OrderStatus     `gorm:"index" json:"status"`
	Error         string          `json:"error,omitempty"`
	Extra         string          `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TriggerKey groups orders watching the same asset on the same network.
func (o *Order) TriggerKey() string {
	return TriggerKey(o.Network, o.AssetAddress)
}

// TriggerKey builds the bucket key for a (network, asset) pair.
func TriggerKey(network, assetAddress string) string {
	return network + ":" + assetAddress
}

// SplitTriggerKey is the inverse of TriggerKey.
func SplitTriggerKey(key string) (network, assetAddress string, ok bool) {
	network, assetAddress, ok = strings.Cut(key, ":")
	return network, assetAddress, ok && network != "" && assetAddress != ""
}
