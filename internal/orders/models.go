package orders

import (
	"time"

	"gorm.io/gorm"
)

type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// CreateOrderRequest is the placement payload accepted by the API.
type CreateOrderRequest struct {
	Network       string  `json:"network" binding:"required"`
	WalletAddress string  `json:"wallet_address" binding:"required"`
	AssetAddress  string  `json:"asset_address" binding:"required"`
	AmountIn      string  `json:"amount_in" binding:"required"`
	Action        string  `json:"action" binding:"required"`
	OrderKind     string  `json:"order_kind" binding:"required"`
	TriggerPrice  string  `json:"trigger_price" binding:"required"`
	TPSLSettings  []TPSLSettingRequest `json:"tpsl_settings,omitempty"`
}

// TPSLSettingRequest mirrors types.TPSLSetting with plain strings so the
// API rejects malformed decimals explicitly.
type TPSLSettingRequest struct {
	TriggerValue   string `json:"trigger_value" binding:"required"`
	SellPercentage string `json:"sell_percentage" binding:"required"`
}
