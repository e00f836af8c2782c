// Package history keeps the append-only record of execution attempts.
// One row per attempt, both legs, never mutated after the write.
package history

import (
	"gorm.io/gorm"
)

// Steps an attempt can stop at.
const (
	StepBridge = "bridge"
	StepSettle = "settle"
	StepDone   = "done"
)

type TradeAttempt struct {
	gorm.Model      `json:"-"`
	AttemptID       string `gorm:"uniqueIndex" json:"attempt_id"`
	OrderID         string `gorm:"index" json:"order_id,omitempty"`
	SourceNetwork   string `json:"source_network"`
	SourceWallet    string `json:"source_wallet"`
	SourceAmount    string `json:"source_amount"`
	TargetNetwork   string `json:"target_network"`
	TargetWallet    string `json:"target_wallet"`
	AssetAddress    string `json:"asset_address"`
	Action          string `json:"action"`
	BridgeUsed      bool   `json:"bridge_used"`
	BridgeRef       string `json:"bridge_ref,omitempty"`
	BridgeAmountOut string `json:"bridge_amount_out,omitempty"`
	SettleRef       string `json:"settle_ref,omitempty"`
	AmountIn        string `json:"amount_in,omitempty"`
	AmountOut       string `json:"amount_out,omitempty"`
	Step            string `json:"step"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append writes one attempt row. Rows are never updated afterwards.
func (s *Store) Append(attempt *TradeAttempt) error {
	return s.db.Create(attempt).Error
}

// ByOrder returns the attempts recorded for an order, oldest first.
func (s *Store) ByOrder(orderID string) ([]TradeAttempt, error) {
	var attempts []TradeAttempt
	err := s.db.
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&attempts).Error
	return attempts, err
}
