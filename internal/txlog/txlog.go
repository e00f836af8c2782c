// Package txlog is the durable log of confirmed settlements. The TP/SL
// workflow polls it because a settlement adapter's success response can
// run ahead of on-chain confirmation; the log entry carries the true
// entry price and filled amount.
package txlog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Transaction struct {
	gorm.Model    `json:"-"`
	Ref           string          `gorm:"uniqueIndex" json:"ref"`
	Network       string          `json:"network"`
	AssetAddress  string          `json:"asset_address"`
	WalletAddress string          `json:"wallet_address"`
	IsBuy         bool            `json:"is_buy"`
	AssetAmount   decimal.Decimal `gorm:"type:decimal(38,18)" json:"asset_amount"`
	NativeAmount  decimal.Decimal `gorm:"type:decimal(38,18)" json:"native_amount"`
	Price         decimal.Decimal `gorm:"type:decimal(38,18)" json:"price"`
	ConfirmedAt   time.Time       `json:"confirmed_at"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByRef returns the confirmed entry for ref, or nil when it has not
// landed yet.
func (s *Store) FindByRef(ref string) (*Transaction, error) {
	var tx Transaction
	if err := s.db.Where("ref = ?", ref).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// Append records a confirmation.
func (s *Store) Append(tx *Transaction) error {
	return s.db.Create(tx).Error
}
