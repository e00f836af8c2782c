// Package wallets resolves a wallet address to its signing material. The
// engine treats the handle as an opaque capability; custody policy lives
// with whatever populates this store.
package wallets

import (
	"errors"

	"gorm.io/gorm"
)

var ErrWalletNotFound = errors.New("wallet not found")

type Wallet struct {
	gorm.Model `json:"-"`
	Address    string `gorm:"index:idx_wallets_addr_network" json:"address"`
	Network    string `gorm:"index:idx_wallets_addr_network" json:"network"`
	UserID     string `json:"user_id"`
	SigningKey string `json:"-"`
	IsDefault  bool   `json:"is_default"`
}

// SigningHandle is what adapters receive to sign with. It never appears
// in logs or API responses.
type SigningHandle struct {
	Address string
	Network string
	Key     string
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Resolve returns the signing handle for (address, network), or
// ErrWalletNotFound.
func (s *Store) Resolve(address, network string) (*SigningHandle, error) {
	var wallet Wallet
	err := s.db.
		Where("address = ? AND network = ?", address, network).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &SigningHandle{
		Address: wallet.Address,
		Network: wallet.Network,
		Key:     wallet.SigningKey,
	}, nil
}

// Save persists a wallet record.
func (s *Store) Save(wallet *Wallet) error {
	return s.db.Create(wallet).Error
}
