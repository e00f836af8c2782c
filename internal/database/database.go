package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/trigger-engine/internal/database/migrations"
	"github.com/ksred/trigger-engine/internal/history"
	"github.com/ksred/trigger-engine/internal/orders"
	"github.com/ksred/trigger-engine/internal/txlog"
	"github.com/ksred/trigger-engine/internal/types"
	"github.com/ksred/trigger-engine/internal/wallets"
)

// NewDatabase opens the engine's store and brings the schema up to date.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddOrderSweepIndex(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&types.Order{},
		&orders.IdempotencyRecord{},
		&wallets.Wallet{},
		&txlog.Transaction{},
		&history.TradeAttempt{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
