package migrations

import (
	"github.com/ksred/trigger-engine/internal/types"
	"gorm.io/gorm"
)

// AddOrderSweepIndex backs the sweeper's expiry scan: waiting orders are
// selected by status and age, which the per-column indexes do not cover.
func AddOrderSweepIndex(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Order{}); err != nil {
		return err
	}

	if !db.Migrator().HasIndex(&types.Order{}, "idx_orders_status_created") {
		return db.Exec(
			"CREATE INDEX idx_orders_status_created ON orders(status, created_at)",
		).Error
	}

	return nil
}
