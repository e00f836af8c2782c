package orders

import (
	"errors"
	"time"

	"github.com/ksred/trigger-engine/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Create(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) Get(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// FindWaiting returns every waiting order, oldest first. Used to
// bootstrap the trigger index at startup.
func (d *Database) FindWaiting() ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("status = ?", types.StatusWaiting).
		Order("created_at asc").
		Find(&orders).Error
	return orders, err
}

// FindWaitingByKey returns the waiting orders for one trigger key,
// oldest first.
func (d *Database) FindWaitingByKey(network, assetAddress string) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.
		Where("network = ? AND asset_address = ? AND status = ?",
			network, assetAddress, types.StatusWaiting).
		Order("created_at asc").
		Find(&orders).Error
	return orders, err
}

// UpdateStatus sets the status and optional extra fields on one order.
// The update is a single atomic statement keyed by order id.
func (d *Database) UpdateStatus(orderID string, status types.OrderStatus, fields map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := d.db.Model(&types.Order{}).
		Where("order_id = ?", orderID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClaimTriggered transitions one order waiting -> triggered. The
// conditional WHERE makes the claim atomic across instances: only one
// caller observes claimed=true for a given order, regardless of the
// in-process guard.
func (d *Database) ClaimTriggered(orderID string) (bool, error) {
	result := d.db.Model(&types.Order{}).
		Where("order_id = ? AND status = ?", orderID, types.StatusWaiting).
		Updates(map[string]interface{}{
			"status":     types.StatusTriggered,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExpireWaiting moves the given orders to expired, but only those still
// waiting. The status guard mirrors ClaimTriggered: an order that raced
// into a terminal state between the caller's snapshot and this update is
// left untouched. Returns the ids actually expired.
func (d *Database) ExpireWaiting(orderIDs []string) ([]string, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	result := d.db.Model(&types.Order{}).
		Where("order_id IN ? AND status = ?", orderIDs, types.StatusWaiting).
		Updates(map[string]interface{}{
			"status":     types.StatusExpired,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	var expired []string
	err := d.db.Model(&types.Order{}).
		Where("order_id IN ? AND status = ?", orderIDs, types.StatusExpired).
		Pluck("order_id", &expired).Error
	return expired, err
}

// CreateWithIdempotency creates a new order and idempotency record in a
// transaction.
func (d *Database) CreateWithIdempotency(order *types.Order, idempotencyKey string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     order.OrderID,
		ResourceType:   "order",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}

	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetIdempotencyRecord retrieves an idempotency record by key
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
