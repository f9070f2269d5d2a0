package repository

import (
	"context"
	"errors"
	"fmt"
	"pharmacy-payments/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStockShortfall means a decrement would drive available quantity
// negative. The write is rejected, never clamped.
var ErrStockShortfall = errors.New("insufficient stock for debit")

type InventoryRepository interface {
	// Upsert adds quantity to a pharmacy's stock (restock path).
	Upsert(ctx context.Context, tx *gorm.DB, record *model.InventoryRecord) error
	Get(ctx context.Context, pharmacyID string) ([]*model.InventoryRecord, error)
	// MarkDebited inserts the per-order debit marker. False means the marker
	// already existed and the order's debit must be skipped.
	MarkDebited(ctx context.Context, tx *gorm.DB, orderID string) (bool, error)
	// Debit decrements stock, guarded so quantity never goes negative.
	Debit(ctx context.Context, tx *gorm.DB, medicationID, pharmacyID string, quantity int32) error
}

type inventoryRepoImpl struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepoImpl{
		db: db,
	}
}

func (r *inventoryRepoImpl) Upsert(ctx context.Context, tx *gorm.DB, record *model.InventoryRecord) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "medication_id"}, {Name: "pharmacy_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   gorm.Expr("inventory_records.quantity + ?", record.Quantity),
			"updated_at": time.Now(),
		}),
	}).Create(&record).Error
}

func (r *inventoryRepoImpl) Get(ctx context.Context, pharmacyID string) ([]*model.InventoryRecord, error) {
	var records []*model.InventoryRecord

	err := r.db.WithContext(ctx).
		Where("pharmacy_id = ?", pharmacyID).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *inventoryRepoImpl) MarkDebited(ctx context.Context, tx *gorm.DB, orderID string) (bool, error) {
	result := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.InventoryDebit{
			OrderID:   orderID,
			DebitedAt: time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *inventoryRepoImpl) Debit(ctx context.Context, tx *gorm.DB, medicationID, pharmacyID string, quantity int32) error {
	result := tx.WithContext(ctx).Model(&model.InventoryRecord{}).
		Where("medication_id = ? AND pharmacy_id = ? AND quantity >= ?", medicationID, pharmacyID, quantity).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity - ?", quantity),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: medication %s at pharmacy %s (need %d)",
			ErrStockShortfall, medicationID, pharmacyID, quantity)
	}

	return nil
}
