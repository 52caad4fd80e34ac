package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/milkvine/backoffice/internal/domain/inventory"
	"github.com/milkvine/backoffice/internal/domain/shared"
)

// GormStockLedgerRepository implements StockLedgerRepository using GORM
type GormStockLedgerRepository struct {
	db *gorm.DB
}

// NewGormStockLedgerRepository creates a new GormStockLedgerRepository
func NewGormStockLedgerRepository(db *gorm.DB) *GormStockLedgerRepository {
	return &GormStockLedgerRepository{db: db}
}

// FindByID finds a ledger by ID within a tenant
func (r *GormStockLedgerRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*inventory.StockLedger, error) {
	var ledger inventory.StockLedger
	if err := r.db.WithContext(ctx).
		Preload("Batches").
		Preload("Alerts").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&ledger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ledger, nil
}

// FindByProductAndWarehouse finds the ledger for a product-warehouse pair
func (r *GormStockLedgerRepository) FindByProductAndWarehouse(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (*inventory.StockLedger, error) {
	var ledger inventory.StockLedger
	if err := r.db.WithContext(ctx).
		Preload("Batches").
		Preload("Alerts").
		Where("tenant_id = ? AND product_id = ? AND warehouse_id = ?", tenantID, productID, warehouseID).
		First(&ledger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ledger, nil
}

// FindByWarehouse finds all ledgers in a warehouse
func (r *GormStockLedgerRepository) FindByWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID) ([]inventory.StockLedger, error) {
	var ledgers []inventory.StockLedger
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND warehouse_id = ?", tenantID, warehouseID).
		Order("created_at DESC").
		Find(&ledgers).Error; err != nil {
		return nil, err
	}
	return ledgers, nil
}

// FindBelowMinimum finds ledgers whose sellable stock is at or below minimum
func (r *GormStockLedgerRepository) FindBelowMinimum(ctx context.Context, tenantID uuid.UUID) ([]inventory.StockLedger, error) {
	var ledgers []inventory.StockLedger
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND threshold_minimum > 0 AND (stock_available - stock_reserved) <= threshold_minimum", tenantID).
		Find(&ledgers).Error; err != nil {
		return nil, err
	}
	return ledgers, nil
}

// GetOrCreate returns the existing ledger or creates an empty one
func (r *GormStockLedgerRepository) GetOrCreate(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (*inventory.StockLedger, error) {
	ledger, err := r.FindByProductAndWarehouse(ctx, tenantID, productID, warehouseID)
	if err == nil {
		return ledger, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	ledger, err = inventory.NewStockLedger(tenantID, productID, warehouseID)
	if err != nil {
		return nil, err
	}

	// ON CONFLICT handles races between concurrent first writers
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}, {Name: "warehouse_id"}},
			DoNothing: true,
		}).
		Create(ledger).Error; err != nil {
		return nil, err
	}

	if ledger.ID == uuid.Nil {
		return r.FindByProductAndWarehouse(ctx, tenantID, productID, warehouseID)
	}
	return ledger, nil
}

// Save creates or updates a ledger together with its batches and alerts
func (r *GormStockLedgerRepository) Save(ctx context.Context, ledger *inventory.StockLedger) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(ledger).Error
}

// SaveWithLock saves with optimistic locking (checks version).
// The aggregate bumps its version once per operation, so callers must save
// after every single operation; batching operations would skew the check.
func (r *GormStockLedgerRepository) SaveWithLock(ctx context.Context, ledger *inventory.StockLedger) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(ledger).
			Where("id = ? AND version = ?", ledger.ID, ledger.Version-1).
			Updates(map[string]interface{}{
				"stock_available":            ledger.Stock.Available,
				"stock_reserved":             ledger.Stock.Reserved,
				"stock_damaged":              ledger.Stock.Damaged,
				"stock_expired":              ledger.Stock.Expired,
				"stock_in_transit":           ledger.Stock.InTransit,
				"threshold_minimum":          ledger.Thresholds.Minimum,
				"threshold_maximum":          ledger.Thresholds.Maximum,
				"threshold_reorder_point":    ledger.Thresholds.ReorderPoint,
				"threshold_reorder_quantity": ledger.Thresholds.ReorderQuantity,
				"unit_cost":                  ledger.UnitCost,
				"total_value":                ledger.TotalValue,
				"version":                    ledger.Version,
				"updated_at":                 ledger.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		// Batches and alerts ride along once the version check held.
		// IDs are assigned in the domain, so upsert instead of Save.
		if len(ledger.Batches) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
				Create(&ledger.Batches).Error; err != nil {
				return err
			}
		}
		if len(ledger.Alerts) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
				Create(&ledger.Alerts).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SoftDelete soft-deletes a ledger; movements keep referencing it
func (r *GormStockLedgerRepository) SoftDelete(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Delete(&inventory.StockLedger{}, "tenant_id = ? AND id = ?", tenantID, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormStockLedgerRepository implements StockLedgerRepository
var _ inventory.StockLedgerRepository = (*GormStockLedgerRepository)(nil)
