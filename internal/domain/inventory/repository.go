package inventory

import (
	"context"

	"github.com/google/uuid"
)

// StockLedgerRepository defines persistence for the StockLedger aggregate.
// Implementations must enforce tenant+product+warehouse uniqueness and provide
// version-checked saves so concurrent mutations cannot jointly overdraw stock.
type StockLedgerRepository interface {
	// FindByID finds a ledger by ID within a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*StockLedger, error)

	// FindByProductAndWarehouse finds the ledger for a product-warehouse pair.
	// Returns shared.ErrNotFound when none exists.
	FindByProductAndWarehouse(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (*StockLedger, error)

	// FindByWarehouse finds all ledgers in a warehouse
	FindByWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID) ([]StockLedger, error)

	// FindBelowMinimum finds ledgers whose sellable stock is at or below minimum
	FindBelowMinimum(ctx context.Context, tenantID uuid.UUID) ([]StockLedger, error)

	// GetOrCreate returns the existing ledger or creates an empty one
	GetOrCreate(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (*StockLedger, error)

	// Save creates or updates a ledger (with batches and alerts)
	Save(ctx context.Context, ledger *StockLedger) error

	// SaveWithLock saves only if the persisted version matches; returns
	// shared.ErrConcurrencyConflict otherwise.
	SaveWithLock(ctx context.Context, ledger *StockLedger) error

	// SoftDelete soft-deletes a ledger; movements keep referencing it
	SoftDelete(ctx context.Context, tenantID, id uuid.UUID) error
}

// StockMovementRepository defines append-only persistence for movements
type StockMovementRepository interface {
	// Create appends a movement (no update or delete exists)
	Create(ctx context.Context, movement *StockMovement) error

	// CreateBatch appends multiple movements
	CreateBatch(ctx context.Context, movements []StockMovement) error

	// FindByLedger finds movements for a ledger, oldest first
	FindByLedger(ctx context.Context, ledgerID uuid.UUID) ([]StockMovement, error)

	// FindByReference finds movements by source document
	FindByReference(ctx context.Context, tenantID uuid.UUID, referenceKind, referenceID string) ([]StockMovement, error)
}
