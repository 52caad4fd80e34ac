package inventory

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InsufficientStockError is returned when a reservation or commit cannot be
// covered by the sellable pool. It is a business error: the caller aborts the
// whole order instead of retrying.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Requested   decimal.Decimal
	Sellable    decimal.Decimal
}

// Error implements the error interface
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %s, sellable %s (short %s)",
		e.ProductID, e.Requested, e.Sellable, e.Shortfall())
}

// Shortfall returns how much the request exceeds the sellable pool
func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Sellable)
}

// LedgerNotFoundError is returned when no ledger exists for a product at a
// warehouse. Fatal on reserve/commit; tolerated as a no-op on release.
type LedgerNotFoundError struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
}

// Error implements the error interface
func (e *LedgerNotFoundError) Error() string {
	return fmt.Sprintf("no stock ledger for product %s at warehouse %s", e.ProductID, e.WarehouseID)
}
