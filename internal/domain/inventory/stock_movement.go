package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milkvine/backoffice/internal/domain/shared"
)

// MovementType represents the type of stock movement
type MovementType string

const (
	MovementTypeIn         MovementType = "in"
	MovementTypeOut        MovementType = "out"
	MovementTypeTransfer   MovementType = "transfer"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeDamage     MovementType = "damage"
	MovementTypeExpiry     MovementType = "expiry"
	// Reservation and release movements keep the audit trail complete for
	// holds that do not change the on-hand count.
	MovementTypeReservation MovementType = "reservation"
	MovementTypeRelease     MovementType = "release"
)

// String returns the string representation of MovementType
func (t MovementType) String() string {
	return string(t)
}

// IsValid returns true if the movement type is valid
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypeIn, MovementTypeOut, MovementTypeTransfer, MovementTypeAdjustment,
		MovementTypeDamage, MovementTypeExpiry, MovementTypeReservation, MovementTypeRelease:
		return true
	}
	return false
}

// StockMovement is an immutable record of a ledger mutation. Movements are
// append-only: corrections are made with new movements, never by editing.
// Quantity is signed for adjustments and positive for every other type.
type StockMovement struct {
	shared.BaseEntity
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_mov_tenant_time,priority:1"`
	LedgerID      uuid.UUID       `gorm:"type:uuid;index"` // Nil for release no-ops against a deleted ledger
	WarehouseID   uuid.UUID       `gorm:"type:uuid;index"`
	ProductID     uuid.UUID       `gorm:"type:uuid;index"`
	Type          MovementType    `gorm:"type:varchar(20);not null;index"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(18,4);not null"` // on-hand before
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(18,4);not null"` // on-hand after
	Reason        string          `gorm:"type:varchar(255)"`
	ReferenceKind string          `gorm:"type:varchar(50);index:idx_stock_mov_ref"`
	ReferenceID   string          `gorm:"type:varchar(100);index:idx_stock_mov_ref"`
	ActorID       uuid.UUID       `gorm:"type:uuid;not null"`
	OccurredAt    time.Time       `gorm:"type:timestamptz;not null;index:idx_stock_mov_tenant_time,priority:2"`
}

// TableName returns the table name for GORM
func (StockMovement) TableName() string {
	return "stock_movements"
}

// NewStockMovement creates a movement record
func NewStockMovement(
	tenantID, ledgerID, warehouseID, productID uuid.UUID,
	movType MovementType,
	quantity, balanceBefore, balanceAfter decimal.Decimal,
	reason string,
	ref shared.Reference,
	actor uuid.UUID,
) *StockMovement {
	return &StockMovement{
		BaseEntity:    shared.NewBaseEntity(),
		TenantID:      tenantID,
		LedgerID:      ledgerID,
		WarehouseID:   warehouseID,
		ProductID:     productID,
		Type:          movType,
		Quantity:      quantity,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Reason:        reason,
		ReferenceKind: ref.Kind,
		ReferenceID:   ref.ID,
		ActorID:       actor,
		OccurredAt:    time.Now(),
	}
}

// Reference returns the source document reference
func (m *StockMovement) Reference() shared.Reference {
	return shared.Reference{Kind: m.ReferenceKind, ID: m.ReferenceID}
}
