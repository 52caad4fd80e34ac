package partner

import (
	"strings"

	"github.com/google/uuid"

	"github.com/milkvine/backoffice/internal/domain/shared"
)

// WarehouseStatus represents the status of a warehouse
type WarehouseStatus string

const (
	WarehouseStatusActive   WarehouseStatus = "active"
	WarehouseStatusInactive WarehouseStatus = "inactive"
)

// Warehouse is the minimal warehouse aggregate the settlement core needs:
// identity, resolution by code or name, and the tenant default. Full
// warehouse management lives in the partner resource layer.
type Warehouse struct {
	shared.TenantAggregateRoot
	Code      string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_warehouse_tenant_code,priority:2"`
	Name      string          `gorm:"type:varchar(200);not null"`
	Status    WarehouseStatus `gorm:"type:varchar(20);not null;default:'active'"`
	IsDefault bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (Warehouse) TableName() string {
	return "warehouses"
}

// NewWarehouse creates an active warehouse
func NewWarehouse(tenantID uuid.UUID, code, name string) (*Warehouse, error) {
	if code == "" {
		return nil, shared.NewDomainError("INVALID_CODE", "Warehouse code cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Warehouse name cannot be empty")
	}

	return &Warehouse{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Code:                strings.ToUpper(code),
		Name:                name,
		Status:              WarehouseStatusActive,
	}, nil
}

// IsActive returns true if the warehouse accepts stock operations
func (w *Warehouse) IsActive() bool {
	return w.Status == WarehouseStatusActive
}

// Matches reports whether a free-text query identifies this warehouse by
// code or name (case-insensitive)
func (w *Warehouse) Matches(query string) bool {
	q := strings.TrimSpace(query)
	return strings.EqualFold(w.Code, q) || strings.EqualFold(w.Name, q)
}
