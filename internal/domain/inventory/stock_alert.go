package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/milkvine/backoffice/internal/domain/shared"
)

// AlertType represents a derived stock alert condition
type AlertType string

const (
	AlertTypeLowStock     AlertType = "low-stock"
	AlertTypeOutOfStock   AlertType = "out-of-stock"
	AlertTypeExpiringSoon AlertType = "expiring-soon"
	AlertTypeExpired      AlertType = "expired"
	AlertTypeDamaged      AlertType = "damaged"
	AlertTypeOverstock    AlertType = "overstock"
)

// AlertSeverity grades an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// StockAlert is a derived alert on a ledger. Each alert runs a small state
// machine: active -> acknowledged (closed) or active -> resolved (condition
// cleared). At most one alert per type is active at a time.
type StockAlert struct {
	shared.BaseEntity
	LedgerID       uuid.UUID     `gorm:"type:uuid;not null;index"`
	Type           AlertType     `gorm:"type:varchar(20);not null;index"`
	Severity       AlertSeverity `gorm:"type:varchar(10);not null"`
	Message        string        `gorm:"type:varchar(255)"`
	Active         bool          `gorm:"not null;default:true"`
	AcknowledgedBy *uuid.UUID    `gorm:"type:uuid"`
	AcknowledgedAt *time.Time    `gorm:"type:timestamptz"`
	ResolvedAt     *time.Time    `gorm:"type:timestamptz"`
}

// TableName returns the table name for GORM
func (StockAlert) TableName() string {
	return "stock_alerts"
}

// NewStockAlert creates an active alert
func NewStockAlert(ledgerID uuid.UUID, alertType AlertType, severity AlertSeverity, message string) *StockAlert {
	return &StockAlert{
		BaseEntity: shared.NewBaseEntity(),
		LedgerID:   ledgerID,
		Type:       alertType,
		Severity:   severity,
		Message:    message,
		Active:     true,
	}
}

// Acknowledge closes the alert on behalf of an actor. A repeat condition may
// then raise a fresh alert of the same type.
func (a *StockAlert) Acknowledge(actor uuid.UUID) error {
	if !a.Active {
		return shared.NewDomainError("INVALID_STATE", "Alert is not active")
	}
	now := time.Now()
	a.Active = false
	a.AcknowledgedBy = &actor
	a.AcknowledgedAt = &now
	a.UpdatedAt = now
	return nil
}

// Resolve closes the alert because its condition no longer holds
func (a *StockAlert) Resolve() {
	now := time.Now()
	a.Active = false
	a.ResolvedAt = &now
	a.UpdatedAt = now
}

// IsAcknowledged returns true if the alert was closed by an actor
func (a *StockAlert) IsAcknowledged() bool {
	return a.AcknowledgedAt != nil
}
