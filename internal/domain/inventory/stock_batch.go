package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milkvine/backoffice/internal/domain/shared"
)

// BatchStatus represents the lifecycle state of a stock batch
type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "active"
	BatchStatusExpired  BatchStatus = "expired"
	BatchStatusDamaged  BatchStatus = "damaged"
	BatchStatusRecalled BatchStatus = "recalled"
)

// IsValid returns true if the batch status is valid
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusActive, BatchStatusExpired, BatchStatusDamaged, BatchStatusRecalled:
		return true
	}
	return false
}

// StockBatch represents a received lot with manufacture/expiry dates.
// Child entity of StockLedger; mutations go through the aggregate root.
type StockBatch struct {
	shared.BaseEntity
	LedgerID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	LotNumber       string          `gorm:"type:varchar(100);not null"`
	ManufactureDate *time.Time      `gorm:"type:timestamptz"`
	ExpiryDate      *time.Time      `gorm:"type:timestamptz;index"`
	Quantity        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status          BatchStatus     `gorm:"type:varchar(20);not null;default:'active'"`
}

// NewStockBatch creates an active batch for a ledger
func NewStockBatch(ledgerID uuid.UUID, lotNumber string, manufactureDate, expiryDate *time.Time, quantity decimal.Decimal) *StockBatch {
	return &StockBatch{
		BaseEntity:      shared.NewBaseEntity(),
		LedgerID:        ledgerID,
		LotNumber:       lotNumber,
		ManufactureDate: manufactureDate,
		ExpiryDate:      expiryDate,
		Quantity:        quantity,
		Status:          BatchStatusActive,
	}
}

// IsExpiredAt returns true if the batch expiry date has passed at the given time
func (b *StockBatch) IsExpiredAt(now time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(now)
}

// ExpiresWithin returns true if the batch will expire within the window
func (b *StockBatch) ExpiresWithin(now time.Time, window time.Duration) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(now.Add(window))
}

// Deduct reduces the batch quantity, returning the amount actually deducted
// (less than requested when the batch runs out)
func (b *StockBatch) Deduct(quantity decimal.Decimal) decimal.Decimal {
	if quantity.GreaterThan(b.Quantity) {
		deducted := b.Quantity
		b.Quantity = decimal.Zero
		b.UpdatedAt = time.Now()
		return deducted
	}
	b.Quantity = b.Quantity.Sub(quantity)
	b.UpdatedAt = time.Now()
	return quantity
}

// MarkExpired transitions the batch to expired
func (b *StockBatch) MarkExpired() {
	b.Status = BatchStatusExpired
	b.UpdatedAt = time.Now()
}

// MarkDamaged transitions the batch to damaged
func (b *StockBatch) MarkDamaged() {
	b.Status = BatchStatusDamaged
	b.UpdatedAt = time.Now()
}

// MarkRecalled transitions the batch to recalled
func (b *StockBatch) MarkRecalled() {
	b.Status = BatchStatusRecalled
	b.UpdatedAt = time.Now()
}
