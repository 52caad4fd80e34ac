package partner

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milkvine/backoffice/internal/domain/shared"
)

// TransactionKind represents the kind of dealer account transaction
type TransactionKind string

const (
	// TransactionKindDebit records a purchase: the dealer owes more
	TransactionKindDebit TransactionKind = "debit"
	// TransactionKindCredit records value granted to the dealer: owes less
	TransactionKindCredit TransactionKind = "credit"
	// TransactionKindPayment records money received from the dealer
	TransactionKindPayment TransactionKind = "payment"
	// TransactionKindRefund records money returned to the dealer
	TransactionKindRefund TransactionKind = "refund"
	// TransactionKindAdjustment records a manual correction
	TransactionKindAdjustment TransactionKind = "adjustment"
)

// String returns the string representation of TransactionKind
func (k TransactionKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is valid
func (k TransactionKind) IsValid() bool {
	switch k {
	case TransactionKindDebit, TransactionKindCredit, TransactionKindPayment,
		TransactionKindRefund, TransactionKindAdjustment:
		return true
	}
	return false
}

// IncreasesBalance returns true if the kind moves the balance toward the
// dealer owing more. Adjustments carry their own direction.
func (k TransactionKind) IncreasesBalance() bool {
	return k == TransactionKindDebit
}

// AccountTransaction is an immutable entry in a dealer account's ledger.
// BalanceAfter snapshots the running balance immediately after the entry was
// appended; replaying all entries from the opening balance must reproduce the
// account's current balance exactly.
type AccountTransaction struct {
	shared.BaseEntity
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_account_tx_account_time,priority:1"`
	DealerID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Kind          TransactionKind `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null"` // always non-negative
	SignedAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null"` // applied balance delta
	BalanceBefore decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Description   string          `gorm:"type:varchar(255)"`
	ReferenceKind string          `gorm:"type:varchar(50);index:idx_account_tx_ref"`
	ReferenceID   string          `gorm:"type:varchar(100);index:idx_account_tx_ref"`
	ActorID       uuid.UUID       `gorm:"type:uuid;not null"`
	OccurredAt    time.Time       `gorm:"type:timestamptz;not null;index:idx_account_tx_account_time,priority:2"`
}

// TableName returns the table name for GORM
func (AccountTransaction) TableName() string {
	return "dealer_account_transactions"
}

// Reference returns the source document reference
func (t *AccountTransaction) Reference() shared.Reference {
	return shared.Reference{Kind: t.ReferenceKind, ID: t.ReferenceID}
}
