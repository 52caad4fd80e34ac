package partner

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milkvine/backoffice/internal/domain/shared"
)

// OpeningBalanceType states how the opening balance seeds the running balance
type OpeningBalanceType string

const (
	// OpeningBalanceCredit seeds a negative balance (dealer holds credit)
	OpeningBalanceCredit OpeningBalanceType = "credit"
	// OpeningBalanceDebit seeds a positive balance (dealer owes)
	OpeningBalanceDebit OpeningBalanceType = "debit"
)

// IsValid returns true if the opening balance type is valid
func (t OpeningBalanceType) IsValid() bool {
	return t == OpeningBalanceCredit || t == OpeningBalanceDebit
}

// DealerAccount tracks one dealer's running balance against the seller.
// Sign convention: negative balance means the dealer holds credit (has
// pre-paid); positive means the dealer owes.
//
// ApplyTransaction and ApplyAdjustment are the only sanctioned mutation paths;
// a direct edit of CurrentBalance bypasses the ledger and breaks the replay
// invariant.
type DealerAccount struct {
	shared.TenantAggregateRoot
	DealerID           uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_dealer_account_key,priority:2"`
	CurrentBalance     decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	OpeningBalance     decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	OpeningBalanceType OpeningBalanceType `gorm:"type:varchar(10);not null;default:'debit'"`
	CreditLimit        decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	CreditDays         int                `gorm:"not null;default:0"`

	Transactions []AccountTransaction `gorm:"foreignKey:AccountID;references:ID"`
}

// TableName returns the table name for GORM
func (DealerAccount) TableName() string {
	return "dealer_accounts"
}

// NewDealerAccount creates an account for a dealer, seeding the running
// balance from the opening balance (credit seeds negative, debit positive).
func NewDealerAccount(tenantID, dealerID uuid.UUID, openingBalance decimal.Decimal, openingType OpeningBalanceType, creditLimit decimal.Decimal, creditDays int) (*DealerAccount, error) {
	if dealerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_DEALER", "Dealer ID cannot be empty")
	}
	if openingBalance.IsNegative() {
		return nil, shared.NewDomainError("INVALID_BALANCE", "Opening balance amount cannot be negative")
	}
	if !openingType.IsValid() {
		return nil, shared.NewDomainError("INVALID_BALANCE_TYPE", "Invalid opening balance type")
	}
	if creditLimit.IsNegative() {
		return nil, shared.NewDomainError("INVALID_CREDIT_LIMIT", "Credit limit cannot be negative")
	}

	current := openingBalance
	if openingType == OpeningBalanceCredit {
		current = openingBalance.Neg()
	}

	return &DealerAccount{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		DealerID:            dealerID,
		CurrentBalance:      current,
		OpeningBalance:      openingBalance,
		OpeningBalanceType:  openingType,
		CreditLimit:         creditLimit,
		CreditDays:          creditDays,
		Transactions:        make([]AccountTransaction, 0),
	}, nil
}

// ApplyTransaction appends a ledger entry and moves the running balance.
// Debit increases the balance by amount; credit, payment and refund decrease
// it. Adjustments must go through ApplyAdjustment since the kind alone cannot
// carry their direction.
func (a *DealerAccount) ApplyTransaction(kind TransactionKind, amount decimal.Decimal, description string, ref shared.Reference, actor uuid.UUID) (*AccountTransaction, error) {
	if actor == uuid.Nil {
		return nil, shared.ErrMissingActor
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_TRANSACTION_KIND", "Invalid account transaction kind")
	}
	if kind == TransactionKindAdjustment {
		return nil, shared.NewDomainError("INVALID_TRANSACTION_KIND", "Adjustments must state a direction, use ApplyAdjustment")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Transaction amount must be positive")
	}

	signed := amount.Neg()
	if kind.IncreasesBalance() {
		signed = amount
	}
	return a.append(kind, amount, signed, description, ref, actor), nil
}

// ApplyAdjustment appends a manual correction with an explicit direction
func (a *DealerAccount) ApplyAdjustment(amount decimal.Decimal, increase bool, description string, ref shared.Reference, actor uuid.UUID) (*AccountTransaction, error) {
	if actor == uuid.Nil {
		return nil, shared.ErrMissingActor
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Adjustment amount must be positive")
	}

	signed := amount.Neg()
	if increase {
		signed = amount
	}
	return a.append(TransactionKindAdjustment, amount, signed, description, ref, actor), nil
}

func (a *DealerAccount) append(kind TransactionKind, amount, signed decimal.Decimal, description string, ref shared.Reference, actor uuid.UUID) *AccountTransaction {
	before := a.CurrentBalance
	a.CurrentBalance = a.CurrentBalance.Add(signed)
	a.UpdatedAt = time.Now()
	a.IncrementVersion()

	tx := AccountTransaction{
		BaseEntity:    shared.NewBaseEntity(),
		TenantID:      a.TenantID,
		AccountID:     a.ID,
		DealerID:      a.DealerID,
		Kind:          kind,
		Amount:        amount,
		SignedAmount:  signed,
		BalanceBefore: before,
		BalanceAfter:  a.CurrentBalance,
		Description:   description,
		ReferenceKind: ref.Kind,
		ReferenceID:   ref.ID,
		ActorID:       actor,
		OccurredAt:    time.Now(),
	}
	a.Transactions = append(a.Transactions, tx)
	return &a.Transactions[len(a.Transactions)-1]
}

// CanAutoSettle reports whether the dealer's held credit covers the order
// total. Read-only: no side effects.
func (a *DealerAccount) CanAutoSettle(total decimal.Decimal) bool {
	return a.CurrentBalance.IsNegative() && a.CurrentBalance.Abs().GreaterThanOrEqual(total)
}

// HeldCredit returns the credit the dealer currently holds (zero when the
// dealer owes)
func (a *DealerAccount) HeldCredit() decimal.Decimal {
	if a.CurrentBalance.IsNegative() {
		return a.CurrentBalance.Abs()
	}
	return decimal.Zero
}

// WouldExceedCreditLimit reports whether adding the given debit would push
// the dealer past its credit limit. Always false when no limit is set.
func (a *DealerAccount) WouldExceedCreditLimit(debit decimal.Decimal) bool {
	if !a.CreditLimit.IsPositive() {
		return false
	}
	return a.CurrentBalance.Add(debit).GreaterThan(a.CreditLimit)
}

// SeededBalance returns the balance the opening balance seeds
func (a *DealerAccount) SeededBalance() decimal.Decimal {
	if a.OpeningBalanceType == OpeningBalanceCredit {
		return a.OpeningBalance.Neg()
	}
	return a.OpeningBalance
}

// Replay folds the transaction log over the opening balance. The result must
// equal CurrentBalance; a mismatch means the ledger was bypassed.
func (a *DealerAccount) Replay() decimal.Decimal {
	balance := a.SeededBalance()
	for _, tx := range a.Transactions {
		balance = balance.Add(tx.SignedAmount)
	}
	return balance
}

// VerifyReplay returns true when replaying the log reproduces the balance
func (a *DealerAccount) VerifyReplay() bool {
	return a.Replay().Equal(a.CurrentBalance)
}
