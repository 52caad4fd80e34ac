package partner

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/milkvine/backoffice/internal/domain/partner"
	"github.com/milkvine/backoffice/internal/domain/shared"
	"github.com/milkvine/backoffice/internal/domain/shared/valueobject"
)

// Statement is the reporting view of a dealer account. Amounts carry a
// currency so downstream consumers do not have to guess.
type Statement struct {
	DealerID         uuid.UUID
	Balance          valueobject.Money
	HeldCredit       valueobject.Money
	CreditLimit      valueobject.Money
	CreditDays       int
	TransactionCount int
	Verified         bool
}

// AccountService manages dealer accounts outside the settlement path:
// opening accounts, booking manual payments and corrections, and verifying
// the transaction history against the stored balance.
type AccountService struct {
	accounts   partner.DealerAccountRepository
	logger     *zap.Logger
	maxRetries int
}

// NewAccountService creates the service
func NewAccountService(accounts partner.DealerAccountRepository, logger *zap.Logger) *AccountService {
	return &AccountService{
		accounts:   accounts,
		logger:     logger,
		maxRetries: 3,
	}
}

// OpenAccount creates the running account for a dealer. An opening credit
// seeds a negative balance (money the dealer can spend), an opening debit a
// positive one (money the dealer owes).
func (s *AccountService) OpenAccount(ctx context.Context, tenantID, dealerID uuid.UUID, openingBalance decimal.Decimal, openingType partner.OpeningBalanceType, creditLimit decimal.Decimal, creditDays int) (*partner.DealerAccount, error) {
	if _, err := s.accounts.FindByDealer(ctx, tenantID, dealerID); err == nil {
		return nil, shared.ErrAlreadyExists
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	account, err := partner.NewDealerAccount(tenantID, dealerID, openingBalance, openingType, creditLimit, creditDays)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("dealer account opened",
		zap.String("dealer_id", dealerID.String()),
		zap.String("opening_balance", openingBalance.String()),
		zap.String("opening_type", string(openingType)),
	)
	return account, nil
}

// RecordPayment books money received from a dealer, lowering the balance
func (s *AccountService) RecordPayment(ctx context.Context, tenantID, dealerID uuid.UUID, amount decimal.Decimal, description string, ref shared.Reference, actor uuid.UUID) error {
	return s.withAccount(ctx, tenantID, dealerID, func(account *partner.DealerAccount) error {
		_, err := account.ApplyTransaction(partner.TransactionKindPayment, amount, description, ref, actor)
		return err
	})
}

// RecordAdjustment books a manual correction in either direction
func (s *AccountService) RecordAdjustment(ctx context.Context, tenantID, dealerID uuid.UUID, amount decimal.Decimal, increase bool, description string, ref shared.Reference, actor uuid.UUID) error {
	return s.withAccount(ctx, tenantID, dealerID, func(account *partner.DealerAccount) error {
		_, err := account.ApplyAdjustment(amount, increase, description, ref, actor)
		return err
	})
}

// HeldCredit returns the credit a dealer currently holds
func (s *AccountService) HeldCredit(ctx context.Context, tenantID, dealerID uuid.UUID) (valueobject.Money, error) {
	account, err := s.accounts.FindByDealer(ctx, tenantID, dealerID)
	if err != nil {
		return valueobject.Zero(), err
	}
	return valueobject.NewMoneyINR(account.HeldCredit()), nil
}

// Statement assembles the reporting view for a dealer account, including
// whether the transaction history still replays to the stored balance.
func (s *AccountService) Statement(ctx context.Context, tenantID, dealerID uuid.UUID) (*Statement, error) {
	account, err := s.accounts.FindByDealer(ctx, tenantID, dealerID)
	if err != nil {
		return nil, err
	}
	return &Statement{
		DealerID:         account.DealerID,
		Balance:          valueobject.NewMoneyINR(account.CurrentBalance),
		HeldCredit:       valueobject.NewMoneyINR(account.HeldCredit()),
		CreditLimit:      valueobject.NewMoneyINR(account.CreditLimit),
		CreditDays:       account.CreditDays,
		TransactionCount: len(account.Transactions),
		Verified:         account.VerifyReplay(),
	}, nil
}

// VerifyAccount replays the transaction history and reports whether it
// reproduces the stored balance. A mismatch means the history was tampered
// with or a write was lost; it is logged at error level.
func (s *AccountService) VerifyAccount(ctx context.Context, tenantID, dealerID uuid.UUID) (bool, error) {
	account, err := s.accounts.FindByDealer(ctx, tenantID, dealerID)
	if err != nil {
		return false, err
	}

	if !account.VerifyReplay() {
		s.logger.Error("dealer account balance does not match transaction history",
			zap.String("dealer_id", dealerID.String()),
			zap.String("stored_balance", account.CurrentBalance.String()),
			zap.String("replayed_balance", account.Replay().String()),
		)
		return false, nil
	}
	return true, nil
}

func (s *AccountService) withAccount(ctx context.Context, tenantID, dealerID uuid.UUID, mutate func(*partner.DealerAccount) error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		account, err := s.accounts.FindByDealer(ctx, tenantID, dealerID)
		if err != nil {
			return err
		}
		if err := mutate(account); err != nil {
			return err
		}
		if err := s.accounts.SaveWithLock(ctx, account); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}
