package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/milkvine/backoffice/internal/domain/partner"
	"github.com/milkvine/backoffice/internal/domain/shared"
)

// GormDealerAccountRepository implements DealerAccountRepository using GORM
type GormDealerAccountRepository struct {
	db *gorm.DB
}

// NewGormDealerAccountRepository creates a new GormDealerAccountRepository
func NewGormDealerAccountRepository(db *gorm.DB) *GormDealerAccountRepository {
	return &GormDealerAccountRepository{db: db}
}

// FindByID finds an account by ID within a tenant, transactions included
func (r *GormDealerAccountRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*partner.DealerAccount, error) {
	var account partner.DealerAccount
	if err := r.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("occurred_at ASC, created_at ASC")
		}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindByDealer finds the account for a dealer
func (r *GormDealerAccountRepository) FindByDealer(ctx context.Context, tenantID, dealerID uuid.UUID) (*partner.DealerAccount, error) {
	var account partner.DealerAccount
	if err := r.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("occurred_at ASC, created_at ASC")
		}).
		Where("tenant_id = ? AND dealer_id = ?", tenantID, dealerID).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Save creates or updates an account together with its transactions
func (r *GormDealerAccountRepository) Save(ctx context.Context, account *partner.DealerAccount) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(account).Error
}

// SaveWithLock saves with optimistic locking (checks version). New
// transactions are inserted in the same database transaction so balance and
// history never diverge; existing rows are left untouched. The aggregate bumps
// its version once per operation, so callers save after every operation.
func (r *GormDealerAccountRepository) SaveWithLock(ctx context.Context, account *partner.DealerAccount) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(account).
			Where("id = ? AND version = ?", account.ID, account.Version-1).
			Updates(map[string]interface{}{
				"current_balance": account.CurrentBalance,
				"credit_limit":    account.CreditLimit,
				"credit_days":     account.CreditDays,
				"version":         account.Version,
				"updated_at":      account.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		if len(account.Transactions) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&account.Transactions).Error
	})
}

// Ensure GormDealerAccountRepository implements DealerAccountRepository
var _ partner.DealerAccountRepository = (*GormDealerAccountRepository)(nil)
