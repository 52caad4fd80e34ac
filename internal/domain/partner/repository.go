package partner

import (
	"context"

	"github.com/google/uuid"
)

// DealerAccountRepository defines persistence for the DealerAccount aggregate.
// Saves are version-checked so concurrent settlements on the same account
// serialize and balanceAfter snapshots stay a valid replay log.
type DealerAccountRepository interface {
	// FindByID finds an account by ID within a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*DealerAccount, error)

	// FindByDealer finds the account for a dealer.
	// Returns shared.ErrNotFound when none exists.
	FindByDealer(ctx context.Context, tenantID, dealerID uuid.UUID) (*DealerAccount, error)

	// Save creates or updates an account and appends its new transactions
	Save(ctx context.Context, account *DealerAccount) error

	// SaveWithLock saves only if the persisted version matches; returns
	// shared.ErrConcurrencyConflict otherwise.
	SaveWithLock(ctx context.Context, account *DealerAccount) error
}

// WarehouseRepository defines the lookups the settlement core needs for
// warehouse resolution
type WarehouseRepository interface {
	// FindByID finds a warehouse by ID within a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Warehouse, error)

	// FindByCodeOrName resolves a free-text query against code and name.
	// Returns shared.ErrNotFound when nothing matches.
	FindByCodeOrName(ctx context.Context, tenantID uuid.UUID, query string) (*Warehouse, error)

	// FindDefault returns the tenant's default warehouse.
	// Returns shared.ErrNotFound when none is marked default.
	FindDefault(ctx context.Context, tenantID uuid.UUID) (*Warehouse, error)

	// Save creates or updates a warehouse
	Save(ctx context.Context, warehouse *Warehouse) error
}
