package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milkvine/backoffice/internal/domain/inventory"
	"github.com/milkvine/backoffice/internal/domain/partner"
	"github.com/milkvine/backoffice/internal/domain/shared"
	"github.com/milkvine/backoffice/internal/infrastructure/config"
)

// newTestDatabase opens an in-memory sqlite database. A single connection
// keeps the in-memory database alive across queries.
func newTestDatabase(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(&config.DatabaseConfig{
		Driver:       "sqlite",
		SQLitePath:   ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func TestGormStockLedgerRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("GetOrCreate creates once and then returns the same ledger", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormStockLedgerRepository(db.DB)
		tenantID, productID, warehouseID := uuid.New(), uuid.New(), uuid.New()

		first, err := repo.GetOrCreate(ctx, tenantID, productID, warehouseID)
		require.NoError(t, err)
		second, err := repo.GetOrCreate(ctx, tenantID, productID, warehouseID)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("SaveWithLock persists a mutation and its batches", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormStockLedgerRepository(db.DB)
		tenantID, productID, warehouseID := uuid.New(), uuid.New(), uuid.New()
		actor := uuid.New()

		ledger, err := repo.GetOrCreate(ctx, tenantID, productID, warehouseID)
		require.NoError(t, err)
		require.NoError(t, ledger.ReceiveStock(qty(100), decimal.NewFromInt(24),
			&inventory.BatchInfo{LotNumber: "LOT-1"}, actor, shared.NewReference("grn", "GRN-1")))
		require.NoError(t, repo.SaveWithLock(ctx, ledger))

		reloaded, err := repo.FindByProductAndWarehouse(ctx, tenantID, productID, warehouseID)
		require.NoError(t, err)
		assert.True(t, reloaded.Stock.Available.Equal(qty(100)))
		assert.Equal(t, ledger.Version, reloaded.Version)
		require.Len(t, reloaded.Batches, 1)
		assert.Equal(t, "LOT-1", reloaded.Batches[0].LotNumber)
	})

	t.Run("a stale copy cannot save", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormStockLedgerRepository(db.DB)
		tenantID, productID, warehouseID := uuid.New(), uuid.New(), uuid.New()
		actor := uuid.New()
		ref := shared.NewReference("grn", "GRN-2")

		_, err := repo.GetOrCreate(ctx, tenantID, productID, warehouseID)
		require.NoError(t, err)

		winner, err := repo.FindByProductAndWarehouse(ctx, tenantID, productID, warehouseID)
		require.NoError(t, err)
		loser, err := repo.FindByProductAndWarehouse(ctx, tenantID, productID, warehouseID)
		require.NoError(t, err)

		require.NoError(t, winner.ReceiveStock(qty(100), decimal.NewFromInt(24), nil, actor, ref))
		require.NoError(t, repo.SaveWithLock(ctx, winner))

		require.NoError(t, loser.ReceiveStock(qty(50), decimal.NewFromInt(24), nil, actor, ref))
		assert.ErrorIs(t, repo.SaveWithLock(ctx, loser), shared.ErrConcurrencyConflict)
	})

	t.Run("FindBelowMinimum reports depleted ledgers only", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormStockLedgerRepository(db.DB)
		tenantID, warehouseID := uuid.New(), uuid.New()
		actor := uuid.New()
		ref := shared.NewReference("grn", "GRN-3")

		// one domain operation per save cycle, as the application services do
		receive := func(productID uuid.UUID, quantity decimal.Decimal) *inventory.StockLedger {
			ledger, err := repo.GetOrCreate(ctx, tenantID, productID, warehouseID)
			require.NoError(t, err)
			require.NoError(t, ledger.ReceiveStock(quantity, decimal.NewFromInt(24), nil, actor, ref))
			require.NoError(t, repo.SaveWithLock(ctx, ledger))
			require.NoError(t, ledger.SetThresholds(inventory.StockThresholds{Minimum: qty(20)}))
			require.NoError(t, repo.SaveWithLock(ctx, ledger))
			return ledger
		}

		low := receive(uuid.New(), qty(10))
		receive(uuid.New(), qty(100))

		below, err := repo.FindBelowMinimum(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, below, 1)
		assert.Equal(t, low.ID, below[0].ID)
	})

	t.Run("soft delete hides the ledger from lookups", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormStockLedgerRepository(db.DB)
		tenantID, productID, warehouseID := uuid.New(), uuid.New(), uuid.New()

		ledger, err := repo.GetOrCreate(ctx, tenantID, productID, warehouseID)
		require.NoError(t, err)

		require.NoError(t, repo.SoftDelete(ctx, tenantID, ledger.ID))

		_, err = repo.FindByID(ctx, tenantID, ledger.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.ErrorIs(t, repo.SoftDelete(ctx, tenantID, ledger.ID), shared.ErrNotFound)
	})

	t.Run("tenants do not see each other", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormStockLedgerRepository(db.DB)
		productID, warehouseID := uuid.New(), uuid.New()

		ledger, err := repo.GetOrCreate(ctx, uuid.New(), productID, warehouseID)
		require.NoError(t, err)

		_, err = repo.FindByID(ctx, uuid.New(), ledger.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormStockMovementRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("batch create and ordered history", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormStockMovementRepository(db.DB)
		tenantID, ledgerID, warehouseID, productID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
		actor := uuid.New()
		ref := shared.NewReference("order", "SO-1")

		first := inventory.NewStockMovement(tenantID, ledgerID, warehouseID, productID,
			inventory.MovementTypeIn, qty(100), qty(0), qty(100), "goods receipt", ref, actor)
		second := inventory.NewStockMovement(tenantID, ledgerID, warehouseID, productID,
			inventory.MovementTypeReservation, qty(30), qty(100), qty(100), "order hold", ref, actor)
		require.NoError(t, repo.CreateBatch(ctx, []inventory.StockMovement{*first, *second}))

		history, err := repo.FindByLedger(ctx, ledgerID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, inventory.MovementTypeIn, history[0].Type)
		assert.Equal(t, inventory.MovementTypeReservation, history[1].Type)
	})

	t.Run("movements are found by source document", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormStockMovementRepository(db.DB)
		tenantID, ledgerID, warehouseID, productID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
		actor := uuid.New()

		movement := inventory.NewStockMovement(tenantID, ledgerID, warehouseID, productID,
			inventory.MovementTypeReservation, qty(30), qty(100), qty(100), "order hold",
			shared.NewReference("order", "SO-2"), actor)
		require.NoError(t, repo.Create(ctx, movement))

		found, err := repo.FindByReference(ctx, tenantID, "order", "SO-2")
		require.NoError(t, err)
		require.Len(t, found, 1)

		none, err := repo.FindByReference(ctx, tenantID, "order", "SO-404")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestGormDealerAccountRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("save and reload with transaction history", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormDealerAccountRepository(db.DB)
		tenantID, dealerID := uuid.New(), uuid.New()
		actor := uuid.New()

		account, err := partner.NewDealerAccount(tenantID, dealerID,
			qty(1000), partner.OpeningBalanceCredit, qty(5000), 30)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, account))

		_, err = account.ApplyTransaction(partner.TransactionKindDebit, qty(870),
			"Order SO-3", shared.NewReference("order", "SO-3"), actor)
		require.NoError(t, err)
		require.NoError(t, repo.SaveWithLock(ctx, account))

		reloaded, err := repo.FindByDealer(ctx, tenantID, dealerID)
		require.NoError(t, err)
		assert.True(t, reloaded.CurrentBalance.Equal(qty(-130)))
		require.Len(t, reloaded.Transactions, 1)
		assert.True(t, reloaded.Transactions[0].BalanceAfter.Equal(qty(-130)))
		assert.True(t, reloaded.VerifyReplay())
	})

	t.Run("a stale copy cannot save", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormDealerAccountRepository(db.DB)
		tenantID, dealerID := uuid.New(), uuid.New()
		actor := uuid.New()
		ref := shared.NewReference("order", "SO-4")

		account, err := partner.NewDealerAccount(tenantID, dealerID,
			qty(1000), partner.OpeningBalanceCredit, decimal.Zero, 0)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, account))

		winner, err := repo.FindByDealer(ctx, tenantID, dealerID)
		require.NoError(t, err)
		loser, err := repo.FindByDealer(ctx, tenantID, dealerID)
		require.NoError(t, err)

		_, err = winner.ApplyTransaction(partner.TransactionKindDebit, qty(100), "Order SO-4", ref, actor)
		require.NoError(t, err)
		require.NoError(t, repo.SaveWithLock(ctx, winner))

		_, err = loser.ApplyTransaction(partner.TransactionKindDebit, qty(200), "Order SO-4", ref, actor)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.SaveWithLock(ctx, loser), shared.ErrConcurrencyConflict)
	})
}

func TestGormWarehouseRepository(t *testing.T) {
	ctx := context.Background()

	db := newTestDatabase(t)
	repo := NewGormWarehouseRepository(db.DB)
	tenantID := uuid.New()

	warehouse, err := partner.NewWarehouse(tenantID, "main", "Main Depot")
	require.NoError(t, err)
	warehouse.IsDefault = true
	require.NoError(t, repo.Save(ctx, warehouse))

	t.Run("by id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, tenantID, warehouse.ID)
		require.NoError(t, err)
		assert.Equal(t, "MAIN", found.Code)
	})

	t.Run("code lookup is case-insensitive", func(t *testing.T) {
		found, err := repo.FindByCodeOrName(ctx, tenantID, "main")
		require.NoError(t, err)
		assert.Equal(t, warehouse.ID, found.ID)
	})

	t.Run("name lookup is case-insensitive", func(t *testing.T) {
		found, err := repo.FindByCodeOrName(ctx, tenantID, "main depot")
		require.NoError(t, err)
		assert.Equal(t, warehouse.ID, found.ID)
	})

	t.Run("default resolution", func(t *testing.T) {
		found, err := repo.FindDefault(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, warehouse.ID, found.ID)
	})

	t.Run("unknown query", func(t *testing.T) {
		_, err := repo.FindByCodeOrName(ctx, tenantID, "nowhere")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
