package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/milkvine/backoffice/internal/domain/inventory"
	"github.com/milkvine/backoffice/internal/domain/partner"
	"github.com/milkvine/backoffice/internal/domain/shared"
)

// fakeLedgerRepo keeps ledgers in memory keyed by product+warehouse and can
// simulate version conflicts.
type fakeLedgerRepo struct {
	ledgers       map[string]*inventory.StockLedger
	conflictsLeft int
	saveCalls     int
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{ledgers: make(map[string]*inventory.StockLedger)}
}

func ledgerKey(tenantID, productID, warehouseID uuid.UUID) string {
	return tenantID.String() + "/" + productID.String() + "/" + warehouseID.String()
}

func (r *fakeLedgerRepo) add(ledger *inventory.StockLedger) {
	r.ledgers[ledgerKey(ledger.TenantID, ledger.ProductID, ledger.WarehouseID)] = ledger
}

func (r *fakeLedgerRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*inventory.StockLedger, error) {
	for _, l := range r.ledgers {
		if l.TenantID == tenantID && l.ID == id {
			return l, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeLedgerRepo) FindByProductAndWarehouse(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (*inventory.StockLedger, error) {
	if l, ok := r.ledgers[ledgerKey(tenantID, productID, warehouseID)]; ok {
		return l, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeLedgerRepo) FindByWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID) ([]inventory.StockLedger, error) {
	var out []inventory.StockLedger
	for _, l := range r.ledgers {
		if l.TenantID == tenantID && l.WarehouseID == warehouseID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) FindBelowMinimum(ctx context.Context, tenantID uuid.UUID) ([]inventory.StockLedger, error) {
	var out []inventory.StockLedger
	for _, l := range r.ledgers {
		if l.TenantID == tenantID && l.Thresholds.Minimum.IsPositive() && l.Sellable().LessThanOrEqual(l.Thresholds.Minimum) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) GetOrCreate(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (*inventory.StockLedger, error) {
	if l, ok := r.ledgers[ledgerKey(tenantID, productID, warehouseID)]; ok {
		return l, nil
	}
	ledger, err := inventory.NewStockLedger(tenantID, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	r.add(ledger)
	return ledger, nil
}

func (r *fakeLedgerRepo) Save(ctx context.Context, ledger *inventory.StockLedger) error {
	r.add(ledger)
	return nil
}

func (r *fakeLedgerRepo) SaveWithLock(ctx context.Context, ledger *inventory.StockLedger) error {
	r.saveCalls++
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return shared.ErrConcurrencyConflict
	}
	r.add(ledger)
	return nil
}

func (r *fakeLedgerRepo) SoftDelete(ctx context.Context, tenantID, id uuid.UUID) error {
	for key, l := range r.ledgers {
		if l.TenantID == tenantID && l.ID == id {
			delete(r.ledgers, key)
			return nil
		}
	}
	return shared.ErrNotFound
}

type fakeMovementRepo struct {
	movements []inventory.StockMovement
}

func (r *fakeMovementRepo) Create(ctx context.Context, movement *inventory.StockMovement) error {
	r.movements = append(r.movements, *movement)
	return nil
}

func (r *fakeMovementRepo) CreateBatch(ctx context.Context, movements []inventory.StockMovement) error {
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *fakeMovementRepo) FindByLedger(ctx context.Context, ledgerID uuid.UUID) ([]inventory.StockMovement, error) {
	var out []inventory.StockMovement
	for _, m := range r.movements {
		if m.LedgerID == ledgerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMovementRepo) FindByReference(ctx context.Context, tenantID uuid.UUID, referenceKind, referenceID string) ([]inventory.StockMovement, error) {
	var out []inventory.StockMovement
	for _, m := range r.movements {
		if m.TenantID == tenantID && m.ReferenceKind == referenceKind && m.ReferenceID == referenceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMovementRepo) ofType(movType inventory.MovementType) []inventory.StockMovement {
	var out []inventory.StockMovement
	for _, m := range r.movements {
		if m.Type == movType {
			out = append(out, m)
		}
	}
	return out
}

type fakeWarehouseRepo struct {
	warehouses []*partner.Warehouse
}

func (r *fakeWarehouseRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*partner.Warehouse, error) {
	for _, w := range r.warehouses {
		if w.TenantID == tenantID && w.ID == id {
			return w, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeWarehouseRepo) FindByCodeOrName(ctx context.Context, tenantID uuid.UUID, query string) (*partner.Warehouse, error) {
	for _, w := range r.warehouses {
		if w.TenantID == tenantID && w.Matches(query) {
			return w, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeWarehouseRepo) FindDefault(ctx context.Context, tenantID uuid.UUID) (*partner.Warehouse, error) {
	for _, w := range r.warehouses {
		if w.TenantID == tenantID && w.IsDefault {
			return w, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeWarehouseRepo) Save(ctx context.Context, warehouse *partner.Warehouse) error {
	r.warehouses = append(r.warehouses, warehouse)
	return nil
}

type reservationFixture struct {
	service     *StockReservationService
	ledgers     *fakeLedgerRepo
	movements   *fakeMovementRepo
	warehouses  *fakeWarehouseRepo
	tenantID    uuid.UUID
	warehouseID uuid.UUID
	actor       uuid.UUID
}

func newReservationFixture(t *testing.T) *reservationFixture {
	t.Helper()

	tenantID := uuid.New()
	warehouse, err := partner.NewWarehouse(tenantID, "MAIN", "Main Depot")
	require.NoError(t, err)
	warehouse.IsDefault = true

	ledgers := newFakeLedgerRepo()
	movements := &fakeMovementRepo{}
	warehouseRepo := &fakeWarehouseRepo{warehouses: []*partner.Warehouse{warehouse}}

	return &reservationFixture{
		service:     NewStockReservationService(ledgers, movements, warehouseRepo, zap.NewNop()),
		ledgers:     ledgers,
		movements:   movements,
		warehouses:  warehouseRepo,
		tenantID:    tenantID,
		warehouseID: warehouse.ID,
		actor:       uuid.New(),
	}
}

func (f *reservationFixture) stock(t *testing.T, available int64) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	ledger, err := inventory.NewStockLedger(f.tenantID, productID, f.warehouseID)
	require.NoError(t, err)
	ledger.Stock.Available = decimal.NewFromInt(available)
	f.ledgers.add(ledger)
	return productID
}

func (f *reservationFixture) ledger(t *testing.T, productID uuid.UUID) *inventory.StockLedger {
	t.Helper()
	ledger, err := f.ledgers.FindByProductAndWarehouse(context.Background(), f.tenantID, productID, f.warehouseID)
	require.NoError(t, err)
	return ledger
}

func (f *reservationFixture) selector() WarehouseSelector {
	return WarehouseSelector{ID: &f.warehouseID}
}

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func TestResolveWarehouse(t *testing.T) {
	ctx := context.Background()

	t.Run("by explicit id", func(t *testing.T) {
		f := newReservationFixture(t)

		got, err := f.service.ResolveWarehouse(ctx, f.tenantID, WarehouseSelector{ID: &f.warehouseID})

		require.NoError(t, err)
		assert.Equal(t, f.warehouseID, got)
	})

	t.Run("by free-text code", func(t *testing.T) {
		f := newReservationFixture(t)

		got, err := f.service.ResolveWarehouse(ctx, f.tenantID, WarehouseSelector{Ref: "main"})

		require.NoError(t, err)
		assert.Equal(t, f.warehouseID, got)
	})

	t.Run("by free-text name", func(t *testing.T) {
		f := newReservationFixture(t)

		got, err := f.service.ResolveWarehouse(ctx, f.tenantID, WarehouseSelector{Ref: "Main Depot"})

		require.NoError(t, err)
		assert.Equal(t, f.warehouseID, got)
	})

	t.Run("falls back to the tenant default", func(t *testing.T) {
		f := newReservationFixture(t)

		got, err := f.service.ResolveWarehouse(ctx, f.tenantID, WarehouseSelector{})

		require.NoError(t, err)
		assert.Equal(t, f.warehouseID, got)
	})

	t.Run("unknown reference is fatal", func(t *testing.T) {
		f := newReservationFixture(t)

		_, err := f.service.ResolveWarehouse(ctx, f.tenantID, WarehouseSelector{Ref: "Nowhere"})

		var resolutionErr *WarehouseResolutionError
		assert.ErrorAs(t, err, &resolutionErr)
	})

	t.Run("inactive warehouse does not resolve", func(t *testing.T) {
		f := newReservationFixture(t)
		f.warehouses.warehouses[0].Status = partner.WarehouseStatusInactive

		_, err := f.service.ResolveWarehouse(ctx, f.tenantID, WarehouseSelector{ID: &f.warehouseID})

		assert.Error(t, err)
	})
}

func TestReserveAll(t *testing.T) {
	ctx := context.Background()
	ref := shared.NewReference("order", uuid.New().String())

	t.Run("reserves every line", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 100)
		productB := f.stock(t, 50)

		err := f.service.ReserveAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
			{ProductID: productB, Quantity: qty(20)},
		}, ref, f.actor)

		require.NoError(t, err)
		assert.True(t, f.ledger(t, productA).Stock.Reserved.Equal(qty(30)))
		assert.True(t, f.ledger(t, productB).Stock.Reserved.Equal(qty(20)))
		assert.Len(t, f.movements.ofType(inventory.MovementTypeReservation), 2)
	})

	t.Run("failure on a later line rolls back earlier reservations", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 100)
		productB := f.stock(t, 5) // cannot cover

		err := f.service.ReserveAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
			{ProductID: productB, Quantity: qty(20)},
		}, ref, f.actor)

		var insufficientErr *inventory.InsufficientStockError
		require.ErrorAs(t, err, &insufficientErr)
		assert.True(t, f.ledger(t, productA).Stock.Reserved.IsZero())
		assert.True(t, f.ledger(t, productB).Stock.Reserved.IsZero())
	})

	t.Run("missing ledger is fatal for the batch", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 100)
		unknown := uuid.New()

		err := f.service.ReserveAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
			{ProductID: unknown, Quantity: qty(1)},
		}, ref, f.actor)

		var notFoundErr *inventory.LedgerNotFoundError
		require.ErrorAs(t, err, &notFoundErr)
		assert.True(t, f.ledger(t, productA).Stock.Reserved.IsZero())
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		f := newReservationFixture(t)
		assert.Error(t, f.service.ReserveAll(ctx, f.tenantID, f.selector(), nil, ref, f.actor))
	})

	t.Run("retries through a version conflict", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 100)
		f.ledgers.conflictsLeft = 2

		err := f.service.ReserveAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(10)},
		}, ref, f.actor)

		require.NoError(t, err)
		assert.Equal(t, 3, f.ledgers.saveCalls)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 100)
		f.ledgers.conflictsLeft = 10

		err := f.service.ReserveAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(10)},
		}, ref, f.actor)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})
}

func TestReleaseAll(t *testing.T) {
	ctx := context.Background()
	ref := shared.NewReference("order", uuid.New().String())

	t.Run("returns reservations to the sellable pool", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 100)
		require.NoError(t, f.service.ReserveAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
		}, ref, f.actor))

		err := f.service.ReleaseAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
		}, ref, f.actor)

		require.NoError(t, err)
		assert.True(t, f.ledger(t, productA).Stock.Reserved.IsZero())
	})

	t.Run("missing ledger is a recorded no-op", func(t *testing.T) {
		f := newReservationFixture(t)
		unknown := uuid.New()

		err := f.service.ReleaseAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: unknown, Quantity: qty(5)},
		}, ref, f.actor)

		require.NoError(t, err)
		releases := f.movements.ofType(inventory.MovementTypeRelease)
		require.Len(t, releases, 1)
		assert.Equal(t, uuid.Nil, releases[0].LedgerID)
		assert.Equal(t, unknown, releases[0].ProductID)
	})

	t.Run("continues past a failing line", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 100)
		require.NoError(t, f.service.ReserveAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
		}, ref, f.actor))

		err := f.service.ReleaseAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: uuid.New(), Quantity: qty(5)},
			{ProductID: productA, Quantity: qty(30)},
		}, ref, f.actor)

		require.NoError(t, err)
		assert.True(t, f.ledger(t, productA).Stock.Reserved.IsZero())
	})
}

func TestCommitAll(t *testing.T) {
	ctx := context.Background()
	ref := shared.NewReference("order", uuid.New().String())

	t.Run("converts reservations into consumption", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 100)
		require.NoError(t, f.service.ReserveAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
		}, ref, f.actor))

		err := f.service.CommitAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
		}, ref, f.actor)

		require.NoError(t, err)
		ledger := f.ledger(t, productA)
		assert.True(t, ledger.OnHand().Equal(qty(70)))
		assert.True(t, ledger.Stock.Reserved.IsZero())
	})

	t.Run("missing ledger does not abort the remaining lines", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 100)
		require.NoError(t, f.service.ReserveAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
		}, ref, f.actor))

		err := f.service.CommitAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: uuid.New(), Quantity: qty(5)},
			{ProductID: productA, Quantity: qty(30)},
		}, ref, f.actor)

		// the good line committed, the bad one is reported
		require.Error(t, err)
		assert.True(t, f.ledger(t, productA).OnHand().Equal(qty(70)))
	})
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("reports sufficiency and shortfall", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 100)
		productB := f.stock(t, 5)

		reports, err := f.service.CheckAvailability(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
			{ProductID: productB, Quantity: qty(20)},
		}, nil)

		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.True(t, reports[0].Sufficient)
		assert.False(t, reports[1].Sufficient)
		assert.True(t, reports[1].Shortfall.Equal(qty(15)))
	})

	t.Run("missing ledger reports the full quantity short", func(t *testing.T) {
		f := newReservationFixture(t)

		reports, err := f.service.CheckAvailability(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: uuid.New(), Quantity: qty(12)},
		}, nil)

		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.False(t, reports[0].Sufficient)
		assert.True(t, reports[0].Shortfall.Equal(qty(12)))
	})

	t.Run("excluding adds held quantities back", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 30)
		ref := shared.NewReference("order", uuid.New().String())
		require.NoError(t, f.service.ReserveAll(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
		}, ref, f.actor))

		// the order grows from 30 to 30 again: its own hold covers it
		reports, err := f.service.CheckAvailability(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(30)},
		}, map[uuid.UUID]decimal.Decimal{productA: qty(30)})

		require.NoError(t, err)
		assert.True(t, reports[0].Sufficient)
	})

	t.Run("flags ledgers at the reorder point", func(t *testing.T) {
		f := newReservationFixture(t)
		productA := f.stock(t, 10)
		ledger := f.ledger(t, productA)
		require.NoError(t, ledger.SetThresholds(inventory.StockThresholds{
			ReorderPoint:    qty(15),
			ReorderQuantity: qty(100),
		}))

		reports, err := f.service.CheckAvailability(ctx, f.tenantID, f.selector(), []ReservationLine{
			{ProductID: productA, Quantity: qty(5)},
		}, nil)

		require.NoError(t, err)
		assert.True(t, reports[0].BelowReorderPoint)
		assert.True(t, reports[0].ReorderQuantity.Equal(qty(100)))
	})
}
