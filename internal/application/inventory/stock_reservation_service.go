package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/milkvine/backoffice/internal/domain/inventory"
	"github.com/milkvine/backoffice/internal/domain/partner"
	"github.com/milkvine/backoffice/internal/domain/shared"
)

// ReservationLine is one order line as the stock layer sees it
type ReservationLine struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
}

// WarehouseSelector identifies a warehouse by id or free-text code/name.
// When both are empty the tenant default is used.
type WarehouseSelector struct {
	ID  *uuid.UUID
	Ref string
}

// AvailabilityReport is the pre-flight availability answer for one line
type AvailabilityReport struct {
	ProductID         uuid.UUID       `json:"productId"`
	Requested         decimal.Decimal `json:"requested"`
	Available         decimal.Decimal `json:"available"`
	Sellable          decimal.Decimal `json:"sellable"`
	Sufficient        bool            `json:"sufficient"`
	Shortfall         decimal.Decimal `json:"shortfall"`
	BelowReorderPoint bool            `json:"belowReorderPoint"`
	ReorderQuantity   decimal.Decimal `json:"reorderQuantity"`
}

// WarehouseResolutionError is fatal for the whole batch: no ledger can be
// addressed without a canonical warehouse.
type WarehouseResolutionError struct {
	Query string
}

// Error implements the error interface
func (e *WarehouseResolutionError) Error() string {
	if e.Query == "" {
		return "warehouse resolution failed: no warehouse given and no tenant default configured"
	}
	return fmt.Sprintf("warehouse resolution failed for %q", e.Query)
}

// StockReservationService coordinates reserve/commit/release across many
// StockLedger aggregates. It is stateless; each call treats the batch of
// order lines as one logical unit.
//
// ReserveAll is all-or-nothing: a failure on any line releases every
// reservation already taken in the same call before the error surfaces.
// ReleaseAll and CommitAll are best-effort over the batch.
//
// Per-ledger atomicity comes from optimistic locking: load, mutate, save with
// a version check, retry on conflict. Two concurrent reservations on the same
// ledger serialize through the version; the loser re-reads and re-checks
// availability, so stock is never jointly overdrawn.
type StockReservationService struct {
	ledgers    inventory.StockLedgerRepository
	movements  inventory.StockMovementRepository
	warehouses partner.WarehouseRepository
	logger     *zap.Logger
	maxRetries int
}

// NewStockReservationService creates the service
func NewStockReservationService(
	ledgers inventory.StockLedgerRepository,
	movements inventory.StockMovementRepository,
	warehouses partner.WarehouseRepository,
	logger *zap.Logger,
) *StockReservationService {
	return &StockReservationService{
		ledgers:    ledgers,
		movements:  movements,
		warehouses: warehouses,
		logger:     logger,
		maxRetries: 3,
	}
}

// SetMaxRetries overrides the optimistic-lock retry budget
func (s *StockReservationService) SetMaxRetries(n int) {
	if n > 0 {
		s.maxRetries = n
	}
}

// ResolveWarehouse resolves a selector to a canonical active warehouse id:
// explicit id first, then free-text code/name, then the tenant default.
func (s *StockReservationService) ResolveWarehouse(ctx context.Context, tenantID uuid.UUID, sel WarehouseSelector) (uuid.UUID, error) {
	var (
		wh  *partner.Warehouse
		err error
	)
	switch {
	case sel.ID != nil && *sel.ID != uuid.Nil:
		wh, err = s.warehouses.FindByID(ctx, tenantID, *sel.ID)
	case strings.TrimSpace(sel.Ref) != "":
		wh, err = s.warehouses.FindByCodeOrName(ctx, tenantID, sel.Ref)
	default:
		wh, err = s.warehouses.FindDefault(ctx, tenantID)
	}
	if err != nil || wh == nil || !wh.IsActive() {
		return uuid.Nil, &WarehouseResolutionError{Query: sel.Ref}
	}
	return wh.ID, nil
}

// ReserveAll reserves stock for every line, releasing already-taken
// reservations when any line fails so the batch is all-or-nothing.
func (s *StockReservationService) ReserveAll(ctx context.Context, tenantID uuid.UUID, sel WarehouseSelector, lines []ReservationLine, ref shared.Reference, actor uuid.UUID) error {
	if len(lines) == 0 {
		return shared.NewDomainError("INVALID_REQUEST", "At least one line is required")
	}
	warehouseID, err := s.ResolveWarehouse(ctx, tenantID, sel)
	if err != nil {
		return err
	}

	reserved := make([]ReservationLine, 0, len(lines))
	for _, line := range lines {
		if err := s.reserveOne(ctx, tenantID, warehouseID, line, ref, actor); err != nil {
			s.logger.Warn("reservation failed, rolling back batch",
				zap.String("product_id", line.ProductID.String()),
				zap.String("reference", ref.String()),
				zap.Int("reserved_so_far", len(reserved)),
				zap.Error(err),
			)
			s.releaseLines(ctx, tenantID, warehouseID, reserved, ref, actor)
			return err
		}
		reserved = append(reserved, line)
	}
	return nil
}

// ReleaseAll returns each line's reservation to the sellable pool.
// Best-effort: a missing ledger is logged, recorded as a no-op movement and
// skipped, tolerating races with ledger deletion.
func (s *StockReservationService) ReleaseAll(ctx context.Context, tenantID uuid.UUID, sel WarehouseSelector, lines []ReservationLine, ref shared.Reference, actor uuid.UUID) error {
	warehouseID, err := s.ResolveWarehouse(ctx, tenantID, sel)
	if err != nil {
		return err
	}
	s.releaseLines(ctx, tenantID, warehouseID, lines, ref, actor)
	return nil
}

// CommitAll converts each line's reservation into consumption. Missing
// ledgers do not abort the remaining lines; they are reported together once
// the batch completes.
func (s *StockReservationService) CommitAll(ctx context.Context, tenantID uuid.UUID, sel WarehouseSelector, lines []ReservationLine, ref shared.Reference, actor uuid.UUID) error {
	warehouseID, err := s.ResolveWarehouse(ctx, tenantID, sel)
	if err != nil {
		return err
	}

	var failures []error
	for _, line := range lines {
		err := s.mutateLedger(ctx, tenantID, warehouseID, line.ProductID, func(ledger *inventory.StockLedger) error {
			return ledger.Commit(line.Quantity, actor, ref)
		})
		if err != nil {
			s.logger.Error("stock commit failed",
				zap.String("product_id", line.ProductID.String()),
				zap.String("reference", ref.String()),
				zap.Error(err),
			)
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

// CheckAvailability produces per-line availability reports without side
// effects. Quantities in excluding (keyed by product id) are treated as
// already held by the caller and added back to the sellable pool, so an order
// update can check its new quantities against stock that includes its own
// current reservations.
func (s *StockReservationService) CheckAvailability(ctx context.Context, tenantID uuid.UUID, sel WarehouseSelector, lines []ReservationLine, excluding map[uuid.UUID]decimal.Decimal) ([]AvailabilityReport, error) {
	warehouseID, err := s.ResolveWarehouse(ctx, tenantID, sel)
	if err != nil {
		return nil, err
	}

	reports := make([]AvailabilityReport, 0, len(lines))
	for _, line := range lines {
		report := AvailabilityReport{
			ProductID: line.ProductID,
			Requested: line.Quantity,
			Shortfall: decimal.Zero,
		}

		ledger, err := s.ledgers.FindByProductAndWarehouse(ctx, tenantID, line.ProductID, warehouseID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			report.Shortfall = line.Quantity
		case err != nil:
			return nil, err
		default:
			sellable := ledger.Sellable()
			if held, ok := excluding[line.ProductID]; ok {
				sellable = sellable.Add(held)
			}
			report.Available = ledger.OnHand()
			report.Sellable = sellable
			report.Sufficient = sellable.GreaterThanOrEqual(line.Quantity)
			if !report.Sufficient {
				report.Shortfall = line.Quantity.Sub(sellable)
			}
			report.BelowReorderPoint = ledger.BelowReorderPoint()
			report.ReorderQuantity = ledger.Thresholds.ReorderQuantity
		}

		reports = append(reports, report)
	}
	return reports, nil
}

func (s *StockReservationService) reserveOne(ctx context.Context, tenantID, warehouseID uuid.UUID, line ReservationLine, ref shared.Reference, actor uuid.UUID) error {
	return s.mutateLedger(ctx, tenantID, warehouseID, line.ProductID, func(ledger *inventory.StockLedger) error {
		return ledger.Reserve(line.Quantity, actor, ref)
	})
}

func (s *StockReservationService) releaseLines(ctx context.Context, tenantID, warehouseID uuid.UUID, lines []ReservationLine, ref shared.Reference, actor uuid.UUID) {
	for _, line := range lines {
		err := s.mutateLedger(ctx, tenantID, warehouseID, line.ProductID, func(ledger *inventory.StockLedger) error {
			return ledger.Release(line.Quantity, actor, ref)
		})
		if err == nil {
			continue
		}
		var notFound *inventory.LedgerNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, shared.ErrNotFound) {
			// Tolerated no-op, but the audit trail still gets an entry.
			s.logger.Info("release skipped, ledger not found",
				zap.String("product_id", line.ProductID.String()),
				zap.String("reference", ref.String()),
			)
			noop := inventory.NewStockMovement(
				tenantID, uuid.Nil, warehouseID, line.ProductID,
				inventory.MovementTypeRelease, line.Quantity, decimal.Zero, decimal.Zero,
				"release against missing ledger", ref, actor,
			)
			if cerr := s.movements.Create(ctx, noop); cerr != nil {
				s.logger.Error("failed to record no-op release movement", zap.Error(cerr))
			}
			continue
		}
		s.logger.Error("stock release failed",
			zap.String("product_id", line.ProductID.String()),
			zap.String("reference", ref.String()),
			zap.Error(err),
		)
	}
}

// mutateLedger runs one load -> mutate -> version-checked save cycle,
// retrying on concurrent modification. Movements recorded by the mutation are
// persisted append-only after a successful save.
func (s *StockReservationService) mutateLedger(ctx context.Context, tenantID, warehouseID, productID uuid.UUID, mutate func(*inventory.StockLedger) error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		ledger, err := s.ledgers.FindByProductAndWarehouse(ctx, tenantID, productID, warehouseID)
		if errors.Is(err, shared.ErrNotFound) {
			return &inventory.LedgerNotFoundError{ProductID: productID, WarehouseID: warehouseID}
		}
		if err != nil {
			return err
		}

		if err := mutate(ledger); err != nil {
			return err
		}

		if err := s.ledgers.SaveWithLock(ctx, ledger); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				lastErr = err
				continue
			}
			return err
		}

		if pending := ledger.PendingMovements(); len(pending) > 0 {
			if err := s.movements.CreateBatch(ctx, pending); err != nil {
				return fmt.Errorf("persist movements: %w", err)
			}
			ledger.ClearPendingMovements()
		}
		return nil
	}
	return fmt.Errorf("ledger for product %s contended beyond %d attempts: %w", productID, s.maxRetries, lastErr)
}
