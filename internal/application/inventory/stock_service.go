package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/milkvine/backoffice/internal/domain/inventory"
	"github.com/milkvine/backoffice/internal/domain/shared"
)

// StockService covers the warehouse-side stock operations outside the
// settlement path: goods receipt, write-offs, batch expiry, thresholds and
// alert handling.
type StockService struct {
	ledgers    inventory.StockLedgerRepository
	movements  inventory.StockMovementRepository
	logger     *zap.Logger
	maxRetries int
}

// NewStockService creates the service
func NewStockService(
	ledgers inventory.StockLedgerRepository,
	movements inventory.StockMovementRepository,
	logger *zap.Logger,
) *StockService {
	return &StockService{
		ledgers:    ledgers,
		movements:  movements,
		logger:     logger,
		maxRetries: 3,
	}
}

// ReceiveStock books a goods receipt into the ledger, creating the ledger on
// first receipt. The unit cost folds into the moving weighted average; batch
// details are optional for products without lot tracking.
func (s *StockService) ReceiveStock(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, quantity, unitCost decimal.Decimal, batch *inventory.BatchInfo, ref shared.Reference, actor uuid.UUID) error {
	return s.withLedgerByProduct(ctx, tenantID, productID, warehouseID, func(ledger *inventory.StockLedger) error {
		return ledger.ReceiveStock(quantity, unitCost, batch, actor, ref)
	})
}

// ReceiveInTransit books quantity announced by a supplier but not yet on hand
func (s *StockService) ReceiveInTransit(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, quantity decimal.Decimal, ref shared.Reference, actor uuid.UUID) error {
	return s.withLedgerByProduct(ctx, tenantID, productID, warehouseID, func(ledger *inventory.StockLedger) error {
		return ledger.ReceiveInTransit(quantity, actor, ref)
	})
}

// AdjustStock applies a signed correction after a physical count
func (s *StockService) AdjustStock(ctx context.Context, tenantID, ledgerID uuid.UUID, delta decimal.Decimal, reason string, actor uuid.UUID) error {
	return s.withLedger(ctx, tenantID, ledgerID, func(ledger *inventory.StockLedger) error {
		return ledger.Adjust(delta, reason, actor)
	})
}

// WriteOffDamage moves quantity from the sellable pool to the damaged count
func (s *StockService) WriteOffDamage(ctx context.Context, tenantID, ledgerID uuid.UUID, quantity decimal.Decimal, reason string, actor uuid.UUID) error {
	return s.withLedger(ctx, tenantID, ledgerID, func(ledger *inventory.StockLedger) error {
		return ledger.WriteOffDamage(quantity, reason, actor)
	})
}

// ExpireBatch writes off a batch that passed its expiry date
func (s *StockService) ExpireBatch(ctx context.Context, tenantID, ledgerID, batchID, actor uuid.UUID) error {
	return s.withLedger(ctx, tenantID, ledgerID, func(ledger *inventory.StockLedger) error {
		return ledger.ExpireBatch(batchID, actor)
	})
}

// SetThresholds replaces the reorder and alerting thresholds of a ledger
func (s *StockService) SetThresholds(ctx context.Context, tenantID, ledgerID uuid.UUID, thresholds inventory.StockThresholds) error {
	return s.withLedger(ctx, tenantID, ledgerID, func(ledger *inventory.StockLedger) error {
		return ledger.SetThresholds(thresholds)
	})
}

// AcknowledgeAlert marks an active alert as seen by an operator
func (s *StockService) AcknowledgeAlert(ctx context.Context, tenantID, ledgerID, alertID, actor uuid.UUID) error {
	return s.withLedger(ctx, tenantID, ledgerID, func(ledger *inventory.StockLedger) error {
		return ledger.AcknowledgeAlert(alertID, actor)
	})
}

// ActiveAlerts lists the currently active alerts of a ledger
func (s *StockService) ActiveAlerts(ctx context.Context, tenantID, ledgerID uuid.UUID) ([]inventory.StockAlert, error) {
	ledger, err := s.ledgers.FindByID(ctx, tenantID, ledgerID)
	if err != nil {
		return nil, err
	}
	return ledger.ActiveAlerts(), nil
}

// LedgersBelowMinimum lists ledgers that need replenishment
func (s *StockService) LedgersBelowMinimum(ctx context.Context, tenantID uuid.UUID) ([]inventory.StockLedger, error) {
	return s.ledgers.FindBelowMinimum(ctx, tenantID)
}

// MovementHistory returns the full audit trail of a ledger, oldest first
func (s *StockService) MovementHistory(ctx context.Context, ledgerID uuid.UUID) ([]inventory.StockMovement, error) {
	return s.movements.FindByLedger(ctx, ledgerID)
}

func (s *StockService) withLedger(ctx context.Context, tenantID, ledgerID uuid.UUID, mutate func(*inventory.StockLedger) error) error {
	return s.retryMutation(ctx, mutate, func() (*inventory.StockLedger, error) {
		return s.ledgers.FindByID(ctx, tenantID, ledgerID)
	})
}

func (s *StockService) withLedgerByProduct(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, mutate func(*inventory.StockLedger) error) error {
	return s.retryMutation(ctx, mutate, func() (*inventory.StockLedger, error) {
		return s.ledgers.GetOrCreate(ctx, tenantID, productID, warehouseID)
	})
}

func (s *StockService) retryMutation(ctx context.Context, mutate func(*inventory.StockLedger) error, load func() (*inventory.StockLedger, error)) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		ledger, err := load()
		if err != nil {
			return err
		}
		if err := mutate(ledger); err != nil {
			return err
		}
		if err := s.persist(ctx, ledger); err != nil {
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

func (s *StockService) persist(ctx context.Context, ledger *inventory.StockLedger) error {
	if err := s.ledgers.SaveWithLock(ctx, ledger); err != nil {
		return err
	}
	if pending := ledger.PendingMovements(); len(pending) > 0 {
		if err := s.movements.CreateBatch(ctx, pending); err != nil {
			return err
		}
		ledger.ClearPendingMovements()
	}
	return nil
}
