package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appinventory "github.com/milkvine/backoffice/internal/application/inventory"
	"github.com/milkvine/backoffice/internal/domain/partner"
	"github.com/milkvine/backoffice/internal/domain/shared"
	"github.com/milkvine/backoffice/internal/domain/trade"
)

// IdempotencyStore guards settlement operations against duplicate delivery.
// MarkProcessed returns false when the key was already marked within the TTL.
type IdempotencyStore interface {
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// BalanceUpdateError wraps a dealer-balance persistence failure so callers
// can tell it apart from a stock failure.
type BalanceUpdateError struct {
	DealerID uuid.UUID
	Err      error
}

// Error implements the error interface
func (e *BalanceUpdateError) Error() string {
	return fmt.Sprintf("balance update for dealer %s failed: %v", e.DealerID, e.Err)
}

// Unwrap returns the underlying error
func (e *BalanceUpdateError) Unwrap() error {
	return e.Err
}

// ErrDuplicateSettlement is returned when an operation was already processed
var ErrDuplicateSettlement = shared.NewDomainError("DUPLICATE_SETTLEMENT", "Settlement was already processed for this order")

const idempotencyTTL = 24 * time.Hour

// Orchestrator drives order settlement: pricing, stock reservation and
// dealer-balance movement as one logical unit. Cross-aggregate consistency
// comes from explicit compensation, not a shared database transaction: when a
// later step fails, earlier steps are undone before the error surfaces.
type Orchestrator struct {
	stock       *appinventory.StockReservationService
	accounts    partner.DealerAccountRepository
	idempotency IdempotencyStore
	logger      *zap.Logger
	maxRetries  int
}

// NewOrchestrator creates the orchestrator
func NewOrchestrator(
	stock *appinventory.StockReservationService,
	accounts partner.DealerAccountRepository,
	idempotency IdempotencyStore,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		stock:       stock,
		accounts:    accounts,
		idempotency: idempotency,
		logger:      logger,
		maxRetries:  3,
	}
}

// SettleCreate settles a freshly placed order: computes pricing, reserves
// stock for every line and, for dealer orders paying on credit, debits the
// dealer account and closes the payment when the held credit covers the
// total. A failure at any point leaves stock and balance as they were.
func (o *Orchestrator) SettleCreate(ctx context.Context, order *trade.Order, terms trade.PricingTerms, actor uuid.UUID) error {
	if actor == uuid.Nil {
		return shared.ErrMissingActor
	}
	if len(order.Items) == 0 {
		return shared.NewDomainError("EMPTY_ORDER", "Order has no items to settle")
	}

	fresh, err := o.idempotency.MarkProcessed(ctx, "settle-create:"+order.ID.String(), idempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if !fresh {
		o.logger.Info("duplicate settle-create ignored",
			zap.String("order_id", order.ID.String()),
			zap.String("order_number", order.OrderNumber),
		)
		return ErrDuplicateSettlement
	}

	order.Items = trade.PriceItems(order.Items)
	pricing, err := trade.CalculatePricing(order.Items, terms)
	if err != nil {
		return err
	}
	order.ApplyPricing(pricing)

	ref := shared.NewReference("order", order.ID.String())
	sel := o.selector(order)
	lines := reservationLines(order.Items)

	saga := NewSaga("settle-create", o.logger)
	saga.AddStep(Step{
		Name: "reserve-stock",
		Run: func(ctx context.Context) error {
			return o.stock.ReserveAll(ctx, order.TenantID, sel, lines, ref, actor)
		},
		Compensate: func(ctx context.Context) error {
			return o.stock.ReleaseAll(ctx, order.TenantID, sel, lines, ref, actor)
		},
	})

	if order.IsDealerOrder() && order.Payment.Method == trade.PaymentMethodCredit {
		saga.AddStep(Step{
			Name: "settle-dealer-balance",
			Run: func(ctx context.Context) error {
				return o.settleDealerBalance(ctx, order, ref, actor)
			},
		})
	}

	return saga.Execute(ctx)
}

// SettleUpdate re-settles an order whose lines changed: the previous
// reservations are returned and the new lines reserved, then pricing is
// recomputed. If the new lines cannot be reserved the old reservations are
// restored and the order is left untouched.
func (o *Orchestrator) SettleUpdate(ctx context.Context, order *trade.Order, newItems []trade.OrderItem, terms trade.PricingTerms, actor uuid.UUID) error {
	if actor == uuid.Nil {
		return shared.ErrMissingActor
	}
	if !order.Status.AllowsItemMutation() {
		return &trade.InvalidTransitionError{From: order.Status, Operation: "update items"}
	}
	if len(newItems) == 0 {
		return shared.NewDomainError("EMPTY_ORDER", "Order must keep at least one item")
	}

	ref := shared.NewReference("order", order.ID.String())
	sel := o.selector(order)
	oldLines := reservationLines(order.Items)
	newItems = trade.PriceItems(newItems)
	newLines := reservationLines(newItems)

	// Pre-flight with the order's own reservations added back, so growing a
	// line only needs the delta to be in stock.
	held := make(map[uuid.UUID]decimal.Decimal, len(oldLines))
	for _, line := range oldLines {
		held[line.ProductID] = held[line.ProductID].Add(line.Quantity)
	}
	reports, err := o.stock.CheckAvailability(ctx, order.TenantID, sel, newLines, held)
	if err != nil {
		return err
	}
	for _, report := range reports {
		if !report.Sufficient {
			return shared.NewDomainError("INSUFFICIENT_STOCK",
				fmt.Sprintf("Product %s short by %s", report.ProductID, report.Shortfall))
		}
	}

	saga := NewSaga("settle-update", o.logger)
	saga.AddStep(Step{
		Name: "release-previous",
		Run: func(ctx context.Context) error {
			return o.stock.ReleaseAll(ctx, order.TenantID, sel, oldLines, ref, actor)
		},
		Compensate: func(ctx context.Context) error {
			return o.stock.ReserveAll(ctx, order.TenantID, sel, oldLines, ref, actor)
		},
	})
	saga.AddStep(Step{
		Name: "reserve-updated",
		Run: func(ctx context.Context) error {
			return o.stock.ReserveAll(ctx, order.TenantID, sel, newLines, ref, actor)
		},
	})
	if err := saga.Execute(ctx); err != nil {
		return err
	}

	order.Items = newItems
	pricing, err := trade.CalculatePricing(order.Items, terms)
	if err != nil {
		return err
	}
	order.ApplyPricing(pricing)
	return nil
}

// SettleCancel cancels an order: reservations go back to the sellable pool
// and, when a dealer paid on credit, a compensating credit restores the
// balance the create-time debit consumed. A failed refund re-reserves the
// released stock and leaves the order in its prior status.
func (o *Orchestrator) SettleCancel(ctx context.Context, order *trade.Order, reason string, actor uuid.UUID) error {
	if actor == uuid.Nil {
		return shared.ErrMissingActor
	}
	if !order.Status.CanTransitionTo(trade.OrderStatusCancelled) {
		return &trade.InvalidTransitionError{From: order.Status, To: trade.OrderStatusCancelled}
	}

	ref := shared.NewReference("order", order.ID.String())
	sel := o.selector(order)
	lines := reservationLines(order.Items)

	saga := NewSaga("settle-cancel", o.logger)
	saga.AddStep(Step{
		Name: "release-stock",
		Run: func(ctx context.Context) error {
			return o.stock.ReleaseAll(ctx, order.TenantID, sel, lines, ref, actor)
		},
		Compensate: func(ctx context.Context) error {
			return o.stock.ReserveAll(ctx, order.TenantID, sel, lines, ref, actor)
		},
	})
	refunded := false
	if order.IsDealerOrder() &&
		order.Payment.Method == trade.PaymentMethodCredit &&
		order.Payment.Status == trade.PaymentStatusCompleted {
		saga.AddStep(Step{
			Name: "refund-dealer-credit",
			Run: func(ctx context.Context) error {
				err := o.applyAccountTransaction(ctx, order.TenantID, *order.DealerID,
					partner.TransactionKindRefund, order.Pricing.Total,
					fmt.Sprintf("Reversal for cancelled order %s", order.OrderNumber), ref, actor)
				if err != nil {
					return &BalanceUpdateError{DealerID: *order.DealerID, Err: err}
				}
				refunded = true
				return nil
			},
		})
	}
	if err := saga.Execute(ctx); err != nil {
		return err
	}

	if err := order.Cancel(reason); err != nil {
		return err
	}
	if refunded {
		order.MarkPaymentRefunded()
	}
	return nil
}

// SettleShip converts the order's reservations into consumption and moves
// the order to shipped. Commit is best-effort per line; a partial failure
// surfaces after the remaining lines were attempted.
func (o *Orchestrator) SettleShip(ctx context.Context, order *trade.Order, actor uuid.UUID) error {
	if actor == uuid.Nil {
		return shared.ErrMissingActor
	}
	if !order.Status.CanTransitionTo(trade.OrderStatusShipped) {
		return &trade.InvalidTransitionError{From: order.Status, To: trade.OrderStatusShipped}
	}
	ref := shared.NewReference("order", order.ID.String())
	sel := o.selector(order)

	if err := o.stock.CommitAll(ctx, order.TenantID, sel, reservationLines(order.Items), ref, actor); err != nil {
		return err
	}
	return order.Ship()
}

// CompleteDelivery marks the order delivered and, for cash orders, closes
// the payment collected on the doorstep.
func (o *Orchestrator) CompleteDelivery(ctx context.Context, order *trade.Order, actor uuid.UUID) error {
	if actor == uuid.Nil {
		return shared.ErrMissingActor
	}
	if err := order.MarkDelivered(); err != nil {
		return err
	}
	if order.Payment.Method == trade.PaymentMethodCash && order.Payment.Status != trade.PaymentStatusCompleted {
		order.MarkPaymentCompleted()
	}
	return nil
}

// CheckAvailability answers whether an order's lines could be reserved right
// now, without touching stock.
func (o *Orchestrator) CheckAvailability(ctx context.Context, order *trade.Order) ([]appinventory.AvailabilityReport, error) {
	return o.stock.CheckAvailability(ctx, order.TenantID, o.selector(order), reservationLines(order.Items), nil)
}

// settleDealerBalance debits the order total from the dealer account when the
// held credit covers it, closing the payment. When it does not, the payment
// stays pending for manual settlement; that is not an error.
func (o *Orchestrator) settleDealerBalance(ctx context.Context, order *trade.Order, ref shared.Reference, actor uuid.UUID) error {
	total := order.Pricing.Total
	dealerID := *order.DealerID

	var settled bool
	err := o.withAccountRetry(ctx, order.TenantID, dealerID, func(account *partner.DealerAccount) error {
		settled = false
		if account.WouldExceedCreditLimit(total) {
			o.logger.Warn("order pushes dealer past credit limit",
				zap.String("dealer_id", dealerID.String()),
				zap.String("order_number", order.OrderNumber),
				zap.String("total", total.String()),
				zap.String("credit_limit", account.CreditLimit.String()),
			)
		}
		if !account.CanAutoSettle(total) {
			return nil
		}
		_, err := account.ApplyTransaction(partner.TransactionKindDebit, total,
			fmt.Sprintf("Order %s", order.OrderNumber), ref, actor)
		if err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return &BalanceUpdateError{DealerID: dealerID, Err: err}
	}

	if settled {
		order.MarkPaymentCompleted()
		o.logger.Info("order auto-settled from dealer credit",
			zap.String("dealer_id", dealerID.String()),
			zap.String("order_number", order.OrderNumber),
			zap.String("total", total.String()),
		)
	} else {
		o.logger.Info("dealer credit insufficient, payment left pending",
			zap.String("dealer_id", dealerID.String()),
			zap.String("order_number", order.OrderNumber),
			zap.String("total", total.String()),
		)
	}
	return nil
}

func (o *Orchestrator) applyAccountTransaction(ctx context.Context, tenantID, dealerID uuid.UUID, kind partner.TransactionKind, amount decimal.Decimal, description string, ref shared.Reference, actor uuid.UUID) error {
	return o.withAccountRetry(ctx, tenantID, dealerID, func(account *partner.DealerAccount) error {
		_, err := account.ApplyTransaction(kind, amount, description, ref, actor)
		return err
	})
}

// withAccountRetry runs one load -> mutate -> version-checked save cycle on a
// dealer account, retrying on concurrent modification.
func (o *Orchestrator) withAccountRetry(ctx context.Context, tenantID, dealerID uuid.UUID, mutate func(*partner.DealerAccount) error) error {
	var lastErr error
	for attempt := 0; attempt < o.maxRetries; attempt++ {
		account, err := o.accounts.FindByDealer(ctx, tenantID, dealerID)
		if err != nil {
			return err
		}
		if err := mutate(account); err != nil {
			return err
		}
		if err := o.accounts.SaveWithLock(ctx, account); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("dealer account %s contended beyond %d attempts: %w", dealerID, o.maxRetries, lastErr)
}

func (o *Orchestrator) selector(order *trade.Order) appinventory.WarehouseSelector {
	return appinventory.WarehouseSelector{ID: order.WarehouseID, Ref: order.WarehouseRef}
}

func reservationLines(items []trade.OrderItem) []appinventory.ReservationLine {
	lines := make([]appinventory.ReservationLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, appinventory.ReservationLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return lines
}
