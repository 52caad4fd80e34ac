package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milkvine/backoffice/internal/domain/shared"
)

// StockLevels holds the quantity counters of a ledger.
// Available is the true on-hand count. Reserved is a sub-count of Available
// held for pending orders; the sellable pool is Available - Reserved.
type StockLevels struct {
	Available decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Reserved  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Damaged   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Expired   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	InTransit decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// StockThresholds holds reorder and alerting thresholds
type StockThresholds struct {
	Minimum         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Maximum         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReorderPoint    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReorderQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// ExpiryAlertWindow is how far ahead batch expiry raises an expiring-soon alert.
const ExpiryAlertWindow = 7 * 24 * time.Hour

// StockLedger tracks stock for one product at one warehouse.
// It is the aggregate root for all stock mutations; every mutating operation
// appends a StockMovement and re-derives alerts.
// The composite identifier is TenantID + ProductID + WarehouseID.
type StockLedger struct {
	shared.TenantAggregateRoot
	ProductID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_ledger_key,priority:2"`
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_ledger_key,priority:3"`

	Stock      StockLevels     `gorm:"embedded;embeddedPrefix:stock_"`
	Thresholds StockThresholds `gorm:"embedded;embeddedPrefix:threshold_"`

	UnitCost   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"` // moving weighted average
	TotalValue decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"` // on-hand quantity * unit cost

	Batches []StockBatch `gorm:"foreignKey:LedgerID;references:ID"`
	Alerts  []StockAlert `gorm:"foreignKey:LedgerID;references:ID"`

	// Ledgers referenced by movements are never hard-deleted.
	DeletedAt gorm.DeletedAt `gorm:"index"`

	// Movements recorded by operations on this instance, drained by the
	// application layer for append-only persistence.
	pendingMovements []StockMovement `gorm:"-"`
}

// TableName returns the table name for GORM
func (StockLedger) TableName() string {
	return "stock_ledgers"
}

// NewStockLedger creates an empty ledger for a product-warehouse combination
func NewStockLedger(tenantID, productID, warehouseID uuid.UUID) (*StockLedger, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if warehouseID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_WAREHOUSE", "Warehouse ID cannot be empty")
	}

	return &StockLedger{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		ProductID:           productID,
		WarehouseID:         warehouseID,
		UnitCost:            decimal.Zero,
		TotalValue:          decimal.Zero,
		Batches:             make([]StockBatch, 0),
		Alerts:              make([]StockAlert, 0),
	}, nil
}

// Sellable returns the quantity available for new reservations
func (l *StockLedger) Sellable() decimal.Decimal {
	return l.Stock.Available.Sub(l.Stock.Reserved)
}

// OnHand returns the physical on-hand quantity
func (l *StockLedger) OnHand() decimal.Decimal {
	return l.Stock.Available
}

// CanFulfill returns true if the sellable pool covers the requested quantity
func (l *StockLedger) CanFulfill(quantity decimal.Decimal) bool {
	return l.Sellable().GreaterThanOrEqual(quantity)
}

// Reserve holds quantity out of the sellable pool for a pending order.
// Fails with *InsufficientStockError when the sellable pool cannot cover it.
func (l *StockLedger) Reserve(quantity decimal.Decimal, actor uuid.UUID, ref shared.Reference) error {
	if err := validateMutation(quantity, actor); err != nil {
		return err
	}
	if !l.CanFulfill(quantity) {
		return &InsufficientStockError{
			ProductID:   l.ProductID,
			WarehouseID: l.WarehouseID,
			Requested:   quantity,
			Sellable:    l.Sellable(),
		}
	}

	before := l.Stock.Available
	l.Stock.Reserved = l.Stock.Reserved.Add(quantity)
	l.touch()

	l.appendMovement(MovementTypeReservation, quantity, before, "stock reserved", ref, actor)
	l.refreshAlerts(time.Now())

	return nil
}

// Release returns previously reserved quantity to the sellable pool.
// A release beyond the reserved amount clamps at zero instead of corrupting
// state; the movement records the quantity actually returned.
func (l *StockLedger) Release(quantity decimal.Decimal, actor uuid.UUID, ref shared.Reference) error {
	if err := validateMutation(quantity, actor); err != nil {
		return err
	}

	released := quantity
	if released.GreaterThan(l.Stock.Reserved) {
		released = l.Stock.Reserved
	}

	before := l.Stock.Available
	l.Stock.Reserved = l.Stock.Reserved.Sub(released)
	l.touch()

	l.appendMovement(MovementTypeRelease, released, before, "reservation released", ref, actor)
	l.refreshAlerts(time.Now())

	return nil
}

// Commit converts a reservation into consumption: the quantity leaves both the
// reserved sub-count and the on-hand count. Used when an order ships.
func (l *StockLedger) Commit(quantity decimal.Decimal, actor uuid.UUID, ref shared.Reference) error {
	if err := validateMutation(quantity, actor); err != nil {
		return err
	}
	if l.Stock.Available.LessThan(quantity) {
		return &InsufficientStockError{
			ProductID:   l.ProductID,
			WarehouseID: l.WarehouseID,
			Requested:   quantity,
			Sellable:    l.Stock.Available,
		}
	}

	before := l.Stock.Available
	l.Stock.Available = l.Stock.Available.Sub(quantity)
	l.Stock.Reserved = l.Stock.Reserved.Sub(quantity)
	if l.Stock.Reserved.IsNegative() {
		l.Stock.Reserved = decimal.Zero
	}
	l.deductFromBatches(quantity)
	l.recomputeTotalValue()
	l.touch()

	l.appendMovement(MovementTypeOut, quantity, before, "reservation committed", ref, actor)
	l.refreshAlerts(time.Now())

	return nil
}

// Adjust applies a signed correction (stock take, count fix).
// The resulting on-hand count must stay non-negative and may not drop below
// the outstanding reserved quantity.
func (l *StockLedger) Adjust(delta decimal.Decimal, reason string, actor uuid.UUID) error {
	if actor == uuid.Nil {
		return shared.ErrMissingActor
	}
	if delta.IsZero() {
		return shared.NewDomainError("INVALID_QUANTITY", "Adjustment delta cannot be zero")
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Adjustment reason is required")
	}

	next := l.Stock.Available.Add(delta)
	if next.IsNegative() {
		return shared.NewDomainError("INVALID_ADJUSTMENT", "Adjustment would make on-hand stock negative")
	}
	if next.LessThan(l.Stock.Reserved) {
		return shared.NewDomainError("INVALID_ADJUSTMENT", "Adjustment would make on-hand stock less than reserved stock")
	}

	before := l.Stock.Available
	l.Stock.Available = next
	l.recomputeTotalValue()
	l.touch()

	l.appendMovement(MovementTypeAdjustment, delta, before, reason, shared.NewReference("manual_adjustment", actor.String()), actor)
	l.refreshAlerts(time.Now())

	return nil
}

// ReceiveStock adds quantity to the on-hand count with an "in" movement and
// recalculates the moving weighted average cost. Pass batch info to track the
// received lot.
func (l *StockLedger) ReceiveStock(quantity, unitCost decimal.Decimal, batch *BatchInfo, actor uuid.UUID, ref shared.Reference) error {
	if err := validateMutation(quantity, actor); err != nil {
		return err
	}
	if unitCost.IsNegative() {
		return shared.NewDomainError("INVALID_COST", "Unit cost cannot be negative")
	}

	before := l.Stock.Available

	// New cost = (old qty * old cost + new qty * new cost) / (old qty + new qty)
	if l.Stock.Available.IsZero() {
		l.UnitCost = unitCost
	} else {
		totalValue := l.Stock.Available.Mul(l.UnitCost).Add(quantity.Mul(unitCost))
		l.UnitCost = totalValue.Div(l.Stock.Available.Add(quantity)).Round(4)
	}

	l.Stock.Available = l.Stock.Available.Add(quantity)
	if batch != nil {
		l.Batches = append(l.Batches, *NewStockBatch(l.ID, batch.LotNumber, batch.ManufactureDate, batch.ExpiryDate, quantity))
	}
	l.recomputeTotalValue()
	l.touch()

	l.appendMovement(MovementTypeIn, quantity, before, "stock received", ref, actor)
	l.refreshAlerts(time.Now())

	return nil
}

// ReceiveInTransit moves quantity that was tracked as in-transit into the
// on-hand count.
func (l *StockLedger) ReceiveInTransit(quantity decimal.Decimal, actor uuid.UUID, ref shared.Reference) error {
	if err := validateMutation(quantity, actor); err != nil {
		return err
	}
	if l.Stock.InTransit.LessThan(quantity) {
		return shared.NewDomainError("INVALID_QUANTITY", "In-transit quantity is less than the received quantity")
	}

	before := l.Stock.Available
	l.Stock.InTransit = l.Stock.InTransit.Sub(quantity)
	l.Stock.Available = l.Stock.Available.Add(quantity)
	l.recomputeTotalValue()
	l.touch()

	l.appendMovement(MovementTypeIn, quantity, before, "in-transit stock received", ref, actor)
	l.refreshAlerts(time.Now())

	return nil
}

// WriteOffDamage moves quantity from the sellable on-hand count to the damaged
// pool. Damaged stock stays visible on the ledger until disposed of.
func (l *StockLedger) WriteOffDamage(quantity decimal.Decimal, reason string, actor uuid.UUID) error {
	if err := validateMutation(quantity, actor); err != nil {
		return err
	}
	if !l.CanFulfill(quantity) {
		return &InsufficientStockError{
			ProductID:   l.ProductID,
			WarehouseID: l.WarehouseID,
			Requested:   quantity,
			Sellable:    l.Sellable(),
		}
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Damage reason is required")
	}

	before := l.Stock.Available
	l.Stock.Available = l.Stock.Available.Sub(quantity)
	l.Stock.Damaged = l.Stock.Damaged.Add(quantity)
	l.recomputeTotalValue()
	l.touch()

	l.appendMovement(MovementTypeDamage, quantity, before, reason, shared.NewReference("damage_write_off", actor.String()), actor)
	l.refreshAlerts(time.Now())

	return nil
}

// ExpireBatch marks a batch as expired and moves its remaining quantity from
// the on-hand count to the expired pool (capped by the sellable pool so a
// reservation is never silently consumed).
func (l *StockLedger) ExpireBatch(batchID, actor uuid.UUID) error {
	if actor == uuid.Nil {
		return shared.ErrMissingActor
	}

	var batch *StockBatch
	for idx := range l.Batches {
		if l.Batches[idx].ID == batchID {
			batch = &l.Batches[idx]
			break
		}
	}
	if batch == nil {
		return shared.NewDomainError("BATCH_NOT_FOUND", "Stock batch not found")
	}
	if batch.Status != BatchStatusActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Batch is already %s", batch.Status))
	}

	expired := batch.Quantity
	if expired.GreaterThan(l.Sellable()) {
		expired = l.Sellable()
	}

	before := l.Stock.Available
	batch.MarkExpired()
	l.Stock.Available = l.Stock.Available.Sub(expired)
	l.Stock.Expired = l.Stock.Expired.Add(expired)
	l.recomputeTotalValue()
	l.touch()

	l.appendMovement(MovementTypeExpiry, expired, before, fmt.Sprintf("batch %s expired", batch.LotNumber), shared.NewReference("stock_batch", batchID.String()), actor)
	l.refreshAlerts(time.Now())

	return nil
}

// SetThresholds replaces the reorder/alert thresholds and re-derives alerts
func (l *StockLedger) SetThresholds(t StockThresholds) error {
	if t.Minimum.IsNegative() || t.Maximum.IsNegative() || t.ReorderPoint.IsNegative() || t.ReorderQuantity.IsNegative() {
		return shared.NewDomainError("INVALID_THRESHOLD", "Thresholds cannot be negative")
	}
	l.Thresholds = t
	l.touch()
	l.refreshAlerts(time.Now())
	return nil
}

// AcknowledgeAlert acknowledges an active alert, closing it and allowing a
// repeat condition to raise a fresh one.
func (l *StockLedger) AcknowledgeAlert(alertID, actor uuid.UUID) error {
	if actor == uuid.Nil {
		return shared.ErrMissingActor
	}
	for idx := range l.Alerts {
		if l.Alerts[idx].ID == alertID {
			if err := l.Alerts[idx].Acknowledge(actor); err != nil {
				return err
			}
			l.touch()
			return nil
		}
	}
	return shared.NewDomainError("ALERT_NOT_FOUND", "Stock alert not found")
}

// ActiveAlerts returns the currently active alerts
func (l *StockLedger) ActiveAlerts() []StockAlert {
	active := make([]StockAlert, 0)
	for _, a := range l.Alerts {
		if a.Active {
			active = append(active, a)
		}
	}
	return active
}

// BelowReorderPoint returns true when the sellable pool fell to or below the
// reorder point
func (l *StockLedger) BelowReorderPoint() bool {
	return l.Thresholds.ReorderPoint.IsPositive() && l.Sellable().LessThanOrEqual(l.Thresholds.ReorderPoint)
}

// PendingMovements returns the movements recorded since the aggregate was
// loaded. The application layer persists them append-only and then calls
// ClearPendingMovements.
func (l *StockLedger) PendingMovements() []StockMovement {
	return l.pendingMovements
}

// ClearPendingMovements clears the recorded movements
func (l *StockLedger) ClearPendingMovements() {
	l.pendingMovements = nil
}

func (l *StockLedger) appendMovement(movType MovementType, quantity, balanceBefore decimal.Decimal, reason string, ref shared.Reference, actor uuid.UUID) {
	l.pendingMovements = append(l.pendingMovements, *NewStockMovement(
		l.TenantID, l.ID, l.WarehouseID, l.ProductID,
		movType, quantity, balanceBefore, l.Stock.Available,
		reason, ref, actor,
	))
}

// refreshAlerts re-derives alert conditions after a mutation. At most one
// active alert per type: a repeat condition is a no-op until the existing
// alert is acknowledged; a cleared condition resolves its unacknowledged alert.
func (l *StockLedger) refreshAlerts(now time.Time) {
	sellable := l.Sellable()

	l.applyAlertCondition(AlertTypeOutOfStock, SeverityCritical,
		sellable.LessThanOrEqual(decimal.Zero),
		"no sellable stock remaining")

	l.applyAlertCondition(AlertTypeLowStock, SeverityWarning,
		l.Thresholds.Minimum.IsPositive() && sellable.IsPositive() && sellable.LessThanOrEqual(l.Thresholds.Minimum),
		fmt.Sprintf("sellable stock at or below minimum of %s", l.Thresholds.Minimum))

	l.applyAlertCondition(AlertTypeOverstock, SeverityInfo,
		l.Thresholds.Maximum.IsPositive() && l.Stock.Available.GreaterThan(l.Thresholds.Maximum),
		fmt.Sprintf("on-hand stock above maximum of %s", l.Thresholds.Maximum))

	expiringSoon := false
	hasExpired := l.Stock.Expired.IsPositive()
	for idx := range l.Batches {
		if l.Batches[idx].Status == BatchStatusActive && l.Batches[idx].ExpiresWithin(now, ExpiryAlertWindow) {
			expiringSoon = true
			break
		}
	}
	l.applyAlertCondition(AlertTypeExpiringSoon, SeverityWarning, expiringSoon,
		"one or more batches expire within 7 days")
	l.applyAlertCondition(AlertTypeExpired, SeverityCritical, hasExpired,
		"expired stock awaiting disposal")
	l.applyAlertCondition(AlertTypeDamaged, SeverityWarning, l.Stock.Damaged.IsPositive(),
		"damaged stock awaiting disposal")
}

func (l *StockLedger) applyAlertCondition(alertType AlertType, severity AlertSeverity, active bool, message string) {
	for idx := range l.Alerts {
		if l.Alerts[idx].Type == alertType && l.Alerts[idx].Active {
			if !active {
				l.Alerts[idx].Resolve()
			}
			return
		}
	}
	if active {
		l.Alerts = append(l.Alerts, *NewStockAlert(l.ID, alertType, severity, message))
	}
}

// deductFromBatches consumes shipped quantity from active batches in receipt
// order.
func (l *StockLedger) deductFromBatches(quantity decimal.Decimal) {
	remaining := quantity
	for idx := range l.Batches {
		if remaining.LessThanOrEqual(decimal.Zero) {
			return
		}
		if l.Batches[idx].Status != BatchStatusActive {
			continue
		}
		remaining = remaining.Sub(l.Batches[idx].Deduct(remaining))
	}
}

func (l *StockLedger) recomputeTotalValue() {
	l.TotalValue = l.Stock.Available.Mul(l.UnitCost)
}

func (l *StockLedger) touch() {
	l.UpdatedAt = time.Now()
	l.IncrementVersion()
}

func validateMutation(quantity decimal.Decimal, actor uuid.UUID) error {
	if actor == uuid.Nil {
		return shared.ErrMissingActor
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	return nil
}

// BatchInfo carries lot details for received stock
type BatchInfo struct {
	LotNumber       string
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
}
