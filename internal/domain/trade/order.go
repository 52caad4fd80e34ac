package trade

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/milkvine/backoffice/internal/domain/shared"
)

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPacked     OrderStatus = "packed"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusPacked,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCompleted,
		OrderStatusCancelled, OrderStatusReturned, OrderStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo checks whether the status may move to the target status
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return target == OrderStatusConfirmed || target == OrderStatusCancelled
	case OrderStatusConfirmed:
		return target == OrderStatusProcessing || target == OrderStatusCancelled
	case OrderStatusProcessing:
		return target == OrderStatusPacked || target == OrderStatusCancelled
	case OrderStatusPacked:
		return target == OrderStatusShipped || target == OrderStatusCancelled
	case OrderStatusShipped:
		return target == OrderStatusDelivered
	case OrderStatusDelivered:
		return target == OrderStatusCompleted || target == OrderStatusReturned
	case OrderStatusReturned:
		return target == OrderStatusRefunded
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return false
	}
	return false
}

// AllowsItemMutation returns true while items (and their reservations) may
// still change. Shipped and later statuses are terminal for ledger mutation.
func (s OrderStatus) AllowsItemMutation() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusPacked:
		return true
	}
	return false
}

// PaymentMethod represents how an order is paid
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCredit       PaymentMethod = "credit"
	PaymentMethodUPI          PaymentMethod = "upi"
	PaymentMethodBankTransfer PaymentMethod = "bank-transfer"
)

// PaymentStatus represents the settlement state of an order's payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPartial   PaymentStatus = "partial"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// OrderItem is a line item on an order
type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Discount    decimal.Decimal `json:"discount"` // absolute, per line
	TaxRate     decimal.Decimal `json:"taxRate"`  // percentage
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

// NewOrderItem creates a line item
func NewOrderItem(productID uuid.UUID, productName string, quantity, unitPrice, discount, taxRate decimal.Decimal) (*OrderItem, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	if discount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_DISCOUNT", "Line discount cannot be negative")
	}
	if taxRate.IsNegative() {
		return nil, shared.NewDomainError("INVALID_TAX_RATE", "Tax rate cannot be negative")
	}

	item := &OrderItem{
		ID:          uuid.New(),
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Discount:    discount,
		TaxRate:     taxRate,
	}
	item.TotalPrice = LineTotal(*item)
	return item, nil
}

// PaymentInfo is an order's payment block
type PaymentInfo struct {
	Method     PaymentMethod   `json:"method"`
	Status     PaymentStatus   `json:"status"`
	PaidAmount decimal.Decimal `json:"paidAmount"`
	DueAmount  decimal.Decimal `json:"dueAmount"`
}

// Order is the order aggregate as seen by the settlement core. The order
// resource layer owns its persistence; settlement receives the aggregate,
// mutates pricing/payment/status and hands it back.
type Order struct {
	shared.TenantAggregateRoot
	OrderNumber string     `gorm:"type:varchar(50);not null"`
	DealerID    *uuid.UUID `gorm:"type:uuid;index"`
	CustomerID  *uuid.UUID `gorm:"type:uuid;index"`

	// Warehouse for fulfilment: an explicit id, or a free-text code/name
	// resolved during settlement.
	WarehouseID  *uuid.UUID `gorm:"type:uuid"`
	WarehouseRef string     `gorm:"type:varchar(200)"`

	Items   []OrderItem  `gorm:"serializer:json"`
	Pricing OrderPricing `gorm:"embedded;embeddedPrefix:pricing_"`
	Payment PaymentInfo  `gorm:"embedded;embeddedPrefix:payment_"`

	Status       OrderStatus `gorm:"type:varchar(20);not null;default:'pending'"`
	CancelReason string      `gorm:"type:varchar(255)"`

	ConfirmedAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// NewOrder creates a pending order for a dealer or a customer (exactly one)
func NewOrder(tenantID uuid.UUID, orderNumber string, dealerID, customerID *uuid.UUID, method PaymentMethod) (*Order, error) {
	if orderNumber == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if (dealerID == nil) == (customerID == nil) {
		return nil, shared.NewDomainError("INVALID_PARTY", "Order must reference exactly one of dealer or customer")
	}

	return &Order{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		OrderNumber:         orderNumber,
		DealerID:            dealerID,
		CustomerID:          customerID,
		Items:               make([]OrderItem, 0),
		Payment: PaymentInfo{
			Method:     method,
			Status:     PaymentStatusPending,
			PaidAmount: decimal.Zero,
			DueAmount:  decimal.Zero,
		},
		Status: OrderStatusPending,
	}, nil
}

// IsDealerOrder returns true when the order belongs to a dealer
func (o *Order) IsDealerOrder() bool {
	return o.DealerID != nil
}

// AddItem appends a line item; only while item mutation is allowed
func (o *Order) AddItem(item OrderItem) error {
	if !o.Status.AllowsItemMutation() {
		return &InvalidTransitionError{From: o.Status, Operation: "add item"}
	}
	for _, existing := range o.Items {
		if existing.ProductID == item.ProductID {
			return shared.NewDomainError("DUPLICATE_PRODUCT", "Product already exists in order, update its quantity instead")
		}
	}
	o.Items = append(o.Items, item)
	o.UpdatedAt = time.Now()
	return nil
}

// ApplyPricing replaces the pricing block and recomputes the due amount
func (o *Order) ApplyPricing(p OrderPricing) {
	o.Pricing = p
	o.Payment.DueAmount = p.Total.Sub(o.Payment.PaidAmount)
	o.UpdatedAt = time.Now()
}

// MarkPaymentCompleted closes the payment in full
func (o *Order) MarkPaymentCompleted() {
	o.Payment.Status = PaymentStatusCompleted
	o.Payment.PaidAmount = o.Pricing.Total
	o.Payment.DueAmount = decimal.Zero
	o.UpdatedAt = time.Now()
}

// MarkPaymentRefunded records that the paid amount was returned
func (o *Order) MarkPaymentRefunded() {
	o.Payment.Status = PaymentStatusRefunded
	o.Payment.PaidAmount = decimal.Zero
	o.Payment.DueAmount = decimal.Zero
	o.UpdatedAt = time.Now()
}

// Confirm transitions pending -> confirmed
func (o *Order) Confirm() error {
	if err := o.transition(OrderStatusConfirmed); err != nil {
		return err
	}
	now := time.Now()
	o.ConfirmedAt = &now
	return nil
}

// StartProcessing transitions confirmed -> processing
func (o *Order) StartProcessing() error {
	return o.transition(OrderStatusProcessing)
}

// MarkPacked transitions processing -> packed
func (o *Order) MarkPacked() error {
	return o.transition(OrderStatusPacked)
}

// Ship transitions packed -> shipped
func (o *Order) Ship() error {
	if err := o.transition(OrderStatusShipped); err != nil {
		return err
	}
	now := time.Now()
	o.ShippedAt = &now
	return nil
}

// MarkDelivered transitions shipped -> delivered
func (o *Order) MarkDelivered() error {
	if err := o.transition(OrderStatusDelivered); err != nil {
		return err
	}
	now := time.Now()
	o.DeliveredAt = &now
	return nil
}

// Complete transitions delivered -> completed
func (o *Order) Complete() error {
	return o.transition(OrderStatusCompleted)
}

// Cancel cancels the order from any status that still allows item mutation
func (o *Order) Cancel(reason string) error {
	if err := o.transition(OrderStatusCancelled); err != nil {
		return err
	}
	now := time.Now()
	o.CancelledAt = &now
	o.CancelReason = reason
	return nil
}

// MarkReturned transitions delivered -> returned
func (o *Order) MarkReturned() error {
	return o.transition(OrderStatusReturned)
}

// MarkRefunded transitions returned -> refunded
func (o *Order) MarkRefunded() error {
	return o.transition(OrderStatusRefunded)
}

func (o *Order) transition(target OrderStatus) error {
	if !o.Status.CanTransitionTo(target) {
		return &InvalidTransitionError{From: o.Status, To: target}
	}
	o.Status = target
	o.UpdatedAt = time.Now()
	return nil
}

// InvalidTransitionError reports an order status transition (or an operation
// gated on status) that the state machine disallows.
type InvalidTransitionError struct {
	From      OrderStatus
	To        OrderStatus
	Operation string
}

// Error implements the error interface
func (e *InvalidTransitionError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("cannot %s on an order in %s status", e.Operation, e.From)
	}
	return fmt.Sprintf("order cannot transition from %s to %s", e.From, e.To)
}
