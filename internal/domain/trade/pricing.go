package trade

import (
	"github.com/shopspring/decimal"

	"github.com/milkvine/backoffice/internal/domain/shared"
)

// AmountType states whether a discount or adjustment is a percentage of the
// base total or a fixed amount
type AmountType string

const (
	AmountTypePercentage AmountType = "percentage"
	AmountTypeFixed      AmountType = "fixed"
)

// IsValid returns true if the amount type is valid
func (t AmountType) IsValid() bool {
	return t == AmountTypePercentage || t == AmountTypeFixed
}

// CustomAdjustment is a named order-level correction (e.g. crate deposit,
// loyalty rebate) applied after the global discount
type CustomAdjustment struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	Type   AmountType      `json:"type"`
}

// PricingTerms are the order-level inputs to the pricing calculation
type PricingTerms struct {
	OrderDiscount      decimal.Decimal
	Shipping           decimal.Decimal
	GlobalDiscount     decimal.Decimal
	GlobalDiscountType AmountType
	CustomAdjustment   *CustomAdjustment
}

// OrderPricing is the derived pricing block of an order
type OrderPricing struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	OrderDiscount      decimal.Decimal `json:"discount"`
	Tax                decimal.Decimal `json:"tax"`
	Shipping           decimal.Decimal `json:"shipping"`
	GlobalDiscount     decimal.Decimal `json:"globalDiscount"`
	GlobalDiscountType AmountType      `json:"globalDiscountType"`
	CustomAdjustment   *CustomAdjustment `json:"customAdjustment,omitempty" gorm:"serializer:json"`

	GlobalDiscountAmount   decimal.Decimal `json:"globalDiscountAmount"`
	CustomAdjustmentAmount decimal.Decimal `json:"customAdjustmentAmount"`

	// RawTotal is the total before the zero floor; negative when discounts
	// and adjustments exceed the base total.
	RawTotal decimal.Decimal `json:"rawTotal"`
	Total    decimal.Decimal `json:"total"`
}

// LineTotal computes a line item's total: quantity * unitPrice - discount
func LineTotal(item OrderItem) decimal.Decimal {
	return item.Quantity.Mul(item.UnitPrice).Sub(item.Discount)
}

// LineTax computes a line item's GST-style tax on its discounted total
func LineTax(item OrderItem) decimal.Decimal {
	if !item.TaxRate.IsPositive() {
		return decimal.Zero
	}
	return LineTotal(item).Mul(item.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
}

// CalculatePricing derives the full pricing block for a set of items and
// order-level terms. Pure and deterministic: re-run on every create/update.
//
// Composition:
//
//	subtotal   = sum of line totals
//	baseTotal  = subtotal - orderDiscount + tax + shipping
//	total      = baseTotal - globalDiscountAmount - customAdjustmentAmount
//
// Percentage discounts/adjustments apply to baseTotal. Total is floored at
// zero; the unfloored value is kept in RawTotal.
func CalculatePricing(items []OrderItem, terms PricingTerms) (OrderPricing, error) {
	if terms.OrderDiscount.IsNegative() {
		return OrderPricing{}, shared.NewDomainError("INVALID_DISCOUNT", "Order discount cannot be negative")
	}
	if terms.Shipping.IsNegative() {
		return OrderPricing{}, shared.NewDomainError("INVALID_SHIPPING", "Shipping cannot be negative")
	}
	if !terms.GlobalDiscount.IsZero() && !terms.GlobalDiscountType.IsValid() {
		return OrderPricing{}, shared.NewDomainError("INVALID_DISCOUNT_TYPE", "Invalid global discount type")
	}
	if terms.CustomAdjustment != nil && !terms.CustomAdjustment.Type.IsValid() {
		return OrderPricing{}, shared.NewDomainError("INVALID_ADJUSTMENT_TYPE", "Invalid custom adjustment type")
	}

	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineTotal(item))
		tax = tax.Add(LineTax(item))
	}

	baseTotal := subtotal.Sub(terms.OrderDiscount).Add(tax).Add(terms.Shipping)

	globalDiscountAmount := scaledAmount(baseTotal, terms.GlobalDiscount, terms.GlobalDiscountType)

	customAdjustmentAmount := decimal.Zero
	if terms.CustomAdjustment != nil {
		customAdjustmentAmount = scaledAmount(baseTotal, terms.CustomAdjustment.Amount, terms.CustomAdjustment.Type)
	}

	rawTotal := baseTotal.Sub(globalDiscountAmount).Sub(customAdjustmentAmount)
	total := rawTotal
	if total.IsNegative() {
		total = decimal.Zero
	}

	return OrderPricing{
		Subtotal:               subtotal,
		OrderDiscount:          terms.OrderDiscount,
		Tax:                    tax,
		Shipping:               terms.Shipping,
		GlobalDiscount:         terms.GlobalDiscount,
		GlobalDiscountType:     terms.GlobalDiscountType,
		CustomAdjustment:       terms.CustomAdjustment,
		GlobalDiscountAmount:   globalDiscountAmount,
		CustomAdjustmentAmount: customAdjustmentAmount,
		RawTotal:               rawTotal,
		Total:                  total,
	}, nil
}

// PriceItems recomputes every line total in place and returns the repriced
// slice. Used before CalculatePricing when quantities changed.
func PriceItems(items []OrderItem) []OrderItem {
	for idx := range items {
		items[idx].TotalPrice = LineTotal(items[idx])
	}
	return items
}

func scaledAmount(base, value decimal.Decimal, amountType AmountType) decimal.Decimal {
	if value.IsZero() {
		return decimal.Zero
	}
	if amountType == AmountTypePercentage {
		return base.Mul(value).Div(decimal.NewFromInt(100)).Round(2)
	}
	return value
}
