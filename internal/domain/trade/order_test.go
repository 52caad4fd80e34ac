package trade

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDealerOrder(t *testing.T) *Order {
	t.Helper()
	dealerID := uuid.New()
	order, err := NewOrder(uuid.New(), "ORD-1001", &dealerID, nil, PaymentMethodCredit)
	require.NoError(t, err)
	return order
}

func TestNewOrder(t *testing.T) {
	t.Run("creates pending dealer order", func(t *testing.T) {
		order := newDealerOrder(t)

		assert.Equal(t, OrderStatusPending, order.Status)
		assert.Equal(t, PaymentStatusPending, order.Payment.Status)
		assert.True(t, order.IsDealerOrder())
	})

	t.Run("creates customer order", func(t *testing.T) {
		customerID := uuid.New()
		order, err := NewOrder(uuid.New(), "ORD-1002", nil, &customerID, PaymentMethodCash)

		require.NoError(t, err)
		assert.False(t, order.IsDealerOrder())
	})

	t.Run("rejects both dealer and customer", func(t *testing.T) {
		dealerID := uuid.New()
		customerID := uuid.New()
		_, err := NewOrder(uuid.New(), "ORD-1003", &dealerID, &customerID, PaymentMethodCash)
		assert.Error(t, err)
	})

	t.Run("rejects neither dealer nor customer", func(t *testing.T) {
		_, err := NewOrder(uuid.New(), "ORD-1004", nil, nil, PaymentMethodCash)
		assert.Error(t, err)
	})

	t.Run("rejects empty order number", func(t *testing.T) {
		dealerID := uuid.New()
		_, err := NewOrder(uuid.New(), "", &dealerID, nil, PaymentMethodCash)
		assert.Error(t, err)
	})
}

func TestOrderStatusTransitions(t *testing.T) {
	t.Run("happy path to completed", func(t *testing.T) {
		order := newDealerOrder(t)

		require.NoError(t, order.Confirm())
		require.NoError(t, order.StartProcessing())
		require.NoError(t, order.MarkPacked())
		require.NoError(t, order.Ship())
		require.NoError(t, order.MarkDelivered())
		require.NoError(t, order.Complete())

		assert.Equal(t, OrderStatusCompleted, order.Status)
		assert.NotNil(t, order.ConfirmedAt)
		assert.NotNil(t, order.ShippedAt)
		assert.NotNil(t, order.DeliveredAt)
	})

	t.Run("cancellable until packed", func(t *testing.T) {
		for _, setup := range []func(*Order){
			func(o *Order) {},
			func(o *Order) { _ = o.Confirm() },
			func(o *Order) { _ = o.Confirm(); _ = o.StartProcessing() },
			func(o *Order) { _ = o.Confirm(); _ = o.StartProcessing(); _ = o.MarkPacked() },
		} {
			order := newDealerOrder(t)
			setup(order)

			require.NoError(t, order.Cancel("dealer asked to cancel"))
			assert.Equal(t, OrderStatusCancelled, order.Status)
			assert.Equal(t, "dealer asked to cancel", order.CancelReason)
			assert.NotNil(t, order.CancelledAt)
		}
	})

	t.Run("shipped order cannot be cancelled", func(t *testing.T) {
		order := newDealerOrder(t)
		require.NoError(t, order.Confirm())
		require.NoError(t, order.StartProcessing())
		require.NoError(t, order.MarkPacked())
		require.NoError(t, order.Ship())

		err := order.Cancel("too late")

		var transitionErr *InvalidTransitionError
		assert.ErrorAs(t, err, &transitionErr)
	})

	t.Run("cannot ship before packed", func(t *testing.T) {
		order := newDealerOrder(t)
		assert.Error(t, order.Ship())
	})

	t.Run("return and refund after delivery", func(t *testing.T) {
		order := newDealerOrder(t)
		require.NoError(t, order.Confirm())
		require.NoError(t, order.StartProcessing())
		require.NoError(t, order.MarkPacked())
		require.NoError(t, order.Ship())
		require.NoError(t, order.MarkDelivered())

		require.NoError(t, order.MarkReturned())
		require.NoError(t, order.MarkRefunded())
		assert.Equal(t, OrderStatusRefunded, order.Status)
	})

	t.Run("terminal statuses allow nothing", func(t *testing.T) {
		for _, status := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded} {
			assert.False(t, status.CanTransitionTo(OrderStatusPending), string(status))
			assert.False(t, status.CanTransitionTo(OrderStatusConfirmed), string(status))
		}
	})
}

func TestOrderItemMutation(t *testing.T) {
	lineItem := func(t *testing.T) OrderItem {
		t.Helper()
		it, err := NewOrderItem(uuid.New(), "Curd 1kg", decimal.NewFromInt(5), decimal.NewFromInt(60), decimal.Zero, decimal.Zero)
		require.NoError(t, err)
		return *it
	}

	t.Run("allowed while pending through packed", func(t *testing.T) {
		order := newDealerOrder(t)
		require.NoError(t, order.AddItem(lineItem(t)))
		require.NoError(t, order.Confirm())
		require.NoError(t, order.AddItem(lineItem(t)))
		assert.Len(t, order.Items, 2)
	})

	t.Run("rejected once shipped", func(t *testing.T) {
		order := newDealerOrder(t)
		require.NoError(t, order.AddItem(lineItem(t)))
		require.NoError(t, order.Confirm())
		require.NoError(t, order.StartProcessing())
		require.NoError(t, order.MarkPacked())
		require.NoError(t, order.Ship())

		assert.Error(t, order.AddItem(lineItem(t)))
	})

	t.Run("rejects duplicate product", func(t *testing.T) {
		order := newDealerOrder(t)
		it := lineItem(t)
		require.NoError(t, order.AddItem(it))

		assert.Error(t, order.AddItem(it))
	})
}

func TestOrderPayment(t *testing.T) {
	t.Run("apply pricing recomputes the due amount", func(t *testing.T) {
		order := newDealerOrder(t)

		order.ApplyPricing(OrderPricing{Total: decimal.NewFromInt(870)})

		assert.True(t, order.Payment.DueAmount.Equal(decimal.NewFromInt(870)))
	})

	t.Run("payment completed closes the dues", func(t *testing.T) {
		order := newDealerOrder(t)
		order.ApplyPricing(OrderPricing{Total: decimal.NewFromInt(870)})

		order.MarkPaymentCompleted()

		assert.Equal(t, PaymentStatusCompleted, order.Payment.Status)
		assert.True(t, order.Payment.PaidAmount.Equal(decimal.NewFromInt(870)))
		assert.True(t, order.Payment.DueAmount.IsZero())
	})

	t.Run("refund zeroes both sides", func(t *testing.T) {
		order := newDealerOrder(t)
		order.ApplyPricing(OrderPricing{Total: decimal.NewFromInt(870)})
		order.MarkPaymentCompleted()

		order.MarkPaymentRefunded()

		assert.Equal(t, PaymentStatusRefunded, order.Payment.Status)
		assert.True(t, order.Payment.PaidAmount.IsZero())
		assert.True(t, order.Payment.DueAmount.IsZero())
	})
}
