package service

import (
	"context"
	"errors"
	"pharmacy-payments/internal/gateway"
	"pharmacy-payments/internal/model"
	"pharmacy-payments/internal/repository"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvent(ref string, resultCode int) *gateway.Event {
	return &gateway.Event{
		Kind:       gateway.KindCollectResult,
		PrimaryRef: ref,
		Success:    resultCode == 0,
		ResultCode: resultCode,
		ResultDesc: "test",
	}
}

func TestMobileMoneySuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, payment := f.seedOrder(t, "ws_abc", model.MethodMobileCollect,
		lineSpec{medicationID: "med-1", quantity: 2, stock: 10},
		lineSpec{medicationID: "med-2", quantity: 1, stock: 5},
	)

	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_abc", 0)))

	assert.Equal(t, model.PaymentCompleted, f.paymentStatus(t, payment.ID))
	assert.Equal(t, model.OrderPaid, f.orderStatus(t, order.ID))
	assert.Equal(t, int32(8), f.stock(t, "med-1"))
	assert.Equal(t, int32(4), f.stock(t, "med-2"))
}

func TestDuplicateDeliveryIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, payment := f.seedOrder(t, "ws_abc", model.MethodMobileCollect,
		lineSpec{medicationID: "med-1", quantity: 2, stock: 10},
	)

	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_abc", 0)))
	// exact same payload delivered again
	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_abc", 0)))
	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_abc", 0)))

	assert.Equal(t, model.PaymentCompleted, f.paymentStatus(t, payment.ID))
	assert.Equal(t, model.OrderPaid, f.orderStatus(t, order.ID))
	assert.Equal(t, int32(8), f.stock(t, "med-1"))
}

func TestFailedEventTouchesNothingElse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, payment := f.seedOrder(t, "ws_cancelled", model.MethodMobileCollect,
		lineSpec{medicationID: "med-1", quantity: 2, stock: 10},
	)

	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_cancelled", 1032)))

	assert.Equal(t, model.PaymentFailed, f.paymentStatus(t, payment.ID))
	assert.Equal(t, model.OrderPending, f.orderStatus(t, order.ID))
	assert.Equal(t, int32(10), f.stock(t, "med-1"))
}

func TestStatusIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, payment := f.seedOrder(t, "ws_mono", model.MethodMobileCollect,
		lineSpec{medicationID: "med-1", quantity: 1, stock: 10},
	)

	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_mono", 0)))
	// a late failure report cannot undo the completion
	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_mono", 1)))
	assert.Equal(t, model.PaymentCompleted, f.paymentStatus(t, payment.ID))

	_, failed := f.seedOrder(t, "ws_mono2", model.MethodMobileCollect,
		lineSpec{medicationID: "med-9", quantity: 1, stock: 10},
	)
	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_mono2", 1)))
	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_mono2", 0)))
	assert.Equal(t, model.PaymentFailed, f.paymentStatus(t, failed.ID))
}

func TestAmbiguousMatchFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, first := f.seedOrder(t, "ws_first", model.MethodMobileCollect,
		lineSpec{medicationID: "med-1", quantity: 1, stock: 10},
	)
	_, second := f.seedOrder(t, "ws_second", model.MethodMobileCollect,
		lineSpec{medicationID: "med-2", quantity: 1, stock: 10},
	)

	// both metadata blobs contain the candidate as a substring
	shared := `{"note":"ref-SHARED-123"}`
	require.NoError(t, f.db.Model(&model.Payment{}).Where("id = ?", first.ID).Update("metadata", shared).Error)
	require.NoError(t, f.db.Model(&model.Payment{}).Where("id = ?", second.ID).Update("metadata", shared+"x").Error)

	err := f.ledger.Apply(ctx, collectEvent("ref-SHARED-123", 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrAmbiguousMatch))

	// neither payment was touched
	assert.Equal(t, model.PaymentPending, f.paymentStatus(t, first.ID))
	assert.Equal(t, model.PaymentPending, f.paymentStatus(t, second.ID))
}

func TestPaymentNotFound(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.Apply(context.Background(), collectEvent("ws_nobody", 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrPaymentNotFound))
}

func TestDisburseCompletionLeavesOrderAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, payment := f.seedOrder(t, "AG_disburse_1", model.MethodMobileDisburse,
		lineSpec{medicationID: "med-1", quantity: 2, stock: 10},
	)

	require.NoError(t, f.ledger.Apply(ctx, &gateway.Event{
		Kind:       gateway.KindDisburseResult,
		PrimaryRef: "AG_disburse_1",
		Success:    true,
	}))

	assert.Equal(t, model.PaymentCompleted, f.paymentStatus(t, payment.ID))
	assert.Equal(t, model.OrderPending, f.orderStatus(t, order.ID))
	assert.Equal(t, int32(10), f.stock(t, "med-1"))
}

func TestDisburseTimeoutIsAckOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, payment := f.seedOrder(t, "AG_timeout_1", model.MethodMobileDisburse,
		lineSpec{medicationID: "med-1", quantity: 1, stock: 10},
	)

	require.NoError(t, f.ledger.Apply(ctx, &gateway.Event{
		Kind:       gateway.KindDisburseTimeout,
		PrimaryRef: "AG_timeout_1",
	}))

	assert.Equal(t, model.PaymentPending, f.paymentStatus(t, payment.ID))
}

func TestStockShortfallFlagsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, payment := f.seedOrder(t, "ws_short", model.MethodMobileCollect,
		lineSpec{medicationID: "med-1", quantity: 2, stock: 10},
		lineSpec{medicationID: "med-2", quantity: 5, stock: 3},
	)

	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_short", 0)))

	// payment accounting stands, order flagged for manual reconciliation
	assert.Equal(t, model.PaymentCompleted, f.paymentStatus(t, payment.ID))
	flagged := f.order(t, order.ID)
	assert.Equal(t, model.OrderPaid, flagged.Status)
	assert.True(t, flagged.Flagged)
	assert.Contains(t, flagged.FlagReason, "med-2")

	// no partial decrement: the satisfiable line rolled back with the short one
	assert.Equal(t, int32(10), f.stock(t, "med-1"))
	assert.Equal(t, int32(3), f.stock(t, "med-2"))
}

func TestCompletionForCancelledOrderFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, payment := f.seedOrder(t, "ws_late", model.MethodMobileCollect,
		lineSpec{medicationID: "med-1", quantity: 1, stock: 10},
	)
	require.NoError(t, f.db.Model(&model.Order{}).Where("id = ?", order.ID).
		Update("status", model.OrderCancelled).Error)

	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_late", 0)))

	assert.Equal(t, model.PaymentCompleted, f.paymentStatus(t, payment.ID))
	flagged := f.order(t, order.ID)
	assert.Equal(t, model.OrderCancelled, flagged.Status)
	assert.True(t, flagged.Flagged)
	assert.Equal(t, int32(10), f.stock(t, "med-1"))
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, payment := f.seedOrder(t, "ws_refund", model.MethodMobileCollect,
		lineSpec{medicationID: "med-1", quantity: 1, stock: 10},
	)

	// not COMPLETED yet
	err := f.ledger.Refund(ctx, payment.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_refund", 0)))
	require.NoError(t, f.ledger.Refund(ctx, payment.ID))
	assert.Equal(t, model.PaymentRefunded, f.paymentStatus(t, payment.ID))

	// refund is terminal too
	err = f.ledger.Refund(ctx, payment.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestCheckoutCompletedDrivesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, payment := f.seedOrder(t, "cs_test_1", model.MethodCard,
		lineSpec{medicationID: "med-1", quantity: 3, stock: 10},
	)

	require.NoError(t, f.ledger.Apply(ctx, &gateway.Event{
		Kind:        gateway.KindCheckoutCompleted,
		PrimaryRef:  "cs_test_1",
		FallbackRef: order.ID,
		Success:     true,
	}))

	assert.Equal(t, model.PaymentCompleted, f.paymentStatus(t, payment.ID))
	assert.Equal(t, model.OrderPaid, f.orderStatus(t, order.ID))
	assert.Equal(t, int32(7), f.stock(t, "med-1"))
}

func TestConcurrentDeliveriesDebitOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, payment := f.seedOrder(t, "ws_race", model.MethodMobileCollect,
		lineSpec{medicationID: "med-1", quantity: 2, stock: 10},
	)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			done <- f.ledger.Apply(ctx, collectEvent("ws_race", 0))
		}()
	}
	for i := 0; i < 4; i++ {
		err := <-done
		// sqlite may report busy/locked under contention; the losers of
		// the race are allowed to error, never to double-apply
		if err != nil {
			t.Logf("concurrent apply: %v", err)
		}
	}

	// at-most-once effects regardless of which delivery won
	if f.paymentStatus(t, payment.ID) == model.PaymentCompleted {
		assert.Equal(t, model.OrderPaid, f.orderStatus(t, order.ID))
		assert.Equal(t, int32(8), f.stock(t, "med-1"))
	}

	// a retry after the dust settles converges
	require.NoError(t, f.ledger.Apply(ctx, collectEvent("ws_race", 0)))
	assert.Equal(t, model.PaymentCompleted, f.paymentStatus(t, payment.ID))
	assert.Equal(t, int32(8), f.stock(t, "med-1"))
}

func TestApplyResolvesViaMetadataOrderID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := &model.Order{
		ID:          uuid.NewString(),
		PatientID:   "pat-1",
		PharmacyID:  "ph-1",
		Status:      model.OrderPending,
		TotalAmount: decimal.NewFromInt(100),
		Currency:    "KES",
	}
	require.NoError(t, f.db.Create(order).Error)

	// reference never assigned; only the metadata correlates
	payment := &model.Payment{
		ID:       uuid.NewString(),
		OrderID:  order.ID,
		Amount:   decimal.NewFromInt(100),
		Method:   model.MethodCard,
		Status:   model.PaymentPending,
		Metadata: `{"order_id":"` + order.ID + `"}`,
	}
	require.NoError(t, f.db.Create(payment).Error)

	require.NoError(t, f.ledger.Apply(ctx, &gateway.Event{
		Kind:        gateway.KindCheckoutCompleted,
		PrimaryRef:  "cs_unknown_session",
		FallbackRef: order.ID,
		Success:     true,
	}))

	assert.Equal(t, model.PaymentCompleted, f.paymentStatus(t, payment.ID))
}
