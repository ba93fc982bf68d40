package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tunguyen02/mobile-backend/gateway"
	"github.com/tunguyen02/mobile-backend/models"
	"github.com/tunguyen02/mobile-backend/repository"
	"github.com/tunguyen02/mobile-backend/services"
)

// cancellableStore refuses to begin a transaction on a done context, as the
// SQL driver does.
type cancellableStore struct{ *memStore }

func (s cancellableStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memStore.WithTx(ctx, fn)
}

// paidCancelledOrder seeds a Gateway order that was paid and then cancelled,
// and files a refund request for it.
func paidCancelledOrder(t *testing.T, f *fixture) (services.Identity, models.Order, *models.Refund) {
	t.Helper()
	user := customer()
	order, _ := seedOrder(f.store, user.UserID, models.PaymentMethodGateway, models.ShippingCancelled, models.PaymentCompleted, 23000)
	refund, svcErr := f.refunds.CreateRefundRequest(context.Background(), user,
		&models.CreateRefundRequest{OrderID: order.ID.String(), Reason: "ordered by mistake"})
	require.Nil(t, svcErr)
	return user, order, refund
}

func TestCreateRefundRequest(t *testing.T) {
	f := newFixture(t)
	_, order, refund := paidCancelledOrder(t, f)

	assert.Equal(t, models.RefundPending, refund.Status)
	assert.Equal(t, int64(23000), refund.Amount)
	assert.Equal(t, models.PaymentRefundPending, f.store.payment(order.ID).Status)
	assert.Eventually(t, func() bool { return f.events.has(models.EventRefundRequested, order.ID.String()) },
		time.Second, 10*time.Millisecond)
}

func TestCreateRefundRequest_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		method models.PaymentMethod
		ship   models.ShippingStatus
		pay    models.PaymentStatus
	}{
		{"cod payment", models.PaymentMethodCOD, models.ShippingCancelled, models.PaymentCompleted},
		{"unpaid", models.PaymentMethodGateway, models.ShippingCancelled, models.PaymentExpired},
		{"order not cancelled", models.PaymentMethodGateway, models.ShippingPending, models.PaymentCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			user := customer()
			order, _ := seedOrder(f.store, user.UserID, tc.method, tc.ship, tc.pay, 100)
			_, svcErr := f.refunds.CreateRefundRequest(context.Background(), user,
				&models.CreateRefundRequest{OrderID: order.ID.String(), Reason: "x"})
			require.NotNil(t, svcErr)
			assert.Equal(t, services.KindInvalidState, svcErr.Kind)
			assert.Equal(t, tc.pay, f.store.payment(order.ID).Status)
		})
	}

	t.Run("completed without a gateway transaction", func(t *testing.T) {
		f := newFixture(t)
		user := customer()
		order, payment := seedOrder(f.store, user.UserID, models.PaymentMethodGateway, models.ShippingCancelled, models.PaymentCompleted, 100)
		payment.TransactionRef = nil
		f.store.putOrder(order, payment)

		_, svcErr := f.refunds.CreateRefundRequest(context.Background(), user,
			&models.CreateRefundRequest{OrderID: order.ID.String(), Reason: "x"})
		require.NotNil(t, svcErr)
		assert.Equal(t, services.KindInvalidState, svcErr.Kind)
		assert.Equal(t, models.PaymentCompleted, f.store.payment(order.ID).Status)
	})

	t.Run("second request", func(t *testing.T) {
		f := newFixture(t)
		user, order, _ := paidCancelledOrder(t, f)
		_, svcErr := f.refunds.CreateRefundRequest(context.Background(), user,
			&models.CreateRefundRequest{OrderID: order.ID.String(), Reason: "again"})
		require.NotNil(t, svcErr)
		assert.Equal(t, services.KindInvalidState, svcErr.Kind)
	})

	t.Run("someone else's order", func(t *testing.T) {
		f := newFixture(t)
		order, _ := seedOrder(f.store, uuid.New(), models.PaymentMethodGateway, models.ShippingCancelled, models.PaymentCompleted, 100)
		_, svcErr := f.refunds.CreateRefundRequest(context.Background(), customer(),
			&models.CreateRefundRequest{OrderID: order.ID.String(), Reason: "x"})
		require.NotNil(t, svcErr)
		assert.Equal(t, 403, svcErr.StatusCode)
	})
}

func TestApproveRefund_Settles(t *testing.T) {
	f := newFixture(t)
	user, order, refund := paidCancelledOrder(t, f)

	approved, svcErr := f.refunds.ApproveRefund(context.Background(), staff(), refund.ID.String(), "ok")
	require.Nil(t, svcErr)
	assert.Equal(t, models.RefundProcessed, approved.Status)
	require.NotNil(t, approved.TransactionRef)
	assert.NotNil(t, approved.ProcessedAt)
	assert.Equal(t, 1, f.api.callCount())

	p := f.store.payment(order.ID)
	assert.Equal(t, models.PaymentRefunded, p.Status)
	info := p.Refund()
	require.NotNil(t, info)
	assert.Equal(t, int64(23000), info.Amount)
	assert.Equal(t, *approved.TransactionRef, info.TransactionRef)

	detail, svcErr := f.orders.GetOrder(context.Background(), user, order.ID.String())
	require.Nil(t, svcErr)
	require.NotNil(t, detail.Refund)
	assert.Equal(t, int64(23000), detail.Refund.Amount)

	_, svcErr = f.refunds.ApproveRefund(context.Background(), staff(), refund.ID.String(), "")
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindInvalidState, svcErr.Kind)
	assert.Equal(t, 1, f.api.callCount())
}

func TestApproveRefund_FailureThenReapprove(t *testing.T) {
	f := newFixture(t)
	f.useMerchantCodes(t, "94", "00")
	_, order, refund := paidCancelledOrder(t, f)

	_, svcErr := f.refunds.ApproveRefund(context.Background(), staff(), refund.ID.String(), "")
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindGateway, svcErr.Kind)
	assert.Equal(t, 1, f.api.callCount(), "settlement errors are not retried")
	assert.Equal(t, models.RefundFailed, f.store.refund(refund.ID).Status)
	assert.Contains(t, f.store.refund(refund.ID).AdminNote, "settlement failed")
	assert.Equal(t, models.PaymentRefundFailed, f.store.payment(order.ID).Status)

	again, svcErr := f.refunds.ApproveRefund(context.Background(), staff(), refund.ID.String(), "retry")
	require.Nil(t, svcErr)
	assert.Equal(t, models.RefundProcessed, again.Status)
	assert.Equal(t, models.PaymentRefunded, f.store.payment(order.ID).Status)
}

func TestApproveRefund_RetriesTransientErrors(t *testing.T) {
	f := newFixture(t)
	f.useMerchantCodes(t, "500", "500", "00")
	_, order, refund := paidCancelledOrder(t, f)

	approved, svcErr := f.refunds.ApproveRefund(context.Background(), staff(), refund.ID.String(), "")
	require.Nil(t, svcErr)
	assert.Equal(t, models.RefundProcessed, approved.Status)
	assert.Equal(t, 3, f.api.callCount())
	assert.Equal(t, models.PaymentRefunded, f.store.payment(order.ID).Status)
}

func TestApproveRefund_OutcomeRecordedAfterRequestDeadline(t *testing.T) {
	f := newFixture(t)
	_, order, refund := paidCancelledOrder(t, f)

	hanging := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(hanging.Close)

	store := cancellableStore{f.store}
	slow := gateway.RetryPolicy{MaxAttempts: 2, Timeout: 150 * time.Millisecond, Backoff: time.Millisecond}
	svc := services.NewRefundService(store, newGatewayClient(hanging.URL), slow, f.events, nil, f.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, svcErr := svc.ApproveRefund(ctx, staff(), refund.ID.String(), "")
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindGateway, svcErr.Kind)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)

	assert.Equal(t, models.RefundFailed, f.store.refund(refund.ID).Status)
	assert.Equal(t, models.PaymentRefundFailed, f.store.payment(order.ID).Status)

	retry := services.NewRefundService(store, f.gw, fastRetry(), f.events, nil, f.logger)
	again, svcErr := retry.ApproveRefund(context.Background(), staff(), refund.ID.String(), "")
	require.Nil(t, svcErr)
	assert.Equal(t, models.RefundProcessed, again.Status)
	assert.Equal(t, models.PaymentRefunded, f.store.payment(order.ID).Status)
}

func TestApproveRefund_TakesOverStaleApproval(t *testing.T) {
	f := newFixture(t)
	_, order, refund := paidCancelledOrder(t, f)

	f.store.markApproved(refund.ID, time.Now())
	_, svcErr := f.refunds.ApproveRefund(context.Background(), staff(), refund.ID.String(), "")
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindInvalidState, svcErr.Kind, "a settlement may still be running")
	assert.Equal(t, 0, f.api.callCount())

	f.store.markApproved(refund.ID, time.Now().Add(-time.Hour))
	approved, svcErr := f.refunds.ApproveRefund(context.Background(), staff(), refund.ID.String(), "")
	require.Nil(t, svcErr)
	assert.Equal(t, models.RefundProcessed, approved.Status)
	assert.Equal(t, 1, f.api.callCount())
	assert.Equal(t, models.PaymentRefunded, f.store.payment(order.ID).Status)
}

func TestRejectRefund(t *testing.T) {
	f := newFixture(t)
	_, order, refund := paidCancelledOrder(t, f)

	rejected, svcErr := f.refunds.RejectRefund(context.Background(), refund.ID.String(), "outside policy")
	require.Nil(t, svcErr)
	assert.Equal(t, models.RefundRejected, rejected.Status)
	assert.Equal(t, "outside policy", rejected.AdminNote)
	assert.Equal(t, models.PaymentCompleted, f.store.payment(order.ID).Status)
	assert.Equal(t, 0, f.api.callCount())

	_, svcErr = f.refunds.ApproveRefund(context.Background(), staff(), refund.ID.String(), "")
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindInvalidState, svcErr.Kind)
}

func TestListRefunds(t *testing.T) {
	f := newFixture(t)
	user, _, refund := paidCancelledOrder(t, f)
	paidCancelledOrder(t, f)

	mine, svcErr := f.refunds.ListMyRefunds(context.Background(), user, 1, 10)
	require.Nil(t, svcErr)
	require.Len(t, mine.Refunds, 1)
	assert.Equal(t, refund.ID, mine.Refunds[0].ID)

	pending, svcErr := f.refunds.ListAllRefunds(context.Background(), string(models.RefundPending), 1, 10)
	require.Nil(t, svcErr)
	assert.Equal(t, int64(2), pending.Meta.Total)

	_, svcErr = f.refunds.ListAllRefunds(context.Background(), "Bogus", 1, 10)
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindValidation, svcErr.Kind)

	_, svcErr = f.refunds.GetRefund(context.Background(), customer(), refund.ID.String())
	require.NotNil(t, svcErr)
	assert.Equal(t, 403, svcErr.StatusCode)
}
