package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/gateway"
	"github.com/tunguyen02/mobile-backend/models"
	aws_pkg "github.com/tunguyen02/mobile-backend/pkg/aws"
	"github.com/tunguyen02/mobile-backend/repository"
	"go.uber.org/zap"
)

// RefundService runs the refund workflow for paid Gateway orders.
type RefundService interface {
	CreateRefundRequest(ctx context.Context, user Identity, req *models.CreateRefundRequest) (*models.Refund, *ServiceError)
	ListMyRefunds(ctx context.Context, user Identity, page, limit int) (*models.RefundListResponse, *ServiceError)
	ListAllRefunds(ctx context.Context, status string, page, limit int) (*models.RefundListResponse, *ServiceError)
	GetRefund(ctx context.Context, user Identity, refundID string) (*models.Refund, *ServiceError)
	ApproveRefund(ctx context.Context, admin Identity, refundID, note string) (*models.Refund, *ServiceError)
	RejectRefund(ctx context.Context, refundID, reason string) (*models.Refund, *ServiceError)
}

const (
	// refundOutcomeTimeout bounds the write that records a settlement result.
	refundOutcomeTimeout = 10 * time.Second
	// staleApprovalFallback applies when the retry policy has no per-attempt
	// timeout and so no known upper bound.
	staleApprovalFallback = 15 * time.Minute
)

type refundServiceImpl struct {
	store   repository.Store
	gateway PaymentGateway
	retry   gateway.RetryPolicy
	fx      *sideEffects
	logger  *zap.Logger
}

func NewRefundService(
	store repository.Store,
	gw PaymentGateway,
	retry gateway.RetryPolicy,
	events EventPublisher,
	metrics MetricsRecorder,
	logger *zap.Logger,
) RefundService {
	return &refundServiceImpl{
		store:   store,
		gateway: gw,
		retry:   retry,
		fx:      &sideEffects{events: events, metrics: metrics, logger: logger},
		logger:  logger,
	}
}

// refundTarget is the order, payment and refund of one workflow step,
// locked in that order.
type refundTarget struct {
	order   *models.Order
	payment *models.Payment
	refund  *models.Refund
}

func lockRefundTarget(ctx context.Context, tx repository.Store, refundID, orderID uuid.UUID) (*refundTarget, error) {
	order, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payment, err := tx.Payments().FindByOrderIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	refund, err := tx.Refunds().FindByIDForUpdate(ctx, refundID)
	if err != nil {
		return nil, err
	}
	return &refundTarget{order: order, payment: payment, refund: refund}, nil
}

func (s *refundServiceImpl) CreateRefundRequest(ctx context.Context, user Identity, req *models.CreateRefundRequest) (*models.Refund, *ServiceError) {
	orderID, svcErr := parseID(req.OrderID, "order")
	if svcErr != nil {
		return nil, svcErr
	}

	var refund *models.Refund
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if isNotFound(err) {
				return notFoundError("Order not found")
			}
			return err
		}
		if order.UserID != user.UserID {
			return forbiddenError("You can only request refunds for your own orders")
		}
		payment, err := tx.Payments().FindByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if payment.Method != models.PaymentMethodGateway {
			return invalidStateError("refunds are only available for %s payments", models.PaymentMethodGateway)
		}
		if payment.Status != models.PaymentCompleted {
			return invalidStateError("payment must be Completed to request a refund, current status %s", payment.Status)
		}
		if payment.TransactionRef == nil {
			return invalidStateError("payment has no gateway transaction to refund")
		}
		if order.ShippingStatus != models.ShippingCancelled {
			return invalidStateError("order must be Cancelled to request a refund, current status %s", order.ShippingStatus)
		}
		if _, err := tx.Refunds().FindByOrderID(ctx, orderID); err == nil {
			return invalidStateError("a refund already exists for this order")
		} else if !isNotFound(err) {
			return err
		}

		refund = &models.Refund{
			ID:        uuid.New(),
			OrderID:   orderID,
			PaymentID: payment.ID,
			UserID:    user.UserID,
			Amount:    payment.Amount,
			Reason:    req.Reason,
			Status:    models.RefundPending,
		}
		if err := tx.Refunds().Create(ctx, refund); err != nil {
			return err
		}
		if err := payment.TransitionTo(models.PaymentRefundPending); err != nil {
			return err
		}
		return tx.Payments().Update(ctx, payment)
	})
	if err != nil {
		return nil, asServiceError(err, s.logger, "Failed to create refund request", zap.String("order_id", req.OrderID))
	}

	s.logger.Info("Refund requested",
		zap.String("refund_id", refund.ID.String()),
		zap.String("order_id", refund.OrderID.String()),
		zap.Int64("amount", refund.Amount))
	s.fx.publish(refundEvent(models.EventRefundRequested, refund))
	s.fx.count(aws_pkg.MetricRefundsRequested, float64(refund.Amount))
	return refund, nil
}

func refundEvent(kind string, r *models.Refund) models.DomainEvent {
	return models.DomainEvent{
		Type:      kind,
		OrderID:   r.OrderID.String(),
		UserID:    r.UserID.String(),
		PaymentID: r.PaymentID.String(),
		RefundID:  r.ID.String(),
		Amount:    r.Amount,
		Status:    string(r.Status),
	}
}

func (s *refundServiceImpl) ListMyRefunds(ctx context.Context, user Identity, page, limit int) (*models.RefundListResponse, *ServiceError) {
	refunds, total, err := s.store.Refunds().FindByUserID(ctx, user.UserID, page, limit)
	if err != nil {
		s.logger.Error("Failed to list refunds", zap.String("user_id", user.UserID.String()), zap.Error(err))
		return nil, internalError("Failed to list refunds")
	}
	return &models.RefundListResponse{Refunds: refunds, Meta: pageMeta(page, limit, total)}, nil
}

func (s *refundServiceImpl) ListAllRefunds(ctx context.Context, status string, page, limit int) (*models.RefundListResponse, *ServiceError) {
	st := models.RefundStatus(status)
	switch st {
	case "", models.RefundPending, models.RefundApproved, models.RefundRejected, models.RefundProcessed, models.RefundFailed:
	default:
		return nil, validationError("unknown refund status %q", status)
	}
	refunds, total, err := s.store.Refunds().FindAll(ctx, st, page, limit)
	if err != nil {
		s.logger.Error("Failed to list all refunds", zap.Error(err))
		return nil, internalError("Failed to list refunds")
	}
	return &models.RefundListResponse{Refunds: refunds, Meta: pageMeta(page, limit, total)}, nil
}

func (s *refundServiceImpl) GetRefund(ctx context.Context, user Identity, refundID string) (*models.Refund, *ServiceError) {
	id, svcErr := parseID(refundID, "refund")
	if svcErr != nil {
		return nil, svcErr
	}
	refund, err := s.store.Refunds().FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("Refund not found")
		}
		s.logger.Error("Failed to fetch refund", zap.String("refund_id", refundID), zap.Error(err))
		return nil, internalError("Failed to fetch refund")
	}
	if !user.IsStaff() && refund.UserID != user.UserID {
		return nil, forbiddenError("You do not have access to this refund")
	}
	return refund, nil
}

// ApproveRefund marks the refund Approved, settles it with the gateway
// outside any transaction, then records the outcome. A failed settlement
// leaves the refund Failed and the payment Refund_Failed; approving again
// retries it.
//
// Settlement and the outcome write do not inherit cancellation from ctx, so
// a request timeout or a dropped client cannot strand the refund in
// Approved. A refund still Approved after the whole retry budget has passed
// lost its outcome to a crash and may be approved again.
func (s *refundServiceImpl) ApproveRefund(ctx context.Context, admin Identity, refundID, note string) (*models.Refund, *ServiceError) {
	id, svcErr := parseID(refundID, "refund")
	if svcErr != nil {
		return nil, svcErr
	}
	current, err := s.store.Refunds().FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("Refund not found")
		}
		return nil, asServiceError(err, s.logger, "Failed to fetch refund", zap.String("refund_id", refundID))
	}

	var target *refundTarget
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		t, err := lockRefundTarget(ctx, tx, id, current.OrderID)
		if err != nil {
			return err
		}
		if t.payment.TransactionRef == nil {
			return invalidStateError("payment has no gateway transaction to refund")
		}
		if t.refund.Status == models.RefundApproved {
			if age := time.Since(t.refund.UpdatedAt); age < s.staleApprovalAfter() {
				return invalidStateError("refund settlement is already in progress")
			}
			s.logger.Warn("Refund left Approved without an outcome, settling again",
				zap.String("refund_id", refundID), zap.Time("approved_at", t.refund.UpdatedAt))
		} else if err := t.refund.TransitionTo(models.RefundApproved); err != nil {
			return err
		}
		if t.payment.Status == models.PaymentRefundFailed {
			if err := t.payment.TransitionTo(models.PaymentRefundPending); err != nil {
				return err
			}
			if err := tx.Payments().Update(ctx, t.payment); err != nil {
				return err
			}
		}
		if note != "" {
			t.refund.AdminNote = note
		}
		target = t
		return tx.Refunds().Update(ctx, t.refund)
	})
	if err != nil {
		return nil, asServiceError(err, s.logger, "Failed to approve refund", zap.String("refund_id", refundID))
	}

	result, settleErr := s.settleRefund(context.WithoutCancel(ctx), admin, target)

	outcomeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundOutcomeTimeout)
	defer cancel()

	var final *models.Refund
	err = s.store.WithTx(outcomeCtx, func(tx repository.Store) error {
		t, err := lockRefundTarget(outcomeCtx, tx, id, current.OrderID)
		if err != nil {
			return err
		}
		if t.refund.Status != models.RefundApproved {
			return invalidStateError("refund changed while settling, current status %s", t.refund.Status)
		}
		now := time.Now()
		if settleErr == nil {
			if err := t.refund.TransitionTo(models.RefundProcessed); err != nil {
				return err
			}
			ref := result.TransactionNo
			t.refund.TransactionRef = &ref
			t.refund.ProcessedAt = &now
			if err := t.payment.TransitionTo(models.PaymentRefunded); err != nil {
				return err
			}
			t.payment.RecordRefund(t.refund.Amount, ref, t.refund.AdminNote, now)
		} else {
			if err := t.refund.TransitionTo(models.RefundFailed); err != nil {
				return err
			}
			t.refund.AdminNote = appendNote(t.refund.AdminNote, "settlement failed: "+settleErr.Error())
			if err := t.payment.TransitionTo(models.PaymentRefundFailed); err != nil {
				return err
			}
		}
		if err := tx.Payments().Update(outcomeCtx, t.payment); err != nil {
			return err
		}
		final = t.refund
		return tx.Refunds().Update(outcomeCtx, t.refund)
	})
	if err != nil {
		return nil, asServiceError(err, s.logger, "Failed to record refund outcome", zap.String("refund_id", refundID))
	}

	if settleErr != nil {
		s.logger.Error("Refund settlement failed",
			zap.String("refund_id", refundID), zap.String("order_id", final.OrderID.String()), zap.Error(settleErr))
		s.fx.publish(refundEvent(models.EventRefundFailed, final))
		s.fx.count(aws_pkg.MetricRefundsFailed, 0)
		return nil, gatewayError("Refund settlement failed, the refund is marked Failed and can be approved again")
	}

	s.logger.Info("Refund processed",
		zap.String("refund_id", refundID),
		zap.String("order_id", final.OrderID.String()),
		zap.String("admin_id", admin.UserID.String()))
	s.fx.publish(refundEvent(models.EventRefundProcessed, final))
	s.fx.count(aws_pkg.MetricRefundsProcessed, float64(final.Amount))
	return final, nil
}

// staleApprovalAfter is how long an Approved refund must sit untouched
// before a new approval may take it over. By then any earlier settlement
// and its outcome write have given up.
func (s *refundServiceImpl) staleApprovalAfter() time.Duration {
	if budget := s.retry.Budget(); budget > 0 {
		return budget + refundOutcomeTimeout + time.Minute
	}
	return staleApprovalFallback
}

func (s *refundServiceImpl) settleRefund(ctx context.Context, admin Identity, t *refundTarget) (*gateway.RefundResult, error) {
	req := gateway.RefundRequest{
		TxnRef:    *t.payment.TransactionRef,
		Amount:    t.refund.Amount,
		CreatedBy: admin.Email,
		OrderInfo: "Hoan tien don hang " + t.order.ID.String(),
	}
	if req.CreatedBy == "" {
		req.CreatedBy = admin.UserID.String()
	}
	if t.payment.GatewayTransactionNo != nil {
		req.TransactionNo = *t.payment.GatewayTransactionNo
	}
	req.TransactionDate = paymentDate(t.payment)

	var result *gateway.RefundResult
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.gateway.Refund(ctx, req)
		if err != nil && gateway.IsTransient(err) {
			s.logger.Warn("Refund attempt failed, retrying", zap.String("refund_id", t.refund.ID.String()), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// paymentDate is the gateway's own pay date from the stored callback, or
// the local settlement time rendered in the gateway's zone.
func paymentDate(p *models.Payment) string {
	var payload map[string]string
	if len(p.CallbackPayload) > 0 && json.Unmarshal(p.CallbackPayload, &payload) == nil {
		if d := payload["vnp_PayDate"]; d != "" {
			return d
		}
	}
	if p.PaidAt == nil {
		return ""
	}
	return p.PaidAt.In(time.FixedZone("GMT+7", 7*60*60)).Format("20060102150405")
}

func appendNote(note, extra string) string {
	if note == "" {
		return extra
	}
	return note + "; " + extra
}

// RejectRefund closes a Pending refund and returns the payment to
// Completed.
func (s *refundServiceImpl) RejectRefund(ctx context.Context, refundID, reason string) (*models.Refund, *ServiceError) {
	id, svcErr := parseID(refundID, "refund")
	if svcErr != nil {
		return nil, svcErr
	}
	current, err := s.store.Refunds().FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("Refund not found")
		}
		return nil, asServiceError(err, s.logger, "Failed to fetch refund", zap.String("refund_id", refundID))
	}

	var refund *models.Refund
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		t, err := lockRefundTarget(ctx, tx, id, current.OrderID)
		if err != nil {
			return err
		}
		if err := t.refund.TransitionTo(models.RefundRejected); err != nil {
			return err
		}
		t.refund.AdminNote = reason
		if err := t.payment.TransitionTo(models.PaymentCompleted); err != nil {
			return err
		}
		if err := tx.Payments().Update(ctx, t.payment); err != nil {
			return err
		}
		refund = t.refund
		return tx.Refunds().Update(ctx, t.refund)
	})
	if err != nil {
		return nil, asServiceError(err, s.logger, "Failed to reject refund", zap.String("refund_id", refundID))
	}

	s.logger.Info("Refund rejected", zap.String("refund_id", refundID), zap.String("order_id", refund.OrderID.String()))
	s.fx.publish(refundEvent(models.EventRefundRejected, refund))
	return refund, nil
}
