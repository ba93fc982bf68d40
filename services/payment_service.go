package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/gateway"
	"github.com/tunguyen02/mobile-backend/models"
	aws_pkg "github.com/tunguyen02/mobile-backend/pkg/aws"
	"github.com/tunguyen02/mobile-backend/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// IPN acknowledgement codes understood by the gateway.
const (
	IPNSuccess          = "00"
	IPNOrderNotFound    = "01"
	IPNAlreadyConfirmed = "02"
	IPNInvalidAmount    = "04"
	IPNInvalidSignature = "97"
	IPNUnknownError     = "99"
)

// Return statuses handed to the storefront.
const (
	ReturnSuccess = "success"
	ReturnFailed  = "failed"
	ReturnPending = "pending"
)

type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

type ReturnResult struct {
	OrderID uuid.UUID
	Found   bool
	Status  string
}

// PaymentService settles gateway callbacks and re-issues payment URLs.
type PaymentService interface {
	HandleIPN(ctx context.Context, params url.Values) IPNResponse
	HandleReturn(ctx context.Context, params url.Values) ReturnResult
	Repay(ctx context.Context, user Identity, orderID string, req *models.RepayRequest, clientIP string) (string, *ServiceError)
}

type paymentServiceImpl struct {
	store   repository.Store
	gateway PaymentGateway
	cfg     OrderConfig
	fx      *sideEffects
	logger  *zap.Logger
}

func NewPaymentService(
	store repository.Store,
	gw PaymentGateway,
	events EventPublisher,
	metrics MetricsRecorder,
	cfg OrderConfig,
	logger *zap.Logger,
) PaymentService {
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = 24 * time.Hour
	}
	return &paymentServiceImpl{
		store:   store,
		gateway: gw,
		cfg:     cfg,
		fx:      &sideEffects{events: events, metrics: metrics, logger: logger},
		logger:  logger,
	}
}

func buildPaymentURL(gw PaymentGateway, order *models.Order, clientIP, bankCode, locale string) (*gateway.PaymentURL, error) {
	return gw.BuildPaymentURL(gateway.PaymentRequest{
		OrderID:     order.ID,
		Amount:      order.Total,
		Description: "Thanh toan don hang " + order.ID.String(),
		ClientIP:    clientIP,
		BankCode:    bankCode,
		Locale:      locale,
	})
}

type settlement struct {
	code      string
	message   string
	completed bool
	settled   bool
	payment   *models.Payment
}

// settle applies a verified callback to the payment. It is safe to call any
// number of times for the same transaction: once Completed under the same
// reference the payment is not written again.
func (s *paymentServiceImpl) settle(ctx context.Context, cb *gateway.Callback) settlement {
	var out settlement
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Orders().FindByIDForUpdate(ctx, cb.OrderID); err != nil {
			if isNotFound(err) {
				out = settlement{code: IPNOrderNotFound, message: "Order not found"}
				return nil
			}
			return err
		}
		payment, err := tx.Payments().FindByOrderIDForUpdate(ctx, cb.OrderID)
		if err != nil {
			if isNotFound(err) {
				out = settlement{code: IPNOrderNotFound, message: "Order not found"}
				return nil
			}
			return err
		}
		out.payment = payment

		if cb.Amount != payment.Amount {
			s.logger.Warn("Gateway amount does not match payment",
				zap.String("order_id", cb.OrderID.String()),
				zap.Int64("expected", payment.Amount),
				zap.Int64("received", cb.Amount))
			out.code, out.message = IPNInvalidAmount, "Invalid amount"
			return nil
		}

		switch payment.Status {
		case models.PaymentPending:
		case models.PaymentCompleted:
			if payment.TransactionRef != nil && *payment.TransactionRef == cb.TxnRef {
				out.code, out.message, out.completed = IPNSuccess, "Confirm Success", true
				return nil
			}
			if cb.Succeeded() {
				s.logger.Error("Second successful charge for a settled order, reconcile manually",
					zap.String("order_id", cb.OrderID.String()), zap.String("txn_ref", cb.TxnRef))
			}
			out.code, out.message = IPNAlreadyConfirmed, "Order already confirmed"
			return nil
		default:
			if cb.Succeeded() {
				s.logger.Error("Successful charge for a payment that is no longer payable, reconcile manually",
					zap.String("order_id", cb.OrderID.String()),
					zap.String("payment_status", string(payment.Status)),
					zap.String("txn_ref", cb.TxnRef))
			}
			out.code, out.message = IPNAlreadyConfirmed, "Order already confirmed"
			return nil
		}

		payment.CallbackPayload = callbackPayload(cb.Params)
		if !cb.Succeeded() {
			s.logger.Info("Gateway reported unsuccessful payment",
				zap.String("order_id", cb.OrderID.String()), zap.String("response_code", cb.ResponseCode))
			out.code, out.message = IPNSuccess, "Confirm Success"
			return tx.Payments().Update(ctx, payment)
		}

		if err := payment.TransitionTo(models.PaymentCompleted); err != nil {
			return err
		}
		if payment.Method != models.PaymentMethodGateway {
			s.logger.Warn("Gateway charge settled a payment switched to COD",
				zap.String("order_id", cb.OrderID.String()))
			payment.Method = models.PaymentMethodGateway
		}
		now := time.Now()
		ref := cb.TxnRef
		payment.TransactionRef = &ref
		if cb.TransactionNo != "" {
			no := cb.TransactionNo
			payment.GatewayTransactionNo = &no
		}
		payment.PaidAt = &now
		out.code, out.message, out.completed, out.settled = IPNSuccess, "Confirm Success", true, true
		return tx.Payments().Update(ctx, payment)
	})
	if err != nil {
		s.logger.Error("Failed to settle gateway callback", zap.String("order_id", cb.OrderID.String()), zap.Error(err))
		return settlement{code: IPNUnknownError, message: "Unknown error"}
	}

	if out.settled {
		p := out.payment
		s.logger.Info("Payment completed",
			zap.String("order_id", p.OrderID.String()), zap.String("txn_ref", cb.TxnRef))
		s.fx.publish(models.DomainEvent{
			Type:      models.EventPaymentCompleted,
			OrderID:   p.OrderID.String(),
			UserID:    p.UserID.String(),
			PaymentID: p.ID.String(),
			Amount:    p.Amount,
			Status:    string(p.Status),
		})
		s.fx.count(aws_pkg.MetricPaymentsCompleted, float64(p.Amount))
	}
	return out
}

func callbackPayload(params url.Values) datatypes.JSON {
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}

// HandleIPN is the authoritative settlement path. It always answers with a
// code so the gateway stops or keeps retrying as the protocol expects.
func (s *paymentServiceImpl) HandleIPN(ctx context.Context, params url.Values) IPNResponse {
	cb, err := s.gateway.VerifyCallback(params)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			s.logger.Warn("IPN rejected: invalid signature", zap.String("txn_ref", params.Get("vnp_TxnRef")))
			return IPNResponse{RspCode: IPNInvalidSignature, Message: "Invalid signature"}
		}
		s.logger.Warn("IPN rejected: malformed callback", zap.Error(err))
		return IPNResponse{RspCode: IPNOrderNotFound, Message: "Order not found"}
	}

	res := s.settle(ctx, cb)
	s.logger.Info("IPN processed",
		zap.String("order_id", cb.OrderID.String()),
		zap.String("response_code", cb.ResponseCode),
		zap.String("rsp_code", res.code))
	return IPNResponse{RspCode: res.code, Message: res.message}
}

// HandleReturn settles the callback carried by the browser redirect and
// reports where the storefront should send the customer.
func (s *paymentServiceImpl) HandleReturn(ctx context.Context, params url.Values) ReturnResult {
	cb, err := s.gateway.VerifyCallback(params)
	if err != nil {
		id, ok := gateway.OrderIDFromParams(params)
		s.logger.Warn("Return redirect failed verification", zap.Error(err))
		return ReturnResult{OrderID: id, Found: ok, Status: ReturnFailed}
	}

	res := s.settle(ctx, cb)
	result := ReturnResult{OrderID: cb.OrderID, Found: res.code != IPNOrderNotFound}
	switch {
	case res.completed:
		result.Status = ReturnSuccess
	case !cb.Succeeded() || res.code == IPNInvalidAmount:
		result.Status = ReturnFailed
	default:
		result.Status = ReturnPending
	}
	return result
}

// Repay signs a new payment URL for a Gateway payment that is still Pending
// and inside its payment window.
func (s *paymentServiceImpl) Repay(ctx context.Context, user Identity, orderID string, req *models.RepayRequest, clientIP string) (string, *ServiceError) {
	id, svcErr := parseID(orderID, "order")
	if svcErr != nil {
		return "", svcErr
	}

	order, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return "", notFoundError("Order not found")
		}
		s.logger.Error("Failed to fetch order", zap.String("order_id", orderID), zap.Error(err))
		return "", internalError("Failed to fetch order")
	}
	if order.UserID != user.UserID && !user.IsStaff() {
		return "", forbiddenError("You do not have access to this order")
	}
	payment, err := s.store.Payments().FindByOrderID(ctx, id)
	if err != nil {
		return "", asServiceError(err, s.logger, "Failed to fetch payment", zap.String("order_id", orderID))
	}

	if payment.Method != models.PaymentMethodGateway {
		return "", invalidStateError("repay is only available for %s payments", models.PaymentMethodGateway)
	}
	if payment.Status != models.PaymentPending || order.ShippingStatus != models.ShippingPending {
		return "", invalidStateError("payment is %s, repay requires Pending", payment.Status)
	}
	if time.Since(payment.CreatedAt) >= s.cfg.PaymentWindow {
		return "", invalidStateError("payment window has elapsed")
	}

	if req == nil {
		req = &models.RepayRequest{}
	}
	pu, err := buildPaymentURL(s.gateway, order, clientIP, req.BankCode, req.Locale)
	if err != nil {
		s.logger.Error("Failed to build payment URL", zap.String("order_id", orderID), zap.Error(err))
		return "", gatewayError("Payment gateway unavailable")
	}
	return pu.URL, nil
}
