package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/models"
	aws_pkg "github.com/tunguyen02/mobile-backend/pkg/aws"
	"github.com/tunguyen02/mobile-backend/repository"
	"go.uber.org/zap"
)

// OrderService defines the order aggregate operations.
type OrderService interface {
	CreateOrder(ctx context.Context, user Identity, req *models.CreateOrderRequest) (*models.CreateOrderResponse, *ServiceError)
	GetOrder(ctx context.Context, user Identity, orderID string) (*models.OrderDetail, *ServiceError)
	ListMyOrders(ctx context.Context, user Identity, page, limit int) (*models.OrderListResponse, *ServiceError)
	ListAllOrders(ctx context.Context, page, limit int) (*models.OrderListResponse, *ServiceError)
	CountOrders(ctx context.Context) (int64, *ServiceError)
	ChangeOrderStatus(ctx context.Context, orderID string, req *models.ChangeOrderStatusRequest) (*models.OrderDetail, *ServiceError)
	CancelOrderByUser(ctx context.Context, user Identity, orderID string) (*models.CancelOrderResponse, *ServiceError)
	ChangePaymentMethod(ctx context.Context, user Identity, orderID string, method models.PaymentMethod) (*models.Payment, *ServiceError)
	DeleteOrder(ctx context.Context, orderID string) *ServiceError
}

// OrderConfig holds the timing knobs shared by order and payment flows.
type OrderConfig struct {
	// PaymentWindow is how long a Gateway payment may stay Pending.
	PaymentWindow time.Duration
}

type orderServiceImpl struct {
	store   repository.Store
	pricing *Pricing
	gateway PaymentGateway
	cfg     OrderConfig
	fx      *sideEffects
	logger  *zap.Logger
}

// NewOrderService creates a new OrderService.
func NewOrderService(
	store repository.Store,
	pricing *Pricing,
	gw PaymentGateway,
	notifier Notifier,
	events EventPublisher,
	metrics MetricsRecorder,
	cfg OrderConfig,
	logger *zap.Logger,
) OrderService {
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = 24 * time.Hour
	}
	return &orderServiceImpl{
		store:   store,
		pricing: pricing,
		gateway: gw,
		cfg:     cfg,
		fx:      &sideEffects{notifier: notifier, events: events, metrics: metrics, logger: logger},
		logger:  logger,
	}
}

// CreateOrder prices the cart and persists the Order, its Payment, and the
// flash-sale reservations in one transaction. A flash-sale line whose offer
// runs out during the commit is priced at the catalog price instead.
func (s *orderServiceImpl) CreateOrder(ctx context.Context, user Identity, req *models.CreateOrderRequest) (*models.CreateOrderResponse, *ServiceError) {
	if user.UserID == uuid.Nil {
		return nil, unauthenticatedError("Unauthorized")
	}
	if !req.PaymentMethod.Valid() {
		return nil, validationError("unsupported payment method %q", req.PaymentMethod)
	}
	if svcErr := validateStruct(req); svcErr != nil {
		return nil, svcErr
	}

	lines := req.Items
	if len(lines) == 0 {
		cart, err := s.store.Carts().FindByUserID(ctx, user.UserID)
		if err != nil {
			s.logger.Error("Failed to load cart", zap.String("user_id", user.UserID.String()), zap.Error(err))
			return nil, internalError("Failed to load cart")
		}
		lines = cartLines(cart)
	}

	snap, svcErr := s.pricing.Snapshot(ctx, lines, req.ShippingFee)
	if svcErr != nil {
		return nil, svcErr
	}

	var order *models.Order
	var payment *models.Payment
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		for i := range snap.Lines {
			line := &snap.Lines[i]
			if !line.IsFlashSale {
				continue
			}
			err := tx.FlashSales().Reserve(ctx, *line.FlashSaleID, line.ProductID, line.Quantity)
			if errors.Is(err, repository.ErrOfferExhausted) {
				s.logger.Warn("Flash sale cap reached during commit, using catalog price",
					zap.String("flash_sale_id", line.FlashSaleID.String()),
					zap.String("product_id", line.ProductID.String()))
				line.dropFlashSale()
				continue
			}
			if err != nil {
				return err
			}
		}
		snap.recalculate()

		order = newOrder(user.UserID, req.ShippingInfo, snap)
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		payment = &models.Payment{
			ID:      uuid.New(),
			OrderID: order.ID,
			UserID:  user.UserID,
			Method:  req.PaymentMethod,
			Amount:  order.Total,
			Status:  models.PaymentPending,
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}
		return tx.Carts().Clear(ctx, user.UserID)
	})
	if err != nil {
		return nil, asServiceError(err, s.logger, "Failed to create order", zap.String("user_id", user.UserID.String()))
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", user.UserID.String()),
		zap.String("payment_method", string(payment.Method)),
		zap.Int64("total", order.Total))

	resp := &models.CreateOrderResponse{Order: order, Payment: payment}
	if payment.Method == models.PaymentMethodGateway {
		pu, err := buildPaymentURL(s.gateway, order, req.ClientIP, req.BankCode, req.Locale)
		if err != nil {
			s.logger.Warn("Payment URL not built, customer can repay later",
				zap.String("order_id", order.ID.String()), zap.Error(err))
		} else {
			resp.PaymentURL = pu.URL
		}
	}

	email := req.ShippingInfo.Email
	if email == "" {
		email = user.Email
	}
	s.fx.confirm(order, payment, email)
	s.fx.publish(models.DomainEvent{
		Type:      models.EventOrderCreated,
		OrderID:   order.ID.String(),
		UserID:    order.UserID.String(),
		PaymentID: payment.ID.String(),
		Amount:    order.Total,
		Status:    string(order.ShippingStatus),
	})
	s.fx.count(aws_pkg.MetricOrdersCreated, float64(order.Total))

	return resp, nil
}

func newOrder(userID uuid.UUID, shipping models.ShippingInfo, snap *PriceSnapshot) *models.Order {
	order := &models.Order{
		ID:             uuid.New(),
		UserID:         userID,
		Shipping:       shipping,
		ShippingFee:    snap.ShippingFee,
		ShippingStatus: models.ShippingPending,
		Items:          make([]models.OrderItem, 0, len(snap.Lines)),
	}
	for _, l := range snap.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ID:                uuid.New(),
			OrderID:           order.ID,
			ProductID:         l.ProductID,
			Name:              l.Name,
			Quantity:          l.Quantity,
			UnitPrice:         l.UnitPrice,
			OriginalUnitPrice: l.OriginalUnitPrice,
			IsFlashSale:       l.IsFlashSale,
			FlashSaleID:       l.FlashSaleID,
		})
	}
	order.Recalculate()
	return order
}

func cartLines(items []models.CartItem) []models.CartLine {
	lines := make([]models.CartLine, 0, len(items))
	for _, it := range items {
		line := models.CartLine{ProductID: it.ProductID.String(), Quantity: it.Quantity}
		if it.FlashSaleID != nil {
			line.FlashSale = &models.FlashSaleContext{FlashSaleID: it.FlashSaleID.String()}
		}
		lines = append(lines, line)
	}
	return lines
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, user Identity, orderID string) (*models.OrderDetail, *ServiceError) {
	id, svcErr := parseID(orderID, "order")
	if svcErr != nil {
		return nil, svcErr
	}

	order, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("Order not found")
		}
		s.logger.Error("Failed to fetch order", zap.String("order_id", orderID), zap.Error(err))
		return nil, internalError("Failed to fetch order")
	}
	if !user.IsStaff() && order.UserID != user.UserID {
		return nil, forbiddenError("You do not have access to this order")
	}

	payment, err := s.store.Payments().FindByOrderID(ctx, id)
	if err != nil && !isNotFound(err) {
		s.logger.Error("Failed to fetch payment", zap.String("order_id", orderID), zap.Error(err))
		return nil, internalError("Failed to fetch order")
	}
	return orderDetail(order, payment), nil
}

func orderDetail(order *models.Order, payment *models.Payment) *models.OrderDetail {
	detail := &models.OrderDetail{Order: order, Payment: payment}
	if payment != nil {
		detail.Refund = payment.Refund()
	}
	return detail
}

func (s *orderServiceImpl) ListMyOrders(ctx context.Context, user Identity, page, limit int) (*models.OrderListResponse, *ServiceError) {
	if user.UserID == uuid.Nil {
		return nil, unauthenticatedError("Unauthorized")
	}
	orders, total, err := s.store.Orders().FindByUserID(ctx, user.UserID, page, limit)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.String("user_id", user.UserID.String()), zap.Error(err))
		return nil, internalError("Failed to list orders")
	}
	return s.withPayments(ctx, orders, total, page, limit)
}

func (s *orderServiceImpl) ListAllOrders(ctx context.Context, page, limit int) (*models.OrderListResponse, *ServiceError) {
	orders, total, err := s.store.Orders().FindAll(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to list all orders", zap.Error(err))
		return nil, internalError("Failed to list orders")
	}
	return s.withPayments(ctx, orders, total, page, limit)
}

func (s *orderServiceImpl) withPayments(ctx context.Context, orders []models.Order, total int64, page, limit int) (*models.OrderListResponse, *ServiceError) {
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	payments, err := s.store.Payments().FindByOrderIDs(ctx, ids)
	if err != nil {
		s.logger.Error("Failed to load payments", zap.Error(err))
		return nil, internalError("Failed to list orders")
	}
	byOrder := make(map[uuid.UUID]*models.Payment, len(payments))
	for i := range payments {
		byOrder[payments[i].OrderID] = &payments[i]
	}

	details := make([]models.OrderDetail, 0, len(orders))
	for i := range orders {
		details = append(details, *orderDetail(&orders[i], byOrder[orders[i].ID]))
	}
	return &models.OrderListResponse{Orders: details, Meta: pageMeta(page, limit, total)}, nil
}

func pageMeta(page, limit int, total int64) models.MetaData {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return models.MetaData{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

func (s *orderServiceImpl) CountOrders(ctx context.Context) (int64, *ServiceError) {
	n, err := s.store.Orders().Count(ctx)
	if err != nil {
		s.logger.Error("Failed to count orders", zap.Error(err))
		return 0, internalError("Failed to count orders")
	}
	return n, nil
}

// refundOwned lists payment transitions that only the refund workflow may
// perform.
func refundOwned(from, to models.PaymentStatus) bool {
	switch to {
	case models.PaymentRefundPending, models.PaymentRefunded, models.PaymentRefundFailed:
		return true
	}
	return from == models.PaymentRefundPending || from == models.PaymentRefundFailed
}

// ChangeOrderStatus is the staff path. Both requested transitions are
// checked before either record is written.
func (s *orderServiceImpl) ChangeOrderStatus(ctx context.Context, orderID string, req *models.ChangeOrderStatusRequest) (*models.OrderDetail, *ServiceError) {
	id, svcErr := parseID(orderID, "order")
	if svcErr != nil {
		return nil, svcErr
	}
	if req.ShippingStatus == nil && req.PaymentStatus == nil {
		return nil, validationError("shippingStatus or paymentStatus is required")
	}
	if req.ShippingStatus != nil && !models.ValidShippingStatus(*req.ShippingStatus) {
		return nil, validationError("unknown shipping status %q", *req.ShippingStatus)
	}
	if req.PaymentStatus != nil && !models.ValidPaymentStatus(*req.PaymentStatus) {
		return nil, validationError("unknown payment status %q", *req.PaymentStatus)
	}

	var order *models.Order
	var payment *models.Payment
	var expired bool
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		if order, err = tx.Orders().FindByIDForUpdate(ctx, id); err != nil {
			if isNotFound(err) {
				return notFoundError("Order not found")
			}
			return err
		}
		if payment, err = tx.Payments().FindByOrderIDForUpdate(ctx, id); err != nil {
			if isNotFound(err) {
				return notFoundError("Payment not found")
			}
			return err
		}

		shippingChanged := req.ShippingStatus != nil && *req.ShippingStatus != order.ShippingStatus
		paymentChanged := req.PaymentStatus != nil && *req.PaymentStatus != payment.Status

		if shippingChanged {
			if err := order.TransitionTo(*req.ShippingStatus); err != nil {
				return err
			}
		}
		if paymentChanged {
			if refundOwned(payment.Status, *req.PaymentStatus) {
				return invalidStateError("payment transition %s -> %s is handled by the refund workflow",
					payment.Status, *req.PaymentStatus)
			}
			if *req.PaymentStatus == models.PaymentCompleted && payment.Method == models.PaymentMethodGateway {
				return invalidStateError("%s payments are settled by the gateway callback", models.PaymentMethodGateway)
			}
			if err := payment.TransitionTo(*req.PaymentStatus); err != nil {
				return err
			}
			if payment.Status == models.PaymentCompleted {
				now := time.Now()
				payment.PaidAt = &now
			}
		}
		if shippingChanged && order.ShippingStatus == models.ShippingCancelled &&
			payment.Method == models.PaymentMethodGateway && payment.Status == models.PaymentPending {
			if err := payment.TransitionTo(models.PaymentExpired); err != nil {
				return err
			}
			paymentChanged, expired = true, true
		}

		if shippingChanged {
			if err := tx.Orders().Update(ctx, order); err != nil {
				return err
			}
		}
		if paymentChanged {
			if err := tx.Payments().Update(ctx, payment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, s.logger, "Failed to change order status", zap.String("order_id", orderID))
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", orderID),
		zap.String("shipping_status", string(order.ShippingStatus)),
		zap.String("payment_status", string(payment.Status)))
	if order.ShippingStatus == models.ShippingCancelled {
		s.fx.publish(models.DomainEvent{Type: models.EventOrderCancelled, OrderID: orderID, UserID: order.UserID.String()})
	}
	if expired {
		s.fx.publish(models.DomainEvent{Type: models.EventPaymentExpired, OrderID: orderID, PaymentID: payment.ID.String()})
	}
	return orderDetail(order, payment), nil
}

// CancelOrderByUser cancels the caller's own Pending order. An unpaid
// Gateway payment expires with it; a paid one is left for the refund
// workflow and reported as refund-applicable.
func (s *orderServiceImpl) CancelOrderByUser(ctx context.Context, user Identity, orderID string) (*models.CancelOrderResponse, *ServiceError) {
	id, svcErr := parseID(orderID, "order")
	if svcErr != nil {
		return nil, svcErr
	}

	var order *models.Order
	var payment *models.Payment
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		if order, err = tx.Orders().FindByIDForUpdate(ctx, id); err != nil {
			if isNotFound(err) {
				return notFoundError("Order not found")
			}
			return err
		}
		if order.UserID != user.UserID {
			return forbiddenError("You can only cancel your own orders")
		}
		if order.ShippingStatus != models.ShippingPending {
			return invalidStateError("order can only be cancelled while Pending, current status %s", order.ShippingStatus)
		}
		if err := order.TransitionTo(models.ShippingCancelled); err != nil {
			return err
		}

		if payment, err = tx.Payments().FindByOrderIDForUpdate(ctx, id); err != nil {
			return err
		}
		if payment.Method == models.PaymentMethodGateway && payment.Status == models.PaymentPending {
			if err := payment.TransitionTo(models.PaymentExpired); err != nil {
				return err
			}
			if err := tx.Payments().Update(ctx, payment); err != nil {
				return err
			}
		}
		return tx.Orders().Update(ctx, order)
	})
	if err != nil {
		return nil, asServiceError(err, s.logger, "Failed to cancel order", zap.String("order_id", orderID))
	}

	refundApplicable := payment.Method == models.PaymentMethodGateway && payment.Status == models.PaymentCompleted
	s.logger.Info("Order cancelled by user",
		zap.String("order_id", orderID),
		zap.String("user_id", user.UserID.String()),
		zap.Bool("refund_applicable", refundApplicable))
	s.fx.publish(models.DomainEvent{
		Type:    models.EventOrderCancelled,
		OrderID: orderID,
		UserID:  user.UserID.String(),
		Status:  string(payment.Status),
	})

	return &models.CancelOrderResponse{Order: order, Payment: payment, RefundApplicable: refundApplicable}, nil
}

// ChangePaymentMethod moves an unpaid Gateway order to COD while it is
// still inside the payment window.
func (s *orderServiceImpl) ChangePaymentMethod(ctx context.Context, user Identity, orderID string, method models.PaymentMethod) (*models.Payment, *ServiceError) {
	id, svcErr := parseID(orderID, "order")
	if svcErr != nil {
		return nil, svcErr
	}
	if method != models.PaymentMethodCOD {
		return nil, validationError("payment method can only be changed to %s", models.PaymentMethodCOD)
	}

	var payment *models.Payment
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().FindByIDForUpdate(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return notFoundError("Order not found")
			}
			return err
		}
		if order.UserID != user.UserID {
			return forbiddenError("You can only change your own orders")
		}
		if payment, err = tx.Payments().FindByOrderIDForUpdate(ctx, id); err != nil {
			return err
		}
		if payment.Method == method {
			return nil
		}
		if payment.Status != models.PaymentPending || order.ShippingStatus != models.ShippingPending {
			return invalidStateError("payment method can only be changed while the order and payment are Pending")
		}
		if time.Since(payment.CreatedAt) >= s.cfg.PaymentWindow {
			return invalidStateError("payment window has elapsed")
		}
		payment.Method = method
		return tx.Payments().Update(ctx, payment)
	})
	if err != nil {
		return nil, asServiceError(err, s.logger, "Failed to change payment method", zap.String("order_id", orderID))
	}

	s.logger.Info("Payment method changed", zap.String("order_id", orderID), zap.String("method", string(method)))
	return payment, nil
}

// DeleteOrder removes an Order together with its Payment. Orders that have
// a Refund on record are kept for the audit trail.
func (s *orderServiceImpl) DeleteOrder(ctx context.Context, orderID string) *ServiceError {
	id, svcErr := parseID(orderID, "order")
	if svcErr != nil {
		return svcErr
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Orders().FindByIDForUpdate(ctx, id); err != nil {
			if isNotFound(err) {
				return notFoundError("Order not found")
			}
			return err
		}
		if _, err := tx.Refunds().FindByOrderID(ctx, id); err == nil {
			return invalidStateError("order has a refund on record and cannot be deleted")
		} else if !isNotFound(err) {
			return err
		}
		if err := tx.Payments().DeleteByOrderID(ctx, id); err != nil {
			return err
		}
		return tx.Orders().Delete(ctx, id)
	})
	if err != nil {
		return asServiceError(err, s.logger, "Failed to delete order", zap.String("order_id", orderID))
	}

	s.logger.Info("Order deleted", zap.String("order_id", orderID))
	return nil
}
