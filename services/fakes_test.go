package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/gateway"
	"github.com/tunguyen02/mobile-backend/models"
	"github.com/tunguyen02/mobile-backend/services"
	"go.uber.org/zap"
)

const (
	testSecret  = "test-hash-secret"
	testTmnCode = "TMN01"
)

// --- Mock Catalog ---

type mockCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]*services.Product
	err      error
}

func newMockCatalog(products ...services.Product) *mockCatalog {
	c := &mockCatalog{products: make(map[uuid.UUID]*services.Product)}
	for i := range products {
		p := products[i]
		c.products[p.ID] = &p
	}
	return c
}

func (c *mockCatalog) GetProduct(_ context.Context, id uuid.UUID) (*services.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return nil, services.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// --- Mock Event Publisher ---

type mockEvents struct {
	mu     sync.Mutex
	events []models.DomainEvent
}

func (m *mockEvents) PublishEvent(_ context.Context, evt models.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockEvents) has(kind, orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Type == kind && e.OrderID == orderID {
			return true
		}
	}
	return false
}

// --- Mock Notifier ---

type mockNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (m *mockNotifier) SendOrderConfirmation(_ context.Context, order *models.Order, _ *models.Payment, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, order.ID.String()+"|"+email)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// --- Mock Locker ---

type mockLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMockLocker() *mockLocker { return &mockLocker{held: make(map[string]bool)} }

func (l *mockLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *mockLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

func (l *mockLocker) Held(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key], nil
}

// expireAll drops every key, as if all TTLs had run out.
func (l *mockLocker) expireAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = make(map[string]bool)
}

// --- Gateway ---

// merchantAPI fakes the gateway's refund endpoint. Each call pops the next
// response code; "500" answers with an HTTP 500.
type merchantAPI struct {
	mu    sync.Mutex
	codes []string
	calls int
	srv   *httptest.Server
}

func newMerchantAPI(t *testing.T, codes ...string) *merchantAPI {
	m := &merchantAPI{codes: codes}
	m.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		code := "00"
		if m.calls < len(m.codes) {
			code = m.codes[m.calls]
		}
		m.calls++
		m.mu.Unlock()

		if code == "500" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"vnp_ResponseCode":  code,
			"vnp_Message":       "code " + code,
			"vnp_TxnRef":        body["vnp_TxnRef"],
			"vnp_TransactionNo": "RF" + strconv.Itoa(m.calls),
		})
	}))
	t.Cleanup(m.srv.Close)
	return m
}

func (m *merchantAPI) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newGatewayClient(apiURL string) *gateway.Client {
	return gateway.NewClient(gateway.Config{
		TmnCode:    testTmnCode,
		HashSecret: testSecret,
		PayURL:     "https://pay.example.test/paymentv2/vpcpay.html",
		APIURL:     apiURL,
		ReturnURL:  "https://shop.example.test/payment/return",
	}, nil)
}

func fastRetry() gateway.RetryPolicy {
	return gateway.RetryPolicy{MaxAttempts: 3, Timeout: 2 * time.Second, Backoff: time.Millisecond}
}

// signedCallback builds a callback the gateway would send for orderID.
func signedCallback(orderID uuid.UUID, amount int64, code, txnRef string) url.Values {
	if txnRef == "" {
		txnRef = gateway.NewTxnRef(orderID, time.Now())
	}
	params := url.Values{}
	params.Set("vnp_TmnCode", testTmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(amount*gateway.AmountScale, 10))
	params.Set("vnp_BankCode", "NCB")
	params.Set("vnp_PayDate", "20240501101000")
	params.Set("vnp_ResponseCode", code)
	params.Set("vnp_TransactionNo", "14000001")
	params.Set("vnp_TransactionStatus", code)
	params.Set("vnp_TxnRef", txnRef)
	params.Set("vnp_SecureHash", gateway.Sign(testSecret, params))
	return params
}

// --- fixtures ---

type fixture struct {
	store    *memStore
	catalog  *mockCatalog
	events   *mockEvents
	notifier *mockNotifier
	gw       *gateway.Client
	api      *merchantAPI
	logger   *zap.Logger
	orders   services.OrderService
	payments services.PaymentService
	refunds  services.RefundService
}

func newFixture(t *testing.T, products ...services.Product) *fixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	f := &fixture{
		store:    newMemStore(),
		catalog:  newMockCatalog(products...),
		events:   &mockEvents{},
		notifier: &mockNotifier{},
		api:      newMerchantAPI(t),
		logger:   logger,
	}
	f.gw = newGatewayClient(f.api.srv.URL)
	cfg := services.OrderConfig{PaymentWindow: 24 * time.Hour}
	pricing := services.NewPricing(f.catalog, f.store.FlashSales(), models.DefaultShippingFee, logger)
	f.orders = services.NewOrderService(f.store, pricing, f.gw, f.notifier, f.events, nil, cfg, logger)
	f.payments = services.NewPaymentService(f.store, f.gw, f.events, nil, cfg, logger)
	f.refunds = services.NewRefundService(f.store, f.gw, fastRetry(), f.events, nil, logger)
	return f
}

// useMerchantCodes swaps in a merchant API that answers with codes in turn.
func (f *fixture) useMerchantCodes(t *testing.T, codes ...string) {
	f.api = newMerchantAPI(t, codes...)
	f.gw = newGatewayClient(f.api.srv.URL)
	f.refunds = services.NewRefundService(f.store, f.gw, fastRetry(), f.events, nil, f.logger)
}

func shipping() models.ShippingInfo {
	return models.ShippingInfo{
		FullName: "Nguyen Van A",
		Phone:    "0901234567",
		Address:  "1 Le Loi",
		City:     "Ho Chi Minh",
		Email:    "a@example.com",
	}
}

func customer() services.Identity {
	return services.Identity{UserID: uuid.New(), Email: "a@example.com", Role: "user"}
}

func staff() services.Identity {
	return services.Identity{UserID: uuid.New(), Email: "admin@example.com", Role: services.RoleAdmin}
}

func int64p(v int64) *int64 { return &v }

// seedOrder stores a one-line order with its payment.
func seedOrder(s *memStore, user uuid.UUID, method models.PaymentMethod, ship models.ShippingStatus, pay models.PaymentStatus, total int64) (models.Order, models.Payment) {
	orderID := uuid.New()
	order := models.Order{
		ID:             orderID,
		UserID:         user,
		Shipping:       shipping(),
		ShippingStatus: ship,
		Items: []models.OrderItem{{
			ID: uuid.New(), OrderID: orderID, ProductID: uuid.New(), Name: "Phone",
			Quantity: 1, UnitPrice: total, OriginalUnitPrice: total,
		}},
	}
	payment := models.Payment{
		ID:      uuid.New(),
		OrderID: orderID,
		UserID:  user,
		Method:  method,
		Amount:  total,
		Status:  pay,
	}
	if pay == models.PaymentCompleted && method == models.PaymentMethodGateway {
		ref := gateway.NewTxnRef(orderID, time.Now())
		no := "14000001"
		now := time.Now()
		payment.TransactionRef, payment.GatewayTransactionNo, payment.PaidAt = &ref, &no, &now
	}
	s.putOrder(order, payment)
	return s.order(orderID), s.payment(orderID)
}
