package services_test

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/models"
	"github.com/tunguyen02/mobile-backend/repository"
	"gorm.io/gorm"
)

// --- In-memory Store ---
//
// Transactions are serialized and roll back by restoring a snapshot, which
// is enough to exercise the services' locking and all-or-nothing behaviour.

type memData struct {
	mu       sync.RWMutex
	orders   map[uuid.UUID]models.Order
	payments map[uuid.UUID]models.Payment // keyed by order id
	refunds  map[uuid.UUID]models.Refund
	sales    map[uuid.UUID]models.FlashSale
	carts    map[uuid.UUID][]models.CartItem
}

type memStore struct {
	txMu *sync.Mutex
	data *memData
}

func newMemStore() *memStore {
	return &memStore{
		txMu: &sync.Mutex{},
		data: &memData{
			orders:   make(map[uuid.UUID]models.Order),
			payments: make(map[uuid.UUID]models.Payment),
			refunds:  make(map[uuid.UUID]models.Refund),
			sales:    make(map[uuid.UUID]models.FlashSale),
			carts:    make(map[uuid.UUID][]models.CartItem),
		},
	}
}

func (s *memStore) Orders() repository.OrderRepository         { return memOrders{s.data} }
func (s *memStore) Payments() repository.PaymentRepository     { return memPayments{s.data} }
func (s *memStore) Refunds() repository.RefundRepository       { return memRefunds{s.data} }
func (s *memStore) FlashSales() repository.FlashSaleRepository { return memFlashSales{s.data} }
func (s *memStore) Carts() repository.CartRepository           { return memCarts{s.data} }

func (s *memStore) WithTx(_ context.Context, fn func(tx repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.data.snapshot()
	if err := fn(&memStore{txMu: &sync.Mutex{}, data: s.data}); err != nil {
		s.data.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	orders   map[uuid.UUID]models.Order
	payments map[uuid.UUID]models.Payment
	refunds  map[uuid.UUID]models.Refund
	sales    map[uuid.UUID]models.FlashSale
	carts    map[uuid.UUID][]models.CartItem
}

func (d *memData) snapshot() memSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	snap := memSnapshot{
		orders:   make(map[uuid.UUID]models.Order, len(d.orders)),
		payments: make(map[uuid.UUID]models.Payment, len(d.payments)),
		refunds:  make(map[uuid.UUID]models.Refund, len(d.refunds)),
		sales:    make(map[uuid.UUID]models.FlashSale, len(d.sales)),
		carts:    make(map[uuid.UUID][]models.CartItem, len(d.carts)),
	}
	for k, v := range d.orders {
		snap.orders[k] = copyOrder(v)
	}
	for k, v := range d.payments {
		snap.payments[k] = v
	}
	for k, v := range d.refunds {
		snap.refunds[k] = v
	}
	for k, v := range d.sales {
		snap.sales[k] = copySale(v)
	}
	for k, v := range d.carts {
		snap.carts[k] = append([]models.CartItem(nil), v...)
	}
	return snap
}

func (d *memData) restore(snap memSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders, d.payments, d.refunds, d.sales, d.carts = snap.orders, snap.payments, snap.refunds, snap.sales, snap.carts
}

func copyOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}

func copySale(s models.FlashSale) models.FlashSale {
	s.Products = append([]models.FlashSaleProduct(nil), s.Products...)
	return s
}

// --- seeding helpers ---

func (s *memStore) putOrder(o models.Order, p models.Payment) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = o.CreatedAt
	}
	o.Recalculate()
	s.data.orders[o.ID] = copyOrder(o)
	s.data.payments[o.ID] = p
}

func (s *memStore) putSale(sale models.FlashSale) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	s.data.sales[sale.ID] = copySale(sale)
}

func (s *memStore) putCart(userID uuid.UUID, items ...models.CartItem) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	s.data.carts[userID] = append([]models.CartItem(nil), items...)
}

func (s *memStore) order(id uuid.UUID) models.Order {
	s.data.mu.RLock()
	defer s.data.mu.RUnlock()
	return copyOrder(s.data.orders[id])
}

func (s *memStore) payment(orderID uuid.UUID) models.Payment {
	s.data.mu.RLock()
	defer s.data.mu.RUnlock()
	return s.data.payments[orderID]
}

func (s *memStore) refund(id uuid.UUID) models.Refund {
	s.data.mu.RLock()
	defer s.data.mu.RUnlock()
	return s.data.refunds[id]
}

// markApproved leaves a refund Approved as of at, as if its settlement
// never recorded an outcome.
func (s *memStore) markApproved(id uuid.UUID, at time.Time) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	rf := s.data.refunds[id]
	rf.Status, rf.UpdatedAt = models.RefundApproved, at
	s.data.refunds[id] = rf
}

func (s *memStore) offer(saleID, productID uuid.UUID) models.FlashSaleProduct {
	s.data.mu.RLock()
	defer s.data.mu.RUnlock()
	for _, p := range s.data.sales[saleID].Products {
		if p.ProductID == productID {
			return p
		}
	}
	return models.FlashSaleProduct{}
}

func (s *memStore) orderCount() int {
	s.data.mu.RLock()
	defer s.data.mu.RUnlock()
	return len(s.data.orders)
}

// --- orders ---

type memOrders struct{ d *memData }

func (r memOrders) Create(_ context.Context, o *models.Order) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now()
	o.CreatedAt, o.UpdatedAt = now, now
	o.Recalculate()
	r.d.orders[o.ID] = copyOrder(*o)
	return nil
}

func (r memOrders) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	o, ok := r.d.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (r memOrders) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.FindByID(ctx, id)
}

func (r memOrders) list(match func(models.Order) bool, page, limit int) ([]models.Order, int64) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var all []models.Order
	for _, o := range r.d.orders {
		if match(o) {
			all = append(all, copyOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return pageOf(all, page, limit), int64(len(all))
}

func pageOf[T any](all []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	start := (page - 1) * limit
	if start >= len(all) {
		return []T{}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func (r memOrders) FindByUserID(_ context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	out, total := r.list(func(o models.Order) bool { return o.UserID == userID }, page, limit)
	return out, total, nil
}

func (r memOrders) FindAll(_ context.Context, page, limit int) ([]models.Order, int64, error) {
	out, total := r.list(func(models.Order) bool { return true }, page, limit)
	return out, total, nil
}

func (r memOrders) Count(_ context.Context) (int64, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	return int64(len(r.d.orders)), nil
}

func (r memOrders) Update(_ context.Context, o *models.Order) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	stored, ok := r.d.orders[o.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	updated := copyOrder(*o)
	updated.Items = stored.Items
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now()
	updated.Recalculate()
	r.d.orders[o.ID] = updated
	return nil
}

func (r memOrders) Delete(_ context.Context, id uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.orders[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.d.orders, id)
	return nil
}

// --- payments ---

type memPayments struct{ d *memData }

func (r memPayments) Create(_ context.Context, p *models.Payment) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, exists := r.d.payments[p.OrderID]; exists {
		return gorm.ErrDuplicatedKey
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.d.payments[p.OrderID] = *p
	return nil
}

func (r memPayments) FindByOrderID(_ context.Context, orderID uuid.UUID) (*models.Payment, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	p, ok := r.d.payments[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r memPayments) FindByOrderIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return r.FindByOrderID(ctx, orderID)
}

func (r memPayments) FindByOrderIDs(_ context.Context, orderIDs []uuid.UUID) ([]models.Payment, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var out []models.Payment
	for _, id := range orderIDs {
		if p, ok := r.d.payments[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memPayments) FindExpirable(_ context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var out []models.Payment
	for _, p := range r.d.payments {
		order, ok := r.d.orders[p.OrderID]
		if !ok || !slices.Contains(models.ExpirableShippingStatuses(), order.ShippingStatus) {
			continue
		}
		if p.Method == models.PaymentMethodGateway && p.Status == models.PaymentPending && p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memPayments) Update(_ context.Context, p *models.Payment) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	stored, ok := r.d.payments[p.OrderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	updated := *p
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = time.Now()
	r.d.payments[p.OrderID] = updated
	return nil
}

func (r memPayments) DeleteByOrderID(_ context.Context, orderID uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	delete(r.d.payments, orderID)
	return nil
}

// --- refunds ---

type memRefunds struct{ d *memData }

func (r memRefunds) Create(_ context.Context, rf *models.Refund) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, existing := range r.d.refunds {
		if existing.OrderID == rf.OrderID {
			return gorm.ErrDuplicatedKey
		}
	}
	if rf.ID == uuid.Nil {
		rf.ID = uuid.New()
	}
	now := time.Now()
	rf.CreatedAt, rf.UpdatedAt = now, now
	r.d.refunds[rf.ID] = *rf
	return nil
}

func (r memRefunds) FindByID(_ context.Context, id uuid.UUID) (*models.Refund, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	rf, ok := r.d.refunds[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &rf, nil
}

func (r memRefunds) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	return r.FindByID(ctx, id)
}

func (r memRefunds) FindByOrderID(_ context.Context, orderID uuid.UUID) (*models.Refund, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	for _, rf := range r.d.refunds {
		if rf.OrderID == orderID {
			return &rf, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memRefunds) list(match func(models.Refund) bool, page, limit int) ([]models.Refund, int64) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var all []models.Refund
	for _, rf := range r.d.refunds {
		if match(rf) {
			all = append(all, rf)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return pageOf(all, page, limit), int64(len(all))
}

func (r memRefunds) FindByUserID(_ context.Context, userID uuid.UUID, page, limit int) ([]models.Refund, int64, error) {
	out, total := r.list(func(rf models.Refund) bool { return rf.UserID == userID }, page, limit)
	return out, total, nil
}

func (r memRefunds) FindAll(_ context.Context, status models.RefundStatus, page, limit int) ([]models.Refund, int64, error) {
	out, total := r.list(func(rf models.Refund) bool { return status == "" || rf.Status == status }, page, limit)
	return out, total, nil
}

func (r memRefunds) Update(_ context.Context, rf *models.Refund) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.refunds[rf.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	rf.UpdatedAt = time.Now()
	r.d.refunds[rf.ID] = *rf
	return nil
}

// --- flash sales ---

type memFlashSales struct{ d *memData }

func (r memFlashSales) Create(_ context.Context, sale *models.FlashSale) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if sale.ID == uuid.Nil {
		sale.ID = uuid.New()
	}
	r.d.sales[sale.ID] = copySale(*sale)
	return nil
}

func (r memFlashSales) FindByID(_ context.Context, id uuid.UUID) (*models.FlashSale, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	sale, ok := r.d.sales[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	sale = copySale(sale)
	return &sale, nil
}

func (r memFlashSales) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.FlashSale, error) {
	return r.FindByID(ctx, id)
}

func (r memFlashSales) FindAll(_ context.Context) ([]models.FlashSale, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var out []models.FlashSale
	for _, s := range r.d.sales {
		out = append(out, copySale(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (r memFlashSales) FindActive(_ context.Context, now time.Time) ([]models.FlashSale, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var out []models.FlashSale
	for _, s := range r.d.sales {
		if s.ActiveAt(now) {
			out = append(out, copySale(s))
		}
	}
	return out, nil
}

func (r memFlashSales) FindOffer(_ context.Context, saleID, productID uuid.UUID) (*models.FlashSale, *models.FlashSaleProduct, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	sale, ok := r.d.sales[saleID]
	if !ok {
		return nil, nil, gorm.ErrRecordNotFound
	}
	for _, p := range sale.Products {
		if p.ProductID == productID {
			sale = copySale(sale)
			offer := p
			return &sale, &offer, nil
		}
	}
	return nil, nil, gorm.ErrRecordNotFound
}

func (r memFlashSales) updateOffer(match func(models.FlashSaleProduct) bool, apply func(*models.FlashSaleProduct) bool) (bool, bool) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for id, sale := range r.d.sales {
		for i := range sale.Products {
			if match(sale.Products[i]) {
				sale = copySale(sale)
				if !apply(&sale.Products[i]) {
					return true, false
				}
				r.d.sales[id] = sale
				return true, true
			}
		}
	}
	return false, false
}

func (r memFlashSales) Reserve(_ context.Context, saleID, productID uuid.UUID, qty int) error {
	_, applied := r.updateOffer(
		func(p models.FlashSaleProduct) bool { return p.FlashSaleID == saleID && p.ProductID == productID },
		func(p *models.FlashSaleProduct) bool {
			if p.SoldCount+qty > p.Quantity {
				return false
			}
			p.SoldCount += qty
			return true
		})
	if !applied {
		return repository.ErrOfferExhausted
	}
	return nil
}

func (r memFlashSales) Update(_ context.Context, sale *models.FlashSale) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	stored, ok := r.d.sales[sale.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	updated := copySale(*sale)
	updated.Products = stored.Products
	r.d.sales[sale.ID] = updated
	return nil
}

func (r memFlashSales) SetOfferTerms(_ context.Context, offerID uuid.UUID, discountPrice int64, quantity int) error {
	_, applied := r.updateOffer(
		func(p models.FlashSaleProduct) bool { return p.ID == offerID },
		func(p *models.FlashSaleProduct) bool {
			if p.SoldCount > quantity {
				return false
			}
			p.DiscountPrice, p.Quantity = discountPrice, quantity
			return true
		})
	if !applied {
		return repository.ErrCapBelowSold
	}
	return nil
}

func (r memFlashSales) AddOffer(_ context.Context, offer *models.FlashSaleProduct) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	sale, ok := r.d.sales[offer.FlashSaleID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	sale = copySale(sale)
	sale.Products = append(sale.Products, *offer)
	r.d.sales[sale.ID] = sale
	return nil
}

func (r memFlashSales) RemoveOffer(_ context.Context, offerID uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for id, sale := range r.d.sales {
		kept := sale.Products[:0:0]
		for _, p := range sale.Products {
			if p.ID != offerID {
				kept = append(kept, p)
			}
		}
		sale.Products = kept
		r.d.sales[id] = sale
	}
	return nil
}

func (r memFlashSales) Delete(_ context.Context, id uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.sales[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.d.sales, id)
	return nil
}

// --- carts ---

type memCarts struct{ d *memData }

func (r memCarts) FindByUserID(_ context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	return append([]models.CartItem(nil), r.d.carts[userID]...), nil
}

func (r memCarts) Clear(_ context.Context, userID uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	delete(r.d.carts, userID)
	return nil
}
