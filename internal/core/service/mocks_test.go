package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openmall/order-engine/internal/core/domain"
	"github.com/openmall/order-engine/internal/port"
)

// memStore is an in-memory port.Store with real transaction semantics: a
// whole-store snapshot is taken at WithinTx entry and restored when fn
// fails, so all-or-nothing behavior is observable in tests. Transactions
// serialize on one mutex, the same guarantee the row-locked SQL store gives
// per aggregate.
type memStore struct {
	mu sync.Mutex

	orders   map[int64]*domain.Order
	orderNos map[string]int64
	skus     map[int64]*domain.SKU
	coupons  map[int64]*domain.CouponCode
	codes    map[string]int64
	products map[int64]*domain.Product

	nextOrderID int64
	nextItemID  int64
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[int64]*domain.Order),
		orderNos: make(map[string]int64),
		skus:     make(map[int64]*domain.SKU),
		coupons:  make(map[int64]*domain.CouponCode),
		codes:    make(map[string]int64),
		products: make(map[int64]*domain.Product),
	}
}

func (s *memStore) addSKU(sku domain.SKU) {
	s.skus[sku.ID] = &sku
	if _, ok := s.products[sku.ProductID]; !ok {
		s.products[sku.ProductID] = &domain.Product{ID: sku.ProductID}
	}
}

func (s *memStore) addCoupon(c domain.CouponCode) {
	s.coupons[c.ID] = &c
	s.codes[c.Code] = c.ID
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) GetOrderByNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.orderNos[orderNo]
	if !ok {
		return nil, nil
	}
	return copyOrder(s.orders[id]), nil
}

func (s *memStore) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

// stockOf reads current stock outside any transaction.
func (s *memStore) stockOf(skuID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skus[skuID].Stock
}

func (s *memStore) couponUsed(couponID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[couponID].UsedCount
}

func (s *memStore) orderByNo(orderNo string) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.orderNos[orderNo]
	if !ok {
		return nil
	}
	return copyOrder(s.orders[id])
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type storeSnapshot struct {
	orders   map[int64]*domain.Order
	orderNos map[string]int64
	skus     map[int64]*domain.SKU
	coupons  map[int64]*domain.CouponCode
	codes    map[string]int64
	products map[int64]*domain.Product

	nextOrderID int64
	nextItemID  int64
}

func (s *memStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		orders:      make(map[int64]*domain.Order, len(s.orders)),
		orderNos:    make(map[string]int64, len(s.orderNos)),
		skus:        make(map[int64]*domain.SKU, len(s.skus)),
		coupons:     make(map[int64]*domain.CouponCode, len(s.coupons)),
		codes:       make(map[string]int64, len(s.codes)),
		products:    make(map[int64]*domain.Product, len(s.products)),
		nextOrderID: s.nextOrderID,
		nextItemID:  s.nextItemID,
	}
	for id, o := range s.orders {
		snap.orders[id] = copyOrder(o)
	}
	for no, id := range s.orderNos {
		snap.orderNos[no] = id
	}
	for id, sku := range s.skus {
		c := *sku
		snap.skus[id] = &c
	}
	for id, coupon := range s.coupons {
		c := *coupon
		snap.coupons[id] = &c
	}
	for code, id := range s.codes {
		snap.codes[code] = id
	}
	for id, p := range s.products {
		c := *p
		snap.products[id] = &c
	}
	return snap
}

func (s *memStore) restore(snap storeSnapshot) {
	s.orders = snap.orders
	s.orderNos = snap.orderNos
	s.skus = snap.skus
	s.coupons = snap.coupons
	s.codes = snap.codes
	s.products = snap.products
	s.nextOrderID = snap.nextOrderID
	s.nextItemID = snap.nextItemID
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	for i := range c.Items {
		if c.Items[i].ReviewedAt != nil {
			t := *c.Items[i].ReviewedAt
			c.Items[i].ReviewedAt = &t
		}
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	c.ShipData = copyMap(o.ShipData)
	c.Extra = copyMap(o.Extra)
	return &c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// memTx mutates the store directly; the store's mutex is already held and
// rollback is the caller's snapshot restore.
type memTx struct {
	s *memStore
}

func (t *memTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	t.s.nextOrderID++
	order.ID = t.s.nextOrderID
	t.s.orders[order.ID] = copyOrder(order)
	t.s.orderNos[order.No] = order.ID
	return nil
}

func (t *memTx) CreateOrderItem(ctx context.Context, item *domain.OrderItem) error {
	t.s.nextItemID++
	item.ID = t.s.nextItemID
	order := t.s.orders[item.OrderID]
	order.Items = append(order.Items, *item)
	return nil
}

func (t *memTx) UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	t.s.orders[orderID].TotalAmount = total
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, orderNo string) (*domain.Order, error) {
	id, ok := t.s.orderNos[orderNo]
	if !ok {
		return nil, nil
	}
	return copyOrder(t.s.orders[id]), nil
}

func (t *memTx) MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time, method, paymentNo string) error {
	o := t.s.orders[orderID]
	o.PaidAt = &paidAt
	o.PaymentMethod = method
	o.PaymentNo = paymentNo
	return nil
}

func (t *memTx) UpdateShipStatus(ctx context.Context, orderID int64, status domain.ShipStatus, shipData map[string]any) error {
	o := t.s.orders[orderID]
	o.ShipStatus = status
	if shipData != nil {
		o.ShipData = copyMap(shipData)
	}
	return nil
}

func (t *memTx) UpdateRefund(ctx context.Context, orderID int64, status domain.RefundStatus, refundNo string, extra map[string]any) error {
	o := t.s.orders[orderID]
	o.RefundStatus = status
	if refundNo != "" {
		o.RefundNo = refundNo
	}
	if extra != nil {
		o.Extra = copyMap(extra)
	}
	return nil
}

func (t *memTx) UpdateItemReview(ctx context.Context, itemID int64, rating int, review string, reviewedAt time.Time) error {
	for _, o := range t.s.orders {
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items[i].Rating = rating
				o.Items[i].Review = review
				at := reviewedAt
				o.Items[i].ReviewedAt = &at
				return nil
			}
		}
	}
	return nil
}

func (t *memTx) MarkOrderReviewed(ctx context.Context, orderID int64) error {
	t.s.orders[orderID].Reviewed = true
	return nil
}

func (t *memTx) CloseOrder(ctx context.Context, orderID int64) error {
	t.s.orders[orderID].Closed = true
	return nil
}

func (t *memTx) GetSKU(ctx context.Context, skuID int64) (*domain.SKU, error) {
	sku, ok := t.s.skus[skuID]
	if !ok {
		return nil, nil
	}
	c := *sku
	return &c, nil
}

func (t *memTx) DecreaseStock(ctx context.Context, skuID int64, qty int) (int64, error) {
	sku, ok := t.s.skus[skuID]
	if !ok || sku.Stock < qty {
		return 0, nil
	}
	sku.Stock -= qty
	return 1, nil
}

func (t *memTx) IncreaseStock(ctx context.Context, skuID int64, qty int) error {
	if sku, ok := t.s.skus[skuID]; ok {
		sku.Stock += qty
	}
	return nil
}

func (t *memTx) GetCouponByCode(ctx context.Context, code string) (*domain.CouponCode, error) {
	id, ok := t.s.codes[code]
	if !ok {
		return nil, nil
	}
	c := *t.s.coupons[id]
	return &c, nil
}

func (t *memTx) ConsumeCoupon(ctx context.Context, couponID int64) (int64, error) {
	c, ok := t.s.coupons[couponID]
	if !ok || c.UsedCount >= c.TotalCount {
		return 0, nil
	}
	c.UsedCount++
	return 1, nil
}

func (t *memTx) ReleaseCoupon(ctx context.Context, couponID int64) error {
	if c, ok := t.s.coupons[couponID]; ok && c.UsedCount > 0 {
		c.UsedCount--
	}
	return nil
}

func (t *memTx) ProductReviewStats(ctx context.Context, productID int64) (int, float64, error) {
	var count, sum int
	for _, o := range t.s.orders {
		if o.PaidAt == nil {
			continue
		}
		for _, item := range o.Items {
			if item.ProductID == productID && item.ReviewedAt != nil {
				count++
				sum += item.Rating
			}
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return count, float64(sum) / float64(count), nil
}

func (t *memTx) UpdateProductRating(ctx context.Context, productID int64, rating float64, count int) error {
	p := t.s.products[productID]
	p.Rating = rating
	p.ReviewCount = count
	return nil
}

// memCancelQueue records scheduled checks in memory.
type memCancelQueue struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newMemCancelQueue() *memCancelQueue {
	return &memCancelQueue{entries: make(map[string]time.Time)}
}

func (q *memCancelQueue) Schedule(ctx context.Context, orderNo string, fireAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[orderNo] = fireAt
	return nil
}

func (q *memCancelQueue) Cancel(ctx context.Context, orderNo string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, orderNo)
	return nil
}

func (q *memCancelQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []string
	for no, at := range q.entries {
		if !at.After(now) && len(due) < limit {
			due = append(due, no)
			delete(q.entries, no)
		}
	}
	return due, nil
}

func (q *memCancelQueue) scheduled(orderNo string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[orderNo]
	return ok
}

// memRatingQueue records recompute signals; Dequeue never blocks.
type memRatingQueue struct {
	mu   sync.Mutex
	jobs []int64
}

func (q *memRatingQueue) Enqueue(ctx context.Context, productID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, productID)
	return nil
}

func (q *memRatingQueue) Dequeue(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return 0, false, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true, nil
}

func (q *memRatingQueue) pending() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64(nil), q.jobs...)
}

type memCart struct {
	mu      sync.Mutex
	removed map[string][]int64
}

func newMemCart() *memCart {
	return &memCart{removed: make(map[string][]int64)}
}

func (c *memCart) Remove(ctx context.Context, userID string, skuIDs []int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed[userID] = append(c.removed[userID], skuIDs...)
	return nil
}

type refundCall struct {
	orderNo  string
	refundNo string
}

type memGateway struct {
	mu      sync.Mutex
	refunds []refundCall
	fail    error
}

func (g *memGateway) Refund(ctx context.Context, orderNo, refundNo string, amount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return g.fail
	}
	g.refunds = append(g.refunds, refundCall{orderNo: orderNo, refundNo: refundNo})
	return nil
}

// testEnv bundles a service over the in-memory collaborators.
type testEnv struct {
	store   *memStore
	cancels *memCancelQueue
	ratings *memRatingQueue
	cart    *memCart
	gateway *memGateway
	svc     *OrderService
}

func newTestEnv(ttl time.Duration) *testEnv {
	env := &testEnv{
		store:   newMemStore(),
		cancels: newMemCancelQueue(),
		ratings: &memRatingQueue{},
		cart:    newMemCart(),
		gateway: &memGateway{},
	}
	env.svc = NewOrderService(env.store, env.cancels, env.ratings, env.cart, env.gateway, ttl)
	return env
}
