package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openmall/order-engine/internal/core/domain"
)

// Store is the durable state behind the order engine. Reads outside a
// transaction return fully-hydrated aggregates; every multi-step mutation
// goes through WithinTx.
type Store interface {
	// WithinTx runs fn inside one all-or-nothing transaction. Any error
	// from fn rolls back every mutation fn performed.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// GetOrderByNo returns the order with its items, or nil when unknown.
	GetOrderByNo(ctx context.Context, orderNo string) (*domain.Order, error)

	// ListOrdersByUser returns the user's orders, newest first, items included.
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

// Tx is the transaction-scoped view of the store.
type Tx interface {
	// CreateOrder inserts the order header and assigns its internal id.
	CreateOrder(ctx context.Context, order *domain.Order) error

	// CreateOrderItem inserts one line item and assigns its internal id.
	CreateOrderItem(ctx context.Context, item *domain.OrderItem) error

	// UpdateOrderTotal persists the final computed total onto the header.
	UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error

	// GetOrderForUpdate loads the order with its items and row-locks it for
	// the remainder of the transaction. Returns nil when unknown.
	GetOrderForUpdate(ctx context.Context, orderNo string) (*domain.Order, error)

	// MarkOrderPaid records the payment confirmation.
	MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time, method, paymentNo string) error

	// UpdateShipStatus moves the shipment status; shipData may be nil to
	// leave the stored blob untouched.
	UpdateShipStatus(ctx context.Context, orderID int64, status domain.ShipStatus, shipData map[string]any) error

	// UpdateRefund moves the refund status; refundNo is kept when empty,
	// extra replaces the stored extra data when non-nil.
	UpdateRefund(ctx context.Context, orderID int64, status domain.RefundStatus, refundNo string, extra map[string]any) error

	// UpdateItemReview records one item's rating, text and reviewed-at.
	UpdateItemReview(ctx context.Context, itemID int64, rating int, review string, reviewedAt time.Time) error

	// MarkOrderReviewed sets the order-level reviewed flag.
	MarkOrderReviewed(ctx context.Context, orderID int64) error

	// CloseOrder sets the closed flag.
	CloseOrder(ctx context.Context, orderID int64) error

	// GetSKU returns the SKU with its current price and stock, or nil.
	GetSKU(ctx context.Context, skuID int64) (*domain.SKU, error)

	// DecreaseStock conditionally decrements SKU stock and returns the
	// number of rows changed: 0 means insufficient stock and the caller
	// must abort the transaction.
	DecreaseStock(ctx context.Context, skuID int64, qty int) (int64, error)

	// IncreaseStock restores stock unconditionally.
	IncreaseStock(ctx context.Context, skuID int64, qty int) error

	// GetCouponByCode returns the coupon for a code, or nil when unknown.
	GetCouponByCode(ctx context.Context, code string) (*domain.CouponCode, error)

	// ConsumeCoupon increments the coupon's used count only while uses
	// remain; 0 rows changed means the coupon is exhausted.
	ConsumeCoupon(ctx context.Context, couponID int64) (int64, error)

	// ReleaseCoupon returns one consumed use to the coupon.
	ReleaseCoupon(ctx context.Context, couponID int64) error

	// ProductReviewStats aggregates rating count and average across the
	// product's reviewed items on paid orders.
	ProductReviewStats(ctx context.Context, productID int64) (count int, avg float64, err error)

	// UpdateProductRating writes the recomputed aggregate onto the product.
	UpdateProductRating(ctx context.Context, productID int64, rating float64, count int) error
}
