package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openmall/order-engine/internal/core/domain"
	"github.com/openmall/order-engine/internal/port"
)

// CartItem is one (SKU, quantity) pair of a checkout selection.
type CartItem struct {
	SkuID    int64
	Quantity int
}

type OrderService struct {
	store   port.Store
	cancels port.CancellationQueue
	ratings port.RatingQueue
	cart    port.CartService
	gateway port.PaymentGateway

	orderTTL time.Duration // how long an unpaid order holds its stock
}

func NewOrderService(
	store port.Store,
	cancels port.CancellationQueue,
	ratings port.RatingQueue,
	cart port.CartService,
	gateway port.PaymentGateway,
	orderTTL time.Duration,
) *OrderService {
	return &OrderService{
		store:    store,
		cancels:  cancels,
		ratings:  ratings,
		cart:     cart,
		gateway:  gateway,
		orderTTL: orderTTL,
	}
}

// PlaceOrder turns a cart selection into a durable order. The header
// insert, every line-item insert, every stock decrement, the coupon
// consumption and the final total all commit or roll back together; a
// decrement hitting the stock floor aborts the whole attempt.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, address domain.Address, remark string, items []CartItem, couponCode string) (*domain.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidInput)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty item list", ErrInvalidInput)
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
		}
	}

	var order *domain.Order
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		var coupon *domain.CouponCode
		if couponCode != "" {
			var err error
			coupon, err = tx.GetCouponByCode(ctx, couponCode)
			if err != nil {
				return fmt.Errorf("load coupon: %w", err)
			}
			if coupon == nil {
				return fmt.Errorf("%w: unknown code", domain.ErrCouponUnavailable)
			}
		}

		now := time.Now()
		o := &domain.Order{
			No:           domain.NewOrderNo(),
			UserID:       userID,
			Address:      address,
			Remark:       remark,
			TotalAmount:  decimal.Zero,
			RefundStatus: domain.RefundStatusPending,
			ShipStatus:   domain.ShipStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if coupon != nil {
			o.CouponCodeID = coupon.ID
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		total := decimal.Zero
		for _, it := range items {
			sku, err := tx.GetSKU(ctx, it.SkuID)
			if err != nil {
				return fmt.Errorf("load sku %d: %w", it.SkuID, err)
			}
			if sku == nil {
				return fmt.Errorf("%w: sku %d", ErrSKUNotFound, it.SkuID)
			}

			item := &domain.OrderItem{
				OrderID:   o.ID,
				ProductID: sku.ProductID,
				SkuID:     sku.ID,
				Quantity:  it.Quantity,
				Price:     sku.Price,
			}
			if err := tx.CreateOrderItem(ctx, item); err != nil {
				return fmt.Errorf("create order item: %w", err)
			}

			affected, err := tx.DecreaseStock(ctx, sku.ID, it.Quantity)
			if err != nil {
				return fmt.Errorf("decrease stock: %w", err)
			}
			if affected == 0 {
				return fmt.Errorf("%w: sku %d", ErrInsufficientStock, sku.ID)
			}

			total = total.Add(sku.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
			o.Items = append(o.Items, *item)
		}

		if coupon != nil {
			if err := coupon.CheckAvailable(now, total); err != nil {
				return err
			}
			total = coupon.Discount(total)
			affected, err := tx.ConsumeCoupon(ctx, coupon.ID)
			if err != nil {
				return fmt.Errorf("consume coupon: %w", err)
			}
			if affected == 0 {
				return fmt.Errorf("%w: exhausted", domain.ErrCouponUnavailable)
			}
		}

		if err := tx.UpdateOrderTotal(ctx, o.ID, total); err != nil {
			return fmt.Errorf("update order total: %w", err)
		}
		o.TotalAmount = total

		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Post-commit collaborators are best-effort: the order stands even if
	// the cart entry lingers, and a fired check re-validates payment state
	// anyway.
	skuIDs := make([]int64, 0, len(items))
	for _, it := range items {
		skuIDs = append(skuIDs, it.SkuID)
	}
	if err := s.cart.Remove(ctx, userID, skuIDs); err != nil {
		log.Printf("order %s: cart removal failed: %v", order.No, err)
	}
	if err := s.cancels.Schedule(ctx, order.No, order.CreatedAt.Add(s.orderTTL)); err != nil {
		log.Printf("order %s: scheduling cancellation failed: %v", order.No, err)
	}

	return order, nil
}

// GetOrder returns the user's order aggregate by its external number.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderNo string) (*domain.Order, error) {
	order, err := s.store.GetOrderByNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
	}
	if !order.BelongsTo(userID) {
		return nil, ErrNotOwner
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.store.ListOrdersByUser(ctx, userID)
}
