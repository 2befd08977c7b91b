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

// Extra-data keys. The extra blob is a merge-only map: transitions add keys,
// never drop what earlier transitions stored.
const (
	extraKeyRefundReason     = "refund_reason"
	extraKeyRefundFailReason = "refund_failed_reason"
)

// ConfirmPayment records an external payment confirmation. It is
// idempotent: a duplicate confirmation for an already-paid order keeps the
// first recorded values and returns nil, matching gateway retry semantics.
// A confirmation racing a fired cancellation that already closed the order
// is likewise a no-op; the first committed transition wins.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderNo, method, paymentNo string, paidAt time.Time) error {
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderNo)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
		}
		if order.IsPaid() || order.Closed {
			return nil
		}
		return tx.MarkOrderPaid(ctx, order.ID, paidAt, method, paymentNo)
	})
	if err != nil {
		return err
	}

	// Drop the pending check; cooperative, the fired check re-validates
	// payment state anyway.
	if err := s.cancels.Cancel(ctx, orderNo); err != nil {
		log.Printf("order %s: cancelling deferred check failed: %v", orderNo, err)
	}
	return nil
}

// ConfirmDelivery marks a paid order as shipped out by fulfillment,
// recording the carrier/tracking blob.
func (s *OrderService) ConfirmDelivery(ctx context.Context, orderNo string, shipData map[string]any) error {
	return s.store.WithinTx(ctx, func(tx port.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderNo)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
		}
		if !order.IsPaid() {
			return fmt.Errorf("%w: order not paid", ErrInvalidState)
		}
		if order.ShipStatus != domain.ShipStatusPending {
			return fmt.Errorf("%w: order already delivered", ErrInvalidState)
		}
		return tx.UpdateShipStatus(ctx, order.ID, domain.ShipStatusDelivered, shipData)
	})
}

// ConfirmReceipt is the customer confirming the shipment arrived. Received
// is terminal.
func (s *OrderService) ConfirmReceipt(ctx context.Context, userID, orderNo string) error {
	return s.store.WithinTx(ctx, func(tx port.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderNo)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
		}
		if !order.BelongsTo(userID) {
			return ErrNotOwner
		}
		if order.ShipStatus != domain.ShipStatusDelivered {
			return fmt.Errorf("%w: shipment not delivered", ErrInvalidState)
		}
		return tx.UpdateShipStatus(ctx, order.ID, domain.ShipStatusReceived, nil)
	})
}

// RequestRefund opens a refund request on a paid order. Allowed only while
// the refund status is Pending, or Failed for re-application after a failed
// attempt; the customer's reason is merged into the order's extra data.
func (s *OrderService) RequestRefund(ctx context.Context, userID, orderNo, reason string) error {
	return s.store.WithinTx(ctx, func(tx port.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderNo)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
		}
		if !order.BelongsTo(userID) {
			return ErrNotOwner
		}
		if !order.IsPaid() {
			return fmt.Errorf("%w: order not paid", ErrInvalidState)
		}
		switch order.RefundStatus {
		case domain.RefundStatusPending, domain.RefundStatusFailed:
		default:
			return ErrRefundAlreadyRequested
		}

		extra := order.MergedExtra(map[string]any{extraKeyRefundReason: reason})
		return tx.UpdateRefund(ctx, order.ID, domain.RefundStatusApplied, "", extra)
	})
}

// AgreeRefund is the operator approving an applied refund: a refund number
// is issued, the order moves to Processing and the gateway is asked to pay
// the money back. The gateway's verdict arrives via ConfirmRefund; a
// synchronous gateway error is recorded as a failed attempt immediately.
func (s *OrderService) AgreeRefund(ctx context.Context, orderNo string) error {
	var (
		refundNo string
		amount   decimal.Decimal
	)
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderNo)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
		}
		if order.RefundStatus != domain.RefundStatusApplied {
			return fmt.Errorf("%w: refund not applied", ErrInvalidState)
		}
		refundNo = domain.NewRefundNo()
		amount = order.TotalAmount
		return tx.UpdateRefund(ctx, order.ID, domain.RefundStatusProcessing, refundNo, nil)
	})
	if err != nil {
		return err
	}

	if err := s.gateway.Refund(ctx, orderNo, refundNo, amount); err != nil {
		return s.ConfirmRefund(ctx, orderNo, false, err.Error())
	}
	return nil
}

// ConfirmRefund finalizes a processing refund with the gateway's verdict.
// Success restores every line item's stock; failure stores the reason in
// extra data and returns the order to the Failed state for re-application.
// A duplicate notification for an already-settled refund is a no-op.
func (s *OrderService) ConfirmRefund(ctx context.Context, orderNo string, succeeded bool, failReason string) error {
	return s.store.WithinTx(ctx, func(tx port.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderNo)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
		}
		switch order.RefundStatus {
		case domain.RefundStatusSuccess, domain.RefundStatusFailed:
			return nil
		case domain.RefundStatusProcessing:
		default:
			return fmt.Errorf("%w: refund not processing", ErrInvalidState)
		}

		if !succeeded {
			extra := order.MergedExtra(map[string]any{extraKeyRefundFailReason: failReason})
			return tx.UpdateRefund(ctx, order.ID, domain.RefundStatusFailed, "", extra)
		}

		for _, item := range order.Items {
			if err := tx.IncreaseStock(ctx, item.SkuID, item.Quantity); err != nil {
				return fmt.Errorf("restore stock for sku %d: %w", item.SkuID, err)
			}
		}
		return tx.UpdateRefund(ctx, order.ID, domain.RefundStatusSuccess, "", nil)
	})
}

// ItemReview is one line item's rating submission.
type ItemReview struct {
	ItemID int64
	Rating int
	Review string
}

// SubmitReview records ratings for every item of a paid order. The last
// item update and the order-level reviewed flag commit in the same
// transaction, so reviewed=true always implies every item carries a
// reviewed-at timestamp. One recompute signal per distinct product is
// emitted after commit.
func (s *OrderService) SubmitReview(ctx context.Context, userID, orderNo string, reviews []ItemReview) error {
	if len(reviews) == 0 {
		return fmt.Errorf("%w: empty review list", ErrInvalidInput)
	}
	for _, r := range reviews {
		if r.Rating < 1 || r.Rating > 5 {
			return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
		}
	}

	var productIDs []int64
	err := s.store.WithinTx(ctx, func(tx port.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderNo)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNo)
		}
		if !order.BelongsTo(userID) {
			return ErrNotOwner
		}
		if !order.IsPaid() {
			return fmt.Errorf("%w: order not paid", ErrInvalidState)
		}
		if order.Reviewed {
			return ErrAlreadyReviewed
		}

		byID := make(map[int64]*domain.OrderItem, len(order.Items))
		for i := range order.Items {
			byID[order.Items[i].ID] = &order.Items[i]
		}
		if len(reviews) != len(order.Items) {
			return fmt.Errorf("%w: review must cover every order item", ErrInvalidInput)
		}

		now := time.Now()
		seen := make(map[int64]bool, len(reviews))
		for _, r := range reviews {
			item, ok := byID[r.ItemID]
			if !ok {
				return fmt.Errorf("%w: item %d", ErrItemNotFound, r.ItemID)
			}
			if seen[r.ItemID] {
				return fmt.Errorf("%w: item %d reviewed twice", ErrInvalidInput, r.ItemID)
			}
			seen[r.ItemID] = true
			if err := tx.UpdateItemReview(ctx, item.ID, r.Rating, r.Review, now); err != nil {
				return fmt.Errorf("update item review: %w", err)
			}
		}

		if err := tx.MarkOrderReviewed(ctx, order.ID); err != nil {
			return fmt.Errorf("mark reviewed: %w", err)
		}

		distinct := make(map[int64]bool)
		for _, item := range order.Items {
			if !distinct[item.ProductID] {
				distinct[item.ProductID] = true
				productIDs = append(productIDs, item.ProductID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, productID := range productIDs {
		if err := s.ratings.Enqueue(ctx, productID); err != nil {
			log.Printf("order %s: enqueue rating recompute for product %d failed: %v", orderNo, productID, err)
		}
	}
	return nil
}
