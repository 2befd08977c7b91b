package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openmall/order-engine/internal/port"
)

// CancelUnpaid is the body of a fired deferred-cancellation check. It
// re-validates payment state at fire time: an order paid or closed since
// scheduling makes the check a silent no-op. Otherwise the close flag, the
// per-item stock restores and the coupon release commit as one transaction,
// so firing twice cannot restore stock twice.
func (s *OrderService) CancelUnpaid(ctx context.Context, orderNo string) error {
	return s.store.WithinTx(ctx, func(tx port.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderNo)
		if err != nil {
			return err
		}
		if order == nil || order.IsPaid() || order.Closed {
			return nil
		}

		if err := tx.CloseOrder(ctx, order.ID); err != nil {
			return fmt.Errorf("close order: %w", err)
		}
		for _, item := range order.Items {
			if err := tx.IncreaseStock(ctx, item.SkuID, item.Quantity); err != nil {
				return fmt.Errorf("restore stock for sku %d: %w", item.SkuID, err)
			}
		}
		if order.CouponCodeID != 0 {
			if err := tx.ReleaseCoupon(ctx, order.CouponCodeID); err != nil {
				return fmt.Errorf("release coupon: %w", err)
			}
		}
		return nil
	})
}

const (
	cancelPollInterval = time.Second
	cancelPopLimit     = 100
	cancelRetryDelay   = 10 * time.Second
)

// RunCancellationWorker drains due cancellation checks until ctx is done.
// A check failing on a transient error is pushed back onto the queue with a
// delay rather than lost.
func (s *OrderService) RunCancellationWorker(ctx context.Context) {
	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		due, err := s.cancels.PopDue(ctx, time.Now(), cancelPopLimit)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("cancellation worker: pop due checks: %v", err)
			}
			continue
		}

		for _, orderNo := range due {
			if err := s.CancelUnpaid(ctx, orderNo); err != nil {
				log.Printf("cancellation worker: order %s: %v", orderNo, err)
				if err := s.cancels.Schedule(ctx, orderNo, time.Now().Add(cancelRetryDelay)); err != nil {
					log.Printf("cancellation worker: requeue order %s: %v", orderNo, err)
				}
			}
		}
	}
}
