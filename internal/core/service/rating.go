package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openmall/order-engine/internal/port"
)

// RecomputeRating rebuilds a product's aggregate rating from scratch:
// count and average over reviewed items belonging to paid orders. Running
// it twice for the same product converges to the same result, so at-least-
// once signal delivery is safe.
func (s *OrderService) RecomputeRating(ctx context.Context, productID int64) error {
	return s.store.WithinTx(ctx, func(tx port.Tx) error {
		count, avg, err := tx.ProductReviewStats(ctx, productID)
		if err != nil {
			return fmt.Errorf("review stats for product %d: %w", productID, err)
		}
		return tx.UpdateProductRating(ctx, productID, avg, count)
	})
}

const (
	ratingDequeueTimeout = 2 * time.Second
	ratingRetryDelay     = 5 * time.Second
)

// RunRatingWorker consumes recompute signals until ctx is done. Transient
// failures put the signal back on the queue after a short pause.
func (s *OrderService) RunRatingWorker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		productID, ok, err := s.ratings.Dequeue(ctx, ratingDequeueTimeout)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("rating worker: dequeue: %v", err)
			}
			continue
		}
		if !ok {
			continue
		}

		if err := s.RecomputeRating(ctx, productID); err != nil {
			log.Printf("rating worker: product %d: %v", productID, err)
			time.Sleep(ratingRetryDelay)
			if err := s.ratings.Enqueue(ctx, productID); err != nil {
				log.Printf("rating worker: requeue product %d: %v", productID, err)
			}
		}
	}
}
