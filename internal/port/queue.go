package port

import (
	"context"
	"time"
)

// CancellationQueue is the durable home of deferred cancellation checks.
// Entries survive process restarts; delivery is at-least-once, so the
// consumer re-validates order state at fire time.
type CancellationQueue interface {
	// Schedule enqueues a one-shot check for orderNo due at fireAt.
	// Re-scheduling an existing entry moves its due time.
	Schedule(ctx context.Context, orderNo string, fireAt time.Time) error

	// Cancel drops a pending check. Cancelling an already-fired or unknown
	// entry is a no-op.
	Cancel(ctx context.Context, orderNo string) error

	// PopDue atomically claims up to limit entries due at or before now.
	PopDue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// RatingQueue carries asynchronous rating-recompute signals, one per
// product. Delivery is at-least-once; recomputation is idempotent.
type RatingQueue interface {
	Enqueue(ctx context.Context, productID int64) error

	// Dequeue blocks up to timeout for the next signal. ok is false when
	// the timeout elapsed with nothing queued.
	Dequeue(ctx context.Context, timeout time.Duration) (productID int64, ok bool, err error)
}
