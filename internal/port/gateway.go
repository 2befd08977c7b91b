package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentGateway is the abstract confirm/refund contract the engine depends
// on. Concrete gateway SDKs live behind it; they eventually report the
// outcome through the engine's payment/refund confirmation entry points.
type PaymentGateway interface {
	// Refund asks the gateway to return amount for the given order. The
	// final outcome arrives asynchronously via a refund notification.
	Refund(ctx context.Context, orderNo, refundNo string, amount decimal.Decimal) error
}

// CartService removes purchased SKUs from a user's cart. Called best-effort
// after the order transaction commits; failures never undo the order.
type CartService interface {
	Remove(ctx context.Context, userID string, skuIDs []int64) error
}
