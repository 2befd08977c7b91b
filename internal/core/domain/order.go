package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ShipStatus string

const (
	ShipStatusPending   ShipStatus = "pending"
	ShipStatusDelivered ShipStatus = "delivered"
	ShipStatusReceived  ShipStatus = "received"
)

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusApplied    RefundStatus = "applied"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusSuccess    RefundStatus = "success"
	RefundStatusFailed     RefundStatus = "failed"
)

// Address is the contact snapshot frozen onto an order at checkout.
// Later edits to the user's address book never touch past orders.
type Address struct {
	FullAddress  string `json:"address"`
	Zip          string `json:"zip"`
	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
}

type Order struct {
	ID            int64
	No            string // externally visible order number
	UserID        string
	Address       Address
	Remark        string
	TotalAmount   decimal.Decimal
	PaidAt        *time.Time
	PaymentMethod string
	PaymentNo     string // gateway reference
	RefundStatus  RefundStatus
	RefundNo      string
	Closed        bool
	Reviewed      bool
	ShipStatus    ShipStatus
	ShipData      map[string]any
	Extra         map[string]any
	CouponCodeID  int64 // zero when no coupon was applied
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Items []OrderItem
}

type OrderItem struct {
	ID         int64
	OrderID    int64
	ProductID  int64
	SkuID      int64
	Quantity   int
	Price      decimal.Decimal // unit price snapshot at purchase time
	Rating     int
	Review     string
	ReviewedAt *time.Time
}

func (o *Order) BelongsTo(userID string) bool {
	return o.UserID == userID
}

func (o *Order) IsPaid() bool {
	return o.PaidAt != nil
}

// MergedExtra returns the order's extra data with kv merged in, never
// mutating the receiver. Existing keys absent from kv survive.
func (o *Order) MergedExtra(kv map[string]any) map[string]any {
	merged := make(map[string]any, len(o.Extra)+len(kv))
	for k, v := range o.Extra {
		merged[k] = v
	}
	for k, v := range kv {
		merged[k] = v
	}
	return merged
}

// NewOrderNo builds an order number with a sortable timestamp prefix.
func NewOrderNo() string {
	return time.Now().UTC().Format("20060102150405") + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func NewRefundNo() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
