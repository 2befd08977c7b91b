package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64
	Title       string
	Rating      float64
	ReviewCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SKU is the purchasable variant stock is tracked against. Stock here is a
// read snapshot; the oversell guard is the ledger's conditional decrement,
// never a compare on this value.
type SKU struct {
	ID        int64
	ProductID int64
	Title     string
	Price     decimal.Decimal
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}
