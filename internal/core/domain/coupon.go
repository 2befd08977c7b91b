package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponTypeFixed   CouponType = "fixed"
	CouponTypePercent CouponType = "percent"
)

var ErrCouponUnavailable = errors.New("coupon unavailable")

// CouponCode is a pre-validated discount token. The engine only needs its
// discount rule and its consumption bookkeeping; issuing and lookup UX live
// elsewhere.
type CouponCode struct {
	ID         int64
	Code       string
	Type       CouponType
	Value      decimal.Decimal // amount for fixed, percentage points for percent
	TotalCount int
	UsedCount  int
	MinAmount  decimal.Decimal
	NotBefore  *time.Time
	NotAfter   *time.Time
	Enabled    bool
}

// CheckAvailable reports whether the coupon may be applied to an order of
// the given total at the given time.
func (c *CouponCode) CheckAvailable(now time.Time, total decimal.Decimal) error {
	switch {
	case !c.Enabled:
		return fmt.Errorf("%w: disabled", ErrCouponUnavailable)
	case c.UsedCount >= c.TotalCount:
		return fmt.Errorf("%w: exhausted", ErrCouponUnavailable)
	case c.NotBefore != nil && now.Before(*c.NotBefore):
		return fmt.Errorf("%w: not yet valid", ErrCouponUnavailable)
	case c.NotAfter != nil && now.After(*c.NotAfter):
		return fmt.Errorf("%w: expired", ErrCouponUnavailable)
	case total.LessThan(c.MinAmount):
		return fmt.Errorf("%w: order total below minimum", ErrCouponUnavailable)
	}
	return nil
}

// Discount returns the order total after applying the coupon. A fixed coupon
// never drives the total below 0.01.
func (c *CouponCode) Discount(total decimal.Decimal) decimal.Decimal {
	switch c.Type {
	case CouponTypeFixed:
		floor := decimal.NewFromFloat(0.01)
		discounted := total.Sub(c.Value)
		if discounted.LessThan(floor) {
			return floor
		}
		return discounted
	case CouponTypePercent:
		hundred := decimal.NewFromInt(100)
		return total.Mul(hundred.Sub(c.Value)).Div(hundred).Round(2)
	}
	return total
}
