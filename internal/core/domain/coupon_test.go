package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCouponCheckAvailable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	base := CouponCode{
		Type: CouponTypeFixed, Value: d("10.00"),
		TotalCount: 5, Enabled: true,
	}

	tests := []struct {
		name    string
		mutate  func(*CouponCode)
		total   decimal.Decimal
		wantErr bool
	}{
		{"available", func(c *CouponCode) {}, d("100.00"), false},
		{"disabled", func(c *CouponCode) { c.Enabled = false }, d("100.00"), true},
		{"exhausted", func(c *CouponCode) { c.UsedCount = 5 }, d("100.00"), true},
		{"not yet valid", func(c *CouponCode) { c.NotBefore = &future }, d("100.00"), true},
		{"expired", func(c *CouponCode) { c.NotAfter = &past }, d("100.00"), true},
		{"below minimum", func(c *CouponCode) { c.MinAmount = d("200.00") }, d("100.00"), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			err := c.CheckAvailable(now, tc.total)
			if tc.wantErr && !errors.Is(err, ErrCouponUnavailable) {
				t.Errorf("expected ErrCouponUnavailable, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCouponDiscount(t *testing.T) {
	fixed := CouponCode{Type: CouponTypeFixed, Value: d("10.00")}
	if got := fixed.Discount(d("30.00")); !got.Equal(d("20.00")) {
		t.Errorf("fixed: expected 20.00, got %s", got)
	}
	// Fixed discount never drives the total below one cent.
	if got := fixed.Discount(d("5.00")); !got.Equal(d("0.01")) {
		t.Errorf("fixed floor: expected 0.01, got %s", got)
	}

	percent := CouponCode{Type: CouponTypePercent, Value: d("25")}
	if got := percent.Discount(d("80.00")); !got.Equal(d("60.00")) {
		t.Errorf("percent: expected 60.00, got %s", got)
	}
	if got := percent.Discount(d("9.99")); !got.Equal(d("7.49")) {
		t.Errorf("percent rounding: expected 7.49, got %s", got)
	}
}
