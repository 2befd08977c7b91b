package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/openmall/order-engine/internal/core/domain"
)

func (m *mysqlTx) GetSKU(ctx context.Context, skuID int64) (*domain.SKU, error) {
	var (
		sku   domain.SKU
		price string
	)
	err := m.tx.QueryRowContext(ctx, `
		SELECT id, product_id, title, price, stock, created_at, updated_at
		FROM product_skus WHERE id = ?`, skuID,
	).Scan(&sku.ID, &sku.ProductID, &sku.Title, &price, &sku.Stock,
		&sku.CreatedAt, &sku.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sku: %w", err)
	}
	if sku.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse sku price: %w", err)
	}
	return &sku, nil
}

// DecreaseStock is the oversell guard: one conditional statement, so
// concurrent decrements for the same SKU serialize on the row lock and
// stock never goes below zero. Zero affected rows means insufficient stock.
func (m *mysqlTx) DecreaseStock(ctx context.Context, skuID int64, qty int) (int64, error) {
	result, err := m.tx.ExecContext(ctx, `
		UPDATE product_skus
		SET stock = stock - ?, updated_at = NOW()
		WHERE id = ? AND stock >= ?`,
		qty, skuID, qty,
	)
	if err != nil {
		return 0, fmt.Errorf("decrease stock: %w", err)
	}
	return result.RowsAffected()
}

func (m *mysqlTx) IncreaseStock(ctx context.Context, skuID int64, qty int) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE product_skus SET stock = stock + ?, updated_at = NOW() WHERE id = ?`,
		qty, skuID,
	)
	if err != nil {
		return fmt.Errorf("increase stock: %w", err)
	}
	return nil
}

func (m *mysqlTx) GetCouponByCode(ctx context.Context, code string) (*domain.CouponCode, error) {
	var (
		coupon    domain.CouponCode
		value     string
		minAmount string
		notBefore sql.NullTime
		notAfter  sql.NullTime
	)
	err := m.tx.QueryRowContext(ctx, `
		SELECT id, code, type, value, total, used, min_amount, not_before,
		       not_after, enabled
		FROM coupon_codes WHERE code = ?`, code,
	).Scan(&coupon.ID, &coupon.Code, &coupon.Type, &value, &coupon.TotalCount,
		&coupon.UsedCount, &minAmount, &notBefore, &notAfter, &coupon.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon: %w", err)
	}
	if coupon.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("parse coupon value: %w", err)
	}
	if coupon.MinAmount, err = decimal.NewFromString(minAmount); err != nil {
		return nil, fmt.Errorf("parse coupon min amount: %w", err)
	}
	if notBefore.Valid {
		t := notBefore.Time
		coupon.NotBefore = &t
	}
	if notAfter.Valid {
		t := notAfter.Time
		coupon.NotAfter = &t
	}
	return &coupon, nil
}

// ConsumeCoupon mirrors the stock guard: the used counter only moves while
// uses remain, so two orders racing for a coupon's last use cannot both win.
func (m *mysqlTx) ConsumeCoupon(ctx context.Context, couponID int64) (int64, error) {
	result, err := m.tx.ExecContext(ctx, `
		UPDATE coupon_codes SET used = used + 1 WHERE id = ? AND used < total`,
		couponID,
	)
	if err != nil {
		return 0, fmt.Errorf("consume coupon: %w", err)
	}
	return result.RowsAffected()
}

func (m *mysqlTx) ReleaseCoupon(ctx context.Context, couponID int64) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE coupon_codes SET used = used - 1 WHERE id = ? AND used > 0`,
		couponID,
	)
	if err != nil {
		return fmt.Errorf("release coupon: %w", err)
	}
	return nil
}

func (m *mysqlTx) ProductReviewStats(ctx context.Context, productID int64) (int, float64, error) {
	var (
		count int
		avg   sql.NullFloat64
	)
	err := m.tx.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(oi.rating)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.product_id = ?
		  AND oi.reviewed_at IS NOT NULL
		  AND o.paid_at IS NOT NULL`, productID,
	).Scan(&count, &avg)
	if err != nil {
		return 0, 0, fmt.Errorf("query review stats: %w", err)
	}
	return count, avg.Float64, nil
}

func (m *mysqlTx) UpdateProductRating(ctx context.Context, productID int64, rating float64, count int) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE products SET rating = ?, review_count = ?, updated_at = NOW()
		WHERE id = ?`,
		rating, count, productID,
	)
	if err != nil {
		return fmt.Errorf("update product rating: %w", err)
	}
	return nil
}
