package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openmall/order-engine/internal/core/domain"
	"github.com/openmall/order-engine/internal/port"
)

// MySQLStore implements port.Store over database/sql. All mutations run
// inside WithinTx; the conditional stock decrement relies on MySQL row
// locking to serialize concurrent checkouts per SKU.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetOrderByNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	return getOrder(ctx, s.db, orderNo, false)
}

func (s *MySQLStore) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, orderSelect+` WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := getOrderItems(ctx, s.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// mysqlTx implements port.Tx on top of one *sql.Tx.
type mysqlTx struct {
	tx *sql.Tx
}

func (m *mysqlTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	addr, err := json.Marshal(order.Address)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}
	extra, err := marshalMap(order.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}
	shipData, err := marshalMap(order.ShipData)
	if err != nil {
		return fmt.Errorf("marshal ship data: %w", err)
	}

	result, err := m.tx.ExecContext(ctx, `
		INSERT INTO orders
			(no, user_id, address, remark, total_amount, refund_status,
			 closed, reviewed, ship_status, ship_data, extra, coupon_code_id,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.No, order.UserID, addr, order.Remark, order.TotalAmount.StringFixed(2),
		order.RefundStatus, order.Closed, order.Reviewed, order.ShipStatus,
		shipData, extra, order.CouponCodeID, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	order.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	return nil
}

func (m *mysqlTx) CreateOrderItem(ctx context.Context, item *domain.OrderItem) error {
	result, err := m.tx.ExecContext(ctx, `
		INSERT INTO order_items (order_id, product_id, sku_id, quantity, price)
		VALUES (?, ?, ?, ?, ?)`,
		item.OrderID, item.ProductID, item.SkuID, item.Quantity, item.Price.StringFixed(2),
	)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	item.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("order item id: %w", err)
	}
	return nil
}

func (m *mysqlTx) UpdateOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE orders SET total_amount = ?, updated_at = NOW() WHERE id = ?`,
		total.StringFixed(2), orderID,
	)
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	return nil
}

func (m *mysqlTx) GetOrderForUpdate(ctx context.Context, orderNo string) (*domain.Order, error) {
	return getOrder(ctx, m.tx, orderNo, true)
}

func (m *mysqlTx) MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time, method, paymentNo string) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE orders
		SET paid_at = ?, payment_method = ?, payment_no = ?, updated_at = NOW()
		WHERE id = ?`,
		paidAt, method, paymentNo, orderID,
	)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	return nil
}

func (m *mysqlTx) UpdateShipStatus(ctx context.Context, orderID int64, status domain.ShipStatus, shipData map[string]any) error {
	if shipData == nil {
		_, err := m.tx.ExecContext(ctx, `
			UPDATE orders SET ship_status = ?, updated_at = NOW() WHERE id = ?`,
			status, orderID,
		)
		if err != nil {
			return fmt.Errorf("update ship status: %w", err)
		}
		return nil
	}

	data, err := marshalMap(shipData)
	if err != nil {
		return fmt.Errorf("marshal ship data: %w", err)
	}
	_, err = m.tx.ExecContext(ctx, `
		UPDATE orders SET ship_status = ?, ship_data = ?, updated_at = NOW() WHERE id = ?`,
		status, data, orderID,
	)
	if err != nil {
		return fmt.Errorf("update ship status: %w", err)
	}
	return nil
}

func (m *mysqlTx) UpdateRefund(ctx context.Context, orderID int64, status domain.RefundStatus, refundNo string, extra map[string]any) error {
	query := `UPDATE orders SET refund_status = ?, updated_at = NOW()`
	args := []any{status}
	if refundNo != "" {
		query += `, refund_no = ?`
		args = append(args, refundNo)
	}
	if extra != nil {
		data, err := marshalMap(extra)
		if err != nil {
			return fmt.Errorf("marshal extra: %w", err)
		}
		query += `, extra = ?`
		args = append(args, data)
	}
	query += ` WHERE id = ?`
	args = append(args, orderID)

	if _, err := m.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update refund: %w", err)
	}
	return nil
}

func (m *mysqlTx) UpdateItemReview(ctx context.Context, itemID int64, rating int, review string, reviewedAt time.Time) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE order_items SET rating = ?, review = ?, reviewed_at = ? WHERE id = ?`,
		rating, review, reviewedAt, itemID,
	)
	if err != nil {
		return fmt.Errorf("update item review: %w", err)
	}
	return nil
}

func (m *mysqlTx) MarkOrderReviewed(ctx context.Context, orderID int64) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE orders SET reviewed = TRUE, updated_at = NOW() WHERE id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("mark order reviewed: %w", err)
	}
	return nil
}

func (m *mysqlTx) CloseOrder(ctx context.Context, orderID int64) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE orders SET closed = TRUE, updated_at = NOW() WHERE id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("close order: %w", err)
	}
	return nil
}

// querier is the common face of *sql.DB and *sql.Tx the scan helpers need.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const orderSelect = `
	SELECT id, no, user_id, address, remark, total_amount, paid_at,
	       payment_method, payment_no, refund_status, refund_no, closed,
	       reviewed, ship_status, ship_data, extra, coupon_code_id,
	       created_at, updated_at
	FROM orders`

func getOrder(ctx context.Context, q querier, orderNo string, forUpdate bool) (*domain.Order, error) {
	query := orderSelect + ` WHERE no = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.QueryContext(ctx, query, orderNo)
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	order, err := scanOrder(rows)
	if err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	order.Items, err = getOrderItems(ctx, q, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func scanOrder(rows *sql.Rows) (*domain.Order, error) {
	var (
		order         domain.Order
		address       []byte
		remark        sql.NullString
		total         string
		paidAt        sql.NullTime
		paymentMethod sql.NullString
		paymentNo     sql.NullString
		refundNo      sql.NullString
		shipData      []byte
		extra         []byte
	)
	err := rows.Scan(
		&order.ID, &order.No, &order.UserID, &address, &remark, &total,
		&paidAt, &paymentMethod, &paymentNo, &order.RefundStatus, &refundNo,
		&order.Closed, &order.Reviewed, &order.ShipStatus, &shipData, &extra,
		&order.CouponCodeID, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if order.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total amount: %w", err)
	}
	if err := json.Unmarshal(address, &order.Address); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	if order.ShipData, err = unmarshalMap(shipData); err != nil {
		return nil, fmt.Errorf("unmarshal ship data: %w", err)
	}
	if order.Extra, err = unmarshalMap(extra); err != nil {
		return nil, fmt.Errorf("unmarshal extra: %w", err)
	}
	if paidAt.Valid {
		t := paidAt.Time
		order.PaidAt = &t
	}
	order.Remark = remark.String
	order.PaymentMethod = paymentMethod.String
	order.PaymentNo = paymentNo.String
	order.RefundNo = refundNo.String
	return &order, nil
}

func getOrderItems(ctx context.Context, q querier, orderID int64) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, sku_id, quantity, price, rating,
		       review, reviewed_at
		FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var (
			item       domain.OrderItem
			price      string
			review     sql.NullString
			reviewedAt sql.NullTime
		)
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.SkuID,
			&item.Quantity, &price, &item.Rating, &review, &reviewedAt)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse item price: %w", err)
		}
		item.Review = review.String
		if reviewedAt.Valid {
			t := reviewedAt.Time
			item.ReviewedAt = &t
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMap(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
