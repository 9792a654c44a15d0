package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func (r *Repository) CreateOrder(ctx context.Context, h *domain.OrderHeader) error {
	query := `INSERT INTO order_headers (id, user_id, address_id, pay_method, total_count, total_amount, freight, status, cart_cleared, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.q.ExecContext(ctx, query,
		h.ID,
		h.UserID,
		h.AddressID,
		int(h.PayMethod),
		h.TotalCount,
		h.TotalAmount,
		h.Freight,
		int(h.Status),
		h.CartCleared,
		h.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repository) AddOrderLine(ctx context.Context, line domain.OrderLine) error {
	query := `INSERT INTO order_lines (order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4)`
	if _, err := r.q.ExecContext(ctx, query, line.OrderID, line.ProductID, line.Quantity, line.Price); err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

func (r *Repository) UpdateOrderTotals(ctx context.Context, orderID string, totalCount int, totalAmount decimal.Decimal) error {
	query := `UPDATE order_headers SET total_count = $1, total_amount = $2 WHERE id = $3`
	res, err := r.q.ExecContext(ctx, query, totalCount, totalAmount, orderID)
	if err != nil {
		return fmt.Errorf("update order totals: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repository) MarkCartCleared(ctx context.Context, orderID string) error {
	query := `UPDATE order_headers SET cart_cleared = $1 WHERE id = $2`
	res, err := r.q.ExecContext(ctx, query, true, orderID)
	if err != nil {
		return fmt.Errorf("mark cart cleared: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

const headerColumns = `id, user_id, address_id, pay_method, total_count, total_amount, freight, status, cart_cleared, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHeader(row rowScanner) (*domain.OrderHeader, error) {
	var (
		h         domain.OrderHeader
		payMethod int
		status    int
	)
	err := row.Scan(
		&h.ID,
		&h.UserID,
		&h.AddressID,
		&payMethod,
		&h.TotalCount,
		&h.TotalAmount,
		&h.Freight,
		&status,
		&h.CartCleared,
		&h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.PayMethod = domain.PayMethod(payMethod)
	h.Status = domain.OrderStatus(status)
	return &h, nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `SELECT ` + headerColumns + ` FROM order_headers WHERE id = $1`

	header, err := scanHeader(r.q.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT order_id, product_id, quantity, price FROM order_lines WHERE order_id = $1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	order := &domain.Order{OrderHeader: *header}
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.Quantity, &l.Price); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return order, nil
}

func (r *Repository) ListOrdersByUser(ctx context.Context, userID int64) ([]*domain.OrderHeader, error) {
	query := `SELECT ` + headerColumns + ` FROM order_headers WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	var orders []*domain.OrderHeader
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// modernc reports constraint failures only through the message text
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
