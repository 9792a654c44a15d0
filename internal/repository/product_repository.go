package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/meiduo/internal/domain"
)

func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	query := `INSERT INTO products (id, name, price, stock, sales, image_url) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.q.ExecContext(ctx, query, p.ID, p.Name, p.Price, p.Stock, p.Sales, p.ImageURL); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT id, name, price, stock, sales, image_url FROM products WHERE id = $1`

	p := &domain.Product{}
	err := r.q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Sales, &p.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product %d: %w", id, err)
	}
	return p, nil
}

// GetProducts returns the products that exist among ids, keyed by id.
func (r *Repository) GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	products := make(map[int64]*domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT id, name, price, stock, sales, image_url FROM products WHERE id IN (` +
		strings.Join(placeholders, ", ") + `)`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := &domain.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Sales, &p.ImageURL); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

// UpdateStock writes the new stock and sales only if the stored stock still
// equals expectedStock. It reports whether the row was updated.
func (r *Repository) UpdateStock(ctx context.Context, id int64, expectedStock, newStock, newSales int) (bool, error) {
	query := `UPDATE products SET stock = $1, sales = $2 WHERE id = $3 AND stock = $4`

	res, err := r.q.ExecContext(ctx, query, newStock, newSales, id, expectedStock)
	if err != nil {
		return false, fmt.Errorf("update stock for product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for product %d: %w", id, err)
	}
	return n == 1, nil
}

