package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mercatto/checkout-service/internal/domain"
)

// GetProduct returns the authoritative catalog record for a product. The
// checkout flow prices carts from this read, never from client input.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, name, description, price, stock, seller_id, category_ids, created_at
		FROM products
		WHERE id = $1`

	p := &domain.Product{}
	var categoryIDs pq.Int64Array
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Stock,
		&p.SellerID,
		&categoryIDs,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query product %d: %w", id, err)
	}
	p.CategoryIDs = categoryIDs
	return p, nil
}

// CreateProduct inserts a catalog record. Used by seeding and tests.
func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, stock, seller_id, category_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.SellerID, pq.Array(p.CategoryIDs))
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetStock reads the current stock counter for a product.
func (r *Repository) GetStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := r.db.QueryRowContext(ctx,
		`SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return stock, nil
}
