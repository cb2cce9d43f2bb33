package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mercatto/checkout-service/internal/domain"
)

const addressColumns = `
	id, user_id, street, number, complement, city, state, postal_code,
	country, is_default, created_at`

// GetDefaultAddress returns the buyer's default shipping address, or
// ErrAddressNotFound when none is set.
func (r *Repository) GetDefaultAddress(ctx context.Context, userID string) (*domain.Address, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM addresses WHERE user_id = $1 AND is_default LIMIT 1`, addressColumns)

	a := &domain.Address{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&a.ID, &a.UserID, &a.Street, &a.Number, &a.Complement,
		&a.City, &a.State, &a.PostalCode, &a.Country, &a.IsDefault, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query default address: %w", err)
	}
	return a, nil
}

// CreateAddress inserts a shipping address for a buyer.
func (r *Repository) CreateAddress(ctx context.Context, a *domain.Address) error {
	return insertAddress(ctx, r.db, a)
}

// insertAddress runs against either the pool or an open transaction; a
// shipping address submitted with an order must commit with that order.
func insertAddress(ctx context.Context, e execer, a *domain.Address) error {
	query := `
		INSERT INTO addresses
		(id, user_id, street, number, complement, city, state, postal_code, country, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`

	_, err := e.ExecContext(ctx, query,
		a.ID, a.UserID, a.Street, a.Number, a.Complement,
		a.City, a.State, a.PostalCode, a.Country, a.IsDefault)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}
