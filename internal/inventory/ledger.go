// Package inventory performs the stock check-and-decrement step of checkout.
// Availability and decrement are a single conditional UPDATE so that two
// concurrent checkouts can never both consume the last unit, and every
// change is recorded in the stock_movements ledger so it can be reversed.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mercatto/checkout-service/internal/domain"
)

var (
	// ErrInsufficientStock is returned when a conditional decrement matches
	// no row, i.e. the requested quantity exceeds what is available.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductNotFound is returned when a cart line references an unknown product.
	ErrProductNotFound = errors.New("product not found")
)

// execer is satisfied by both *sql.Tx and *sql.DB. Reserve must run on the
// order-creation transaction; Release runs on the cancellation transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ledger mutates stock counters and appends movement rows.
type Ledger struct{}

// Reserve decrements stock for every cart line, in cart order, and appends a
// RESERVE movement per line. The whole reservation is all-or-nothing: the
// caller's transaction must roll back when an error is returned.
//
// The decrement is `UPDATE ... SET stock = stock - qty WHERE id = $1 AND
// stock >= qty`; zero affected rows means the product is missing or
// concurrently sold out, and the failing product is named in the error.
func (Ledger) Reserve(ctx context.Context, tx execer, orderID uuid.UUID, lines []domain.CartLine) error {
	const decrement = `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`
	const movement = `
		INSERT INTO stock_movements (id, order_id, product_id, quantity, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	for _, line := range lines {
		res, err := tx.ExecContext(ctx, decrement, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", line.ProductID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected for product %d: %w", line.ProductID, err)
		}
		if affected == 0 {
			return fmt.Errorf("product %d: %w", line.ProductID, ErrInsufficientStock)
		}

		_, err = tx.ExecContext(ctx, movement,
			uuid.New(), orderID, line.ProductID, line.Quantity, domain.StockMovementReserve)
		if err != nil {
			return fmt.Errorf("record movement for product %d: %w", line.ProductID, err)
		}
	}
	return nil
}

// Release reverses every RESERVE movement of an order that has no matching
// RELEASE yet, restoring stock and appending the compensating rows. It is
// idempotent: releasing an already-released order restores nothing.
func (Ledger) Release(ctx context.Context, tx execer, orderID uuid.UUID) error {
	const outstanding = `
		SELECT product_id, SUM(CASE WHEN kind = $2 THEN quantity ELSE -quantity END)
		FROM stock_movements
		WHERE order_id = $1
		GROUP BY product_id`
	const increment = `UPDATE products SET stock = stock + $2 WHERE id = $1`
	const movement = `
		INSERT INTO stock_movements (id, order_id, product_id, quantity, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	rows, err := tx.QueryContext(ctx, outstanding, orderID, domain.StockMovementReserve)
	if err != nil {
		return fmt.Errorf("query outstanding movements: %w", err)
	}
	defer rows.Close()

	type pending struct {
		productID int64
		quantity  int
	}
	var toRelease []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.productID, &p.quantity); err != nil {
			return fmt.Errorf("scan movement: %w", err)
		}
		if p.quantity > 0 {
			toRelease = append(toRelease, p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("movement iteration: %w", err)
	}

	for _, p := range toRelease {
		if _, err := tx.ExecContext(ctx, increment, p.productID, p.quantity); err != nil {
			return fmt.Errorf("restore stock for product %d: %w", p.productID, err)
		}
		_, err := tx.ExecContext(ctx, movement,
			uuid.New(), orderID, p.productID, p.quantity, domain.StockMovementRelease)
		if err != nil {
			return fmt.Errorf("record release for product %d: %w", p.productID, err)
		}
	}
	return nil
}
