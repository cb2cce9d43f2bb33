package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mercatto/checkout-service/internal/domain"
	"github.com/mercatto/checkout-service/internal/inventory"
)

const orderColumns = `
	id, order_number, buyer_id, seller_id, address_id, status,
	subtotal, shipping_cost, discount, total, platform_fee, seller_amount,
	coupon_code, payment_method, idempotency_key, created_at, updated_at`

// CouponConsumption instructs CreateOrder to consume one use of a coupon
// inside the order transaction. MaxUsesPerUser, when set, is enforced by a
// guarded redemption insert so concurrent submissions cannot exceed the cap.
type CouponConsumption struct {
	CouponID       uuid.UUID
	UserID         string
	MaxUsesPerUser *int
}

// CreateOrder persists the order aggregate as one transaction: the shipping
// address when one was submitted, the order row, its items, every stock
// decrement with its ledger movement, the coupon consumption and the outbox
// event all commit together or not at all.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order, newAddress *domain.Address, coupon *CouponConsumption) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if newAddress != nil {
		if err := insertAddress(ctx, tx, newAddress); err != nil {
			return err
		}
	}
	if err := insertOrder(ctx, tx, order); err != nil {
		return err
	}
	if err := insertOrderItems(ctx, tx, order); err != nil {
		return err
	}

	lines := make([]domain.CartLine, len(order.Items))
	for i, item := range order.Items {
		lines[i] = domain.CartLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	var ledger inventory.Ledger
	if err := ledger.Reserve(ctx, tx, order.ID, lines); err != nil {
		return err
	}

	if coupon != nil {
		if err := consumeCoupon(ctx, tx, order, coupon); err != nil {
			return err
		}
	}

	payload, err := orderEventPayload(order, "order.created")
	if err != nil {
		return err
	}
	if err := insertOutboxEvent(ctx, tx, order.OrderNumber, "order.created", payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx commit: %w", err)
	}
	committed = true
	return nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	query := `
		INSERT INTO orders
		(id, order_number, buyer_id, seller_id, address_id, status,
		 subtotal, shipping_cost, discount, total, platform_fee, seller_amount,
		 coupon_code, payment_method, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())`

	var idemKey sql.NullString
	if order.IdempotencyKey != "" {
		idemKey = sql.NullString{String: order.IdempotencyKey, Valid: true}
	}
	var couponCode sql.NullString
	if order.CouponCode != "" {
		couponCode = sql.NullString{String: order.CouponCode, Valid: true}
	}

	_, err := tx.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.BuyerID,
		order.SellerID,
		order.AddressID,
		order.Status,
		order.Subtotal,
		order.ShippingCost,
		order.Discount,
		order.Total,
		order.PlatformFee,
		order.SellerAmount,
		couponCode,
		order.PaymentMethod,
		idemKey,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "orders_idempotency_key_key":
				return ErrDuplicateIdempotencyKey
			case "orders_order_number_key":
				return ErrOrderNumberTaken
			}
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func insertOrderItems(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)`
	for _, item := range order.Items {
		_, err := tx.ExecContext(ctx, query,
			order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", item.ProductID, err)
		}
	}
	return nil
}

// consumeCoupon increments current_uses with a conditional update (the only
// mutation path for the counter) and records the redemption. Zero affected
// rows on either statement means a concurrent checkout won the last slot.
func consumeCoupon(ctx context.Context, tx *sql.Tx, order *domain.Order, c *CouponConsumption) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE coupons
		SET current_uses = current_uses + 1, updated_at = NOW()
		WHERE id = $1 AND (max_uses IS NULL OR current_uses < max_uses)`,
		c.CouponID)
	if err != nil {
		return fmt.Errorf("increment coupon uses: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCouponExhausted
	}

	if c.MaxUsesPerUser != nil {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO coupon_redemptions (coupon_id, user_id, order_id, created_at)
			SELECT $1, $2, $3, NOW()
			WHERE (SELECT COUNT(*) FROM coupon_redemptions
			       WHERE coupon_id = $1 AND user_id = $2) < $4`,
			c.CouponID, c.UserID, order.ID, *c.MaxUsesPerUser)
		if err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return ErrCouponUserLimit
		}
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO coupon_redemptions (coupon_id, user_id, order_id, created_at)
		VALUES ($1, $2, $3, NOW())`,
		c.CouponID, c.UserID, order.ID)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

// GetOrderByID loads an order and its items.
func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderByIdempotencyKey returns the order previously created with the
// given key, or ErrOrderNotFound.
func (r *Repository) GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE idempotency_key = $1`, orderColumns)
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrdersByBuyer returns a buyer's orders, newest first.
func (r *Repository) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`, orderColumns)
	rows, err := r.db.QueryContext(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by buyer: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrderFromRows(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, order := range orders {
		if err := r.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// CancelOrder transitions an order to CANCELLED and restores its stock via
// compensating ledger movements, all in one transaction. Only the buyer who
// owns the order may cancel it.
func (r *Repository) CancelOrder(ctx context.Context, orderID uuid.UUID, buyerID string) (*domain.Order, error) {
	return r.transitionWithRelease(ctx, orderID, buyerID, domain.OrderStatusCancelled, "order.cancelled")
}

// RefundOrder transitions an order to REFUNDED and restores its stock. The
// caller (the admin boundary) is responsible for authorization; no buyer
// ownership check applies here.
func (r *Repository) RefundOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return r.transitionWithRelease(ctx, orderID, "", domain.OrderStatusRefunded, "order.refunded")
}

// transitionWithRelease moves an order to a terminal compensating status,
// releases the stock it reserved and records the outbox event, all in one
// transaction. An empty ownerID skips the ownership check.
func (r *Repository) transitionWithRelease(ctx context.Context, orderID uuid.UUID, ownerID string, target domain.OrderStatus, eventType string) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var status domain.OrderStatus
	var owner, orderNumber string
	err = tx.QueryRowContext(ctx,
		`SELECT status, buyer_id, order_number FROM orders WHERE id = $1 FOR UPDATE`, orderID).
		Scan(&status, &owner, &orderNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if ownerID != "" && owner != ownerID {
		// Cross-tenant access looks identical to a missing order.
		return nil, ErrOrderNotFound
	}
	if !status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%s -> %s: %w", status, target, ErrInvalidTransition)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
		orderID, target)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	var ledger inventory.Ledger
	if err := ledger.Release(ctx, tx, orderID); err != nil {
		return nil, err
	}

	event := map[string]any{
		"order_id":     orderID,
		"order_number": orderNumber,
		"status":       target,
		"occurred_at":  time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if err := insertOutboxEvent(ctx, tx, orderNumber, eventType, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("tx commit: %w", err)
	}
	committed = true

	return r.GetOrderByID(ctx, orderID)
}

// ExpireStaleOrders cancels PENDING orders whose payment never arrived within
// the retention window and releases the stock they reserved. SKIP LOCKED lets
// concurrent pollers share the backlog without blocking each other.
func (r *Repository) ExpireStaleOrders(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_number FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		domain.OrderStatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale orders: %w", err)
	}
	var ids []uuid.UUID
	var numbers []string
	for rows.Next() {
		var id uuid.UUID
		var number string
		if err := rows.Scan(&id, &number); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stale order: %w", err)
		}
		ids = append(ids, id)
		numbers = append(numbers, number)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	var ledger inventory.Ledger
	for i, id := range ids {
		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
			id, domain.OrderStatusCancelled)
		if err != nil {
			return nil, fmt.Errorf("expire order %s: %w", id, err)
		}
		if err := ledger.Release(ctx, tx, id); err != nil {
			return nil, err
		}

		payload, err := json.Marshal(map[string]any{
			"order_id":     id,
			"order_number": numbers[i],
			"expired_at":   time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("marshal expiry event: %w", err)
		}
		if err := insertOutboxEvent(ctx, tx, numbers[i], "order.expired", payload); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("tx commit: %w", err)
	}
	committed = true
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanOrder(row *sql.Row) (*domain.Order, error) {
	order, err := scanOrderFromRows(row)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func scanOrderFromRows(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var couponCode, idemKey sql.NullString
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.BuyerID,
		&order.SellerID,
		&order.AddressID,
		&order.Status,
		&order.Subtotal,
		&order.ShippingCost,
		&order.Discount,
		&order.Total,
		&order.PlatformFee,
		&order.SellerAmount,
		&couponCode,
		&order.PaymentMethod,
		&idemKey,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	order.CouponCode = couponCode.String
	order.IdempotencyKey = idemKey.String
	return order, nil
}

func (r *Repository) loadItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_id`, order.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

func orderEventPayload(order *domain.Order, eventType string) ([]byte, error) {
	payload := map[string]any{
		"event_type":   eventType,
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"buyer_id":     order.BuyerID,
		"seller_id":    order.SellerID,
		"status":       order.Status,
		"items":        order.Items,
		"subtotal":     order.Subtotal,
		"discount":     order.Discount,
		"total":        order.Total,
		"created_at":   time.Now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order event: %w", err)
	}
	return data, nil
}
