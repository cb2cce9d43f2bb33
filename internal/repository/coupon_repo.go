package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/mercatto/checkout-service/internal/domain"
)

const couponColumns = `
	id, code, type, value, min_order_value, max_discount, applicability,
	category_ids, product_ids, max_uses, current_uses, max_uses_per_user,
	valid_from, valid_until, is_active, created_at, updated_at`

// GetCouponByCode looks a coupon up by its normalized (upper-cased) code.
func (r *Repository) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE code = $1`, couponColumns)
	return r.scanCoupon(r.db.QueryRowContext(ctx, query, domain.NormalizeCouponCode(code)))
}

// GetCouponByID looks a coupon up by id (admin surface).
func (r *Repository) GetCouponByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE id = $1`, couponColumns)
	return r.scanCoupon(r.db.QueryRowContext(ctx, query, id))
}

func (r *Repository) scanCoupon(row *sql.Row) (*domain.Coupon, error) {
	c := &domain.Coupon{}
	var (
		minOrder, maxDiscount  decimal.NullDecimal
		maxUses, maxPerUser    sql.NullInt64
		validUntil             sql.NullTime
		categoryIDs, productIDs pq.Int64Array
	)
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Type,
		&c.Value,
		&minOrder,
		&maxDiscount,
		&c.Applicability,
		&categoryIDs,
		&productIDs,
		&maxUses,
		&c.CurrentUses,
		&maxPerUser,
		&c.ValidFrom,
		&validUntil,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan coupon: %w", err)
	}

	if minOrder.Valid {
		c.MinOrderValue = &minOrder.Decimal
	}
	if maxDiscount.Valid {
		c.MaxDiscount = &maxDiscount.Decimal
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		c.MaxUses = &n
	}
	if maxPerUser.Valid {
		n := int(maxPerUser.Int64)
		c.MaxUsesPerUser = &n
	}
	if validUntil.Valid {
		c.ValidUntil = &validUntil.Time
	}
	c.CategoryIDs = categoryIDs
	c.ProductIDs = productIDs
	return c, nil
}

// CreateCoupon inserts a new coupon; the code is stored upper-cased and a
// unique index rejects duplicates.
func (r *Repository) CreateCoupon(ctx context.Context, c *domain.Coupon) error {
	query := `
		INSERT INTO coupons
		(id, code, type, value, min_order_value, max_discount, applicability,
		 category_ids, product_ids, max_uses, current_uses, max_uses_per_user,
		 valid_from, valid_until, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $12, $13, $14, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		domain.NormalizeCouponCode(c.Code),
		c.Type,
		c.Value,
		nullableDecimal(c.MinOrderValue),
		nullableDecimal(c.MaxDiscount),
		c.Applicability,
		pq.Array(c.CategoryIDs),
		pq.Array(c.ProductIDs),
		nullableInt(c.MaxUses),
		nullableInt(c.MaxUsesPerUser),
		c.ValidFrom,
		c.ValidUntil,
		c.IsActive,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("code %s: %w", c.Code, ErrCouponCodeTaken)
	}
	if err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// UpdateCoupon overwrites the mutable eligibility attributes of a coupon.
// Usage counters are never written here.
func (r *Repository) UpdateCoupon(ctx context.Context, c *domain.Coupon) error {
	query := `
		UPDATE coupons
		SET type = $2, value = $3, min_order_value = $4, max_discount = $5,
		    applicability = $6, category_ids = $7, product_ids = $8,
		    max_uses = $9, max_uses_per_user = $10, valid_from = $11,
		    valid_until = $12, is_active = $13, updated_at = NOW()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.Type,
		c.Value,
		nullableDecimal(c.MinOrderValue),
		nullableDecimal(c.MaxDiscount),
		c.Applicability,
		pq.Array(c.CategoryIDs),
		pq.Array(c.ProductIDs),
		nullableInt(c.MaxUses),
		nullableInt(c.MaxUsesPerUser),
		c.ValidFrom,
		c.ValidUntil,
		c.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}
	return requireOneRow(res, ErrCouponNotFound)
}

// DeactivateCoupon soft-disables a coupon; historical redemptions stay intact.
func (r *Repository) DeactivateCoupon(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE coupons SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate coupon: %w", err)
	}
	return requireOneRow(res, ErrCouponNotFound)
}

// ListCoupons returns all coupons, newest first (admin surface).
func (r *Repository) ListCoupons(ctx context.Context) ([]*domain.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons ORDER BY created_at DESC`, couponColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []*domain.Coupon
	for rows.Next() {
		c := &domain.Coupon{}
		var (
			minOrder, maxDiscount   decimal.NullDecimal
			maxUses, maxPerUser     sql.NullInt64
			validUntil              sql.NullTime
			categoryIDs, productIDs pq.Int64Array
		)
		if err := rows.Scan(
			&c.ID, &c.Code, &c.Type, &c.Value, &minOrder, &maxDiscount,
			&c.Applicability, &categoryIDs, &productIDs, &maxUses,
			&c.CurrentUses, &maxPerUser, &c.ValidFrom, &validUntil,
			&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan coupon row: %w", err)
		}
		if minOrder.Valid {
			c.MinOrderValue = &minOrder.Decimal
		}
		if maxDiscount.Valid {
			c.MaxDiscount = &maxDiscount.Decimal
		}
		if maxUses.Valid {
			n := int(maxUses.Int64)
			c.MaxUses = &n
		}
		if maxPerUser.Valid {
			n := int(maxPerUser.Int64)
			c.MaxUsesPerUser = &n
		}
		if validUntil.Valid {
			c.ValidUntil = &validUntil.Time
		}
		c.CategoryIDs = categoryIDs
		c.ProductIDs = productIDs
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return coupons, nil
}

// CountRedemptions counts how many times a user has redeemed a coupon.
// Redemption rows are the only ground truth for the per-user cap.
func (r *Repository) CountRedemptions(ctx context.Context, couponID uuid.UUID, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return n, nil
}

func nullableDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullableInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func requireOneRow(res sql.Result, missing error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
