package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage discounts a percentage of the order total.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixedAmount discounts a fixed amount, capped at the order total.
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// Applicability restricts which cart contents a coupon may discount.
type Applicability string

const (
	ApplicabilityAllProducts        Applicability = "ALL_PRODUCTS"
	ApplicabilitySpecificCategories Applicability = "SPECIFIC_CATEGORIES"
	ApplicabilitySpecificProducts   Applicability = "SPECIFIC_PRODUCTS"
)

// Coupon defines the eligibility rules and discount behaviour for a code.
// Codes are case-insensitive and stored upper-cased.
type Coupon struct {
	ID             uuid.UUID
	Code           string
	Type           DiscountType
	Value          decimal.Decimal
	MinOrderValue  *decimal.Decimal
	MaxDiscount    *decimal.Decimal // cap, percentage type only
	Applicability  Applicability
	CategoryIDs    []int64
	ProductIDs     []int64
	MaxUses        *int
	CurrentUses    int
	MaxUsesPerUser *int
	ValidFrom      time.Time
	ValidUntil     *time.Time
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeCouponCode upper-cases and trims a user-supplied coupon code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CouponRedemption is one successful use of a coupon by a user. The existence
// of these rows is the ground truth for the per-user usage cap.
type CouponRedemption struct {
	CouponID  uuid.UUID
	UserID    string
	OrderID   uuid.UUID
	CreatedAt time.Time
}
