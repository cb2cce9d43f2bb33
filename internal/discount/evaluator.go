// Package discount validates a coupon against a cart snapshot and computes
// the discount amount. Evaluation is pure: counters are read as inputs and
// never mutated here, which is what keeps the preview endpoint side-effect
// free.
package discount

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mercatto/checkout-service/internal/domain"
)

// Violation messages, in check order. All checks run so every violation can
// be surfaced; the first failing one is reported as the primary error.
const (
	MsgInactive          = "coupon is not active"
	MsgNotYetValid       = "coupon is not valid yet"
	MsgExpired           = "coupon has expired"
	MsgExhausted         = "coupon usage limit reached"
	MsgUserLimitReached  = "coupon already used the maximum number of times by this user"
	MsgMinOrderNotMet    = "order total is below the coupon minimum"
	MsgNotApplicable     = "coupon does not apply to any item in the cart"
)

// Input is a cart snapshot plus the usage counters read for this evaluation.
type Input struct {
	Coupon          domain.Coupon
	OrderTotal      decimal.Decimal
	ProductIDs      []int64
	CategoryIDs     []int64
	UserRedemptions int
	Now             time.Time
}

// Result carries either a computed discount or the full list of violations.
type Result struct {
	Valid      bool
	Discount   decimal.Decimal
	FinalTotal decimal.Decimal
	Err        string
	Errs       []string
}

// Evaluate runs the ordered eligibility checks and, on success, computes the
// discount. FinalTotal is always >= 0.
func Evaluate(in Input) Result {
	c := in.Coupon
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var errs []string

	if !c.IsActive {
		errs = append(errs, MsgInactive)
	}
	if now.Before(c.ValidFrom) {
		errs = append(errs, MsgNotYetValid)
	}
	if c.ValidUntil != nil && c.ValidUntil.Before(now) {
		errs = append(errs, MsgExpired)
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		errs = append(errs, MsgExhausted)
	}
	if c.MaxUsesPerUser != nil && in.UserRedemptions >= *c.MaxUsesPerUser {
		errs = append(errs, MsgUserLimitReached)
	}
	if c.MinOrderValue != nil && in.OrderTotal.LessThan(*c.MinOrderValue) {
		errs = append(errs, MsgMinOrderNotMet)
	}
	if !applies(c, in.ProductIDs, in.CategoryIDs) {
		errs = append(errs, MsgNotApplicable)
	}

	if len(errs) > 0 {
		return Result{Valid: false, Err: errs[0], Errs: errs}
	}

	d := amount(c, in.OrderTotal)
	return Result{
		Valid:      true,
		Discount:   d,
		FinalTotal: in.OrderTotal.Sub(d),
	}
}

// applies checks the coupon scope against the cart contents. A single
// matching product or category is enough.
func applies(c domain.Coupon, productIDs, categoryIDs []int64) bool {
	switch c.Applicability {
	case domain.ApplicabilitySpecificCategories:
		return intersects(c.CategoryIDs, categoryIDs)
	case domain.ApplicabilitySpecificProducts:
		return intersects(c.ProductIDs, productIDs)
	default: // ALL_PRODUCTS
		return true
	}
}

func intersects(scope, cart []int64) bool {
	set := make(map[int64]struct{}, len(scope))
	for _, id := range scope {
		set[id] = struct{}{}
	}
	for _, id := range cart {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// amount computes the discount for an eligible coupon. Percentage discounts
// are clamped to MaxDiscount when set; fixed discounts are clamped to the
// order total so the final total never goes negative.
func amount(c domain.Coupon, orderTotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Type {
	case domain.DiscountPercentage:
		d = orderTotal.Mul(c.Value).Div(decimal.NewFromInt(100))
		if c.MaxDiscount != nil && d.GreaterThan(*c.MaxDiscount) {
			d = *c.MaxDiscount
		}
	case domain.DiscountFixedAmount:
		d = c.Value
		if d.GreaterThan(orderTotal) {
			d = orderTotal
		}
	}
	return d.Round(2)
}
