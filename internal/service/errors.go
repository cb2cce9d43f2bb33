package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart           = errors.New("cart is empty, nothing to check out")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidShippingCost = errors.New("shipping cost must not be negative")
	// ErrMixedSellers rejects carts spanning several sellers; an order
	// references exactly one seller.
	ErrMixedSellers    = errors.New("cart items must belong to a single seller")
	ErrAddressRequired = errors.New("buyer has no default address and no shipping address was submitted")
	ErrCouponNotFound  = errors.New("coupon not found")
)

// CouponRejectedError carries every violated eligibility rule; the first one
// is the primary reason shown to the buyer.
type CouponRejectedError struct {
	Reason  string
	Reasons []string
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon rejected: %s", strings.Join(e.Reasons, "; "))
}
