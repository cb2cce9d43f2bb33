package repository

import "errors"

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrAddressNotFound = errors.New("address not found")

	// ErrOrderNumberTaken signals an order number collision; the caller
	// regenerates and retries.
	ErrOrderNumberTaken = errors.New("order number already taken")
	// ErrDuplicateIdempotencyKey signals a replayed order submission; the
	// caller returns the previously created order.
	ErrDuplicateIdempotencyKey = errors.New("order with this idempotency key already exists")
	// ErrCouponExhausted is raised when the conditional current_uses
	// increment matches no row, i.e. the global cap was hit concurrently.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
	// ErrCouponUserLimit is raised when the guarded redemption insert finds
	// the per-user cap already reached.
	ErrCouponUserLimit = errors.New("coupon per-user limit reached")
	// ErrCouponCodeTaken is raised when creating a coupon with an existing code.
	ErrCouponCodeTaken = errors.New("coupon code already exists")
	// ErrInvalidTransition is raised on a status change the state machine forbids.
	ErrInvalidTransition = errors.New("illegal order status transition")
)
