package cache

import (
	"context"
	"errors"

	"github.com/mercatto/checkout-service/internal/domain"
)

// CouponCache is a read cache for coupon records on the validation preview
// path. Usage counters cached here may lag; the order transaction always
// re-checks them against storage.
type CouponCache interface {
	Get(ctx context.Context, code string) (*domain.Coupon, error)
	Set(ctx context.Context, coupon *domain.Coupon) error
	Delete(ctx context.Context, code string) error
}

var ErrCacheMiss = errors.New("cache miss")
