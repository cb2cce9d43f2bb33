package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mercatto/checkout-service/internal/domain"
	"github.com/mercatto/checkout-service/internal/payment"
	"github.com/mercatto/checkout-service/internal/repository"
)

// Storage ports required by the services (interfaces to allow mocking).

type ProductStore interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type CouponStore interface {
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	GetCouponByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error)
	CreateCoupon(ctx context.Context, c *domain.Coupon) error
	UpdateCoupon(ctx context.Context, c *domain.Coupon) error
	DeactivateCoupon(ctx context.Context, id uuid.UUID) error
	ListCoupons(ctx context.Context) ([]*domain.Coupon, error)
	CountRedemptions(ctx context.Context, couponID uuid.UUID, userID string) (int, error)
}

type OrderStore interface {
	// CreateOrder persists the aggregate atomically; a non-nil newAddress is
	// inserted inside the same transaction so a failed creation leaves no
	// orphan address behind.
	CreateOrder(ctx context.Context, order *domain.Order, newAddress *domain.Address, coupon *repository.CouponConsumption) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, buyerID string) (*domain.Order, error)
	RefundOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
}

type AddressStore interface {
	GetDefaultAddress(ctx context.Context, userID string) (*domain.Address, error)
}

// OrderService is the order assembler: it re-validates everything
// server-side, walks cart lines through the inventory ledger, computes final
// totals and persists the order as one transaction.
type OrderService struct {
	products  ProductStore
	coupons   CouponStore
	orders    OrderStore
	addresses AddressStore
	payments  payment.Client
	feeBps    int64
	now       func() time.Time
}

func NewOrderService(
	products ProductStore,
	coupons CouponStore,
	orders OrderStore,
	addresses AddressStore,
	payments payment.Client,
	feeBps int64,
) *OrderService {
	return &OrderService{
		products:  products,
		coupons:   coupons,
		orders:    orders,
		addresses: addresses,
		payments:  payments,
		feeBps:    feeBps,
		now:       func() time.Time { return time.Now().UTC() },
	}
}
