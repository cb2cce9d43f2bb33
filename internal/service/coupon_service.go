package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mercatto/checkout-service/internal/cache"
	"github.com/mercatto/checkout-service/internal/discount"
	"github.com/mercatto/checkout-service/internal/domain"
	"github.com/mercatto/checkout-service/internal/repository"
)

// CouponService validates coupons for the live preview path and owns the
// admin CRUD boundary. The preview is side-effect free: usage counters are
// read, never written, so the UI can call it repeatedly.
type CouponService struct {
	coupons  CouponStore
	products ProductStore
	cache    cache.CouponCache
	sfg      singleflight.Group // prevents coupon lookup stampede
	now      func() time.Time
}

func NewCouponService(coupons CouponStore, products ProductStore, couponCache cache.CouponCache) *CouponService {
	return &CouponService{
		coupons:  coupons,
		products: products,
		cache:    couponCache,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PreviewRequest carries the cart to validate a coupon against. The order
// total is recomputed here from catalog prices; any total the client
// displays is a UX hint only.
type PreviewRequest struct {
	UserID     string
	CouponCode string
	Items      []domain.CartLine
}

// PreviewResult mirrors discount.Result for the HTTP boundary.
type PreviewResult struct {
	Valid      bool
	Discount   decimal.Decimal
	FinalTotal decimal.Decimal
	OrderTotal decimal.Decimal
	Err        string
	Errs       []string
}

// Preview evaluates a coupon against the cart without consuming anything.
// An ineligible coupon is a negative result, not an error.
func (s *CouponService) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	orderTotal := decimal.Zero
	var productIDs, categoryIDs []int64
	seenCategories := make(map[int64]struct{})
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, ErrInvalidQuantity)
		}
		product, err := s.products.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		orderTotal = orderTotal.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		productIDs = append(productIDs, product.ID)
		for _, cid := range product.CategoryIDs {
			if _, ok := seenCategories[cid]; !ok {
				seenCategories[cid] = struct{}{}
				categoryIDs = append(categoryIDs, cid)
			}
		}
	}
	orderTotal = orderTotal.Round(2)

	coupon, err := s.getCoupon(ctx, req.CouponCode)
	if errors.Is(err, repository.ErrCouponNotFound) {
		return &PreviewResult{
			Valid:      false,
			OrderTotal: orderTotal,
			Err:        ErrCouponNotFound.Error(),
			Errs:       []string{ErrCouponNotFound.Error()},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	redemptions, err := s.coupons.CountRedemptions(ctx, coupon.ID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("count redemptions: %w", err)
	}

	result := discount.Evaluate(discount.Input{
		Coupon:          *coupon,
		OrderTotal:      orderTotal,
		ProductIDs:      productIDs,
		CategoryIDs:     categoryIDs,
		UserRedemptions: redemptions,
		Now:             s.now(),
	})

	return &PreviewResult{
		Valid:      result.Valid,
		Discount:   result.Discount,
		FinalTotal: result.FinalTotal,
		OrderTotal: orderTotal,
		Err:        result.Err,
		Errs:       result.Errs,
	}, nil
}

// getCoupon is a cache-aside read guarded by singleflight so concurrent
// previews of the same code share one storage round trip.
func (s *CouponService) getCoupon(ctx context.Context, code string) (*domain.Coupon, error) {
	normalized := domain.NormalizeCouponCode(code)
	v, err, _ := s.sfg.Do(normalized, func() (interface{}, error) {
		if s.cache != nil {
			coupon, err := s.cache.Get(ctx, normalized)
			if err == nil {
				return coupon, nil
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				slog.WarnContext(ctx, "coupon cache get failed", "error", err)
			}
		}

		coupon, err := s.coupons.GetCouponByCode(ctx, normalized)
		if err != nil {
			return nil, err
		}

		if s.cache != nil {
			if err := s.cache.Set(ctx, coupon); err != nil {
				slog.WarnContext(ctx, "coupon cache set failed", "error", err)
			}
		}
		return coupon, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Coupon), nil
}

// --- admin boundary ---

var (
	ErrInvalidCouponValue = errors.New("discount value must be positive")
	ErrInvalidPercentage  = errors.New("percentage value must be at most 100")
	ErrMissingCouponCode  = errors.New("coupon code is required")
	ErrMissingScopeIDs    = errors.New("scoped coupons need category or product ids")
)

func validateCoupon(c *domain.Coupon) error {
	if domain.NormalizeCouponCode(c.Code) == "" {
		return ErrMissingCouponCode
	}
	if !c.Value.IsPositive() {
		return ErrInvalidCouponValue
	}
	if c.Type == domain.DiscountPercentage && c.Value.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidPercentage
	}
	switch c.Applicability {
	case domain.ApplicabilitySpecificCategories:
		if len(c.CategoryIDs) == 0 {
			return ErrMissingScopeIDs
		}
	case domain.ApplicabilitySpecificProducts:
		if len(c.ProductIDs) == 0 {
			return ErrMissingScopeIDs
		}
	}
	return nil
}

// CreateCoupon registers a new coupon (admin only).
func (s *CouponService) CreateCoupon(ctx context.Context, c *domain.Coupon) error {
	if err := validateCoupon(c); err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Code = domain.NormalizeCouponCode(c.Code)
	if c.ValidFrom.IsZero() {
		c.ValidFrom = s.now()
	}
	if err := s.coupons.CreateCoupon(ctx, c); err != nil {
		return err
	}
	slog.InfoContext(ctx, "coupon created", "code", c.Code)
	return nil
}

// UpdateCoupon rewrites a coupon's eligibility rules and drops the cached
// copy. The stored record is returned so callers see the live usage counter
// and timestamps, not what the request carried.
func (s *CouponService) UpdateCoupon(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error) {
	if err := validateCoupon(c); err != nil {
		return nil, err
	}
	existing, err := s.coupons.GetCouponByID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Code = existing.Code // codes are immutable
	if err := s.coupons.UpdateCoupon(ctx, c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, c.Code)
	return s.coupons.GetCouponByID(ctx, c.ID)
}

// DeactivateCoupon disables a coupon and drops the cached copy.
func (s *CouponService) DeactivateCoupon(ctx context.Context, id uuid.UUID) error {
	existing, err := s.coupons.GetCouponByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.coupons.DeactivateCoupon(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, existing.Code)
	return nil
}

// GetCoupon returns one coupon by id (admin only).
func (s *CouponService) GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return s.coupons.GetCouponByID(ctx, id)
}

// ListCoupons returns all coupons (admin only).
func (s *CouponService) ListCoupons(ctx context.Context) ([]*domain.Coupon, error) {
	return s.coupons.ListCoupons(ctx)
}

func (s *CouponService) invalidate(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, code); err != nil {
		slog.WarnContext(ctx, "coupon cache invalidation failed", "code", code, "error", err)
	}
}
