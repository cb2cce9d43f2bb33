package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercatto/checkout-service/internal/discount"
	"github.com/mercatto/checkout-service/internal/domain"
	"github.com/mercatto/checkout-service/internal/inventory"
	"github.com/mercatto/checkout-service/internal/pricing"
	"github.com/mercatto/checkout-service/internal/repository"
)

// orderNumberAttempts bounds regeneration on an order number collision. The
// unique index is the backstop; collisions are vanishingly rare.
const orderNumberAttempts = 3

// AddressInput is the shipping address submitted with an order.
type AddressInput struct {
	Street     string
	Number     string
	Complement string
	City       string
	State      string
	PostalCode string
	Country    string
}

func (a *AddressInput) empty() bool {
	return a == nil || (a.Street == "" && a.City == "" && a.PostalCode == "")
}

// PlaceOrderRequest is a checkout submission. Pricing fields the client may
// have shown the buyer are deliberately absent: unit prices come from the
// catalog and the discount is re-evaluated here.
type PlaceOrderRequest struct {
	BuyerID        string
	Items          []domain.CartLine
	ShippingCost   decimal.Decimal
	CouponCode     string
	PaymentMethod  string
	IdempotencyKey string
	Address        *AddressInput
}

// PlaceOrderResult is the persisted order plus the payment redirect, when
// the gateway produced one. Replayed marks an idempotent resubmission.
type PlaceOrderResult struct {
	Order      *domain.Order
	PaymentURL string
	Replayed   bool
}

// PlaceOrder runs the order creation algorithm: idempotency check, server-
// side re-pricing, coupon evaluation, address resolution, atomic persistence
// with stock reservation, then the opaque payment-preference call.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil && !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			slog.InfoContext(ctx, "duplicate order submission",
				"idempotency_key", req.IdempotencyKey,
				"order_number", existing.OrderNumber)
			return &PlaceOrderResult{Order: existing, Replayed: true}, nil
		}
	}

	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if req.ShippingCost.IsNegative() {
		return nil, ErrInvalidShippingCost
	}

	snapshot, err := s.priceCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	discountAmount := decimal.Zero
	var consumption *repository.CouponConsumption
	couponCode := ""
	if req.CouponCode != "" {
		coupon, result, err := s.evaluateCoupon(ctx, req.CouponCode, req.BuyerID, snapshot)
		if err != nil {
			return nil, err
		}
		discountAmount = result.Discount
		couponCode = coupon.Code
		consumption = &repository.CouponConsumption{
			CouponID:       coupon.ID,
			UserID:         req.BuyerID,
			MaxUsesPerUser: coupon.MaxUsesPerUser,
		}
	}

	address, newAddress, err := s.resolveAddress(ctx, req.BuyerID, req.Address)
	if err != nil {
		return nil, err
	}

	totals := pricing.PriceOrder(snapshot.lines, req.ShippingCost, discountAmount, s.feeBps)

	order := &domain.Order{
		ID:             uuid.New(),
		BuyerID:        req.BuyerID,
		SellerID:       snapshot.sellerID,
		AddressID:      address.ID,
		Status:         domain.OrderStatusPending,
		Subtotal:       totals.Subtotal,
		ShippingCost:   totals.ShippingCost,
		Discount:       totals.Discount,
		Total:          totals.Total,
		PlatformFee:    totals.PlatformFee,
		SellerAmount:   totals.SellerAmount,
		CouponCode:     couponCode,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
		Items:          snapshot.items,
	}

	if err := s.persistWithRetry(ctx, order, newAddress, consumption); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			// Lost a race with an identical submission; hand back its result.
			existing, lookupErr := s.orders.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr != nil {
				return nil, fmt.Errorf("idempotency lookup after conflict: %w", lookupErr)
			}
			return &PlaceOrderResult{Order: existing, Replayed: true}, nil
		}
		return nil, err
	}

	result := &PlaceOrderResult{Order: order}
	if s.payments != nil {
		pref, err := s.payments.CreatePreference(ctx, order)
		if err != nil {
			// The PENDING order stands; the buyer can retry payment later.
			slog.WarnContext(ctx, "payment preference creation failed",
				"order_number", order.OrderNumber, "error", err)
		} else {
			result.PaymentURL = pref.RedirectURL
		}
	}

	slog.InfoContext(ctx, "order created",
		"order_number", order.OrderNumber,
		"buyer_id", order.BuyerID,
		"total", order.Total.String())
	return result, nil
}

// cartSnapshot is the server-priced view of the submitted cart.
type cartSnapshot struct {
	items       []domain.OrderItem
	lines       []pricing.Line
	sellerID    string
	subtotal    decimal.Decimal
	productIDs  []int64
	categoryIDs []int64
}

// priceCart re-fetches every product and captures the current catalog price.
// Client-supplied prices are never consulted. Stock is pre-checked here to
// fail fast; the authoritative check is the conditional decrement inside the
// order transaction.
func (s *OrderService) priceCart(ctx context.Context, lines []domain.CartLine) (*cartSnapshot, error) {
	snap := &cartSnapshot{subtotal: decimal.Zero}
	seenCategories := make(map[int64]struct{})

	// The same product may appear on several lines; merge them so the order
	// carries one item per product.
	merged := make([]domain.CartLine, 0, len(lines))
	position := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, ErrInvalidQuantity)
		}
		if i, seen := position[line.ProductID]; seen {
			merged[i].Quantity += line.Quantity
			continue
		}
		position[line.ProductID] = len(merged)
		merged = append(merged, line)
	}

	for _, line := range merged {
		product, err := s.products.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if line.Quantity > product.Stock {
			return nil, fmt.Errorf("product %d: %w", product.ID, inventory.ErrInsufficientStock)
		}

		if snap.sellerID == "" {
			snap.sellerID = product.SellerID
		} else if snap.sellerID != product.SellerID {
			return nil, ErrMixedSellers
		}

		snap.items = append(snap.items, domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
		})
		snap.lines = append(snap.lines, pricing.Line{UnitPrice: product.Price, Quantity: line.Quantity})
		snap.subtotal = snap.subtotal.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		snap.productIDs = append(snap.productIDs, product.ID)
		for _, cid := range product.CategoryIDs {
			if _, ok := seenCategories[cid]; !ok {
				seenCategories[cid] = struct{}{}
				snap.categoryIDs = append(snap.categoryIDs, cid)
			}
		}
	}
	return snap, nil
}

// evaluateCoupon re-runs the full eligibility check server-side at
// submission time, regardless of what the preview told the client.
func (s *OrderService) evaluateCoupon(ctx context.Context, code, buyerID string, snap *cartSnapshot) (*domain.Coupon, *discount.Result, error) {
	coupon, err := s.coupons.GetCouponByCode(ctx, code)
	if errors.Is(err, repository.ErrCouponNotFound) {
		return nil, nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load coupon: %w", err)
	}

	redemptions, err := s.coupons.CountRedemptions(ctx, coupon.ID, buyerID)
	if err != nil {
		return nil, nil, fmt.Errorf("count redemptions: %w", err)
	}

	result := discount.Evaluate(discount.Input{
		Coupon:          *coupon,
		OrderTotal:      snap.subtotal,
		ProductIDs:      snap.productIDs,
		CategoryIDs:     snap.categoryIDs,
		UserRedemptions: redemptions,
		Now:             s.now(),
	})
	if !result.Valid {
		return nil, nil, &CouponRejectedError{Reason: result.Err, Reasons: result.Errs}
	}
	return coupon, &result, nil
}

// resolveAddress prefers the submitted shipping fields; with none, it falls
// back to the buyer's default address. A synthesized address becomes the
// default when the buyer had none. The second return value is non-nil when
// the address does not exist yet; it is inserted inside the order
// transaction so a failed creation leaves no orphan address row.
func (s *OrderService) resolveAddress(ctx context.Context, buyerID string, input *AddressInput) (*domain.Address, *domain.Address, error) {
	if input.empty() {
		address, err := s.addresses.GetDefaultAddress(ctx, buyerID)
		if errors.Is(err, repository.ErrAddressNotFound) {
			return nil, nil, ErrAddressRequired
		}
		if err != nil {
			return nil, nil, fmt.Errorf("load default address: %w", err)
		}
		return address, nil, nil
	}

	makeDefault := false
	if _, err := s.addresses.GetDefaultAddress(ctx, buyerID); errors.Is(err, repository.ErrAddressNotFound) {
		makeDefault = true
	} else if err != nil {
		return nil, nil, fmt.Errorf("load default address: %w", err)
	}

	address := &domain.Address{
		ID:         uuid.New(),
		UserID:     buyerID,
		Street:     input.Street,
		Number:     input.Number,
		Complement: input.Complement,
		City:       input.City,
		State:      input.State,
		PostalCode: input.PostalCode,
		Country:    input.Country,
		IsDefault:  makeDefault,
	}
	return address, address, nil
}

func (s *OrderService) persistWithRetry(ctx context.Context, order *domain.Order, newAddress *domain.Address, coupon *repository.CouponConsumption) error {
	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber, err = s.generateOrderNumber()
		if err != nil {
			return err
		}
		err = s.orders.CreateOrder(ctx, order, newAddress, coupon)
		if !errors.Is(err, repository.ErrOrderNumberTaken) {
			return err
		}
		slog.WarnContext(ctx, "order number collision, regenerating",
			"order_number", order.OrderNumber)
	}
	return err
}

const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateOrderNumber builds the externally visible order identifier from a
// UTC timestamp and a random suffix. The unique index on orders.order_number
// catches the rare collision.
func (s *OrderService) generateOrderNumber() (string, error) {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate order number: %w", err)
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ORD-%s-%s", s.now().Format("20060102150405"), suffix), nil
}

// GetOrder returns one of the buyer's orders.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID, buyerID string) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		// Cross-tenant reads look identical to missing orders.
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns the buyer's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	return s.orders.ListOrdersByBuyer(ctx, buyerID)
}

// CancelOrder cancels a PENDING or PAID order and restores its stock through
// compensating ledger movements.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, buyerID string) (*domain.Order, error) {
	order, err := s.orders.CancelOrder(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "order cancelled", "order_number", order.OrderNumber)
	return order, nil
}

// RefundOrder moves a paid order to REFUNDED and restores its stock. Exposed
// on the admin boundary only.
func (s *OrderService) RefundOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.RefundOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "order refunded", "order_number", order.OrderNumber)
	return order, nil
}
