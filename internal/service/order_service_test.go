package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercatto/checkout-service/internal/discount"
	"github.com/mercatto/checkout-service/internal/domain"
	"github.com/mercatto/checkout-service/internal/inventory"
	"github.com/mercatto/checkout-service/internal/payment"
	"github.com/mercatto/checkout-service/internal/pricing"
	"github.com/mercatto/checkout-service/internal/repository"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(n int) *int { return &n }

func testProduct(id int64, price string, stock int) *domain.Product {
	return &domain.Product{
		ID:          id,
		Name:        fmt.Sprintf("Product %d", id),
		Price:       dec(price),
		Stock:       stock,
		SellerID:    "seller-1",
		CategoryIDs: []int64{10},
	}
}

func defaultAddress() *domain.Address {
	return &domain.Address{ID: uuid.New(), UserID: "buyer-1", Street: "Rua A", City: "São Paulo", State: "SP", PostalCode: "01000-000", Country: "BR", IsDefault: true}
}

type orderFixture struct {
	products  *MockProductStore
	coupons   *MockCouponStore
	orders    *MockOrderStore
	addresses *MockAddressStore
	payments  *MockPaymentClient
	svc       *OrderService
}

func newOrderFixture() *orderFixture {
	f := &orderFixture{
		products: &MockProductStore{Products: map[int64]*domain.Product{
			1: testProduct(1, "50.00", 10),
			2: testProduct(2, "19.90", 5),
		}},
		coupons:   &MockCouponStore{},
		orders:    &MockOrderStore{},
		addresses: &MockAddressStore{Default: defaultAddress()},
		payments:  &MockPaymentClient{Pref: &payment.Preference{RedirectURL: "https://pay.example/p/1"}},
	}
	f.svc = NewOrderService(f.products, f.coupons, f.orders, f.addresses, f.payments, pricing.DefaultPlatformFeeBps)
	return f
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newOrderFixture()

	// subtotal = 100.00, shipping = 15.00, no discount, fee 10%
	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:       "buyer-1",
		Items:         []domain.CartLine{{ProductID: 1, Quantity: 2}},
		ShippingCost:  dec("15.00"),
		PaymentMethod: "pix",
	})

	require.NoError(t, err)
	order := result.Order
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "buyer-1", order.BuyerID)
	assert.Equal(t, "seller-1", order.SellerID)
	assert.True(t, dec("100.00").Equal(order.Subtotal))
	assert.True(t, dec("115.00").Equal(order.Total))
	assert.True(t, dec("11.50").Equal(order.PlatformFee))
	assert.True(t, dec("103.50").Equal(order.SellerAmount))
	assert.NotEmpty(t, order.OrderNumber)
	assert.Equal(t, "https://pay.example/p/1", result.PaymentURL)
	assert.False(t, result.Replayed)

	// Unit price captured from the catalog, not the client.
	require.Len(t, order.Items, 1)
	assert.True(t, dec("50.00").Equal(order.Items[0].UnitPrice))
}

func TestPlaceOrder_MoneyReconciles(t *testing.T) {
	f := newOrderFixture()

	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:      "buyer-1",
		Items:        []domain.CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 3}},
		ShippingCost: dec("7.77"),
	})

	require.NoError(t, err)
	o := result.Order
	assert.True(t, o.Total.Equal(o.Subtotal.Add(o.ShippingCost).Sub(o.Discount)))
	assert.True(t, o.Total.Equal(o.PlatformFee.Add(o.SellerAmount)))
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newOrderFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{BuyerID: "buyer-1"})

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, f.orders.Created)
}

func TestPlaceOrder_DuplicateLinesMerged(t *testing.T) {
	f := newOrderFixture()

	// The same product split across two lines collapses into one item.
	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 1, Quantity: 2}},
	})

	require.NoError(t, err)
	require.Len(t, result.Order.Items, 1)
	assert.Equal(t, 3, result.Order.Items[0].Quantity)
	assert.True(t, dec("150.00").Equal(result.Order.Subtotal))
}

func TestPlaceOrder_DuplicateLinesExceedingStock(t *testing.T) {
	f := newOrderFixture()
	f.products.Products[3] = testProduct(3, "10.00", 4)

	// Each line fits the stock on its own; the merged quantity does not.
	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 3, Quantity: 3}, {ProductID: 3, Quantity: 3}},
	})

	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Empty(t, f.orders.Created)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	f := newOrderFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 1, Quantity: 0}},
	})

	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	f := newOrderFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 999, Quantity: 1}},
	})

	assert.ErrorIs(t, err, repository.ErrProductNotFound)
	assert.Empty(t, f.orders.Created)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := newOrderFixture()
	f.products.Products[3] = testProduct(3, "10.00", 2)

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 3, Quantity: 3}},
	})

	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Empty(t, f.orders.Created, "no order may be persisted")
}

func TestPlaceOrder_MixedSellersRejected(t *testing.T) {
	f := newOrderFixture()
	other := testProduct(4, "10.00", 10)
	other.SellerID = "seller-2"
	f.products.Products[4] = other

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 4, Quantity: 1}},
	})

	assert.ErrorIs(t, err, ErrMixedSellers)
}

func TestPlaceOrder_NegativeShippingCost(t *testing.T) {
	f := newOrderFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:      "buyer-1",
		Items:        []domain.CartLine{{ProductID: 1, Quantity: 1}},
		ShippingCost: dec("-1.00"),
	})

	assert.ErrorIs(t, err, ErrInvalidShippingCost)
}

func TestPlaceOrder_CouponApplied(t *testing.T) {
	f := newOrderFixture()
	coupon := &domain.Coupon{
		ID:            uuid.New(),
		Code:          "SAVE10",
		Type:          domain.DiscountPercentage,
		Value:         dec("10"),
		Applicability: domain.ApplicabilityAllProducts,
		ValidFrom:     time.Now().UTC().Add(-time.Hour),
		IsActive:      true,
	}
	f.coupons.Coupons = map[string]*domain.Coupon{"SAVE10": coupon}

	// subtotal = 200.00 -> discount 20.00
	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:    "buyer-1",
		Items:      []domain.CartLine{{ProductID: 1, Quantity: 4}},
		CouponCode: "save10",
	})

	require.NoError(t, err)
	assert.True(t, dec("20.00").Equal(result.Order.Discount))
	assert.True(t, dec("180.00").Equal(result.Order.Total))
	assert.Equal(t, "SAVE10", result.Order.CouponCode)
	assert.Equal(t, 1, f.orders.CouponUses[coupon.ID])
}

func TestPlaceOrder_CouponRejected(t *testing.T) {
	f := newOrderFixture()
	coupon := &domain.Coupon{
		ID:            uuid.New(),
		Code:          "DEAD",
		Type:          domain.DiscountPercentage,
		Value:         dec("10"),
		Applicability: domain.ApplicabilityAllProducts,
		ValidFrom:     time.Now().UTC().Add(-time.Hour),
		MaxUses:       intPtr(1),
		CurrentUses:   1,
		IsActive:      true,
	}
	f.coupons.Coupons = map[string]*domain.Coupon{"DEAD": coupon}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:    "buyer-1",
		Items:      []domain.CartLine{{ProductID: 1, Quantity: 1}},
		CouponCode: "DEAD",
	})

	var rejected *CouponRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, discount.MsgExhausted, rejected.Reason)
	assert.Empty(t, f.orders.Created)
}

func TestPlaceOrder_CouponNotFound(t *testing.T) {
	f := newOrderFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:    "buyer-1",
		Items:      []domain.CartLine{{ProductID: 1, Quantity: 1}},
		CouponCode: "GHOST",
	})

	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	f := newOrderFixture()
	req := PlaceOrderRequest{
		BuyerID:        "buyer-1",
		Items:          []domain.CartLine{{ProductID: 1, Quantity: 1}},
		IdempotencyKey: "key-123",
	}

	first, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, f.orders.Created, 1, "replay must not create a second order")
}

func TestPlaceOrder_OrderNumberCollisionRetried(t *testing.T) {
	f := newOrderFixture()
	f.orders.NumberTakenFor = 1

	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 1, Quantity: 1}},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Order.OrderNumber)
	assert.Len(t, f.orders.Created, 1)
}

func TestPlaceOrder_AddressSynthesizedWhenNoDefault(t *testing.T) {
	f := newOrderFixture()
	f.addresses.Default = nil

	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 1, Quantity: 1}},
		Address: &AddressInput{Street: "Rua B", City: "Campinas", State: "SP", PostalCode: "13000-000", Country: "BR"},
	})

	require.NoError(t, err)
	require.Len(t, f.orders.Addresses, 1, "address rides the order transaction")
	assert.True(t, f.orders.Addresses[0].IsDefault, "synthesized address becomes the default")
	assert.Equal(t, f.orders.Addresses[0].ID, result.Order.AddressID)
}

func TestPlaceOrder_FailedCreationPersistsNoAddress(t *testing.T) {
	f := newOrderFixture()
	f.addresses.Default = nil
	f.orders.CreateErr = fmt.Errorf("deadlock detected")

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 1, Quantity: 1}},
		Address: &AddressInput{Street: "Rua B", City: "Campinas", State: "SP", PostalCode: "13000-000", Country: "BR"},
	})

	require.Error(t, err)
	assert.Empty(t, f.orders.Created)
	assert.Empty(t, f.orders.Addresses, "a failed creation must not leave an address behind")
}

func TestPlaceOrder_NoAddressAtAll(t *testing.T) {
	f := newOrderFixture()
	f.addresses.Default = nil

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 1, Quantity: 1}},
	})

	assert.ErrorIs(t, err, ErrAddressRequired)
}

func TestPlaceOrder_PaymentFailureKeepsOrder(t *testing.T) {
	f := newOrderFixture()
	f.payments.Err = fmt.Errorf("gateway down")

	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 1, Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Empty(t, result.PaymentURL)
	assert.Len(t, f.orders.Created, 1)
}

// Concurrency properties: the storage mock enforces the same conditional-
// update semantics as the real transaction, so N simultaneous checkouts can
// be simulated with goroutines.

func TestPlaceOrder_ConcurrentCouponCap(t *testing.T) {
	f := newOrderFixture()
	coupon := &domain.Coupon{
		ID:            uuid.New(),
		Code:          "LIMITED",
		Type:          domain.DiscountFixedAmount,
		Value:         dec("5.00"),
		Applicability: domain.ApplicabilityAllProducts,
		ValidFrom:     time.Now().UTC().Add(-time.Hour),
		MaxUses:       intPtr(100), // evaluator-level cap stays out of the way
		IsActive:      true,
	}
	f.coupons.Coupons = map[string]*domain.Coupon{"LIMITED": coupon}
	f.orders.CouponMaxUses = map[uuid.UUID]int{coupon.ID: 5}

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				BuyerID:    fmt.Sprintf("buyer-%d", i),
				Items:      []domain.CartLine{{ProductID: 1, Quantity: 1}},
				CouponCode: "LIMITED",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, repository.ErrCouponExhausted)
		}
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, f.orders.CouponUses[coupon.ID])
}

func TestPlaceOrder_ConcurrentStockNeverNegative(t *testing.T) {
	f := newOrderFixture()
	f.products.Products[7] = testProduct(7, "9.90", 10)
	f.orders.Stock = map[int64]int{7: 10}

	const attempts = 25
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
				BuyerID: fmt.Sprintf("buyer-%d", i),
				Items:   []domain.CartLine{{ProductID: 7, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 10, succeeded)
	assert.GreaterOrEqual(t, f.orders.Stock[7], 0, "stock must never go negative")
	assert.Equal(t, 0, f.orders.Stock[7])
}

func TestGetOrder_CrossTenantHidden(t *testing.T) {
	f := newOrderFixture()
	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID: "buyer-1",
		Items:   []domain.CartLine{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.svc.GetOrder(context.Background(), result.Order.ID, "someone-else")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}
