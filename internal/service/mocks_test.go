package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mercatto/checkout-service/internal/domain"
	"github.com/mercatto/checkout-service/internal/payment"
	"github.com/mercatto/checkout-service/internal/repository"
)

// MockProductStore implements ProductStore for testing
type MockProductStore struct {
	Products map[int64]*domain.Product
	Err      error
}

func (m *MockProductStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, repository.ErrProductNotFound)
	}
	cp := *p
	return &cp, nil
}

// MockCouponStore implements CouponStore for testing
type MockCouponStore struct {
	mu          sync.Mutex
	Coupons     map[string]*domain.Coupon // keyed by code
	Redemptions map[string]int            // keyed by couponID|userID
	Err         error
	Created     []*domain.Coupon
	Updated     []*domain.Coupon
	Deactivated []uuid.UUID
}

func (m *MockCouponStore) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Coupons[domain.NormalizeCouponCode(code)]
	if !ok {
		return nil, repository.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockCouponStore) GetCouponByID(_ context.Context, id uuid.UUID) (*domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Coupons {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrCouponNotFound
}

func (m *MockCouponStore) CreateCoupon(_ context.Context, c *domain.Coupon) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Coupons[c.Code]; exists {
		return repository.ErrCouponCodeTaken
	}
	if m.Coupons == nil {
		m.Coupons = make(map[string]*domain.Coupon)
	}
	m.Coupons[c.Code] = c
	m.Created = append(m.Created, c)
	return nil
}

// UpdateCoupon overwrites the rule attributes but, like the real store,
// never touches the usage counter.
func (m *MockCouponStore) UpdateCoupon(_ context.Context, c *domain.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Coupons[c.Code]
	if !ok {
		return repository.ErrCouponNotFound
	}
	cp := *c
	cp.CurrentUses = existing.CurrentUses
	m.Coupons[c.Code] = &cp
	m.Updated = append(m.Updated, &cp)
	return nil
}

func (m *MockCouponStore) DeactivateCoupon(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Coupons {
		if c.ID == id {
			c.IsActive = false
			m.Deactivated = append(m.Deactivated, id)
			return nil
		}
	}
	return repository.ErrCouponNotFound
}

func (m *MockCouponStore) ListCoupons(_ context.Context) ([]*domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Coupon
	for _, c := range m.Coupons {
		out = append(out, c)
	}
	return out, nil
}

func (m *MockCouponStore) CountRedemptions(_ context.Context, couponID uuid.UUID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Redemptions[redemptionKey(couponID, userID)], nil
}

func redemptionKey(couponID uuid.UUID, userID string) string {
	return couponID.String() + "|" + userID
}

// MockOrderStore implements OrderStore. It reproduces the storage-level
// atomicity rules: stock decrements and coupon consumption are conditional
// and guarded by one lock, the way the real transaction behaves.
type MockOrderStore struct {
	mu             sync.Mutex
	Stock          map[int64]int             // nil disables stock simulation
	CouponUses     map[uuid.UUID]int         // current uses per coupon
	CouponMaxUses  map[uuid.UUID]int         // global cap per coupon; absent = unlimited
	UserRedemption map[string]int            // redemptionKey -> count
	ByIdempotency  map[string]*domain.Order
	ByID           map[uuid.UUID]*domain.Order
	CreateErr      error
	NumberTakenFor int // fail the first N creations with ErrOrderNumberTaken
	Created        []*domain.Order
	Addresses      []*domain.Address // addresses inserted with an order
	CancelResult   *domain.Order
	CancelErr      error
}

func (m *MockOrderStore) CreateOrder(_ context.Context, order *domain.Order, newAddress *domain.Address, coupon *repository.CouponConsumption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}
	if m.NumberTakenFor > 0 {
		m.NumberTakenFor--
		return repository.ErrOrderNumberTaken
	}
	if order.IdempotencyKey != "" {
		if _, exists := m.ByIdempotency[order.IdempotencyKey]; exists {
			return repository.ErrDuplicateIdempotencyKey
		}
	}

	if m.Stock != nil {
		for _, item := range order.Items {
			if m.Stock[item.ProductID] < item.Quantity {
				return fmt.Errorf("product %d: insufficient stock", item.ProductID)
			}
		}
		for _, item := range order.Items {
			m.Stock[item.ProductID] -= item.Quantity
		}
	}

	if coupon != nil {
		if max, capped := m.CouponMaxUses[coupon.CouponID]; capped && m.CouponUses[coupon.CouponID] >= max {
			return repository.ErrCouponExhausted
		}
		key := redemptionKey(coupon.CouponID, coupon.UserID)
		if coupon.MaxUsesPerUser != nil && m.UserRedemption[key] >= *coupon.MaxUsesPerUser {
			return repository.ErrCouponUserLimit
		}
		if m.CouponUses == nil {
			m.CouponUses = make(map[uuid.UUID]int)
		}
		if m.UserRedemption == nil {
			m.UserRedemption = make(map[string]int)
		}
		m.CouponUses[coupon.CouponID]++
		m.UserRedemption[key]++
	}

	if m.ByIdempotency == nil {
		m.ByIdempotency = make(map[string]*domain.Order)
	}
	if m.ByID == nil {
		m.ByID = make(map[uuid.UUID]*domain.Order)
	}
	if order.IdempotencyKey != "" {
		m.ByIdempotency[order.IdempotencyKey] = order
	}
	m.ByID[order.ID] = order
	m.Created = append(m.Created, order)
	if newAddress != nil {
		m.Addresses = append(m.Addresses, newAddress)
	}
	return nil
}

func (m *MockOrderStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.ByID[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (m *MockOrderStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.ByIdempotency[key]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (m *MockOrderStore) ListOrdersByBuyer(_ context.Context, buyerID string) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.Created {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockOrderStore) CancelOrder(_ context.Context, orderID uuid.UUID, buyerID string) (*domain.Order, error) {
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}
	return m.CancelResult, nil
}

func (m *MockOrderStore) RefundOrder(_ context.Context, orderID uuid.UUID) (*domain.Order, error) {
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}
	return m.CancelResult, nil
}

// MockAddressStore implements AddressStore for testing
type MockAddressStore struct {
	Default *domain.Address
	GetErr  error
}

func (m *MockAddressStore) GetDefaultAddress(_ context.Context, userID string) (*domain.Address, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.Default == nil {
		return nil, repository.ErrAddressNotFound
	}
	return m.Default, nil
}

// MockPaymentClient implements payment.Client for testing
type MockPaymentClient struct {
	Pref   *payment.Preference
	Err    error
	Orders []*domain.Order
}

func (m *MockPaymentClient) CreatePreference(_ context.Context, order *domain.Order) (*payment.Preference, error) {
	m.Orders = append(m.Orders, order)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Pref, nil
}
