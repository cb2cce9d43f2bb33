package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the order lifecycle state machine. Only PENDING is created
// by the checkout flow; later transitions are driven by payment and
// fulfillment events.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusRefunded},
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// OrderItem captures a cart line at order time. UnitPrice is the catalog
// price at creation and never changes afterwards, which is what makes the
// order an auditable historical record.
type OrderItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Order is the transactional aggregate produced by checkout.
//
// Monetary invariants, to the cent:
//
//	Total == Subtotal + ShippingCost - Discount
//	Total == PlatformFee + SellerAmount
type Order struct {
	ID             uuid.UUID
	OrderNumber    string
	BuyerID        string
	SellerID       string
	AddressID      uuid.UUID
	Status         OrderStatus
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	PlatformFee    decimal.Decimal
	SellerAmount   decimal.Decimal
	CouponCode     string
	PaymentMethod  string
	IdempotencyKey string
	Items          []OrderItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
