package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercatto/checkout-service/internal/domain"
	"github.com/mercatto/checkout-service/internal/service"
)

type OrderHandler struct {
	orders  *service.OrderService
	timeout time.Duration
}

func NewOrderHandler(orders *service.OrderService, timeout time.Duration) *OrderHandler {
	return &OrderHandler{orders: orders, timeout: timeout}
}

type AddressDTO struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type CreateOrderRequestDTO struct {
	Items         []CartItemDTO   `json:"items"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Address       *AddressDTO     `json:"address,omitempty"`
}

type OrderItemDTO struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type OrderResponseDTO struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Status        string          `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	SellerAmount  decimal.Decimal `json:"seller_amount"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	PaymentURL    string          `json:"payment_url,omitempty"`
	Items         []OrderItemDTO  `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
}

func orderToDTO(o *domain.Order, paymentURL string) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return OrderResponseDTO{
		ID:            o.ID.String(),
		OrderNumber:   o.OrderNumber,
		Status:        o.Status.String(),
		Subtotal:      o.Subtotal,
		ShippingCost:  o.ShippingCost,
		Discount:      o.Discount,
		Total:         o.Total,
		PlatformFee:   o.PlatformFee,
		SellerAmount:  o.SellerAmount,
		CouponCode:    o.CouponCode,
		PaymentMethod: o.PaymentMethod,
		PaymentURL:    paymentURL,
		Items:         items,
		CreatedAt:     o.CreatedAt,
	}
}

// POST /api/v1/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CreateOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	placeReq := service.PlaceOrderRequest{
		BuyerID:        userID,
		Items:          cartLines(req.Items),
		ShippingCost:   req.ShippingCost,
		CouponCode:     req.CouponCode,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.Address != nil {
		placeReq.Address = &service.AddressInput{
			Street:     req.Address.Street,
			Number:     req.Address.Number,
			Complement: req.Address.Complement,
			City:       req.Address.City,
			State:      req.Address.State,
			PostalCode: req.Address.PostalCode,
			Country:    req.Address.Country,
		}
	}

	result, err := h.orders.PlaceOrder(ctx, placeReq)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, orderToDTO(result.Order, result.PaymentURL))
}

// GET /api/v1/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orders, err := h.orders.ListOrders(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, orderToDTO(o, ""))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/orders/{order_id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToDTO(order, ""))
}

// POST /api/v1/orders/{order_id}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}

	order, err := h.orders.CancelOrder(ctx, orderID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToDTO(order, ""))
}

// POST /api/v1/admin/orders/{order_id}/refund
func (h *OrderHandler) Refund(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}

	order, err := h.orders.RefundOrder(ctx, orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToDTO(order, ""))
}
