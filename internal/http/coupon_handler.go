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

type CouponHandler struct {
	coupons *service.CouponService
	timeout time.Duration
}

func NewCouponHandler(coupons *service.CouponService, timeout time.Duration) *CouponHandler {
	return &CouponHandler{coupons: coupons, timeout: timeout}
}

type CartItemDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type ValidateCouponRequestDTO struct {
	Code  string        `json:"code"`
	Items []CartItemDTO `json:"items"`
}

type ValidateCouponResponseDTO struct {
	Valid          bool            `json:"valid"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalTotal     decimal.Decimal `json:"final_total"`
	OrderTotal     decimal.Decimal `json:"order_total"`
	Error          string          `json:"error,omitempty"`
	Errors         []string        `json:"errors,omitempty"`
}

// POST /api/v1/coupons/validate
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ValidateCouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "missing_code", "code is required")
		return
	}

	result, err := h.coupons.Preview(ctx, service.PreviewRequest{
		UserID:     userID,
		CouponCode: req.Code,
		Items:      cartLines(req.Items),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ValidateCouponResponseDTO{
		Valid:          result.Valid,
		DiscountAmount: result.Discount,
		FinalTotal:     result.FinalTotal,
		OrderTotal:     result.OrderTotal,
		Error:          result.Err,
		Errors:         result.Errs,
	})
}

func cartLines(items []CartItemDTO) []domain.CartLine {
	lines := make([]domain.CartLine, len(items))
	for i, item := range items {
		lines[i] = domain.CartLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return lines
}

type CouponDTO struct {
	ID             string           `json:"id,omitempty"`
	Code           string           `json:"code"`
	Type           string           `json:"type"`
	Value          decimal.Decimal  `json:"value"`
	MinOrderValue  *decimal.Decimal `json:"min_order_value,omitempty"`
	MaxDiscount    *decimal.Decimal `json:"max_discount,omitempty"`
	Applicability  string           `json:"applicability"`
	CategoryIDs    []int64          `json:"category_ids,omitempty"`
	ProductIDs     []int64          `json:"product_ids,omitempty"`
	MaxUses        *int             `json:"max_uses,omitempty"`
	MaxUsesPerUser *int             `json:"max_uses_per_user,omitempty"`
	CurrentUses    int              `json:"current_uses"`
	ValidFrom      *time.Time       `json:"valid_from,omitempty"`
	ValidUntil     *time.Time       `json:"valid_until,omitempty"`
	IsActive       *bool            `json:"is_active,omitempty"` // defaults to true on create
}

func (dto *CouponDTO) toDomain() *domain.Coupon {
	c := &domain.Coupon{
		Code:           dto.Code,
		Type:           domain.DiscountType(dto.Type),
		Value:          dto.Value,
		MinOrderValue:  dto.MinOrderValue,
		MaxDiscount:    dto.MaxDiscount,
		Applicability:  domain.Applicability(dto.Applicability),
		CategoryIDs:    dto.CategoryIDs,
		ProductIDs:     dto.ProductIDs,
		MaxUses:        dto.MaxUses,
		MaxUsesPerUser: dto.MaxUsesPerUser,
		ValidUntil:     dto.ValidUntil,
		IsActive:       true,
	}
	if dto.IsActive != nil {
		c.IsActive = *dto.IsActive
	}
	if dto.Applicability == "" {
		c.Applicability = domain.ApplicabilityAllProducts
	}
	if dto.ValidFrom != nil {
		c.ValidFrom = *dto.ValidFrom
	}
	return c
}

func couponToDTO(c *domain.Coupon) CouponDTO {
	validFrom := c.ValidFrom
	isActive := c.IsActive
	return CouponDTO{
		ID:             c.ID.String(),
		Code:           c.Code,
		Type:           string(c.Type),
		Value:          c.Value,
		MinOrderValue:  c.MinOrderValue,
		MaxDiscount:    c.MaxDiscount,
		Applicability:  string(c.Applicability),
		CategoryIDs:    c.CategoryIDs,
		ProductIDs:     c.ProductIDs,
		MaxUses:        c.MaxUses,
		MaxUsesPerUser: c.MaxUsesPerUser,
		CurrentUses:    c.CurrentUses,
		ValidFrom:      &validFrom,
		ValidUntil:     c.ValidUntil,
		IsActive:       &isActive,
	}
}

// POST /api/v1/admin/coupons
func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var dto CouponDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	coupon := dto.toDomain()
	if err := h.coupons.CreateCoupon(ctx, coupon); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, couponToDTO(coupon))
}

// GET /api/v1/admin/coupons
func (h *CouponHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	coupons, err := h.coupons.ListCoupons(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	dtos := make([]CouponDTO, 0, len(coupons))
	for _, c := range coupons {
		dtos = append(dtos, couponToDTO(c))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/admin/coupons/{coupon_id}
func (h *CouponHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := uuid.Parse(chi.URLParam(r, "coupon_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_coupon_id", "coupon_id must be a UUID")
		return
	}
	coupon, err := h.coupons.GetCoupon(ctx, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, couponToDTO(coupon))
}

// PUT /api/v1/admin/coupons/{coupon_id}
func (h *CouponHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := uuid.Parse(chi.URLParam(r, "coupon_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_coupon_id", "coupon_id must be a UUID")
		return
	}

	var dto CouponDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	coupon := dto.toDomain()
	coupon.ID = id
	updated, err := h.coupons.UpdateCoupon(ctx, coupon)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, couponToDTO(updated))
}

// DELETE /api/v1/admin/coupons/{coupon_id}
func (h *CouponHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := uuid.Parse(chi.URLParam(r, "coupon_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_coupon_id", "coupon_id must be a UUID")
		return
	}
	if err := h.coupons.DeactivateCoupon(ctx, id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
