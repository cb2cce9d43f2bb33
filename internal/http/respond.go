package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mercatto/checkout-service/internal/inventory"
	"github.com/mercatto/checkout-service/internal/repository"
	"github.com/mercatto/checkout-service/internal/service"
)

type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleServiceError translates domain errors into structured responses.
// Validation problems are 400, missing references 404, business rules 422,
// concurrent exhaustion 409; anything unrecognized stays an opaque 500.
func handleServiceError(w http.ResponseWriter, err error) {
	var rejected *service.CouponRejectedError
	if errors.As(err, &rejected) {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   rejected.Reason,
			Code:    "coupon_rejected",
			Details: rejected.Reasons,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidShippingCost),
		errors.Is(err, service.ErrAddressRequired),
		errors.Is(err, service.ErrMissingCouponCode),
		errors.Is(err, service.ErrInvalidCouponValue),
		errors.Is(err, service.ErrInvalidPercentage),
		errors.Is(err, service.ErrMissingScopeIDs):
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())

	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrCouponNotFound),
		errors.Is(err, repository.ErrAddressNotFound),
		errors.Is(err, service.ErrCouponNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, service.ErrMixedSellers),
		errors.Is(err, repository.ErrInvalidTransition):
		respondError(w, http.StatusUnprocessableEntity, "business_rule_violation", err.Error())

	case errors.Is(err, repository.ErrCouponExhausted),
		errors.Is(err, repository.ErrCouponUserLimit):
		// Lost a race at the atomic-update layer; the client may retry.
		respondError(w, http.StatusConflict, "conflict", err.Error())

	case errors.Is(err, repository.ErrCouponCodeTaken):
		respondError(w, http.StatusConflict, "already_exists", err.Error())

	default:
		slog.Error("unhandled service error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
