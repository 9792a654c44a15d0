package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fjod/meiduo/internal/checkout"
	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/inventory"
	"github.com/fjod/meiduo/pkg/logger"
)

type CheckoutService interface {
	Settle(ctx context.Context, userID int64) (*domain.Settlement, error)
	Submit(ctx context.Context, req checkout.SubmitRequest) (*domain.Order, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
}

func NewCheckoutHandler(svc CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc}
}

type SubmitOrderRequestDTO struct {
	AddressID int64 `json:"address_id"`
	PayMethod int   `json:"pay_method"`
}

func (h *CheckoutHandler) Settlement(w http.ResponseWriter, r *http.Request) {
	userID := identityFromContext(r.Context()).UserID

	settlement, err := h.checkout.Settle(r.Context(), userID)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Int64("user_id", userID).Msg("settlement failed")
		respondError(w, http.StatusInternalServerError, "system_error", "failed to build settlement, try again later")
		return
	}
	respondJSON(w, http.StatusOK, settlement)
}

func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := identityFromContext(r.Context()).UserID

	var req SubmitOrderRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.AddressID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_address", "address_id must be positive")
		return
	}

	order, err := h.checkout.Submit(r.Context(), checkout.SubmitRequest{
		UserID:    userID,
		AddressID: req.AddressID,
		PayMethod: domain.PayMethod(req.PayMethod),
	})
	if err != nil {
		handleSubmitError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func handleSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *checkout.StockError
	switch {
	case errors.As(err, &stockErr) && errors.Is(err, inventory.ErrInsufficientStock):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   stockErr.ProductName + " is out of stock",
			Code:    "insufficient_stock",
			Details: stockErr.Error(),
		})
	case errors.As(err, &stockErr):
		respondError(w, http.StatusBadRequest, "product_unavailable", "a selected product is no longer available")
	case errors.Is(err, checkout.ErrEmptySelection):
		respondError(w, http.StatusBadRequest, "empty_selection", "no items selected")
	case errors.Is(err, checkout.ErrInvalidPayMethod):
		respondError(w, http.StatusBadRequest, "invalid_pay_method", "unsupported pay method")
	default:
		logger.Ctx(r.Context()).Error().Err(err).Msg("order submission failed")
		respondError(w, http.StatusInternalServerError, "system_error", "failed to submit order, try again later")
	}
}
