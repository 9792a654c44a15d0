package http

import (
	"errors"
	"net/http"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/repository"
	"github.com/fjod/meiduo/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	orders repository.OrderRepository
}

func NewOrdersHandler(orders repository.OrderRepository) *OrdersHandler {
	return &OrdersHandler{orders: orders}
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := identityFromContext(r.Context()).UserID

	orders, err := h.orders.ListOrdersByUser(r.Context(), userID)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("failed to list orders")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list orders")
		return
	}
	if orders == nil {
		orders = []*domain.OrderHeader{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := identityFromContext(r.Context()).UserID
	orderID := chi.URLParam(r, "order_id")

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if errors.Is(err, repository.ErrOrderNotFound) || (err == nil && order.UserID != userID) {
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
		return
	}
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Str("order_id", orderID).Msg("failed to load order")
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load order")
		return
	}
	respondJSON(w, http.StatusOK, order)
}
