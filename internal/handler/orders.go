package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront-payments/internal/lifecycle"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
)

// OrderHandler serves the order lookups used by the payment result pages.
type OrderHandler struct {
	service lifecycle.Service
}

func NewOrderHandler(service lifecycle.Service) *OrderHandler {
	return &OrderHandler{service: service}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Get("/api/orders/{id}", h.handleGetOrderByID)
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	foundOrder, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, r, statusCode, "Order not found")
			return
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to get order by id via service")
		respondWithError(w, r, statusCode, "Failed to get order")
		return
	}

	respondWithJSON(w, r, http.StatusOK, foundOrder)
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, r, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return orderID, true
}
