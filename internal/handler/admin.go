package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront-payments/internal/lifecycle"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
)

const (
	defaultAdminListLimit = 50
	maxAdminListLimit     = 200
)

type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled"`
	Note   string `json:"note"`
}

type OrderListResponse struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Orders  []order.Order `json:"orders"`
}

type OrderResponse struct {
	Success bool         `json:"success"`
	Order   *order.Order `json:"order"`
}

type AdminHandler struct {
	service  lifecycle.Service
	auth     *AdminAuthenticator
	validate *validator.Validate
}

func NewAdminHandler(service lifecycle.Service, auth *AdminAuthenticator) *AdminHandler {
	return &AdminHandler{
		service:  service,
		auth:     auth,
		validate: newValidator(),
	}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Post("/api/admin/login", h.handleLogin)
	router.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Get("/api/admin/orders", h.handleListOrders)
		r.Patch("/api/admin/orders/{id}/status", h.handleUpdateStatus)
	})
}

func (h *AdminHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var requestPayload LoginRequest
	if err := render.DecodeJSON(r.Body, &requestPayload); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(h.validate, w, r, requestPayload) {
		return
	}

	token, expiresAt, err := h.auth.Login(requestPayload.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			log.Warn().Msg("Failed admin login attempt")
			respondWithError(w, r, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Error().Err(err).Msg("Failed to issue admin token")
		respondWithError(w, r, http.StatusInternalServerError, "Failed to log in")
		return
	}

	respondWithJSON(w, r, http.StatusOK, LoginResponse{Success: true, Token: token, ExpiresAt: expiresAt})
}

func (h *AdminHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultAdminListLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondWithError(w, r, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = min(n, maxAdminListLimit)
	}

	status := order.Status(query.Get("status"))
	if status != "" && !status.Valid() {
		respondWithError(w, r, http.StatusBadRequest, "Invalid status parameter")
		return
	}

	var (
		orders []order.Order
		err    error
	)
	if email := query.Get("email"); email != "" {
		orders, err = h.service.ListOrdersByEmail(r.Context(), email)
		if err == nil {
			orders = filterOrders(orders, status, limit)
		}
	} else {
		orders, err = h.service.ListOrders(r.Context(), order.ListFilter{Status: status, Limit: limit})
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to list orders via service")
		respondWithError(w, r, mapErrorToStatusCode(err), "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}

	respondWithJSON(w, r, http.StatusOK, OrderListResponse{Success: true, Count: len(orders), Orders: orders})
}

func (h *AdminHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var requestPayload UpdateStatusRequest
	if err := render.DecodeJSON(r.Body, &requestPayload); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(h.validate, w, r, requestPayload) {
		return
	}

	updated, err := h.service.SetFulfillmentStatus(r.Context(), orderID, order.Status(requestPayload.Status), requestPayload.Note)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)
		var clientMessage string
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			clientMessage = "Order not found"
		case errors.Is(err, order.ErrInvalidStatus):
			clientMessage = "Invalid status"
		default:
			log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to update order status via service")
			clientMessage = "Failed to update order status"
		}
		respondWithError(w, r, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, r, http.StatusOK, OrderResponse{Success: true, Order: updated})
}

func filterOrders(orders []order.Order, status order.Status, limit int) []order.Order {
	out := orders[:0]
	for _, o := range orders {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out
}
