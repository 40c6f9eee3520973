package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront-payments/internal/lifecycle"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
)

type CreatePreferenceRequest struct {
	OrderData *OrderData `json:"orderData" validate:"required"`
}

type OrderData struct {
	UserID          string                 `json:"userId"`
	UserEmail       string                 `json:"userEmail" validate:"required,email"`
	Items           []OrderItemRequest     `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddressRequest `json:"shippingAddress"`
	ShippingMethod  string                 `json:"shippingMethod" validate:"omitempty,oneof=local fedex dhl"`
	ShippingCost    decimal.NullDecimal    `json:"shippingCost"`
	Subtotal        decimal.NullDecimal    `json:"subtotal"`
	Total           decimal.NullDecimal    `json:"total"`
	Notes           string                 `json:"notes"`
}

type OrderItemRequest struct {
	ProductID    string          `json:"productId" validate:"required"`
	ProductName  string          `json:"productName" validate:"required"`
	ProductImage string          `json:"productImage"`
	Category     string          `json:"category"`
	Quantity     int             `json:"quantity" validate:"gt=0"`
	Price        decimal.Decimal `json:"price"`
}

type ShippingAddressRequest struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
	Street   string `json:"street" validate:"required"`
	City     string `json:"city" validate:"required"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
}

type CreatePreferenceResponse struct {
	Success          bool      `json:"success"`
	OrderID          uuid.UUID `json:"orderId"`
	PreferenceID     string    `json:"preferenceId"`
	InitPoint        string    `json:"initPoint"`
	SandboxInitPoint string    `json:"sandboxInitPoint"`
}

type CheckoutErrorResponse struct {
	Success bool       `json:"success"`
	Error   string     `json:"error"`
	Details string     `json:"details"`
	OrderID *uuid.UUID `json:"orderId,omitempty"`
}

type CheckoutHandler struct {
	service  lifecycle.Service
	validate *validator.Validate
}

func NewCheckoutHandler(service lifecycle.Service) *CheckoutHandler {
	return &CheckoutHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *CheckoutHandler) RegisterRoutes(router chi.Router) {
	router.Post("/api/payment/create-preference", h.handleCreatePreference)
}

func (h *CheckoutHandler) handleCreatePreference(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreatePreferenceRequest
	if err := render.DecodeJSON(r.Body, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode checkout request body")
		validationFailed(w, r, []ValidationDetail{{Field: "body", Message: "must be a valid JSON object"}})
		return
	}

	if !validateRequest(h.validate, w, r, requestPayload) {
		return
	}

	draft, detail := requestPayload.OrderData.toDraft()
	if detail != nil {
		validationFailed(w, r, []ValidationDetail{*detail})
		return
	}

	result, err := h.service.PlaceOrder(r.Context(), draft)
	if err != nil {
		var vErr *order.ValidationError
		if errors.As(err, &vErr) {
			validationFailed(w, r, []ValidationDetail{{Field: "orderData." + vErr.Field, Message: vErr.Reason}})
			return
		}

		log.Error().Err(err).Msg("Failed to place order via service")
		resp := CheckoutErrorResponse{
			Success: false,
			Error:   "Error creating payment preference",
			Details: err.Error(),
		}
		if result != nil && result.OrderID != uuid.Nil {
			resp.OrderID = &result.OrderID
		}
		respondWithJSON(w, r, http.StatusInternalServerError, resp)
		return
	}

	respondWithJSON(w, r, http.StatusOK, CreatePreferenceResponse{
		Success:          true,
		OrderID:          result.OrderID,
		PreferenceID:     result.PreferenceID,
		InitPoint:        result.InitPoint,
		SandboxInitPoint: result.SandboxInitPoint,
	})
}

func (d *OrderData) toDraft() (order.Draft, *ValidationDetail) {
	method := order.ShippingMethod(d.ShippingMethod)

	shippingCost := d.ShippingCost.Decimal
	if !d.ShippingCost.Valid {
		cost, ok := order.DefaultShippingCost(method)
		if !ok {
			return order.Draft{}, &ValidationDetail{Field: "orderData.shippingMethod", Message: "unknown shipping method"}
		}
		shippingCost = cost
	}
	if !d.Total.Valid {
		return order.Draft{}, &ValidationDetail{Field: "orderData.total", Message: "is required"}
	}

	items := make([]order.DraftItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, order.DraftItem{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductImage: it.ProductImage,
			Category:     it.Category,
			Quantity:     it.Quantity,
			Price:        it.Price,
		})
	}

	return order.Draft{
		UserID:    d.UserID,
		UserEmail: d.UserEmail,
		Items:     items,
		ShippingAddress: order.ShippingAddress{
			FullName: d.ShippingAddress.FullName,
			Email:    d.ShippingAddress.Email,
			Phone:    d.ShippingAddress.Phone,
			Street:   d.ShippingAddress.Street,
			City:     d.ShippingAddress.City,
			State:    d.ShippingAddress.State,
			ZipCode:  d.ShippingAddress.ZipCode,
			Country:  d.ShippingAddress.Country,
		},
		ShippingMethod: method,
		ShippingCost:   shippingCost,
		Notes:          d.Notes,
		ClientTotal:    d.Total,
	}, nil
}
