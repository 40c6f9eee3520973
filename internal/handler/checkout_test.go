package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront-payments/internal/handler"
	"github.com/vasiliy-maslov/storefront-payments/internal/lifecycle"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
	"github.com/vasiliy-maslov/storefront-payments/internal/payment"
)

const checkoutBody = `{
	"orderData": {
		"userId": "firebase-uid-1",
		"userEmail": "ana@example.com",
		"items": [
			{"productId": "p1", "productName": "Clorador", "category": "quimicos", "quantity": 2, "price": 500}
		],
		"shippingAddress": {"fullName": "Ana Pérez", "street": "Av. Reforma 1", "city": "CDMX", "zipCode": "06600"},
		"shippingMethod": "fedex",
		"subtotal": 1000,
		"total": 1150
	}
}`

func serveCheckout(t *testing.T, svc *MockLifecycleService, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	handler.NewCheckoutHandler(svc).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/payment/create-preference", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCheckoutHandler_CreatePreference_Success(t *testing.T) {
	mockService := new(MockLifecycleService)
	orderID := uuid.Must(uuid.NewV4())

	mockService.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(d order.Draft) bool {
		return d.UserID == "firebase-uid-1" &&
			d.UserEmail == "ana@example.com" &&
			len(d.Items) == 1 &&
			d.Items[0].Quantity == 2 &&
			d.Items[0].Price.Equal(decimal.NewFromInt(500)) &&
			d.ShippingMethod == order.ShippingFedex &&
			d.ShippingCost.Equal(decimal.NewFromInt(150)) &&
			d.ShippingAddress.ZipCode == "06600" &&
			d.ClientTotal.Valid && d.ClientTotal.Decimal.Equal(decimal.NewFromInt(1150))
	})).Return(&lifecycle.CheckoutResult{
		OrderID:          orderID,
		OrderNumber:      "ORD-TEST-00001",
		PreferenceID:     "pref-1",
		InitPoint:        "https://mp.example/checkout?pref=pref-1",
		SandboxInitPoint: "https://sandbox.mp.example/checkout?pref=pref-1",
	}, nil).Once()

	rr := serveCheckout(t, mockService, checkoutBody)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp handler.CreatePreferenceResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, orderID, resp.OrderID)
	assert.Equal(t, "pref-1", resp.PreferenceID)
	assert.Equal(t, "https://mp.example/checkout?pref=pref-1", resp.InitPoint)
	assert.Equal(t, "https://sandbox.mp.example/checkout?pref=pref-1", resp.SandboxInitPoint)
	mockService.AssertExpectations(t)
}

func TestCheckoutHandler_CreatePreference_ExplicitShippingCost(t *testing.T) {
	mockService := new(MockLifecycleService)
	body := `{"orderData": {"userEmail": "ana@example.com",
		"items": [{"productId": "p1", "productName": "Filtro", "quantity": 1, "price": "99.90"}],
		"shippingAddress": {"fullName": "Ana", "street": "Calle 1", "city": "GDL"},
		"shippingMethod": "dhl", "shippingCost": "0", "total": "99.90"}}`

	mockService.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(d order.Draft) bool {
		return d.ShippingMethod == order.ShippingDHL && d.ShippingCost.IsZero() &&
			d.ClientTotal.Valid && d.ClientTotal.Decimal.Equal(decimal.RequireFromString("99.90"))
	})).Return(&lifecycle.CheckoutResult{OrderID: uuid.Must(uuid.NewV4())}, nil).Once()

	rr := serveCheckout(t, mockService, body)
	assert.Equal(t, http.StatusOK, rr.Code)
	mockService.AssertExpectations(t)
}

func TestCheckoutHandler_CreatePreference_ValidationFailed(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{
			name:      "missing_order_data",
			body:      `{}`,
			wantField: "orderData",
		},
		{
			name: "invalid_email",
			body: `{"orderData": {"userEmail": "nope", "items": [{"productId": "p1", "productName": "X", "quantity": 1, "price": 1}],
				"shippingAddress": {"fullName": "Ana", "street": "Calle 1", "city": "GDL"}}}`,
			wantField: "orderData.userEmail",
		},
		{
			name: "no_items",
			body: `{"orderData": {"userEmail": "ana@example.com", "items": [],
				"shippingAddress": {"fullName": "Ana", "street": "Calle 1", "city": "GDL"}}}`,
			wantField: "orderData.items",
		},
		{
			name: "zero_quantity",
			body: `{"orderData": {"userEmail": "ana@example.com", "items": [{"productId": "p1", "productName": "X", "quantity": 0, "price": 1}],
				"shippingAddress": {"fullName": "Ana", "street": "Calle 1", "city": "GDL"}}}`,
			wantField: "orderData.items[0].quantity",
		},
		{
			name: "unknown_shipping_method",
			body: `{"orderData": {"userEmail": "ana@example.com", "items": [{"productId": "p1", "productName": "X", "quantity": 1, "price": 1}],
				"shippingAddress": {"fullName": "Ana", "street": "Calle 1", "city": "GDL"}, "shippingMethod": "pigeon"}}`,
			wantField: "orderData.shippingMethod",
		},
		{
			name: "missing_total",
			body: `{"orderData": {"userEmail": "ana@example.com", "items": [{"productId": "p1", "productName": "X", "quantity": 1, "price": 1}],
				"shippingAddress": {"fullName": "Ana", "street": "Calle 1", "city": "GDL"}, "shippingMethod": "local"}}`,
			wantField: "orderData.total",
		},
		{
			name: "null_total",
			body: `{"orderData": {"userEmail": "ana@example.com", "items": [{"productId": "p1", "productName": "X", "quantity": 1, "price": 1}],
				"shippingAddress": {"fullName": "Ana", "street": "Calle 1", "city": "GDL"}, "total": null}}`,
			wantField: "orderData.total",
		},
		{
			name:      "invalid_json",
			body:      `{invalid json}`,
			wantField: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockLifecycleService)

			rr := serveCheckout(t, mockService, tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)

			var resp handler.ValidationErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.Equal(t, "Validation failed", resp.Error)
			fields := make([]string, 0, len(resp.Details))
			for _, d := range resp.Details {
				fields = append(fields, d.Field)
			}
			assert.Contains(t, fields, tt.wantField)
			mockService.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestCheckoutHandler_CreatePreference_DomainValidationError(t *testing.T) {
	mockService := new(MockLifecycleService)
	mockService.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(nil, &order.ValidationError{Field: "items[0].price", Reason: "price cannot be negative"}).Once()

	rr := serveCheckout(t, mockService, checkoutBody)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp handler.ValidationErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "orderData.items[0].price", resp.Details[0].Field)
	assert.Equal(t, "price cannot be negative", resp.Details[0].Message)
	mockService.AssertExpectations(t)
}

func TestCheckoutHandler_CreatePreference_GatewayFailureKeepsOrderID(t *testing.T) {
	mockService := new(MockLifecycleService)
	orderID := uuid.Must(uuid.NewV4())
	gwErr := &payment.GatewayError{Op: "create preference", StatusCode: http.StatusBadGateway, Message: "upstream down"}

	mockService.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(&lifecycle.CheckoutResult{OrderID: orderID, OrderNumber: "ORD-TEST-00001"}, gwErr).Once()

	rr := serveCheckout(t, mockService, checkoutBody)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var resp handler.CheckoutErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Error creating payment preference", resp.Error)
	assert.Contains(t, resp.Details, "upstream down")
	require.NotNil(t, resp.OrderID)
	assert.Equal(t, orderID, *resp.OrderID)
	mockService.AssertExpectations(t)
}

func TestCheckoutHandler_CreatePreference_StoreFailure(t *testing.T) {
	mockService := new(MockLifecycleService)
	mockService.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(nil, errors.New("service: failed to create order: connection refused")).Once()

	rr := serveCheckout(t, mockService, checkoutBody)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var resp handler.CheckoutErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Nil(t, resp.OrderID)
	assert.Contains(t, resp.Details, "connection refused")
	mockService.AssertExpectations(t)
}
