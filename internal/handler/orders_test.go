package handler_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront-payments/internal/handler"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
)

func sampleOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.NewOrder(order.Draft{
		UserEmail: "ana@example.com",
		Items: []order.DraftItem{
			{ProductID: "p1", ProductName: "Clorador", Quantity: 2, Price: decimal.NewFromInt(500)},
		},
		ShippingAddress: order.ShippingAddress{FullName: "Ana Pérez", Street: "Av. Reforma 1", City: "CDMX"},
		ShippingMethod:  order.ShippingFedex,
		ShippingCost:    decimal.NewFromInt(150),
	}, "ORD-TEST-00001", time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	o.ID = uuid.Must(uuid.NewV4())
	return o
}

func TestOrderHandler_GetOrderByID(t *testing.T) {
	found := sampleOrder(t)

	tests := []struct {
		name           string
		id             string
		setup          func(m *MockLifecycleService)
		expectedStatus int
		expectedError  string
	}{
		{
			name: "success",
			id:   found.ID.String(),
			setup: func(m *MockLifecycleService) {
				m.On("GetOrder", mock.Anything, found.ID).Return(found, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "not_found",
			id:   found.ID.String(),
			setup: func(m *MockLifecycleService) {
				m.On("GetOrder", mock.Anything, found.ID).
					Return(nil, fmt.Errorf("service: failed to get order %s: %w", found.ID, order.ErrOrderNotFound)).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedError:  "Order not found",
		},
		{
			name: "store_failure",
			id:   found.ID.String(),
			setup: func(m *MockLifecycleService) {
				m.On("GetOrder", mock.Anything, found.ID).Return(nil, errors.New("connection reset")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "Failed to get order",
		},
		{
			name:           "invalid_id",
			id:             "not-a-uuid",
			setup:          func(m *MockLifecycleService) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid id parameter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockLifecycleService)
			tt.setup(mockService)

			router := chi.NewRouter()
			handler.NewOrderHandler(mockService).RegisterRoutes(router)
			req := httptest.NewRequest(http.MethodGet, "/api/orders/"+tt.id, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			require.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedError != "" {
				var resp handler.ErrorResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.False(t, resp.Success)
				assert.Equal(t, tt.expectedError, resp.Error)
			} else {
				var got order.Order
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
				assert.Equal(t, found.ID, got.ID)
				assert.Equal(t, found.OrderNumber, got.OrderNumber)
				assert.True(t, found.Total.Equal(got.Total), "total = %s", got.Total)
				assert.Len(t, got.StatusHistory, 1)
			}
			mockService.AssertExpectations(t)
		})
	}
}
