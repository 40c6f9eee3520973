package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront-payments/internal/handler"
	"github.com/vasiliy-maslov/storefront-payments/internal/lifecycle"
	"github.com/vasiliy-maslov/storefront-payments/internal/transport"
)

// stubService answers ReconcilePayment only; other methods panic through the
// nil embedded interface.
type stubService struct {
	lifecycle.Service
	reconciled []string
}

func (s *stubService) ReconcilePayment(_ context.Context, paymentID string) (*lifecycle.ReconcileResult, error) {
	s.reconciled = append(s.reconciled, paymentID)
	return &lifecycle.ReconcileResult{Outcome: lifecycle.OutcomeOrderNotFound, PaymentID: paymentID}, nil
}

func TestNewRouter(t *testing.T) {
	svc := &stubService{}
	router := transport.NewRouter(svc, transport.RouterConfig{
		Name:           "storefront-api",
		Version:        "1.2.3",
		RequestTimeout: time.Second,
	})

	t.Run("health", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OK", rr.Body.String())
	})

	t.Run("service_info", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var info map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&info))
		assert.Equal(t, true, info["success"])
		assert.Equal(t, "storefront-api", info["message"])
		assert.Equal(t, "1.2.3", info["version"])
		assert.NotEmpty(t, info["timestamp"])
	})

	t.Run("webhook_mounted", func(t *testing.T) {
		rr := httptest.NewRecorder()
		body := bytes.NewBufferString(`{"type": "payment", "data": {"id": "99"}}`)
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/payment/webhook", body))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []string{"99"}, svc.reconciled)
	})

	t.Run("unknown_route", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
		require.Equal(t, http.StatusNotFound, rr.Code)

		var resp map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, false, resp["success"])
		assert.Equal(t, "/api/nope", resp["path"])
	})

	t.Run("admin_disabled", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestNewRouter_AdminEnabled(t *testing.T) {
	auth := handler.NewAdminAuthenticator("$2a$10$invalidhashinvalidhashinvalidhashinvalidhashinvalidha", "secret", time.Hour)
	router := transport.NewRouter(&stubService{}, transport.RouterConfig{Admin: auth})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
