package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront-payments/internal/lifecycle"
)

const (
	notificationTypePayment = "payment"
	maxWebhookBodyBytes     = 1 << 20
)

// NotificationID accepts data.id as either a JSON string or a number.
type NotificationID string

func (id *NotificationID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = NotificationID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("data.id must be a string or a number: %w", err)
	}
	*id = NotificationID(n.String())
	return nil
}

type WebhookNotification struct {
	Type   string      `json:"type"`
	Action string      `json:"action,omitempty"`
	Data   WebhookData `json:"data"`
}

type WebhookData struct {
	ID NotificationID `json:"id"`
}

type WebhookResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// WebhookHandler always answers 200: any other status makes the gateway
// redeliver.
type WebhookHandler struct {
	service  lifecycle.Service
	verifier *SignatureVerifier
}

func NewWebhookHandler(service lifecycle.Service, verifier *SignatureVerifier) *WebhookHandler {
	return &WebhookHandler{service: service, verifier: verifier}
}

func (h *WebhookHandler) RegisterRoutes(router chi.Router) {
	router.Post("/api/payment/webhook", h.handleWebhook)
}

func (h *WebhookHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var n WebhookNotification
	err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes), &n)
	if err != nil && !errors.Is(err, io.EOF) {
		log.Warn().Err(err).Msg("Failed to decode webhook body")
		h.acknowledge(w, r, errors.New("invalid notification payload"))
		return
	}

	query := r.URL.Query()
	if n.Type == "" {
		n.Type = firstNonEmpty(query.Get("type"), query.Get("topic"))
	}
	if n.Data.ID == "" {
		n.Data.ID = NotificationID(firstNonEmpty(query.Get("data.id"), query.Get("id")))
	}

	logger := log.With().Str("type", n.Type).Str("action", n.Action).Str("data_id", string(n.Data.ID)).Logger()
	logger.Info().Msg("Webhook received")

	signedID := firstNonEmpty(query.Get("data.id"), string(n.Data.ID))
	if err := h.verifier.Verify(r.Header.Get("x-signature"), signedID, r.Header.Get("x-request-id")); err != nil {
		logger.Warn().Err(err).Msg("Rejected webhook with bad signature")
		h.acknowledge(w, r, err)
		return
	}

	if n.Type != notificationTypePayment {
		logger.Debug().Msg("Ignoring non-payment notification")
		h.acknowledge(w, r, nil)
		return
	}
	if n.Data.ID == "" {
		logger.Warn().Msg("Payment notification without data.id")
		h.acknowledge(w, r, errors.New("payment notification without data.id"))
		return
	}

	// Once started, reconciliation runs to completion even if the gateway
	// hangs up. The service bounds it with its own timeout.
	result, err := h.service.ReconcilePayment(context.WithoutCancel(r.Context()), string(n.Data.ID))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to process payment notification")
		h.acknowledge(w, r, err)
		return
	}

	logger.Info().
		Str("outcome", string(result.Outcome)).
		Stringer("order_id", result.OrderID).
		Str("payment_status", result.PaymentStatus.String()).
		Msg("Payment notification processed")
	h.acknowledge(w, r, nil)
}

func (h *WebhookHandler) acknowledge(w http.ResponseWriter, r *http.Request, err error) {
	resp := WebhookResponse{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	respondWithJSON(w, r, http.StatusOK, resp)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
