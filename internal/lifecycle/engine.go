package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront-payments/internal/notification"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
	"github.com/vasiliy-maslov/storefront-payments/internal/payment"
)

const (
	notePaymentConfirmed = "Payment confirmed, order processing"

	defaultReconcileTimeout   = 15 * time.Second
	defaultMaxConflictRetries = 3
	defaultMaxNumberAttempts  = 5
)

// Outcome says what ReconcilePayment did with a notification.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeStale         Outcome = "stale"
	OutcomeOrderNotFound Outcome = "order_not_found"
)

type Notifier interface {
	Enqueue(e notification.Event) bool
}

type Config struct {
	ReconcileTimeout   time.Duration
	MaxConflictRetries int
	MaxNumberAttempts  int
}

type CheckoutResult struct {
	OrderID          uuid.UUID
	OrderNumber      string
	PreferenceID     string
	InitPoint        string
	SandboxInitPoint string
}

type ReconcileResult struct {
	Outcome       Outcome
	OrderID       uuid.UUID
	PaymentID     string
	NativeStatus  string
	PaymentStatus order.PaymentStatus
}

type Service interface {
	PlaceOrder(ctx context.Context, d order.Draft) (*CheckoutResult, error)
	ReconcilePayment(ctx context.Context, paymentID string) (*ReconcileResult, error)
	SetFulfillmentStatus(ctx context.Context, id uuid.UUID, status order.Status, note string) (*order.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	ListOrders(ctx context.Context, filter order.ListFilter) ([]order.Order, error)
	ListOrdersByEmail(ctx context.Context, email string) ([]order.Order, error)
}

type service struct {
	repo     order.Repository
	gateway  payment.Gateway
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

func NewService(repo order.Repository, gateway payment.Gateway, notifier Notifier, cfg Config) Service {
	if cfg.ReconcileTimeout <= 0 {
		cfg.ReconcileTimeout = defaultReconcileTimeout
	}
	if cfg.MaxConflictRetries <= 0 {
		cfg.MaxConflictRetries = defaultMaxConflictRetries
	}
	if cfg.MaxNumberAttempts < 1 {
		cfg.MaxNumberAttempts = defaultMaxNumberAttempts
	}
	return &service{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// PlaceOrder persists a pending order and opens a checkout preference for it.
// When the preference cannot be created the order stays pending and the
// result still carries its ID alongside the error.
func (s *service) PlaceOrder(ctx context.Context, d order.Draft) (*CheckoutResult, error) {
	var o *order.Order
	for attempt := 1; ; attempt++ {
		now := s.now()
		var err error
		o, err = order.NewOrder(d, order.NewOrderNumber(now), now)
		if err != nil {
			return nil, err
		}
		if attempt == 1 && d.ClientTotal.Valid && !d.ClientTotal.Decimal.Equal(o.Total) {
			log.Warn().
				Str("client_total", d.ClientTotal.Decimal.String()).
				Str("total", o.Total.String()).
				Str("user_email", o.UserEmail).
				Msg("service: client total differs from computed total, using computed total")
		}

		_, err = s.repo.CreateOrder(ctx, o)
		if err == nil {
			break
		}
		if errors.Is(err, order.ErrDuplicateOrderNumber) && attempt < s.cfg.MaxNumberAttempts {
			log.Warn().Str("order_number", o.OrderNumber).Int("attempt", attempt).Msg("service: order number collision, regenerating")
			continue
		}
		log.Error().Err(err).Str("order_number", o.OrderNumber).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}
	log.Info().Stringer("order_id", o.ID).Str("order_number", o.OrderNumber).Str("total", o.Total.String()).Msg("service: order created")

	result := &CheckoutResult{OrderID: o.ID, OrderNumber: o.OrderNumber}

	pref, err := s.gateway.CreatePreference(ctx, o)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: failed to create payment preference, order kept pending")
		return result, fmt.Errorf("service: failed to create payment preference for order %s: %w", o.ID, err)
	}

	result.PreferenceID = pref.ID
	result.InitPoint = pref.InitPoint
	result.SandboxInitPoint = pref.SandboxInitPoint
	return result, nil
}

// ReconcilePayment folds a payment notification into its order. It is
// idempotent: redelivery of an already applied status and notifications that
// would move a settled payment are acknowledged without changes.
func (s *service) ReconcilePayment(ctx context.Context, paymentID string) (*ReconcileResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReconcileTimeout)
	defer cancel()

	p, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		log.Error().Err(err).Str("payment_id", paymentID).Msg("service: failed to fetch payment")
		return nil, fmt.Errorf("service: failed to fetch payment %s: %w", paymentID, err)
	}
	if p.ID == "" {
		p.ID = paymentID
	}

	mapped := MapGatewayStatus(p.Status)
	result := &ReconcileResult{
		PaymentID:     p.ID,
		NativeStatus:  p.Status,
		PaymentStatus: mapped,
	}

	orderID, err := uuid.FromString(p.ExternalReference)
	if err != nil || orderID == uuid.Nil {
		log.Warn().Str("payment_id", p.ID).Str("external_reference", p.ExternalReference).Msg("service: payment does not reference a known order")
		result.Outcome = OutcomeOrderNotFound
		return result, nil
	}
	result.OrderID = orderID

	var (
		outcome Outcome
		updated *order.Order
	)
	for attempt := 0; ; attempt++ {
		updated, err = s.repo.UpdateOrder(ctx, orderID, func(o *order.Order) (bool, error) {
			var changed bool
			outcome, changed = s.applyPayment(o, p, mapped)
			return changed, nil
		})
		if err == nil {
			break
		}
		if errors.Is(err, order.ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Str("payment_id", p.ID).Msg("service: order for payment not found")
			result.Outcome = OutcomeOrderNotFound
			return result, nil
		}
		if errors.Is(err, order.ErrConcurrentUpdate) && attempt < s.cfg.MaxConflictRetries {
			log.Warn().Stringer("order_id", orderID).Int("attempt", attempt+1).Msg("service: concurrent order update, retrying")
			continue
		}
		log.Error().Err(err).Stringer("order_id", orderID).Str("payment_id", p.ID).Msg("service: failed to reconcile payment")
		return nil, fmt.Errorf("service: failed to reconcile payment %s for order %s: %w", p.ID, orderID, err)
	}
	result.Outcome = outcome

	logger := log.With().Stringer("order_id", orderID).Str("payment_id", p.ID).Str("gateway_status", p.Status).Logger()
	switch outcome {
	case OutcomeApplied:
		logger.Info().Str("payment_status", mapped.String()).Str("status", updated.Status.String()).Msg("service: payment applied")
		s.notifyPayment(updated, mapped)
	case OutcomeStale:
		logger.Warn().Str("payment_status", updated.PaymentStatus.String()).Msg("service: ignoring notification for settled payment")
	default:
		logger.Debug().Str("outcome", string(outcome)).Msg("service: payment notification already applied")
	}

	return result, nil
}

// applyPayment runs inside the store transaction and may run more than once.
func (s *service) applyPayment(o *order.Order, p *payment.Payment, mapped order.PaymentStatus) (Outcome, bool) {
	if o.PaymentStatus == mapped {
		if o.PaymentID == "" {
			o.PaymentID = p.ID
			return OutcomeDuplicate, true
		}
		return OutcomeDuplicate, false
	}
	if o.PaymentStatus.Terminal() {
		return OutcomeStale, false
	}

	at := s.now().UTC()
	o.RecordPayment(mapped, p.ID, fmt.Sprintf("Payment %s - Mercado Pago ID: %s", p.Status, p.ID), at)
	if mapped == order.PaymentPaid && o.Status == order.StatusPending {
		o.Transition(order.StatusProcessing, notePaymentConfirmed, at)
	}
	return OutcomeApplied, true
}

func (s *service) notifyPayment(o *order.Order, status order.PaymentStatus) {
	var typ notification.EventType
	switch status {
	case order.PaymentPaid:
		typ = notification.EventPaymentApproved
	case order.PaymentFailed:
		typ = notification.EventPaymentFailed
	default:
		return
	}
	if !s.notifier.Enqueue(notification.Event{Type: typ, Order: *o.Clone()}) {
		log.Warn().Stringer("order_id", o.ID).Str("event", string(typ)).Msg("service: notification dropped")
	}
}

// SetFulfillmentStatus is the administrative override. Any known status may
// follow any other.
func (s *service) SetFulfillmentStatus(ctx context.Context, id uuid.UUID, status order.Status, note string) (*order.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", order.ErrInvalidStatus, status)
	}

	var (
		updated *order.Order
		err     error
	)
	for attempt := 0; ; attempt++ {
		updated, err = s.repo.AppendStatusTransition(ctx, id, status, note)
		if err == nil {
			break
		}
		if errors.Is(err, order.ErrConcurrentUpdate) && attempt < s.cfg.MaxConflictRetries {
			continue
		}
		if !errors.Is(err, order.ErrOrderNotFound) {
			log.Error().Err(err).Stringer("order_id", id).Str("status", status.String()).Msg("service: failed to set order status")
		}
		return nil, fmt.Errorf("service: failed to set status of order %s: %w", id, err)
	}
	log.Info().Stringer("order_id", id).Str("status", status.String()).Msg("service: order status updated")

	if !s.notifier.Enqueue(notification.Event{Type: notification.EventStatusChanged, Order: *updated.Clone(), Note: note}) {
		log.Warn().Stringer("order_id", id).Msg("service: status change notification dropped")
	}
	return updated, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get order %s: %w", id, err)
	}
	return o, nil
}

func (s *service) ListOrders(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
	orders, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListOrdersByEmail(ctx context.Context, email string) ([]order.Order, error) {
	orders, err := s.repo.ListOrdersByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list orders for %s: %w", email, err)
	}
	return orders, nil
}
