package payment

import (
	"context"
	"fmt"

	"github.com/vasiliy-maslov/storefront-payments/internal/order"
)

// Gateway is the external payment processor as seen by the order lifecycle.
type Gateway interface {
	CreatePreference(ctx context.Context, o *order.Order) (*Preference, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// Preference is a hosted checkout the buyer is redirected to.
type Preference struct {
	ID               string
	InitPoint        string
	SandboxInitPoint string
}

// Payment is the processor's view of a payment. Status is the processor's
// native vocabulary and is not translated here.
type Payment struct {
	ID                string
	Status            string
	StatusDetail      string
	ExternalReference string
}

type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := "payment gateway: " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
