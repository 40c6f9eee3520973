package order

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// SchemaVersion is the version of the persisted order document layout.
const SchemaVersion = 1

const PaymentMethodMercadoPago = "mercadopago"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further fulfillment progress is expected.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

// Terminal reports whether the payment dimension can no longer change.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

type ShippingMethod string

const (
	ShippingLocal ShippingMethod = "local"
	ShippingFedex ShippingMethod = "fedex"
	ShippingDHL   ShippingMethod = "dhl"
)

func (m ShippingMethod) Valid() bool {
	switch m {
	case ShippingLocal, ShippingFedex, ShippingDHL:
		return true
	}
	return false
}

type Item struct {
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductImage string          `json:"productImage,omitempty"`
	Category     string          `json:"category,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type ShippingAddress struct {
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state,omitempty"`
	ZipCode  string `json:"zipCode,omitempty"`
	Country  string `json:"country,omitempty"`
}

type StatusChange struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	UserID          string          `json:"userId,omitempty"`
	UserEmail       string          `json:"userEmail"`
	Items           []Item          `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	ShippingMethod  ShippingMethod  `json:"shippingMethod"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Total           decimal.Decimal `json:"total"`
	Status          Status          `json:"status"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	PaymentID       string          `json:"paymentId,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	StatusHistory   []StatusChange  `json:"statusHistory"`
	SchemaVersion   int             `json:"schemaVersion"`
	Version         int64           `json:"-"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Transition moves the fulfillment status and records it in the history.
func (o *Order) Transition(status Status, note string, at time.Time) {
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, StatusChange{
		Status:    status,
		Timestamp: at,
		Note:      note,
	})
	o.UpdatedAt = at
}

// RecordPayment sets the payment dimension and logs it against the current
// fulfillment status, so the history tail keeps matching Status.
func (o *Order) RecordPayment(status PaymentStatus, paymentID, note string, at time.Time) {
	o.PaymentStatus = status
	o.PaymentID = paymentID
	o.Transition(o.Status, note, at)
}

// Clone returns a deep copy, so callers can mutate without touching shared state.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.StatusHistory = append([]StatusChange(nil), o.StatusHistory...)
	return &c
}

// Validate checks a stored document before it is handed to callers.
func (o *Order) Validate() error {
	if o.SchemaVersion != SchemaVersion {
		return fmt.Errorf("order %s: unsupported schema version %d", o.ID, o.SchemaVersion)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("order %s: unknown status %q", o.ID, o.Status)
	}
	if !o.PaymentStatus.Valid() {
		return fmt.Errorf("order %s: unknown payment status %q", o.ID, o.PaymentStatus)
	}
	if len(o.StatusHistory) == 0 {
		return fmt.Errorf("order %s: empty status history", o.ID)
	}
	if last := o.StatusHistory[len(o.StatusHistory)-1]; last.Status != o.Status {
		return fmt.Errorf("order %s: history ends in %q but status is %q", o.ID, last.Status, o.Status)
	}
	return nil
}
