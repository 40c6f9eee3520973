package order

import (
	"math/rand/v2"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Draft is the checkout input an order is built from.
type Draft struct {
	UserID          string
	UserEmail       string
	Items           []DraftItem
	ShippingAddress ShippingAddress
	ShippingMethod  ShippingMethod
	ShippingCost    decimal.Decimal
	Notes           string
	// ClientTotal is the total the client computed. It is only compared
	// against the server total, never stored.
	ClientTotal decimal.NullDecimal
}

type DraftItem struct {
	ProductID    string
	ProductName  string
	ProductImage string
	Category     string
	Quantity     int
	Price        decimal.Decimal
}

var defaultShippingCosts = map[ShippingMethod]decimal.Decimal{
	ShippingLocal: decimal.Zero,
	ShippingFedex: decimal.NewFromInt(150),
	ShippingDHL:   decimal.NewFromInt(200),
}

// DefaultShippingCost is the storefront's flat rate for a method. Unknown
// methods report false.
func DefaultShippingCost(m ShippingMethod) (decimal.Decimal, bool) {
	if m == "" {
		m = ShippingLocal
	}
	cost, ok := defaultShippingCosts[m]
	return cost, ok
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewOrderNumber returns ORD-<base36 millis>-<base36 random>, uppercased.
func NewOrderNumber(now time.Time) string {
	var suffix [5]byte
	for i := range suffix {
		suffix[i] = base36Alphabet[rand.IntN(len(base36Alphabet))]
	}
	number := "ORD-" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + string(suffix[:])
	return strings.ToUpper(number)
}

// NewOrder validates the draft and builds a pending order with its first
// history entry. Totals are computed here once and never again.
func NewOrder(d Draft, number string, now time.Time) (*Order, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	email, _ := parseEmail(d.UserEmail)

	method := d.ShippingMethod
	if method == "" {
		method = ShippingLocal
	}

	items := make([]Item, 0, len(d.Items))
	subtotal := decimal.Zero
	for _, di := range d.Items {
		lineTotal := di.Price.Mul(decimal.NewFromInt(int64(di.Quantity)))
		items = append(items, Item{
			ProductID:    di.ProductID,
			ProductName:  di.ProductName,
			ProductImage: di.ProductImage,
			Category:     di.Category,
			Quantity:     di.Quantity,
			Price:        di.Price,
			Subtotal:     lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	now = now.UTC()
	o := &Order{
		ID:              uuid.Nil,
		OrderNumber:     number,
		UserID:          d.UserID,
		UserEmail:       email,
		Items:           items,
		ShippingAddress: d.ShippingAddress,
		ShippingMethod:  method,
		ShippingCost:    d.ShippingCost,
		Subtotal:        subtotal,
		Total:           subtotal.Add(d.ShippingCost),
		PaymentMethod:   PaymentMethodMercadoPago,
		PaymentStatus:   PaymentPending,
		Notes:           d.Notes,
		SchemaVersion:   SchemaVersion,
		CreatedAt:       now,
	}
	o.Transition(StatusPending, "Order created, awaiting payment", now)

	return o, nil
}

func (d Draft) validate() error {
	if len(d.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	if _, ok := parseEmail(d.UserEmail); !ok {
		return &ValidationError{Field: "userEmail", Reason: "valid email is required"}
	}
	if strings.TrimSpace(d.ShippingAddress.FullName) == "" || strings.TrimSpace(d.ShippingAddress.Street) == "" {
		return &ValidationError{Field: "shippingAddress", Reason: "shipping address is required"}
	}
	if d.ShippingMethod != "" && !d.ShippingMethod.Valid() {
		return &ValidationError{Field: "shippingMethod", Reason: "unknown shipping method " + string(d.ShippingMethod)}
	}
	if d.ShippingCost.IsNegative() {
		return &ValidationError{Field: "shippingCost", Reason: "shipping cost cannot be negative"}
	}
	if !isWholeCents(d.ShippingCost) {
		return &ValidationError{Field: "shippingCost", Reason: "shipping cost cannot have more than 2 decimal places"}
	}
	for i, it := range d.Items {
		field := "items[" + strconv.Itoa(i) + "]"
		if it.ProductID == "" {
			return &ValidationError{Field: field + ".productId", Reason: "product id is required"}
		}
		if it.Quantity <= 0 {
			return &ValidationError{Field: field + ".quantity", Reason: "quantity must be greater than zero"}
		}
		if it.Price.IsNegative() {
			return &ValidationError{Field: field + ".price", Reason: "price cannot be negative"}
		}
		if !isWholeCents(it.Price) {
			return &ValidationError{Field: field + ".price", Reason: "price cannot have more than 2 decimal places"}
		}
	}
	return nil
}

// parseEmail returns the bare address. Display-name forms such as
// "Ana <ana@example.com>" are reduced to the address part.
func parseEmail(s string) (string, bool) {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.Address, true
}

// isWholeCents reports whether m fits the two-decimal money columns.
func isWholeCents(m decimal.Decimal) bool {
	return m.Equal(m.Round(2))
}
