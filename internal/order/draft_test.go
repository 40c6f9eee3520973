package order_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
)

func validDraft() order.Draft {
	return order.Draft{
		UserEmail: "ana@example.com",
		Items: []order.DraftItem{
			{ProductID: "p1", ProductName: "Candle", Quantity: 2, Price: decimal.RequireFromString("500")},
		},
		ShippingAddress: order.ShippingAddress{FullName: "Ana Pérez", Street: "Av. Reforma 1", City: "CDMX"},
		ShippingMethod:  order.ShippingFedex,
		ShippingCost:    decimal.RequireFromString("150"),
	}
}

func TestNewOrder(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("CST", -6*3600))

	o, err := order.NewOrder(validDraft(), "ORD-TEST-00001", now)
	require.NoError(t, err)

	assert.Equal(t, uuid.Nil, o.ID, "ID is assigned by the store")
	assert.Equal(t, "ORD-TEST-00001", o.OrderNumber)
	assert.True(t, decimal.RequireFromString("1000").Equal(o.Subtotal), "subtotal = %s", o.Subtotal)
	assert.True(t, decimal.RequireFromString("1150").Equal(o.Total), "total = %s", o.Total)
	assert.True(t, decimal.RequireFromString("1000").Equal(o.Items[0].Subtotal))
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.Equal(t, order.PaymentMethodMercadoPago, o.PaymentMethod)
	assert.Equal(t, order.SchemaVersion, o.SchemaVersion)
	assert.Equal(t, time.UTC, o.CreatedAt.Location())
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, order.StatusPending, o.StatusHistory[0].Status)
	assert.Equal(t, "Order created, awaiting payment", o.StatusHistory[0].Note)
	assert.NoError(t, o.Validate())
}

func TestNewOrder_DefaultsShippingMethod(t *testing.T) {
	d := validDraft()
	d.ShippingMethod = ""

	o, err := order.NewOrder(d, "ORD-X", time.Now())
	require.NoError(t, err)
	assert.Equal(t, order.ShippingLocal, o.ShippingMethod)
}

func TestNewOrder_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(d *order.Draft)
		wantField string
	}{
		{
			name:      "no_items",
			mutate:    func(d *order.Draft) { d.Items = nil },
			wantField: "items",
		},
		{
			name:      "bad_email",
			mutate:    func(d *order.Draft) { d.UserEmail = "not-an-email" },
			wantField: "userEmail",
		},
		{
			name:      "missing_street",
			mutate:    func(d *order.Draft) { d.ShippingAddress.Street = " " },
			wantField: "shippingAddress",
		},
		{
			name:      "unknown_shipping_method",
			mutate:    func(d *order.Draft) { d.ShippingMethod = "pigeon" },
			wantField: "shippingMethod",
		},
		{
			name:      "negative_shipping_cost",
			mutate:    func(d *order.Draft) { d.ShippingCost = decimal.NewFromInt(-1) },
			wantField: "shippingCost",
		},
		{
			name:      "zero_quantity",
			mutate:    func(d *order.Draft) { d.Items[0].Quantity = 0 },
			wantField: "items[0].quantity",
		},
		{
			name:      "negative_price",
			mutate:    func(d *order.Draft) { d.Items[0].Price = decimal.NewFromInt(-5) },
			wantField: "items[0].price",
		},
		{
			name:      "fractional_cent_price",
			mutate:    func(d *order.Draft) { d.Items[0].Price = decimal.RequireFromString("0.005") },
			wantField: "items[0].price",
		},
		{
			name:      "fractional_cent_shipping",
			mutate:    func(d *order.Draft) { d.ShippingCost = decimal.RequireFromString("149.999") },
			wantField: "shippingCost",
		},
		{
			name:      "missing_product_id",
			mutate:    func(d *order.Draft) { d.Items[0].ProductID = "" },
			wantField: "items[0].productId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)

			o, err := order.NewOrder(d, "ORD-X", time.Now())
			assert.Nil(t, o)
			var vErr *order.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestNewOrder_Normalization(t *testing.T) {
	d := validDraft()
	d.UserEmail = "  Ana Pérez <ana@example.com> "
	d.Items[0].Price = decimal.RequireFromString("500.50")
	d.ShippingCost = decimal.RequireFromString("150.250")

	o, err := order.NewOrder(d, "ORD-X", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", o.UserEmail)
	assert.True(t, o.Total.Equal(o.Subtotal.Add(o.ShippingCost)))
	assert.True(t, o.Total.Equal(o.Total.Round(2)), "total = %s", o.Total)
}

func TestNewOrderNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD-[0-9A-Z]+-[0-9A-Z]{5}$`)
	now := time.Now()

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		n := order.NewOrderNumber(now)
		assert.Regexp(t, pattern, n)
		seen[n] = struct{}{}
	}
	assert.Greater(t, len(seen), 190, "suffix should vary within the same millisecond")
}

func TestOrder_Validate(t *testing.T) {
	o, err := order.NewOrder(validDraft(), "ORD-X", time.Now())
	require.NoError(t, err)

	broken := o.Clone()
	broken.Status = order.StatusShipped
	assert.Error(t, broken.Validate(), "history tail must match status")

	broken = o.Clone()
	broken.SchemaVersion = 99
	assert.Error(t, broken.Validate())

	broken = o.Clone()
	broken.PaymentStatus = "refunded"
	assert.Error(t, broken.Validate())
}

func TestOrder_RecordPayment(t *testing.T) {
	o, err := order.NewOrder(validDraft(), "ORD-X", time.Now())
	require.NoError(t, err)
	at := time.Now().UTC().Add(time.Minute)

	o.RecordPayment(order.PaymentPaid, "123", "Payment approved - Mercado Pago ID: 123", at)

	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "123", o.PaymentID)
	assert.Equal(t, order.StatusPending, o.Status)
	require.Len(t, o.StatusHistory, 2)
	assert.Equal(t, order.StatusPending, o.StatusHistory[1].Status)
	assert.Equal(t, at, o.UpdatedAt)
	assert.NoError(t, o.Validate())
}

func TestOrder_CloneIsDeep(t *testing.T) {
	o, err := order.NewOrder(validDraft(), "ORD-X", time.Now())
	require.NoError(t, err)

	c := o.Clone()
	c.Items[0].Quantity = 99
	c.Transition(order.StatusShipped, "", time.Now())

	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Len(t, o.StatusHistory, 1)
}

func TestDefaultShippingCost(t *testing.T) {
	tests := []struct {
		method order.ShippingMethod
		want   string
		ok     bool
	}{
		{method: "", want: "0", ok: true},
		{method: order.ShippingLocal, want: "0", ok: true},
		{method: order.ShippingFedex, want: "150", ok: true},
		{method: order.ShippingDHL, want: "200", ok: true},
		{method: "pigeon", want: "0", ok: false},
	}
	for _, tt := range tests {
		got, ok := order.DefaultShippingCost(tt.method)
		assert.Equal(t, tt.ok, ok, "method %q", tt.method)
		assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "method %q: got %s", tt.method, got)
	}
}
