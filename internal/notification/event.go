package notification

import (
	"fmt"
	"strings"

	"github.com/vasiliy-maslov/storefront-payments/internal/order"
)

type EventType string

const (
	EventPaymentApproved EventType = "payment_approved"
	EventPaymentFailed   EventType = "payment_failed"
	EventStatusChanged   EventType = "status_changed"
)

// Event is emitted after an order change has been committed. Order is a
// snapshot taken at commit time.
type Event struct {
	Type  EventType
	Order order.Order
	Note  string
}

type Message struct {
	To      []string
	Subject string
	Text    string
}

// Messages renders the mails an event produces. adminEmail may be empty, in
// which case no admin mail is built.
func Messages(e Event, adminEmail string) []Message {
	o := e.Order
	switch e.Type {
	case EventPaymentApproved:
		msgs := []Message{{
			To:      []string{o.UserEmail},
			Subject: "Confirmación de Pedido - " + o.OrderNumber,
			Text: fmt.Sprintf("Hola %s,\n\nRecibimos tu pago. Tu pedido %s por $%s MXN está en proceso.\n\n%s",
				o.ShippingAddress.FullName, o.OrderNumber, o.Total.StringFixed(2), itemLines(o)),
		}}
		if adminEmail != "" {
			msgs = append(msgs, Message{
				To:      []string{adminEmail},
				Subject: fmt.Sprintf("Nueva Venta - %s - $%s", o.OrderNumber, o.Total.StringFixed(2)),
				Text: fmt.Sprintf("Pedido %s pagado por %s (%s).\nEnvío: %s, %s, %s\n\n%s",
					o.OrderNumber, o.ShippingAddress.FullName, o.UserEmail,
					o.ShippingMethod, o.ShippingAddress.Street, o.ShippingAddress.City, itemLines(o)),
			})
		}
		return msgs
	case EventPaymentFailed:
		return []Message{{
			To:      []string{o.UserEmail},
			Subject: "Pago no completado - " + o.OrderNumber,
			Text: fmt.Sprintf("Hola %s,\n\nNo pudimos procesar el pago de tu pedido %s. Puedes intentarlo de nuevo desde la tienda.",
				o.ShippingAddress.FullName, o.OrderNumber),
		}}
	case EventStatusChanged:
		text := fmt.Sprintf("Hola %s,\n\nTu pedido %s ahora está: %s.", o.ShippingAddress.FullName, o.OrderNumber, o.Status)
		if e.Note != "" {
			text += "\n\n" + e.Note
		}
		return []Message{{
			To:      []string{o.UserEmail},
			Subject: "Actualización de Pedido - " + o.OrderNumber,
			Text:    text,
		}}
	}
	return nil
}

func itemLines(o order.Order) string {
	var b strings.Builder
	for _, it := range o.Items {
		fmt.Fprintf(&b, "- %s x%d: $%s\n", it.ProductName, it.Quantity, it.Subtotal.StringFixed(2))
	}
	if o.ShippingCost.IsPositive() {
		fmt.Fprintf(&b, "- Envío: $%s\n", o.ShippingCost.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total: $%s", o.Total.StringFixed(2))
	return b.String()
}
