package lifecycle

import "github.com/vasiliy-maslov/storefront-payments/internal/order"

var gatewayStatuses = map[string]order.PaymentStatus{
	"approved":     order.PaymentPaid,
	"rejected":     order.PaymentFailed,
	"cancelled":    order.PaymentFailed,
	"refunded":     order.PaymentFailed,
	"charged_back": order.PaymentFailed,
	"in_process":   order.PaymentPending,
	"pending":      order.PaymentPending,
	"authorized":   order.PaymentPending,
	"in_mediation": order.PaymentPending,
}

// MapGatewayStatus translates a Mercado Pago payment status. Unknown values
// map to pending so they can never settle an order.
func MapGatewayStatus(native string) order.PaymentStatus {
	if s, ok := gatewayStatuses[native]; ok {
		return s
	}
	return order.PaymentPending
}
