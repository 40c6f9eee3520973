package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	ErrConcurrentUpdate     = errors.New("order was modified concurrently")
	ErrInvalidStatus        = errors.New("invalid order status")
)

// ValidationError reports checkout input that cannot become an order.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
