package orders

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrUnauthorized        = errors.New("cart line belongs to another user")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIdentifierExhausted = errors.New("reference code generation exhausted")
	ErrProductNotFound     = errors.New("product not found")
	ErrCartLineNotFound    = errors.New("cart line not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrRequestInFlight     = errors.New("request with this idempotency key is still in progress")

	// ErrDuplicateReference is returned by stores when a reference code is
	// already taken for its kind. It never leaves the fulfillment package.
	ErrDuplicateReference = errors.New("duplicate reference code")
)

// InsufficientStockError names the product that could not be reserved.
type InsufficientStockError struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// InvalidInput wraps ErrInvalidInput with a field level reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
