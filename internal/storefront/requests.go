package storefront

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

const (
	ActionUpdate = "update"
	ActionRemove = "remove"
)

// DefaultQuantity applies when a cart request leaves quantity out.
const DefaultQuantity = 1

// AddToCartRequest adds DefaultQuantity when Quantity is nil.
type AddToCartRequest struct {
	UserID    int64 `json:"-" validate:"gt=0"`
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  *int  `json:"quantity" validate:"omitempty,gt=0"`
}

// UpdateCartLineRequest edits one cart line. With action update a
// quantity of zero or less removes the line and a missing quantity means
// DefaultQuantity.
type UpdateCartLineRequest struct {
	UserID   int64  `json:"-" validate:"gt=0"`
	LineID   int64  `json:"-" validate:"gt=0"`
	Action   string `json:"action" validate:"required,oneof=update remove"`
	Quantity *int   `json:"quantity"`
}

func quantityOrDefault(q *int) int {
	if q == nil {
		return DefaultQuantity
	}
	return *q
}

type CheckoutRequest struct {
	UserID          int64  `json:"-" validate:"gt=0"`
	PaymentMethod   string `json:"payment_method" validate:"required,max=50"`
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
	// IdempotencyKey is optional. Repeating a completed checkout with the
	// same key returns the original order.
	IdempotencyKey string `json:"-" validate:"omitempty,max=128"`
}

type BookRequest struct {
	UserID     int64  `json:"-" validate:"gt=0"`
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	PickupDate string `json:"pickup_date" validate:"required,datetime=2006-01-02"`
}

type SetOrderStatusRequest struct {
	OrderID int64  `json:"-" validate:"gt=0"`
	Status  string `json:"status" validate:"required"`
}

// ValidationError lists rejected request fields by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", orders.ErrInvalidInput, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == orders.ErrInvalidInput
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return toSnake(f.Name)
		}
		return name
	})
	return v
}

func validate(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate request: %w", err)
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "gt":
			fields[field] = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
		case "datetime":
			fields[field] = fmt.Sprintf("%s must be a YYYY-MM-DD date", field)
		default:
			fields[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return &ValidationError{Fields: fields}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
