package orders

import (
	"context"

	"github.com/ariefcatur/go-storefront-engine/internal/outbox"
)

// AllUsers selects records of every user in listing queries.
const AllUsers int64 = 0

// Catalog is the read-only product lookup the engine consumes.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
}

// Store runs fn as one atomic unit: everything fn writes through tx is
// committed together, or rolled back when fn returns an error.
type Store interface {
	Catalog
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the storage surface available inside a transaction.
type Tx interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	// DecrementStock subtracts quantity only when enough stock remains, in a
	// single conditional write. It returns the remaining stock or an
	// *InsufficientStockError.
	DecrementStock(ctx context.Context, productID int64, quantity int) (int, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) (int, error)

	GetCartLine(ctx context.Context, id int64) (CartLine, error)
	// FindCartLine holds a row lock on the line until commit.
	FindCartLine(ctx context.Context, userID, productID int64) (CartLine, error)
	// InsertCartLine adds line.Quantity to an existing (user, product) line
	// when one exists and writes the stored line back into line.
	InsertCartLine(ctx context.Context, line *CartLine) error
	SetCartLineQuantity(ctx context.Context, id int64, quantity int) error
	DeleteCartLine(ctx context.Context, id int64) error
	ListCartLines(ctx context.Context, userID int64) ([]CartLine, error)
	// LockCartLines is ListCartLines holding row locks until commit.
	LockCartLines(ctx context.Context, userID int64) ([]CartLine, error)
	DeleteCartLines(ctx context.Context, userID int64, ids []int64) (int, error)

	// InsertOrder assigns ID and CreatedAt to o and its items. A taken
	// reference code yields ErrDuplicateReference without aborting tx.
	InsertOrder(ctx context.Context, o *Order) error
	InsertBooking(ctx context.Context, b *Booking) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	SetOrderStatus(ctx context.Context, id int64, status Status) error
	ListOrders(ctx context.Context, userID int64) ([]Order, error)
	ListBookings(ctx context.Context, userID int64) ([]Booking, error)

	AppendOutbox(ctx context.Context, msg outbox.Message) error
}
