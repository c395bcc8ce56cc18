// Package fulfillment turns carts into orders and single products into
// bookings. Every conversion runs in one store transaction: stock is
// reserved, the record and its items are written, consumed cart lines are
// deleted and an outbox event is queued, or nothing happens at all.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/inventory"
	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

// PickupDateLayout is the accepted pickup_date format.
const PickupDateLayout = "2006-01-02"

const defaultReferenceAttempts = 5

// CodeGenerator hands out candidate reference codes.
type CodeGenerator interface {
	Next(kind orders.Kind) string
}

type Recorder interface {
	Conversion(kind, result string, seconds float64)
	ReferenceCollision(kind string)
}

type Deps struct {
	Store  orders.Store
	Ledger *inventory.Ledger
	Codes  CodeGenerator
	Clock  func() time.Time
	Logger *zap.Logger
	// Metrics may be nil.
	Metrics Recorder
	// ReferenceAttempts bounds reference code generation per conversion.
	ReferenceAttempts int
	// Service names the producer on emitted events.
	Service string
}

type Converter struct {
	store    orders.Store
	ledger   *inventory.Ledger
	codes    CodeGenerator
	clock    func() time.Time
	logger   *zap.Logger
	metrics  Recorder
	attempts int
	service  string
}

func New(deps Deps) (*Converter, error) {
	if deps.Store == nil {
		return nil, errors.New("fulfillment: store is required")
	}
	if deps.Codes == nil {
		return nil, errors.New("fulfillment: code generator is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ledger := deps.Ledger
	if ledger == nil {
		ledger = inventory.NewLedger(logger, nil)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	attempts := deps.ReferenceAttempts
	if attempts <= 0 {
		attempts = defaultReferenceAttempts
	}
	service := deps.Service
	if service == "" {
		service = "storefront-api"
	}

	return &Converter{
		store:    deps.Store,
		ledger:   ledger,
		codes:    deps.Codes,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
		metrics:  deps.Metrics,
		attempts: attempts,
		service:  service,
	}, nil
}

// ConvertCart checks out the user's whole cart into a pending order.
func (c *Converter) ConvertCart(ctx context.Context, userID int64, paymentMethod, shippingAddress string) (order orders.Order, err error) {
	start := c.clock()
	defer func() { c.observe(orders.KindOrder, start, err) }()

	if userID <= 0 {
		return orders.Order{}, orders.InvalidInput("user id must be positive")
	}
	paymentMethod = strings.TrimSpace(paymentMethod)
	shippingAddress = strings.TrimSpace(shippingAddress)
	if paymentMethod == "" {
		return orders.Order{}, orders.InvalidInput("payment_method is required")
	}
	if shippingAddress == "" {
		return orders.Order{}, orders.InvalidInput("shipping_address is required")
	}

	err = c.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		lines, err := tx.LockCartLines(ctx, userID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if len(lines) == 0 {
			return orders.ErrEmptyCart
		}

		items := make([]orders.Item, 0, len(lines))
		lineIDs := make([]int64, 0, len(lines))
		for _, l := range lines {
			p, err := c.resolve(ctx, tx, l.ProductID, l.Quantity)
			if err != nil {
				return err
			}
			items = append(items, orders.Item{ProductID: p.ID, Quantity: l.Quantity, Price: p.Price})
			lineIDs = append(lineIDs, l.ID)
		}

		for _, it := range items {
			if err := c.ledger.Reserve(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		order = orders.Order{
			UserID:          userID,
			Status:          orders.StatusPending,
			TotalAmount:     orders.SumItems(items),
			PaymentMethod:   paymentMethod,
			ShippingAddress: shippingAddress,
			Items:           items,
		}
		if err := c.withReference(ctx, orders.KindOrder, func(code string) error {
			order.ReferenceCode = code
			return tx.InsertOrder(ctx, &order)
		}); err != nil {
			return err
		}

		n, err := tx.DeleteCartLines(ctx, userID, lineIDs)
		if err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if n != len(lineIDs) {
			return fmt.Errorf("clear cart: deleted %d of %d lines", n, len(lineIDs))
		}

		return c.enqueue(ctx, tx, orders.TopicOrderPlaced, orders.EventOrderPlaced, order.ReferenceCode, orders.OrderPlacedPayload{
			OrderID:       order.ID,
			ReferenceCode: order.ReferenceCode,
			UserID:        order.UserID,
			Items:         orders.ItemPrices(order.Items),
			TotalAmount:   order.TotalAmount,
		})
	})
	if err != nil {
		return orders.Order{}, err
	}

	logging.Info(ctx, c.logger, "Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("reference_code", order.ReferenceCode),
		zap.Int64("user_id", userID),
		zap.Int("items", len(order.Items)),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
	)
	return order, nil
}

// ConvertSingle books quantity of one product for pickup on pickupDate
// (YYYY-MM-DD). The cart is not involved.
func (c *Converter) ConvertSingle(ctx context.Context, userID, productID int64, quantity int, pickupDate string) (booking orders.Booking, err error) {
	start := c.clock()
	defer func() { c.observe(orders.KindBooking, start, err) }()

	if userID <= 0 {
		return orders.Booking{}, orders.InvalidInput("user id must be positive")
	}
	if quantity <= 0 {
		return orders.Booking{}, orders.InvalidInput("quantity must be positive, got %d", quantity)
	}
	pickup, err := time.Parse(PickupDateLayout, strings.TrimSpace(pickupDate))
	if err != nil {
		return orders.Booking{}, orders.InvalidInput("pickup_date %q is not a YYYY-MM-DD date", pickupDate)
	}

	err = c.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := c.resolve(ctx, tx, productID, quantity)
		if err != nil {
			return err
		}
		if err := c.ledger.Reserve(ctx, tx, p.ID, quantity); err != nil {
			return err
		}

		items := []orders.Item{{ProductID: p.ID, Quantity: quantity, Price: p.Price}}
		booking = orders.Booking{
			UserID:      userID,
			TotalAmount: orders.SumItems(items),
			PickupDate:  pickup,
			Items:       items,
		}
		if err := c.withReference(ctx, orders.KindBooking, func(code string) error {
			booking.ReferenceCode = code
			return tx.InsertBooking(ctx, &booking)
		}); err != nil {
			return err
		}

		return c.enqueue(ctx, tx, orders.TopicBookingPlaced, orders.EventBookingPlaced, booking.ReferenceCode, orders.BookingPlacedPayload{
			BookingID:     booking.ID,
			ReferenceCode: booking.ReferenceCode,
			UserID:        booking.UserID,
			PickupDate:    booking.PickupDate.Format(PickupDateLayout),
			Items:         orders.ItemPrices(booking.Items),
			TotalAmount:   booking.TotalAmount,
		})
	})
	if err != nil {
		return orders.Booking{}, err
	}

	logging.Info(ctx, c.logger, "Booking placed",
		zap.Int64("booking_id", booking.ID),
		zap.String("reference_code", booking.ReferenceCode),
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.String("pickup_date", booking.PickupDate.Format(PickupDateLayout)),
	)
	return booking, nil
}

// resolve loads an orderable product and checks, without mutating, that
// quantity is available.
func (c *Converter) resolve(ctx context.Context, tx orders.Tx, productID int64, quantity int) (orders.Product, error) {
	p, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return orders.Product{}, err
	}
	if !p.Active {
		return orders.Product{}, orders.ErrProductNotFound
	}
	if !p.Price.GreaterThan(decimal.Zero) {
		return orders.Product{}, orders.InvalidInput("product %d has no valid price", productID)
	}
	ok, err := c.ledger.CheckAvailable(ctx, tx, productID, quantity)
	if err != nil {
		return orders.Product{}, err
	}
	if !ok {
		return orders.Product{}, &orders.InsufficientStockError{ProductID: productID, Requested: quantity, Available: p.StockQuantity}
	}
	return p, nil
}

// withReference draws codes until insert accepts one or the attempt budget
// runs out.
func (c *Converter) withReference(ctx context.Context, kind orders.Kind, insert func(code string) error) error {
	for attempt := 1; attempt <= c.attempts; attempt++ {
		code := c.codes.Next(kind)
		err := insert(code)
		if err == nil {
			return nil
		}
		if !errors.Is(err, orders.ErrDuplicateReference) {
			return err
		}
		if c.metrics != nil {
			c.metrics.ReferenceCollision(string(kind))
		}
		logging.Warn(ctx, c.logger, "Reference code collision",
			zap.String("kind", string(kind)),
			zap.String("reference_code", code),
			zap.Int("attempt", attempt),
		)
	}
	return fmt.Errorf("%w: %s after %d attempts", orders.ErrIdentifierExhausted, kind, c.attempts)
}

func (c *Converter) observe(kind orders.Kind, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.Conversion(string(kind), resultLabel(err), c.clock().Sub(start).Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, orders.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, orders.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, orders.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, orders.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, orders.ErrIdentifierExhausted):
		return "identifier_exhausted"
	default:
		return "error"
	}
}
