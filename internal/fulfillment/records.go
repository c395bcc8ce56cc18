package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
	"github.com/ariefcatur/go-storefront-engine/internal/outbox"
)

// SetOrderStatus moves an order to status. Any known status may follow
// any other.
func (c *Converter) SetOrderStatus(ctx context.Context, orderID int64, status orders.Status) (orders.Order, error) {
	if !status.Valid() {
		return orders.Order{}, orders.InvalidInput("unknown order status %q, want one of %v", status, orders.Statuses())
	}

	var (
		order    orders.Order
		previous orders.Status
	)
	err := c.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if err := tx.SetOrderStatus(ctx, orderID, status); err != nil {
			return fmt.Errorf("set order %d status: %w", orderID, err)
		}
		order.Status = status

		return c.enqueue(ctx, tx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, order.ReferenceCode, orders.OrderStatusChangedPayload{
			OrderID:       order.ID,
			ReferenceCode: order.ReferenceCode,
			Status:        status,
		})
	})
	if err != nil {
		return orders.Order{}, err
	}

	logging.Info(ctx, c.logger, "Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)
	return order, nil
}

// Orders lists a user's orders newest first. orders.AllUsers lists every
// order.
func (c *Converter) Orders(ctx context.Context, userID int64) ([]orders.Order, error) {
	var out []orders.Order
	err := c.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		out, err = tx.ListOrders(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if out == nil {
		out = []orders.Order{}
	}
	return out, nil
}

// Bookings lists a user's bookings newest first. orders.AllUsers lists
// every booking.
func (c *Converter) Bookings(ctx context.Context, userID int64) ([]orders.Booking, error) {
	var out []orders.Booking
	err := c.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		out, err = tx.ListBookings(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if out == nil {
		out = []orders.Booking{}
	}
	return out, nil
}

// enqueue writes an event to the outbox inside tx.
func (c *Converter) enqueue(ctx context.Context, tx orders.Tx, topic, eventType, reference string, payload any) error {
	env, err := orders.NewEnvelope(eventType, c.service, reference, payload, c.clock())
	if err != nil {
		return err
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		env.TraceID = sc.TraceID().String()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	return tx.AppendOutbox(ctx, outbox.Message{
		Topic:     topic,
		Key:       orders.PartitionKey(reference),
		EventType: eventType,
		Payload:   value,
		Headers:   env.Headers(),
	})
}
