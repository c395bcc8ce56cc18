// Package projector consumes storefront events and keeps read-side state,
// the product cache, consistent with committed stock changes.
package projector

import (
	"context"
	"fmt"
	"slices"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-storefront-engine/internal/kafka"
	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

// Topics is the subset of orders.Topics carrying stock changes. Status
// changes never move stock, so the projector does not subscribe to them.
func Topics() []string {
	return slices.DeleteFunc(orders.Topics(), func(t string) bool {
		return t == orders.TopicOrderStatusChanged
	})
}

type Dedup interface {
	First(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type ProductCache interface {
	Invalidate(ctx context.Context, ids ...int64) error
}

type Deps struct {
	Dedup  Dedup // optional
	Cache  ProductCache
	Logger *zap.Logger
}

type Handler struct {
	dedup  Dedup
	cache  ProductCache
	logger *zap.Logger
}

func New(deps Deps) (*Handler, error) {
	if deps.Cache == nil {
		return nil, fmt.Errorf("projector: product cache is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{dedup: deps.Dedup, cache: deps.Cache, logger: deps.Logger}, nil
}

// Handle is a kafka.Handler. Duplicates and unknown event types are
// acknowledged without side effects.
func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// poison message, nothing to retry
		logging.Warn(ctx, h.logger, "Dropping undecodable event", zap.String("topic", m.Topic), zap.Error(err))
		return nil
	}

	ids, err := productIDs(env)
	if err != nil {
		logging.Warn(ctx, h.logger, "Dropping event with bad payload",
			zap.String("event_id", env.EventID), zap.String("event_type", env.EventType), zap.Error(err))
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	if h.dedup != nil {
		first, err := h.dedup.First(ctx, env.EventID)
		if err != nil {
			logging.Warn(ctx, h.logger, "Dedup unavailable, processing anyway", zap.String("event_id", env.EventID), zap.Error(err))
		} else if !first {
			logging.Debug(ctx, h.logger, "Skipping duplicate event", zap.String("event_id", env.EventID))
			return nil
		}
	}

	if err := h.cache.Invalidate(ctx, ids...); err != nil {
		if h.dedup != nil {
			if ferr := h.dedup.Forget(ctx, env.EventID); ferr != nil {
				logging.Warn(ctx, h.logger, "Failed to clear dedup key", zap.String("event_id", env.EventID), zap.Error(ferr))
			}
		}
		return fmt.Errorf("invalidate products for %s: %w", env.EventID, err)
	}

	logging.Info(ctx, h.logger, "Product cache refreshed",
		zap.String("event_type", env.EventType),
		zap.String("reference_code", env.CorrelationID),
		zap.Int64s("product_ids", ids),
	)
	return nil
}

// productIDs returns the products whose stock env changed.
func productIDs(env orders.Envelope) ([]int64, error) {
	var items []orders.ItemPrice
	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		items = p.Items
	case orders.EventBookingPlaced:
		p, err := kafkax.UnwrapPayload[orders.BookingPlacedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		items = p.Items
	default:
		return nil, nil
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids, nil
}
