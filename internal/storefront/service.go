// Package storefront is the entry point the request layer talks to. It
// validates typed requests and delegates to the cart aggregator and the
// fulfillment converter.
package storefront

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/cart"
	"github.com/ariefcatur/go-storefront-engine/internal/fulfillment"
	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

// Idempotency guards checkout retries. Claim returns the stored result of a
// finished request, nil for a fresh claim, or orders.ErrRequestInFlight.
type Idempotency interface {
	Claim(ctx context.Context, userID int64, key string) ([]byte, error)
	Complete(ctx context.Context, userID int64, key string, result []byte) error
	Abandon(ctx context.Context, userID int64, key string) error
}

// ProductCache drops cached products whose stock just changed.
type ProductCache interface {
	Invalidate(ctx context.Context, ids ...int64) error
}

type Deps struct {
	Cart      *cart.Aggregator
	Converter *fulfillment.Converter
	// Catalog serves product lookups, usually a cache in front of the store.
	Catalog     orders.Catalog
	Idempotency Idempotency
	Cache       ProductCache
	Logger      *zap.Logger
}

type Service struct {
	cart     *cart.Aggregator
	conv     *fulfillment.Converter
	catalog  orders.Catalog
	idem     Idempotency
	cache    ProductCache
	logger   *zap.Logger
	validate *validator.Validate
}

func New(deps Deps) (*Service, error) {
	if deps.Cart == nil {
		return nil, errors.New("storefront: cart aggregator is required")
	}
	if deps.Converter == nil {
		return nil, errors.New("storefront: fulfillment converter is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("storefront: catalog is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cart:     deps.Cart,
		conv:     deps.Converter,
		catalog:  deps.Catalog,
		idem:     deps.Idempotency,
		cache:    deps.Cache,
		logger:   logger,
		validate: newValidator(),
	}, nil
}

func (s *Service) AddToCart(ctx context.Context, req AddToCartRequest) (orders.CartLine, error) {
	if err := validate(s.validate, req); err != nil {
		return orders.CartLine{}, err
	}
	return s.cart.Add(ctx, req.UserID, req.ProductID, quantityOrDefault(req.Quantity))
}

func (s *Service) UpdateCartLine(ctx context.Context, req UpdateCartLineRequest) error {
	if err := validate(s.validate, req); err != nil {
		return err
	}
	if req.Action == ActionRemove {
		return s.cart.Remove(ctx, req.UserID, req.LineID)
	}
	return s.cart.Update(ctx, req.UserID, req.LineID, quantityOrDefault(req.Quantity))
}

func (s *Service) Cart(ctx context.Context, userID int64) (cart.View, error) {
	if userID <= 0 {
		return cart.View{}, orders.InvalidInput("user id must be positive")
	}
	return s.cart.ListFor(ctx, userID)
}

// Checkout converts the user's cart into an order. With an idempotency key
// a repeated request returns the first order instead of failing on the now
// empty cart.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (orders.Order, error) {
	if err := validate(s.validate, req); err != nil {
		return orders.Order{}, err
	}

	guarded := false
	if req.IdempotencyKey != "" && s.idem != nil {
		prior, err := s.idem.Claim(ctx, req.UserID, req.IdempotencyKey)
		switch {
		case errors.Is(err, orders.ErrRequestInFlight):
			return orders.Order{}, err
		case err != nil:
			logging.Warn(ctx, s.logger, "Idempotency store unavailable, continuing without it", zap.Error(err))
		case prior != nil:
			var order orders.Order
			if err := json.Unmarshal(prior, &order); err != nil {
				return orders.Order{}, err
			}
			logging.Info(ctx, s.logger, "Replaying checkout",
				zap.Int64("user_id", req.UserID),
				zap.String("reference_code", order.ReferenceCode),
			)
			return order, nil
		default:
			guarded = true
		}
	}

	order, err := s.conv.ConvertCart(ctx, req.UserID, req.PaymentMethod, req.ShippingAddress)
	if err != nil {
		if guarded {
			if aerr := s.idem.Abandon(context.WithoutCancel(ctx), req.UserID, req.IdempotencyKey); aerr != nil {
				logging.Warn(ctx, s.logger, "Failed to release idempotency key", zap.Error(aerr))
			}
		}
		return orders.Order{}, err
	}

	if guarded {
		if raw, merr := json.Marshal(order); merr == nil {
			if cerr := s.idem.Complete(context.WithoutCancel(ctx), req.UserID, req.IdempotencyKey, raw); cerr != nil {
				logging.Warn(ctx, s.logger, "Failed to store checkout result", zap.Error(cerr))
			}
		}
	}
	s.invalidate(ctx, order.Items)
	return order, nil
}

func (s *Service) Book(ctx context.Context, req BookRequest) (orders.Booking, error) {
	if err := validate(s.validate, req); err != nil {
		return orders.Booking{}, err
	}
	booking, err := s.conv.ConvertSingle(ctx, req.UserID, req.ProductID, req.Quantity, req.PickupDate)
	if err != nil {
		return orders.Booking{}, err
	}
	s.invalidate(ctx, booking.Items)
	return booking, nil
}

// Product returns an active catalog product.
func (s *Service) Product(ctx context.Context, id int64) (orders.Product, error) {
	if id <= 0 {
		return orders.Product{}, orders.ErrProductNotFound
	}
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return orders.Product{}, err
	}
	if !p.Active {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, nil
}

func (s *Service) Orders(ctx context.Context, userID int64) ([]orders.Order, error) {
	if userID <= 0 {
		return nil, orders.InvalidInput("user id must be positive")
	}
	return s.conv.Orders(ctx, userID)
}

func (s *Service) Bookings(ctx context.Context, userID int64) ([]orders.Booking, error) {
	if userID <= 0 {
		return nil, orders.InvalidInput("user id must be positive")
	}
	return s.conv.Bookings(ctx, userID)
}

func (s *Service) AllOrders(ctx context.Context) ([]orders.Order, error) {
	return s.conv.Orders(ctx, orders.AllUsers)
}

func (s *Service) AllBookings(ctx context.Context) ([]orders.Booking, error) {
	return s.conv.Bookings(ctx, orders.AllUsers)
}

func (s *Service) SetOrderStatus(ctx context.Context, req SetOrderStatusRequest) (orders.Order, error) {
	if err := validate(s.validate, req); err != nil {
		return orders.Order{}, err
	}
	return s.conv.SetOrderStatus(ctx, req.OrderID, orders.Status(req.Status))
}

func (s *Service) invalidate(ctx context.Context, items []orders.Item) {
	if s.cache == nil || len(items) == 0 {
		return
	}
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		logging.Warn(ctx, s.logger, "Product cache invalidation failed", zap.Error(err), zap.Int64s("product_ids", ids))
	}
}
