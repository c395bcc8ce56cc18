// Package cart manages per-user shopping carts. Stock is only compared
// here, never reserved; reservation happens at conversion time.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

type Deps struct {
	Store  orders.Store
	Logger *zap.Logger
}

type Aggregator struct {
	store  orders.Store
	logger *zap.Logger
}

func New(deps Deps) (*Aggregator, error) {
	if deps.Store == nil {
		return nil, errors.New("cart: store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: deps.Store, logger: logger}, nil
}

// ProductSnapshot is the live catalog view of a cart line's product.
type ProductSnapshot struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

type LineView struct {
	orders.CartLine
	Product  ProductSnapshot `json:"product"`
	Subtotal decimal.Decimal `json:"subtotal"`
	// Unavailable is set when the product left the catalog or was
	// deactivated. Such lines do not count toward Total.
	Unavailable bool `json:"unavailable,omitempty"`
}

// View is a cart priced at current catalog prices. Total is for display
// only; checkout computes its own.
type View struct {
	UserID int64           `json:"user_id"`
	Lines  []LineView      `json:"lines"`
	Total  decimal.Decimal `json:"total"`
}

// Add puts quantity of productID into the user's cart, merging with an
// existing line. The merged quantity must not exceed current stock.
func (a *Aggregator) Add(ctx context.Context, userID, productID int64, quantity int) (orders.CartLine, error) {
	if userID <= 0 {
		return orders.CartLine{}, orders.InvalidInput("user id must be positive")
	}
	if quantity <= 0 {
		return orders.CartLine{}, orders.InvalidInput("quantity must be positive, got %d", quantity)
	}

	var line orders.CartLine
	err := a.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if !p.Active {
			return orders.ErrProductNotFound
		}

		existing, err := tx.FindCartLine(ctx, userID, productID)
		switch {
		case errors.Is(err, orders.ErrCartLineNotFound):
			existing = orders.CartLine{}
		case err != nil:
			return fmt.Errorf("find cart line: %w", err)
		}

		total := existing.Quantity + quantity
		if total > p.StockQuantity {
			return &orders.InsufficientStockError{ProductID: productID, Requested: total, Available: p.StockQuantity}
		}

		if existing.ID != 0 {
			if err := tx.SetCartLineQuantity(ctx, existing.ID, total); err != nil {
				return fmt.Errorf("merge cart line %d: %w", existing.ID, err)
			}
			existing.Quantity = total
			line = existing
			return nil
		}

		line = orders.CartLine{UserID: userID, ProductID: productID, Quantity: quantity}
		if err := tx.InsertCartLine(ctx, &line); err != nil {
			return fmt.Errorf("insert cart line: %w", err)
		}
		return nil
	})
	if err != nil {
		return orders.CartLine{}, err
	}

	logging.Debug(ctx, a.logger, "Cart line added",
		zap.Int64("user_id", userID),
		zap.Int64("line_id", line.ID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", line.Quantity),
	)
	return line, nil
}

// Update overwrites a line's quantity. A quantity of zero or less removes
// the line. Stock is checked later, at checkout.
func (a *Aggregator) Update(ctx context.Context, userID, lineID int64, quantity int) error {
	return a.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		line, err := tx.GetCartLine(ctx, lineID)
		if err != nil {
			return err
		}
		if line.UserID != userID {
			return orders.ErrUnauthorized
		}
		if quantity <= 0 {
			return tx.DeleteCartLine(ctx, lineID)
		}
		return tx.SetCartLineQuantity(ctx, lineID, quantity)
	})
}

// Remove deletes a line. Removing a line that is already gone succeeds.
func (a *Aggregator) Remove(ctx context.Context, userID, lineID int64) error {
	return a.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		line, err := tx.GetCartLine(ctx, lineID)
		if errors.Is(err, orders.ErrCartLineNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if line.UserID != userID {
			return orders.ErrUnauthorized
		}
		return tx.DeleteCartLine(ctx, lineID)
	})
}

func (a *Aggregator) ListFor(ctx context.Context, userID int64) (View, error) {
	view := View{UserID: userID, Lines: []LineView{}, Total: decimal.Zero}
	err := a.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		lines, err := tx.ListCartLines(ctx, userID)
		if err != nil {
			return fmt.Errorf("list cart lines: %w", err)
		}
		for _, l := range lines {
			lv := LineView{CartLine: l, Subtotal: decimal.Zero}
			p, err := tx.GetProduct(ctx, l.ProductID)
			switch {
			case errors.Is(err, orders.ErrProductNotFound):
				lv.Product = ProductSnapshot{ID: l.ProductID}
				lv.Unavailable = true
			case err != nil:
				return err
			default:
				lv.Product = ProductSnapshot{ID: p.ID, Name: p.Name, Price: p.Price, StockQuantity: p.StockQuantity}
				lv.Unavailable = !p.Active
				if p.Active {
					lv.Subtotal = p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
					view.Total = view.Total.Add(lv.Subtotal)
				}
			}
			view.Lines = append(view.Lines, lv)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return view, nil
}
