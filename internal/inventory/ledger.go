// Package inventory owns stock counts. Nothing else in the engine writes
// stock_quantity.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

// Recorder receives reservation outcomes.
type Recorder interface {
	Reservation(result string)
}

type Ledger struct {
	logger   *zap.Logger
	recorder Recorder
}

func NewLedger(logger *zap.Logger, recorder Recorder) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{logger: logger, recorder: recorder}
}

// CheckAvailable reports whether quantity could be reserved right now. It
// takes no locks; Reserve re-checks atomically.
func (l *Ledger) CheckAvailable(ctx context.Context, tx orders.Tx, productID int64, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, orders.InvalidInput("quantity must be positive, got %d", quantity)
	}
	p, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	return p.StockQuantity >= quantity, nil
}

// Reserve decrements stock by quantity inside tx, or fails with
// *orders.InsufficientStockError leaving stock untouched.
func (l *Ledger) Reserve(ctx context.Context, tx orders.Tx, productID int64, quantity int) error {
	if quantity <= 0 {
		return orders.InvalidInput("quantity must be positive, got %d", quantity)
	}

	remaining, err := tx.DecrementStock(ctx, productID, quantity)
	switch {
	case errors.Is(err, orders.ErrInsufficientStock):
		l.record("insufficient")
		logging.Info(ctx, l.logger, "Stock reservation rejected",
			zap.Int64("product_id", productID),
			zap.Int("requested", quantity),
			zap.Int("available", remaining),
		)
		return err
	case err != nil:
		l.record("error")
		return fmt.Errorf("reserve product %d: %w", productID, err)
	}

	l.record("reserved")
	logging.Debug(ctx, l.logger, "Stock reserved",
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining),
	)
	return nil
}

// Release returns quantity to stock. It is the compensating half of Reserve.
func (l *Ledger) Release(ctx context.Context, tx orders.Tx, productID int64, quantity int) error {
	if quantity <= 0 {
		return orders.InvalidInput("quantity must be positive, got %d", quantity)
	}
	remaining, err := tx.IncrementStock(ctx, productID, quantity)
	if err != nil {
		return fmt.Errorf("release product %d: %w", productID, err)
	}
	l.record("released")
	logging.Debug(ctx, l.logger, "Stock released",
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining),
	)
	return nil
}

func (l *Ledger) record(result string) {
	if l.recorder != nil {
		l.recorder.Reservation(result)
	}
}
