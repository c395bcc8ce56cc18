package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-engine/internal/memstore"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) Reservation(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[result]++
}

func newStore(t *testing.T, stock int) (*memstore.Store, orders.Product) {
	t.Helper()
	s := memstore.New(nil)
	p := s.PutProduct(orders.Product{Name: "Aviator", Price: decimal.NewFromInt(10), StockQuantity: stock, Active: true})
	return s, p
}

func TestReserveDecrements(t *testing.T) {
	s, p := newStore(t, 5)
	rec := &countingRecorder{}
	l := NewLedger(nil, rec)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return l.Reserve(ctx, tx, p.ID, 3)
	})
	require.NoError(t, err)

	got, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 2, got.StockQuantity)
	assert.Equal(t, 1, rec.counts["reserved"])
}

func TestReserveInsufficientLeavesStock(t *testing.T) {
	s, p := newStore(t, 2)
	l := NewLedger(nil, nil)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return l.Reserve(ctx, tx, p.ID, 3)
	})

	var short *orders.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, p.ID, short.ProductID)
	assert.Equal(t, 3, short.Requested)
	assert.Equal(t, 2, short.Available)

	got, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 2, got.StockQuantity)
}

func TestReserveRejectsNonPositive(t *testing.T) {
	s, p := newStore(t, 2)
	l := NewLedger(nil, nil)

	for _, qty := range []int{0, -1} {
		err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
			return l.Reserve(ctx, tx, p.ID, qty)
		})
		assert.ErrorIs(t, err, orders.ErrInvalidInput)
	}
}

func TestReserveUnknownProduct(t *testing.T) {
	s, _ := newStore(t, 2)
	l := NewLedger(nil, nil)

	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		return l.Reserve(ctx, tx, 999, 1)
	})
	assert.ErrorIs(t, err, orders.ErrProductNotFound)
}

func TestReleaseRestoresStock(t *testing.T) {
	s, p := newStore(t, 4)
	l := NewLedger(nil, nil)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		if err := l.Reserve(ctx, tx, p.ID, 4); err != nil {
			return err
		}
		return l.Release(ctx, tx, p.ID, 1)
	}))

	got, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 1, got.StockQuantity)
}

func TestCheckAvailableDoesNotMutate(t *testing.T) {
	s, p := newStore(t, 3)
	l := NewLedger(nil, nil)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		ok, err := l.CheckAvailable(ctx, tx, p.ID, 3)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.CheckAvailable(ctx, tx, p.ID, 4)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	got, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 3, got.StockQuantity)
}

func TestConcurrentReservationsExhaustExactly(t *testing.T) {
	const stock, workers = 7, 40
	s, p := newStore(t, stock)
	l := NewLedger(nil, nil)

	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
				return l.Reserve(ctx, tx, p.ID, 1)
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, orders.ErrInsufficientStock):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, stock, ok.Load())
	assert.EqualValues(t, workers-stock, short.Load())

	got, _ := s.GetProduct(context.Background(), p.ID)
	assert.Equal(t, 0, got.StockQuantity)
}
