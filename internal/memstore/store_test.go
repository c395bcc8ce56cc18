package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-engine/internal/orders"
	"github.com/ariefcatur/go-storefront-engine/internal/outbox"
)

func TestInTxRollsBackOnError(t *testing.T) {
	s := New(nil)
	p := s.PutProduct(orders.Product{Name: "A", Price: decimal.NewFromInt(10), StockQuantity: 5, Active: true})
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		_, err := tx.DecrementStock(ctx, p.ID, 2)
		require.NoError(t, err)
		require.NoError(t, tx.InsertCartLine(ctx, &orders.CartLine{UserID: 1, ProductID: p.ID, Quantity: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.StockQuantity)

	_ = s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		lines, err := tx.ListCartLines(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, lines)
		return nil
	})
}

func TestDecrementStockNeverNegative(t *testing.T) {
	s := New(nil)
	p := s.PutProduct(orders.Product{Name: "A", Price: decimal.NewFromInt(1), StockQuantity: 1, Active: true})
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		_, err := tx.DecrementStock(ctx, p.ID, 2)
		return err
	})

	var short *orders.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 2, short.Requested)
	assert.Equal(t, 1, short.Available)
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)
}

func TestInsertOrderRejectsDuplicateReference(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		require.NoError(t, tx.InsertOrder(ctx, &orders.Order{ReferenceCode: "ORD00000001", UserID: 1}))
		assert.ErrorIs(t, tx.InsertOrder(ctx, &orders.Order{ReferenceCode: "ORD00000001", UserID: 2}), orders.ErrDuplicateReference)
		// same digits under another kind are fine
		return tx.InsertBooking(ctx, &orders.Booking{ReferenceCode: "ORD00000001", UserID: 2})
	})
	require.NoError(t, err)
}

func TestClaimBatchMarks(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		for _, topic := range []string{"a", "b", "c"} {
			if err := tx.AppendOutbox(ctx, outbox.Message{Topic: topic}); err != nil {
				return err
			}
		}
		return nil
	}))

	err := s.ClaimBatch(ctx, 2, func(ctx context.Context, batch []outbox.Message, marks outbox.Marker) error {
		require.Len(t, batch, 2)
		assert.Equal(t, "a", batch[0].Topic)
		require.NoError(t, marks.MarkPublished(ctx, batch[0].ID))
		return marks.MarkFailed(ctx, batch[1].ID, "broker down")
	})
	require.NoError(t, err)

	msgs := s.Outbox()
	require.Len(t, msgs, 3)
	assert.NotNil(t, msgs[0].PublishedAt)
	assert.Equal(t, 1, msgs[1].Attempts)
	assert.Equal(t, "broker down", msgs[1].LastError)
	assert.Nil(t, msgs[2].PublishedAt)
}

func TestInsertCartLineMergesSameProduct(t *testing.T) {
	s := New(nil)
	p := s.PutProduct(orders.Product{Name: "A", Price: decimal.NewFromInt(1), StockQuantity: 9, Active: true})
	ctx := context.Background()

	var first, second orders.CartLine
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		first = orders.CartLine{UserID: 1, ProductID: p.ID, Quantity: 2}
		if err := tx.InsertCartLine(ctx, &first); err != nil {
			return err
		}
		second = orders.CartLine{UserID: 1, ProductID: p.ID, Quantity: 3}
		return tx.InsertCartLine(ctx, &second)
	}))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		lines, err := tx.ListCartLines(ctx, 1)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, 5, lines[0].Quantity)
		return nil
	}))
}
