package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/ariefcatur/go-storefront-engine/internal/orders"
	"github.com/ariefcatur/go-storefront-engine/internal/outbox"
)

type memTx struct {
	st  *state
	now func() time.Time
}

func (t *memTx) GetProduct(_ context.Context, id int64) (orders.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, quantity int) (int, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return 0, orders.ErrProductNotFound
	}
	if p.StockQuantity < quantity {
		return p.StockQuantity, &orders.InsufficientStockError{
			ProductID: productID, Requested: quantity, Available: p.StockQuantity,
		}
	}
	p.StockQuantity -= quantity
	p.UpdatedAt = t.now()
	t.st.products[productID] = p
	return p.StockQuantity, nil
}

func (t *memTx) IncrementStock(_ context.Context, productID int64, quantity int) (int, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return 0, orders.ErrProductNotFound
	}
	p.StockQuantity += quantity
	p.UpdatedAt = t.now()
	t.st.products[productID] = p
	return p.StockQuantity, nil
}

func (t *memTx) GetCartLine(_ context.Context, id int64) (orders.CartLine, error) {
	l, ok := t.st.cart[id]
	if !ok {
		return orders.CartLine{}, orders.ErrCartLineNotFound
	}
	return l, nil
}

func (t *memTx) FindCartLine(_ context.Context, userID, productID int64) (orders.CartLine, error) {
	for _, l := range t.st.cart {
		if l.UserID == userID && l.ProductID == productID {
			return l, nil
		}
	}
	return orders.CartLine{}, orders.ErrCartLineNotFound
}

func (t *memTx) InsertCartLine(_ context.Context, line *orders.CartLine) error {
	for id, l := range t.st.cart {
		if l.UserID == line.UserID && l.ProductID == line.ProductID {
			l.Quantity += line.Quantity
			t.st.cart[id] = l
			*line = l
			return nil
		}
	}
	line.ID = t.st.next("cart")
	line.CreatedAt = t.now()
	t.st.cart[line.ID] = *line
	return nil
}

func (t *memTx) SetCartLineQuantity(_ context.Context, id int64, quantity int) error {
	l, ok := t.st.cart[id]
	if !ok {
		return orders.ErrCartLineNotFound
	}
	l.Quantity = quantity
	t.st.cart[id] = l
	return nil
}

func (t *memTx) DeleteCartLine(_ context.Context, id int64) error {
	delete(t.st.cart, id)
	return nil
}

func (t *memTx) ListCartLines(_ context.Context, userID int64) ([]orders.CartLine, error) {
	var out []orders.CartLine
	for _, l := range t.st.cart {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b orders.CartLine) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// LockCartLines needs no extra locking: the whole transaction already holds
// the store mutex.
func (t *memTx) LockCartLines(ctx context.Context, userID int64) ([]orders.CartLine, error) {
	return t.ListCartLines(ctx, userID)
}

func (t *memTx) DeleteCartLines(_ context.Context, userID int64, ids []int64) (int, error) {
	n := 0
	for _, id := range ids {
		if l, ok := t.st.cart[id]; ok && l.UserID == userID {
			delete(t.st.cart, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *orders.Order) error {
	if _, taken := t.st.orderCodes[o.ReferenceCode]; taken {
		return orders.ErrDuplicateReference
	}
	o.ID = t.st.next("orders")
	o.CreatedAt = t.now()
	o.Items = t.assignItems(o.ID, o.Items)
	t.st.orders[o.ID] = *o
	t.st.orderCodes[o.ReferenceCode] = o.ID
	return nil
}

func (t *memTx) InsertBooking(_ context.Context, b *orders.Booking) error {
	if _, taken := t.st.bookingCodes[b.ReferenceCode]; taken {
		return orders.ErrDuplicateReference
	}
	b.ID = t.st.next("bookings")
	b.CreatedAt = t.now()
	b.Items = t.assignItems(b.ID, b.Items)
	t.st.bookings[b.ID] = *b
	t.st.bookingCodes[b.ReferenceCode] = b.ID
	return nil
}

func (t *memTx) assignItems(recordID int64, items []orders.Item) []orders.Item {
	out := make([]orders.Item, len(items))
	for i, it := range items {
		it.ID = t.st.next("items")
		it.RecordID = recordID
		out[i] = it
	}
	return out
}

func (t *memTx) GetOrder(_ context.Context, id int64) (orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (t *memTx) SetOrderStatus(_ context.Context, id int64, status orders.Status) error {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.ErrOrderNotFound
	}
	o.Status = status
	t.st.orders[id] = o
	return nil
}

func (t *memTx) ListOrders(_ context.Context, userID int64) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range t.st.orders {
		if userID == orders.AllUsers || o.UserID == userID {
			o.Items = slices.Clone(o.Items)
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b orders.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (t *memTx) ListBookings(_ context.Context, userID int64) ([]orders.Booking, error) {
	var out []orders.Booking
	for _, b := range t.st.bookings {
		if userID == orders.AllUsers || b.UserID == userID {
			b.Items = slices.Clone(b.Items)
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b orders.Booking) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (t *memTx) AppendOutbox(_ context.Context, msg outbox.Message) error {
	msg.ID = t.st.next("outbox")
	msg.CreatedAt = t.now()
	t.st.outbox[msg.ID] = msg
	return nil
}
