// Package memstore is an in-process implementation of the storefront store.
// Transactions are serialized behind one mutex and applied copy-on-write, so
// a failed transaction leaves no trace.
package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-engine/internal/orders"
	"github.com/ariefcatur/go-storefront-engine/internal/outbox"
)

type state struct {
	products     map[int64]orders.Product
	cart         map[int64]orders.CartLine
	orders       map[int64]orders.Order
	bookings     map[int64]orders.Booking
	orderCodes   map[string]int64
	bookingCodes map[string]int64
	outbox       map[int64]outbox.Message
	seq          map[string]int64
}

func newState() *state {
	return &state{
		products:     map[int64]orders.Product{},
		cart:         map[int64]orders.CartLine{},
		orders:       map[int64]orders.Order{},
		bookings:     map[int64]orders.Booking{},
		orderCodes:   map[string]int64{},
		bookingCodes: map[string]int64{},
		outbox:       map[int64]outbox.Message{},
		seq:          map[string]int64{},
	}
}

func (s *state) clone() *state {
	return &state{
		products:     maps.Clone(s.products),
		cart:         maps.Clone(s.cart),
		orders:       maps.Clone(s.orders),
		bookings:     maps.Clone(s.bookings),
		orderCodes:   maps.Clone(s.orderCodes),
		bookingCodes: maps.Clone(s.bookingCodes),
		outbox:       maps.Clone(s.outbox),
		seq:          maps.Clone(s.seq),
	}
}

func (s *state) next(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New returns an empty store. A nil clock uses time.Now.
func New(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{st: newState(), now: func() time.Time { return clock().UTC() }}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &memTx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	if !ok {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, nil
}

// PutProduct inserts or replaces a catalog product. A zero ID is assigned.
func (s *Store) PutProduct(p orders.Product) orders.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.st.next("products")
	} else if p.ID > s.st.seq["products"] {
		s.st.seq["products"] = p.ID
	}
	p.UpdatedAt = s.now()
	s.st.products[p.ID] = p
	return p
}

// SetPrice changes a product's catalog price.
func (s *Store) SetPrice(id int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.st.products[id]; ok {
		p.Price = price
		p.UpdatedAt = s.now()
		s.st.products[id] = p
	}
}

// Outbox returns a snapshot of every outbox message ordered by id.
func (s *Store) Outbox() []outbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.st.outbox))
	slices.SortFunc(out, func(a, b outbox.Message) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *Store) ClaimBatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []outbox.Message, marks outbox.Marker) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var batch []outbox.Message
	for _, m := range s.st.outbox {
		if m.PublishedAt == nil && m.Attempts < outbox.MaxAttempts {
			batch = append(batch, m)
		}
	}
	slices.SortFunc(batch, func(a, b outbox.Message) int { return cmp.Compare(a.ID, b.ID) })
	if len(batch) > limit {
		batch = batch[:limit]
	}

	work := s.st.clone()
	if err := fn(ctx, batch, &marker{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

type marker struct {
	st  *state
	now func() time.Time
}

func (m *marker) MarkPublished(_ context.Context, id int64) error {
	msg, ok := m.st.outbox[id]
	if !ok {
		return nil
	}
	now := m.now()
	msg.PublishedAt = &now
	msg.LastError = ""
	m.st.outbox[id] = msg
	return nil
}

func (m *marker) MarkFailed(_ context.Context, id int64, reason string) error {
	msg, ok := m.st.outbox[id]
	if !ok {
		return nil
	}
	msg.Attempts++
	msg.LastError = reason
	m.st.outbox[id] = msg
	return nil
}

var (
	_ orders.Store      = (*Store)(nil)
	_ outbox.Repository = (*Store)(nil)
)
