// Package refcode produces the human readable reference codes printed on
// orders and bookings: a three letter kind prefix and eight random digits.
package refcode

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

const (
	PrefixOrder   = "ORD"
	PrefixBooking = "BKG"

	Digits = 8
	Length = len(PrefixOrder) + Digits
)

// Source yields uniform integers in [0, n).
type Source interface {
	IntN(n int) int
}

type Generator struct {
	mu  sync.Mutex
	src Source
}

// New returns a generator drawing from src. A nil src uses a ChaCha8 stream
// seeded from crypto/rand.
func New(src Source) *Generator {
	if src == nil {
		var seed [32]byte
		_, _ = crand.Read(seed[:])
		src = rand.New(rand.NewChaCha8(seed))
	}
	return &Generator{src: src}
}

// NewSeeded returns a deterministic generator, for tests and fixtures.
func NewSeeded(seed uint64) *Generator {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:], seed)
	return New(rand.New(rand.NewChaCha8(s)))
}

func (g *Generator) Next(kind orders.Kind) string {
	var b strings.Builder
	b.Grow(Length)
	b.WriteString(Prefix(kind))

	g.mu.Lock()
	for i := 0; i < Digits; i++ {
		b.WriteByte(byte('0' + g.src.IntN(10)))
	}
	g.mu.Unlock()

	return b.String()
}

func Prefix(kind orders.Kind) string {
	if kind == orders.KindBooking {
		return PrefixBooking
	}
	return PrefixOrder
}

// Valid reports whether code is well formed for kind.
func Valid(kind orders.Kind, code string) bool {
	if len(code) != Length || !strings.HasPrefix(code, Prefix(kind)) {
		return false
	}
	for _, c := range code[len(PrefixOrder):] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
