package memstore

import (
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

// Seed loads the sample catalog used when running without Postgres.
func Seed(s *Store) []orders.Product {
	return []orders.Product{
		s.PutProduct(orders.Product{
			Name:          "Classic Aviator Gold",
			Price:         decimal.RequireFromString("149.99"),
			StockQuantity: 25,
			Active:        true,
		}),
		s.PutProduct(orders.Product{
			Name:          "Wayfarer Classic Black",
			Price:         decimal.RequireFromString("129.99"),
			StockQuantity: 30,
			Active:        true,
		}),
	}
}
