package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind tells the two fulfillment record variants apart.
type Kind string

const (
	KindOrder   Kind = "order"
	KindBooking Kind = "booking"
)

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Active        bool            `json:"active"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CartLine struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// Item is a fulfillment line. Price is the unit price captured when the
// record was created and never re-derived from the catalog.
type Item struct {
	ID        int64           `json:"id"`
	RecordID  int64           `json:"record_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (it Item) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type Order struct {
	ID              int64           `json:"id"`
	ReferenceCode   string          `json:"reference_code"`
	UserID          int64           `json:"user_id"`
	Status          Status          `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaymentMethod   string          `json:"payment_method"`
	ShippingAddress string          `json:"shipping_address"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []Item          `json:"items"`
}

type Booking struct {
	ID            int64           `json:"id"`
	ReferenceCode string          `json:"reference_code"`
	UserID        int64           `json:"user_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PickupDate    time.Time       `json:"pickup_date"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []Item          `json:"items"`
}

// SumItems returns Σ(price × quantity) over items.
func SumItems(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}
