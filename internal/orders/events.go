package orders

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventBookingPlaced      = "BookingPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // reference code
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID int64           `json:"product_id"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlacedPayload struct {
	OrderID       int64           `json:"order_id"`
	ReferenceCode string          `json:"reference_code"`
	UserID        int64           `json:"user_id"`
	Items         []ItemPrice     `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

type BookingPlacedPayload struct {
	BookingID     int64           `json:"booking_id"`
	ReferenceCode string          `json:"reference_code"`
	UserID        int64           `json:"user_id"`
	PickupDate    string          `json:"pickup_date"`
	Items         []ItemPrice     `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

type OrderStatusChangedPayload struct {
	OrderID       int64  `json:"order_id"`
	ReferenceCode string `json:"reference_code"`
	Status        Status `json:"status"`
}

// NewEnvelope wraps payload into a version 1 envelope.
func NewEnvelope(eventType, producer, correlationID string, payload any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now.UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

func ItemPrices(items []Item) []ItemPrice {
	out := make([]ItemPrice, 0, len(items))
	for _, it := range items {
		out = append(out, ItemPrice{ProductID: it.ProductID, Qty: it.Quantity, Price: it.Price})
	}
	return out
}

// Headers returned alongside every published envelope.
func (e Envelope) Headers() map[string]string {
	return map[string]string{
		"x-event-type":    e.EventType,
		"x-event-version": strconv.Itoa(e.EventVersion),
	}
}
