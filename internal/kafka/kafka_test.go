package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-engine/internal/orders"
)

func TestHeadersSortedByKey(t *testing.T) {
	h := Headers(map[string]string{"x-event-version": "1", "x-event-type": "OrderPlaced"})
	require.Len(t, h, 2)
	assert.Equal(t, "x-event-type", h[0].Key)
	assert.Equal(t, "OrderPlaced", Header(kafka.Message{Headers: h}, "x-event-type"))
	assert.Equal(t, "", Header(kafka.Message{Headers: h}, "missing"))
	assert.Nil(t, Headers(nil))
}

func TestDecodeEnvelopeAndPayload(t *testing.T) {
	env, err := orders.NewEnvelope(orders.EventBookingPlaced, "api", "BKG12345678", orders.BookingPlacedPayload{
		BookingID:   3,
		PickupDate:  "2025-03-01",
		Items:       []orders.ItemPrice{{ProductID: 1, Qty: 2, Price: decimal.RequireFromString("9.50")}},
		TotalAmount: decimal.RequireFromString("19.00"),
	}, time.Now())
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	got, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, orders.EventBookingPlaced, got.EventType)

	p, err := UnwrapPayload[orders.BookingPlacedPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.BookingID)
	assert.True(t, decimal.RequireFromString("19.00").Equal(p.TotalAmount))

	_, err = DecodeEnvelope([]byte("{"))
	assert.Error(t, err)
}
