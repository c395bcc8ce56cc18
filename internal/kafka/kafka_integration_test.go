//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func TestProducerConsumerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("storefront-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	const topic = "storefront.test.placed"
	producer := NewProducer(brokers)
	defer producer.Close()
	require.NoError(t, producer.Publish(ctx, topic, []byte("ORD00000001"), []byte(`{"event_type":"OrderPlaced"}`),
		map[string]string{"x-event-type": "OrderPlaced"}))

	got := make(chan kafka.Message, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()
	cons := NewConsumer(brokers, "storefront-test", []string{topic}, 2, nil)
	go func() {
		_ = cons.Start(consumeCtx, func(_ context.Context, m kafka.Message) error {
			select {
			case got <- m:
			default:
			}
			return nil
		})
	}()

	select {
	case m := <-got:
		assert.Equal(t, "ORD00000001", string(m.Key))
		assert.Equal(t, "OrderPlaced", Header(m, "x-event-type"))
	case <-ctx.Done():
		t.Fatal("no message consumed")
	}
}
