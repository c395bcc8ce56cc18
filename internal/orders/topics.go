package orders

const (
	TopicOrderPlaced        = "storefront.order.placed"
	TopicBookingPlaced      = "storefront.booking.placed"
	TopicOrderStatusChanged = "storefront.order.status_changed"
)

// Partition key = reference code, so every event of one record keeps its order.
func PartitionKey(referenceCode string) []byte { return []byte(referenceCode) }

// Topics returns every topic the engine publishes to.
func Topics() []string {
	return []string{TopicOrderPlaced, TopicBookingPlaced, TopicOrderStatusChanged}
}
