package orders

const (
	TopicOrderCreated         = "order.created"
	TopicOrderStatusChanged   = "order.status.changed"
	TopicOrderCancelled       = "order.cancelled"
	TopicReservationExpired   = "cart.reservation.expired"
	TopicOrderStatusRequested = "order.status.requested"
)

// TopicFor maps an event type to the topic it is published on.
func TopicFor(eventType string) string {
	switch eventType {
	case EventOrderCreated:
		return TopicOrderCreated
	case EventOrderStatusChanged:
		return TopicOrderStatusChanged
	case EventOrderCancelled:
		return TopicOrderCancelled
	case EventReservationExpired:
		return TopicReservationExpired
	case EventOrderStatusRequested:
		return TopicOrderStatusRequested
	}
	return ""
}

// Partition key = correlation id (order_id / shopper_id), so events of one entity stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }
