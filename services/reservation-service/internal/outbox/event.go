package outbox

// Event is the domain event envelope written to the outbox table. The Kafka
// topic name equals EventType. Reservation lifecycle transitions emit:
// reservation.confirmed.v1, reservation.updated.v1, reservation.seated.v1,
// reservation.departed.v1 and reservation.cancelled.v1.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
