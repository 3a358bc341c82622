// Package notify publishes booking lifecycle events to RabbitMQ and ships
// a consumer that appends them to logs/reservation-status.log.  Publishing
// is best effort; a broker outage never fails the request that produced
// the event.
package notify

// BookingEvent is published on the reservation.status queue whenever a
// booking changes state.  It carries enough for downstream consumers to
// log or notify without querying the primary database.
type BookingEvent struct {
	Type             string `json:"type"`
	BookingID        uint64 `json:"booking_id"`
	Reference        string `json:"booking_reference"`
	EventID          uint64 `json:"event_id"`
	UserID           string `json:"user_id"`
	Status           string `json:"status"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	OccurredAt       string `json:"occurred_at"`
}

// Event types carried in BookingEvent.Type.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)
