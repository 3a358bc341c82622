package model

import "time"

// BookingStatus enumerates the booking lifecycle.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingFailed    BookingStatus = "FAILED"
)

// PaymentStatus tracks the outcome of the external payment step.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Booking is a claim on a set of seats that survives beyond the hold
// window.  Reference is a globally unique, time-sortable identifier that
// can be quoted to the user.  TotalAmountCents is the sum of the seat
// prices snapshotted at booking time; later price changes do not alter it.
type Booking struct {
	ID               uint64        // bookings.booking_id
	EventID          uint64        // bookings.event_id
	UserID           string        // bookings.user_id
	TotalAmountCents int64         // bookings.total_amount_cents
	Status           BookingStatus // bookings.status
	PaymentID        *string       // bookings.payment_id (nullable)
	PaymentStatus    PaymentStatus // bookings.payment_status
	Reference        string        // bookings.booking_reference (unique)
	CreatedAt        time.Time     // bookings.created_at
	ConfirmedAt      *time.Time    // bookings.confirmed_at (nullable)
}

// BookingSeat materializes the booking/seat association together with the
// price the seat was sold at.
type BookingSeat struct {
	ID         uint64 // booking_seats.booking_seat_id
	BookingID  uint64 // booking_seats.booking_id
	SeatID     uint64 // booking_seats.seat_id
	PriceCents int64  // booking_seats.price_cents
}
