package model

import "time"

// ReservationStatus enumerates the hold lifecycle.  ACTIVE is the only
// non-terminal status; the transition to CONFIRMED, EXPIRED or CANCELLED
// is one-way.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationExpired   ReservationStatus = "EXPIRED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Reservation records a time-limited exclusive hold on a single seat.
// A multi-seat reserve call creates one row per seat, all sharing the
// same ExpiresAt so the client sees a single countdown.
type Reservation struct {
	ID        uint64            // reservations.reservation_id
	SeatID    uint64            // reservations.seat_id
	EventID   uint64            // reservations.event_id
	UserID    string            // reservations.user_id
	SessionID *string           // reservations.session_id (nullable)
	ExpiresAt time.Time         // reservations.expires_at
	Status    ReservationStatus // reservations.status
	CreatedAt time.Time         // reservations.created_at
}
