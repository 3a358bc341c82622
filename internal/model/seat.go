package model

import "time"

// SeatType categorizes a seat for pricing and priority purposes.
type SeatType string

const (
	SeatRegular SeatType = "REGULAR"
	SeatVIP     SeatType = "VIP"
	SeatPremium SeatType = "PREMIUM"
)

// SeatStatus enumerates the seat state machine.  Legal transitions are
// AVAILABLE -> RESERVED -> BOOKED -> AVAILABLE, with RESERVED falling back
// to AVAILABLE on cancellation or expiry and BOOKED falling back on
// cancellation or payment failure.  BLOCKED seats are withheld from sale.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatReserved  SeatStatus = "RESERVED"
	SeatBooked    SeatStatus = "BOOKED"
	SeatBlocked   SeatStatus = "BLOCKED"
)

// Seat is a uniquely identified, non-fungible resource within an event.
// SeatNumber is unique per event.  Version increases by one on every
// committed mutation of the row and doubles as an optimistic-concurrency
// token: two observers that read the same version saw the same seat state.
//
// Reservation invariants, enforced by the engine:
//  RESERVED  => ReservedBy and ReservedUntil set, one ACTIVE reservation.
//  BOOKED    => BookingID set, ReservedBy/ReservedUntil cleared.
//  AVAILABLE => ReservedBy, ReservedUntil and BookingID all null.
type Seat struct {
	ID            uint64     // seats.seat_id
	EventID       uint64     // seats.event_id
	SeatNumber    string     // seats.seat_number (label, unique per event)
	Section       *string    // seats.section (nullable)
	RowNumber     *string    // seats.row_number (nullable)
	SeatType      SeatType   // seats.seat_type
	PriceCents    int64      // seats.price_cents
	Status        SeatStatus // seats.status
	Version       uint64     // seats.version
	ReservedBy    *string    // seats.reserved_by (nullable)
	ReservedUntil *time.Time // seats.reserved_until (nullable)
	BookingID     *uint64    // seats.booking_id (nullable)
	CreatedAt     time.Time  // seats.created_at
}
