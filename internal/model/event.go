package model

import "time"

// EventStatus enumerates the sale lifecycle of an event.
type EventStatus string

const (
	EventUpcoming  EventStatus = "UPCOMING"
	EventOnSale    EventStatus = "ON_SALE"
	EventSoldOut   EventStatus = "SOLD_OUT"
	EventCancelled EventStatus = "CANCELLED"
)

// Event represents a ticketed event.  AvailableSeats is a denormalized
// counter kept in step with seat-status mutations; the per-seat status in
// the seats table remains the authoritative source of availability and the
// counter may transiently lag behind it.
//
// Fields:
//  ID             – primary key identifier.
//  Name           – display name of the event.
//  EventDate      – when the event takes place.
//  VenueName      – venue, optional.
//  TotalSeats     – total number of seats created for the event.
//  AvailableSeats – cached count of AVAILABLE seats.
//  Status         – sale status (UPCOMING, ON_SALE, SOLD_OUT, CANCELLED).
//  SaleStartTime  – optional start of the sale window.
//  CreatedAt      – creation timestamp.
type Event struct {
	ID             uint64      // events.event_id
	Name           string      // events.event_name
	EventDate      time.Time   // events.event_date
	VenueName      *string     // events.venue_name (nullable)
	TotalSeats     int         // events.total_seats
	AvailableSeats int         // events.available_seats
	Status         EventStatus // events.status
	SaleStartTime  *time.Time  // events.sale_start_time (nullable)
	CreatedAt      time.Time   // events.created_at
}
