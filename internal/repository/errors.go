// Package repository provides raw-SQL data access for the ticketing
// tables.  Methods suffixed Tx operate inside a caller-owned transaction;
// the caller is responsible for commit or rollback.  Sentinel errors let
// the engine distinguish "row missing" from infrastructure failures
// without inspecting sql.ErrNoRows at every call site.
package repository

import "errors"

// ErrEventNotFound is returned when an event lookup yields no rows.
var ErrEventNotFound = errors.New("event not found")

// ErrSeatNotFound is returned when a seat lookup yields no rows.
var ErrSeatNotFound = errors.New("seat not found")

// ErrReservationNotFound is returned when a reservation lookup yields no rows.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrBookingNotFound is returned when a booking lookup yields no rows.
var ErrBookingNotFound = errors.New("booking not found")
