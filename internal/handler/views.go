package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/seatlab/ticketing/internal/model"
)

// View helpers shape domain records for JSON responses; models themselves
// carry no transport tags.

func reservationView(r *model.Reservation) echo.Map {
	return echo.Map{
		"reservation_id": r.ID,
		"seat_id":        r.SeatID,
		"event_id":       r.EventID,
		"user_id":        r.UserID,
		"expires_at":     r.ExpiresAt,
		"status":         r.Status,
		"created_at":     r.CreatedAt,
	}
}

func reservationViews(rs []model.Reservation) []echo.Map {
	out := make([]echo.Map, len(rs))
	for i := range rs {
		out[i] = reservationView(&rs[i])
	}
	return out
}

func bookingView(b *model.Booking) echo.Map {
	v := echo.Map{
		"booking_id":         b.ID,
		"booking_reference":  b.Reference,
		"event_id":           b.EventID,
		"user_id":            b.UserID,
		"total_amount_cents": b.TotalAmountCents,
		"status":             b.Status,
		"payment_status":     b.PaymentStatus,
		"created_at":         b.CreatedAt,
	}
	if b.PaymentID != nil {
		v["payment_id"] = *b.PaymentID
	}
	if b.ConfirmedAt != nil {
		v["confirmed_at"] = *b.ConfirmedAt
	}
	return v
}

func bookingViews(bs []model.Booking) []echo.Map {
	out := make([]echo.Map, len(bs))
	for i := range bs {
		out[i] = bookingView(&bs[i])
	}
	return out
}

func seatView(s *model.Seat) echo.Map {
	v := echo.Map{
		"seat_id":     s.ID,
		"event_id":    s.EventID,
		"seat_number": s.SeatNumber,
		"seat_type":   s.SeatType,
		"price_cents": s.PriceCents,
		"status":      s.Status,
		"version":     s.Version,
	}
	if s.Section != nil {
		v["section"] = *s.Section
	}
	if s.RowNumber != nil {
		v["row_number"] = *s.RowNumber
	}
	if s.ReservedUntil != nil {
		v["reserved_until"] = *s.ReservedUntil
	}
	return v
}

func seatViews(ss []model.Seat) []echo.Map {
	out := make([]echo.Map, len(ss))
	for i := range ss {
		out[i] = seatView(&ss[i])
	}
	return out
}

func eventView(ev *model.Event) echo.Map {
	v := echo.Map{
		"event_id":        ev.ID,
		"event_name":      ev.Name,
		"event_date":      ev.EventDate,
		"total_seats":     ev.TotalSeats,
		"available_seats": ev.AvailableSeats,
		"status":          ev.Status,
		"created_at":      ev.CreatedAt,
	}
	if ev.VenueName != nil {
		v["venue_name"] = *ev.VenueName
	}
	if ev.SaleStartTime != nil {
		v["sale_start_time"] = *ev.SaleStartTime
	}
	return v
}

func eventViews(evs []model.Event) []echo.Map {
	out := make([]echo.Map, len(evs))
	for i := range evs {
		out[i] = eventView(&evs[i])
	}
	return out
}
