package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/seatlab/ticketing/internal/model"
	"github.com/seatlab/ticketing/internal/repository"
)

// EventHandler serves event and seat catalog endpoints.  Catalog writes
// are low-frequency administrative operations, so they talk to the
// repositories directly instead of going through the engine.
type EventHandler struct {
	Events *repository.EventRepo
	Seats  *repository.SeatRepo
}

// NewEventHandler constructs the handler.
func NewEventHandler(events *repository.EventRepo, seats *repository.SeatRepo) *EventHandler {
	return &EventHandler{Events: events, Seats: seats}
}

// Create handles POST /v1/events.
func (h *EventHandler) Create(c echo.Context) error {
	var body struct {
		Name          string     `json:"event_name"`
		EventDate     time.Time  `json:"event_date"`
		VenueName     *string    `json:"venue_name"`
		Status        string     `json:"status"`
		SaleStartTime *time.Time `json:"sale_start_time"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Name == "" || body.EventDate.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_name and event_date are required"})
	}
	status := model.EventUpcoming
	if body.Status != "" {
		st := model.EventStatus(body.Status)
		switch st {
		case model.EventUpcoming, model.EventOnSale, model.EventSoldOut, model.EventCancelled:
			status = st
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown event status"})
		}
	}
	ev := model.Event{
		Name:          body.Name,
		EventDate:     body.EventDate,
		VenueName:     body.VenueName,
		Status:        status,
		SaleStartTime: body.SaleStartTime,
	}
	if err := h.Events.Create(c.Request().Context(), &ev); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, eventView(&ev))
}

// List handles GET /v1/events with an optional status filter.
func (h *EventHandler) List(c echo.Context) error {
	var status *model.EventStatus
	if v := c.QueryParam("status"); v != "" {
		st := model.EventStatus(v)
		switch st {
		case model.EventUpcoming, model.EventOnSale, model.EventSoldOut, model.EventCancelled:
			status = &st
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status filter"})
		}
	}
	events, err := h.Events.List(c.Request().Context(), status)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"events": eventViews(events)})
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ev, err := h.Events.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, eventView(ev))
}

// seatSpec is one seat in a bulk creation request.
type seatSpec struct {
	SeatNumber string  `json:"seat_number"`
	Section    *string `json:"section"`
	RowNumber  *string `json:"row_number"`
	SeatType   string  `json:"seat_type"`
	PriceCents int64   `json:"price_cents"`
}

// CreateSeats handles POST /v1/events/:id/seats.  Inserts the seats and
// grows the event's capacity counters in one transaction.
func (h *EventHandler) CreateSeats(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var body struct {
		Seats []seatSpec `json:"seats"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.Seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats is required"})
	}
	seats := make([]model.Seat, 0, len(body.Seats))
	for _, sp := range body.Seats {
		if sp.SeatNumber == "" || sp.PriceCents < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "each seat needs a seat_number and a non-negative price"})
		}
		seatType := model.SeatRegular
		if sp.SeatType != "" {
			st := model.SeatType(sp.SeatType)
			switch st {
			case model.SeatRegular, model.SeatVIP, model.SeatPremium:
				seatType = st
			default:
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown seat type"})
			}
		}
		seats = append(seats, model.Seat{
			SeatNumber: sp.SeatNumber,
			Section:    sp.Section,
			RowNumber:  sp.RowNumber,
			SeatType:   seatType,
			PriceCents: sp.PriceCents,
		})
	}

	ctx := c.Request().Context()
	if _, err := h.Events.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	tx, err := h.Events.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := h.Seats.CreateBulkTx(ctx, tx, id, seats); err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat creation failed; duplicate seat numbers?"})
	}
	if err := h.Events.AddSeatCapacityTx(ctx, tx, id, len(seats)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	committed = true
	return c.JSON(http.StatusCreated, echo.Map{"created": len(seats)})
}

// ListSeats handles GET /v1/events/:id/seats with optional status,
// section and seat_type filters.
func (h *EventHandler) ListSeats(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var f repository.SeatFilter
	if v := c.QueryParam("status"); v != "" {
		st := model.SeatStatus(v)
		switch st {
		case model.SeatAvailable, model.SeatReserved, model.SeatBooked, model.SeatBlocked:
			f.Status = &st
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status filter"})
		}
	}
	if v := c.QueryParam("section"); v != "" {
		f.Section = &v
	}
	if v := c.QueryParam("seat_type"); v != "" {
		st := model.SeatType(v)
		switch st {
		case model.SeatRegular, model.SeatVIP, model.SeatPremium:
			f.SeatType = &st
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown seat_type filter"})
		}
	}
	seats, err := h.Seats.ListByEvent(c.Request().Context(), id, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": seatViews(seats)})
}
