package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/seatlab/ticketing/internal/middleware"
	"github.com/seatlab/ticketing/internal/model"
	"github.com/seatlab/ticketing/internal/repository"
)

// ReservationService is the slice of the immediate path this handler
// needs; it is satisfied by service.ReservationService.
type ReservationService interface {
	Reserve(ctx context.Context, eventID uint64, seatIDs []uint64, userID string, sessionID *string) ([]model.Reservation, int64, error)
	Get(ctx context.Context, reservationID uint64, userID string) (*model.Reservation, error)
	List(ctx context.Context, userID string, f repository.ReservationFilter) ([]model.Reservation, error)
	Cancel(ctx context.Context, reservationID uint64, userID string) error
	CancelBatch(ctx context.Context, reservationIDs []uint64, userID string) (int, error)
	Extend(ctx context.Context, reservationID uint64, userID string, minutes int) (*model.Reservation, error)
}

// ReservationHandler serves the immediate reservation endpoints.
type ReservationHandler struct {
	svc ReservationService
}

// NewReservationHandler constructs the handler.
func NewReservationHandler(svc ReservationService) *ReservationHandler {
	return &ReservationHandler{svc: svc}
}

// reserveRequest is the body of POST /v1/reservations.  UserID is
// optional; when present it must match the authenticated principal.
type reserveRequest struct {
	EventID   uint64   `json:"event_id"`
	SeatIDs   []uint64 `json:"seat_ids"`
	UserID    string   `json:"user_id,omitempty"`
	SessionID *string  `json:"session_id,omitempty"`
}

// Create handles POST /v1/reservations.  Holds the requested seats for
// the caller and returns the shared expiry deadline.
func (h *ReservationHandler) Create(c echo.Context) error {
	principal := middleware.UserID(c)
	var body reserveRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.UserID != "" && body.UserID != principal {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "user_id does not match authenticated principal"})
	}
	if body.EventID == 0 || len(body.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id and seat_ids are required"})
	}

	reservations, total, err := h.svc.Reserve(c.Request().Context(), body.EventID, body.SeatIDs, principal, body.SessionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservations": reservationViews(reservations),
		"expires_at":   reservations[0].ExpiresAt,
		"total_cents":  total,
	})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := h.svc.Get(c.Request().Context(), id, middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, reservationView(res))
}

// List handles GET /v1/reservations with optional event_id and status
// query filters.
func (h *ReservationHandler) List(c echo.Context) error {
	var f repository.ReservationFilter
	if v := c.QueryParam("event_id"); v != "" {
		id, ok := paramValue(v)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event_id filter"})
		}
		f.EventID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		st := model.ReservationStatus(v)
		switch st {
		case model.ReservationActive, model.ReservationConfirmed, model.ReservationExpired, model.ReservationCancelled:
			f.Status = &st
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status filter"})
		}
	}
	out, err := h.svc.List(c.Request().Context(), middleware.UserID(c), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": reservationViews(out)})
}

// Cancel handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	if err := h.svc.Cancel(c.Request().Context(), id, middleware.UserID(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "cancelled"})
}

// CancelBatch handles POST /v1/reservations/cancel-batch.  Best effort:
// reservations that cannot be cancelled are skipped and the response
// reports how many were.
func (h *ReservationHandler) CancelBatch(c echo.Context) error {
	var body struct {
		ReservationIDs []uint64 `json:"reservation_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.ReservationIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation_ids is required"})
	}
	n, err := h.svc.CancelBatch(c.Request().Context(), body.ReservationIDs, middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"cancelled": n,
		"requested": len(body.ReservationIDs),
	})
}

// Extend handles POST /v1/reservations/:id/extend.
func (h *ReservationHandler) Extend(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.svc.Extend(c.Request().Context(), id, middleware.UserID(c), body.Minutes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation": reservationView(res),
		"expires_at":  res.ExpiresAt,
	})
}
