package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/seatlab/ticketing/internal/middleware"
	"github.com/seatlab/ticketing/internal/model"
)

// BookingService is the slice of the booking path this handler needs; it
// is satisfied by service.BookingService.
type BookingService interface {
	Book(ctx context.Context, eventID uint64, seatIDs []uint64, userID string) (*model.Booking, error)
	ConfirmPayment(ctx context.Context, bookingID uint64, userID, paymentID string) (*model.Booking, error)
	FailPayment(ctx context.Context, bookingID uint64, userID string, paymentID *string) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID uint64, userID string) (*model.Booking, error)
	Get(ctx context.Context, bookingID uint64, userID string) (*model.Booking, error)
	GetByReference(ctx context.Context, ref, userID string) (*model.Booking, error)
	List(ctx context.Context, userID string, status *model.BookingStatus) ([]model.Booking, error)
}

// BookingHandler serves the booking and payment endpoints.
type BookingHandler struct {
	svc BookingService
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

// Create handles POST /v1/bookings.  Converts the caller's held seats
// into a pending booking.
func (h *BookingHandler) Create(c echo.Context) error {
	principal := middleware.UserID(c)
	var body struct {
		EventID uint64   `json:"event_id"`
		SeatIDs []uint64 `json:"seat_ids"`
		UserID  string   `json:"user_id,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.UserID != "" && body.UserID != principal {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "user_id does not match authenticated principal"})
	}
	if body.EventID == 0 || len(body.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id and seat_ids are required"})
	}
	b, err := h.svc.Book(c.Request().Context(), body.EventID, body.SeatIDs, principal)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, bookingView(b))
}

// ConfirmPayment handles POST /v1/bookings/:id/confirm-payment.  The body
// reports the payment outcome; "success" finalizes the booking, anything
// else releases its seats.
func (h *BookingHandler) ConfirmPayment(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var body struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	principal := middleware.UserID(c)

	if body.Status != "" && !strings.EqualFold(body.Status, "success") {
		var paymentID *string
		if body.PaymentID != "" {
			paymentID = &body.PaymentID
		}
		b, err := h.svc.FailPayment(c.Request().Context(), id, principal, paymentID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, bookingView(b))
	}
	if body.PaymentID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_id is required"})
	}
	b, err := h.svc.ConfirmPayment(c.Request().Context(), id, principal, body.PaymentID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bookingView(b))
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.svc.Cancel(c.Request().Context(), id, middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bookingView(b))
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.svc.Get(c.Request().Context(), id, middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bookingView(b))
}

// GetByReference handles GET /v1/bookings/ref/:reference.
func (h *BookingHandler) GetByReference(c echo.Context) error {
	ref := c.Param("reference")
	if ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking reference"})
	}
	b, err := h.svc.GetByReference(c.Request().Context(), ref, middleware.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bookingView(b))
}

// List handles GET /v1/bookings with an optional status filter.
func (h *BookingHandler) List(c echo.Context) error {
	var status *model.BookingStatus
	if v := c.QueryParam("status"); v != "" {
		st := model.BookingStatus(v)
		switch st {
		case model.BookingPending, model.BookingConfirmed, model.BookingCancelled, model.BookingFailed:
			status = &st
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status filter"})
		}
	}
	out, err := h.svc.List(c.Request().Context(), middleware.UserID(c), status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bookingViews(out)})
}
