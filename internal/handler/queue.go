package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/seatlab/ticketing/internal/middleware"
	"github.com/seatlab/ticketing/internal/queue"
	"github.com/seatlab/ticketing/internal/service"
	"github.com/seatlab/ticketing/internal/status"
)

// QueuedReservationService is the slice of the queued path this handler
// needs; it is satisfied by service.QueuedService.
type QueuedReservationService interface {
	SubmitReserve(ctx context.Context, eventID uint64, seatIDs []uint64, userID string, sessionID *string, requestedPriority string) (*service.SubmitResult, error)
	Status(ctx context.Context, requestID string) (*status.Entry, error)
	Cancel(ctx context.Context, requestID string) (bool, error)
	EventQueueStats(ctx context.Context, eventID uint64) (map[queue.Priority]queue.BandStats, error)
	Health(ctx context.Context) (*service.QueueHealth, error)
}

// QueueHandler serves the queued reservation endpoints.
type QueueHandler struct {
	svc QueuedReservationService
}

// NewQueueHandler constructs the handler.
func NewQueueHandler(svc QueuedReservationService) *QueueHandler {
	return &QueueHandler{svc: svc}
}

// Submit handles POST /v2/reservations.  Accepts the request onto the
// event's queue and returns 202 with a request_id the client polls.
// Seat availability is never decided here; only structural validation can
// reject the call.
func (h *QueueHandler) Submit(c echo.Context) error {
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
	res, err := h.svc.SubmitReserve(c.Request().Context(), body.EventID, body.SeatIDs,
		principal, body.SessionID, middleware.RequestedPriority(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, res)
}

// Status handles GET /v2/reservations/:request_id.
func (h *QueueHandler) Status(c echo.Context) error {
	requestID := c.Param("request_id")
	if requestID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request id"})
	}
	e, err := h.svc.Status(c.Request().Context(), requestID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Cancel handles DELETE /v2/reservations/:request_id.  Succeeds only
// while the request is still waiting in the queue.
func (h *QueueHandler) Cancel(c echo.Context) error {
	requestID := c.Param("request_id")
	if requestID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request id"})
	}
	ok, err := h.svc.Cancel(c.Request().Context(), requestID)
	if err != nil {
		return writeError(c, err)
	}
	if !ok {
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "request already processing or finished",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "cancel_requested"})
}

// Stats handles GET /v2/queue/stats/:event_id.
func (h *QueueHandler) Stats(c echo.Context) error {
	eventID, ok := paramID(c, "event_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	stats, err := h.svc.EventQueueStats(c.Request().Context(), eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id": eventID,
		"bands":    stats,
	})
}

// Health handles GET /v2/queue/health.
func (h *QueueHandler) Health(c echo.Context) error {
	out, err := h.svc.Health(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
