package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatlab/ticketing/internal/engine"
	"github.com/seatlab/ticketing/internal/queue"
	"github.com/seatlab/ticketing/internal/service"
	"github.com/seatlab/ticketing/internal/status"
)

type fakeQueuedSvc struct {
	submitFn func(eventID uint64, seatIDs []uint64, userID, priority string) (*service.SubmitResult, error)
	statusFn func(requestID string) (*status.Entry, error)
	cancelFn func(requestID string) (bool, error)
	statsFn  func(eventID uint64) (map[queue.Priority]queue.BandStats, error)
}

func (f *fakeQueuedSvc) SubmitReserve(_ context.Context, eventID uint64, seatIDs []uint64, userID string, _ *string, priority string) (*service.SubmitResult, error) {
	return f.submitFn(eventID, seatIDs, userID, priority)
}
func (f *fakeQueuedSvc) Status(_ context.Context, requestID string) (*status.Entry, error) {
	return f.statusFn(requestID)
}
func (f *fakeQueuedSvc) Cancel(_ context.Context, requestID string) (bool, error) {
	return f.cancelFn(requestID)
}
func (f *fakeQueuedSvc) EventQueueStats(_ context.Context, eventID uint64) (map[queue.Priority]queue.BandStats, error) {
	return f.statsFn(eventID)
}
func (f *fakeQueuedSvc) Health(context.Context) (*service.QueueHealth, error) {
	return &service.QueueHealth{}, nil
}

func TestQueueSubmitAccepted(t *testing.T) {
	svc := &fakeQueuedSvc{
		submitFn: func(eventID uint64, seatIDs []uint64, userID, priority string) (*service.SubmitResult, error) {
			assert.EqualValues(t, 1, eventID)
			assert.Equal(t, []uint64{10}, seatIDs)
			assert.Equal(t, "u1", userID)
			assert.Equal(t, "vip", priority)
			return &service.SubmitResult{
				RequestID:     "req-1",
				Status:        status.StatusPending,
				Priority:      queue.PriorityHigh,
				QueuePosition: 3,
				EstimatedWait: 6,
			}, nil
		},
	}
	h := NewQueueHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/v2/reservations",
		`{"event_id":1,"seat_ids":[10]}`)
	c.Request().Header.Set("X-User-Priority", "vip")
	require.NoError(t, h.Submit(c))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, "pending", body["status"])
	assert.EqualValues(t, 3, body["queue_position"])
}

func TestQueueSubmitRejectsForeignUserID(t *testing.T) {
	h := NewQueueHandler(&fakeQueuedSvc{})
	c, rec := newTestContext(http.MethodPost, "/v2/reservations",
		`{"event_id":1,"seat_ids":[10],"user_id":"other"}`)
	require.NoError(t, h.Submit(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQueueSubmitRequiresEventAndSeats(t *testing.T) {
	h := NewQueueHandler(&fakeQueuedSvc{})
	c, rec := newTestContext(http.MethodPost, "/v2/reservations", `{"event_id":1}`)
	require.NoError(t, h.Submit(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueStatusNotFound(t *testing.T) {
	svc := &fakeQueuedSvc{
		statusFn: func(requestID string) (*status.Entry, error) {
			return nil, engine.Errf(engine.KindNotFound, "request %s not found", requestID)
		},
	}
	h := NewQueueHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/v2/reservations/nope", "")
	c.SetParamNames("request_id")
	c.SetParamValues("nope")
	require.NoError(t, h.Status(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueCancelTooLate(t *testing.T) {
	svc := &fakeQueuedSvc{
		cancelFn: func(string) (bool, error) { return false, nil },
	}
	h := NewQueueHandler(svc)

	c, rec := newTestContext(http.MethodDelete, "/v2/reservations/req-1", "")
	c.SetParamNames("request_id")
	c.SetParamValues("req-1")
	require.NoError(t, h.Cancel(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueueCancelWhileQueued(t *testing.T) {
	svc := &fakeQueuedSvc{
		cancelFn: func(string) (bool, error) { return true, nil },
	}
	h := NewQueueHandler(svc)

	c, rec := newTestContext(http.MethodDelete, "/v2/reservations/req-1", "")
	c.SetParamNames("request_id")
	c.SetParamValues("req-1")
	require.NoError(t, h.Cancel(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancel_requested", decodeBody(t, rec)["status"])
}

func TestQueueStats(t *testing.T) {
	svc := &fakeQueuedSvc{
		statsFn: func(eventID uint64) (map[queue.Priority]queue.BandStats, error) {
			assert.EqualValues(t, 1, eventID)
			return map[queue.Priority]queue.BandStats{
				queue.PriorityHigh:   {Length: 2, Pending: 1},
				queue.PriorityNormal: {Length: 5},
				queue.PriorityLow:    {},
			}, nil
		},
	}
	h := NewQueueHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/v2/queue/stats/1", "")
	c.SetParamNames("event_id")
	c.SetParamValues("1")
	require.NoError(t, h.Stats(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["event_id"])
}
