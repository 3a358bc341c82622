package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatlab/ticketing/internal/engine"
	"github.com/seatlab/ticketing/internal/model"
	"github.com/seatlab/ticketing/internal/repository"
)

// newTestContext builds an echo context with an authenticated principal,
// the way the identity middleware would leave it.
func newTestContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "u1")
	return c, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type fakeReservationSvc struct {
	reserveFn     func(eventID uint64, seatIDs []uint64, userID string) ([]model.Reservation, int64, error)
	getFn         func(id uint64, userID string) (*model.Reservation, error)
	listFn        func(userID string, f repository.ReservationFilter) ([]model.Reservation, error)
	cancelFn      func(id uint64, userID string) error
	cancelBatchFn func(ids []uint64, userID string) (int, error)
	extendFn      func(id uint64, userID string, minutes int) (*model.Reservation, error)
}

func (f *fakeReservationSvc) Reserve(_ context.Context, eventID uint64, seatIDs []uint64, userID string, _ *string) ([]model.Reservation, int64, error) {
	return f.reserveFn(eventID, seatIDs, userID)
}
func (f *fakeReservationSvc) Get(_ context.Context, id uint64, userID string) (*model.Reservation, error) {
	return f.getFn(id, userID)
}
func (f *fakeReservationSvc) List(_ context.Context, userID string, filter repository.ReservationFilter) ([]model.Reservation, error) {
	return f.listFn(userID, filter)
}
func (f *fakeReservationSvc) Cancel(_ context.Context, id uint64, userID string) error {
	return f.cancelFn(id, userID)
}
func (f *fakeReservationSvc) CancelBatch(_ context.Context, ids []uint64, userID string) (int, error) {
	return f.cancelBatchFn(ids, userID)
}
func (f *fakeReservationSvc) Extend(_ context.Context, id uint64, userID string, minutes int) (*model.Reservation, error) {
	return f.extendFn(id, userID, minutes)
}

func TestReservationCreate(t *testing.T) {
	expires := time.Now().Add(10 * time.Minute).UTC()
	svc := &fakeReservationSvc{
		reserveFn: func(eventID uint64, seatIDs []uint64, userID string) ([]model.Reservation, int64, error) {
			assert.EqualValues(t, 1, eventID)
			assert.Equal(t, []uint64{10, 11}, seatIDs)
			assert.Equal(t, "u1", userID)
			return []model.Reservation{
				{ID: 7, SeatID: 10, EventID: 1, UserID: userID, ExpiresAt: expires, Status: model.ReservationActive},
				{ID: 8, SeatID: 11, EventID: 1, UserID: userID, ExpiresAt: expires, Status: model.ReservationActive},
			}, 12500, nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/v1/reservations",
		`{"event_id":1,"seat_ids":[10,11]}`)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 12500, body["total_cents"])
	assert.Len(t, body["reservations"], 2)
	assert.NotEmpty(t, body["expires_at"])
}

func TestReservationCreateRejectsForeignUserID(t *testing.T) {
	called := false
	svc := &fakeReservationSvc{
		reserveFn: func(uint64, []uint64, string) ([]model.Reservation, int64, error) {
			called = true
			return nil, 0, nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/v1/reservations",
		`{"event_id":1,"seat_ids":[10],"user_id":"someone-else"}`)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
}

func TestReservationCreateRequiresSeats(t *testing.T) {
	h := NewReservationHandler(&fakeReservationSvc{})
	c, rec := newTestContext(http.MethodPost, "/v1/reservations", `{"event_id":1}`)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservationCreateUnavailableSeats(t *testing.T) {
	svc := &fakeReservationSvc{
		reserveFn: func(uint64, []uint64, string) ([]model.Reservation, int64, error) {
			return nil, 0, engine.Unavailable([]string{"A1", "A2"})
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/v1/reservations",
		`{"event_id":1,"seat_ids":[10,11]}`)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{"A1", "A2"}, body["unavailable_seats"])
}

func TestReservationCreateRetryableConflict(t *testing.T) {
	svc := &fakeReservationSvc{
		reserveFn: func(uint64, []uint64, string) ([]model.Reservation, int64, error) {
			return nil, 0, engine.Errf(engine.KindRetryableConflict, "please retry")
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/v1/reservations",
		`{"event_id":1,"seat_ids":[10]}`)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["retry"])
}

func TestReservationCancel(t *testing.T) {
	svc := &fakeReservationSvc{
		cancelFn: func(id uint64, userID string) error {
			assert.EqualValues(t, 7, id)
			assert.Equal(t, "u1", userID)
			return nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newTestContext(http.MethodDelete, "/v1/reservations/7", "")
	c.SetParamNames("id")
	c.SetParamValues("7")
	require.NoError(t, h.Cancel(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])
}

func TestReservationCancelBatch(t *testing.T) {
	svc := &fakeReservationSvc{
		cancelBatchFn: func(ids []uint64, userID string) (int, error) {
			assert.Equal(t, []uint64{7, 8, 99}, ids)
			assert.Equal(t, "u1", userID)
			return 2, nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/v1/reservations/cancel-batch",
		`{"reservation_ids":[7,8,99]}`)
	require.NoError(t, h.CancelBatch(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["cancelled"])
	assert.EqualValues(t, 3, body["requested"])
}

func TestReservationCancelBatchRequiresIDs(t *testing.T) {
	h := NewReservationHandler(&fakeReservationSvc{})
	c, rec := newTestContext(http.MethodPost, "/v1/reservations/cancel-batch", `{}`)
	require.NoError(t, h.CancelBatch(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservationExtendInvalidID(t *testing.T) {
	h := NewReservationHandler(&fakeReservationSvc{})
	c, rec := newTestContext(http.MethodPost, "/v1/reservations/zero/extend",
		`{"minutes":5}`)
	c.SetParamNames("id")
	c.SetParamValues("zero")
	require.NoError(t, h.Extend(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservationListRejectsUnknownStatus(t *testing.T) {
	h := NewReservationHandler(&fakeReservationSvc{})
	c, rec := newTestContext(http.MethodGet, "/v1/reservations?status=NONSENSE", "")
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservationListFilters(t *testing.T) {
	svc := &fakeReservationSvc{
		listFn: func(userID string, f repository.ReservationFilter) ([]model.Reservation, error) {
			require.NotNil(t, f.EventID)
			assert.EqualValues(t, 3, *f.EventID)
			require.NotNil(t, f.Status)
			assert.Equal(t, model.ReservationActive, *f.Status)
			return nil, nil
		},
	}
	h := NewReservationHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/v1/reservations?event_id=3&status=ACTIVE", "")
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
