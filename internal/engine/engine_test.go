package engine

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seatlab/ticketing/internal/model"
	"github.com/seatlab/ticketing/internal/repository"
)

var (
	eventCols = []string{"event_id", "event_name", "event_date", "venue_name",
		"total_seats", "available_seats", "status", "sale_start_time", "created_at"}
	seatCols = []string{"seat_id", "event_id", "seat_number", "section", "row_number",
		"seat_type", "price_cents", "status", "version", "reserved_by", "reserved_until",
		"booking_id", "created_at"}
	reservationCols = []string{"reservation_id", "seat_id", "event_id", "user_id",
		"session_id", "expires_at", "status", "created_at"}
	bookingCols = []string{"booking_id", "event_id", "user_id", "total_amount_cents",
		"status", "payment_id", "payment_status", "booking_reference", "created_at",
		"confirmed_at"}
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eng := New(db,
		repository.NewEventRepo(db),
		repository.NewSeatRepo(db),
		repository.NewReservationRepo(db),
		repository.NewBookingRepo(db),
		Config{ReservationTimeout: 10 * time.Minute, MaxSeatsPerBooking: 10},
		zap.NewNop())
	eng.now = func() time.Time { return testNow }
	return eng, mock
}

func onSaleEventRow() *sqlmock.Rows {
	return sqlmock.NewRows(eventCols).
		AddRow(1, "Concert", testNow.Add(72*time.Hour), "Arena", 100, 50,
			"ON_SALE", nil, testNow.Add(-time.Hour))
}

func availableSeatRow(rows *sqlmock.Rows, id uint64, number string, price int64) *sqlmock.Rows {
	return rows.AddRow(id, 1, number, "A", "1", "REGULAR", price, "AVAILABLE", 0,
		nil, nil, nil, testNow.Add(-time.Hour))
}

func TestReserveHoldsAllSeats(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM events WHERE event_id`).
		WithArgs(uint64(1)).WillReturnRows(onSaleEventRow())
	seatRows := sqlmock.NewRows(seatCols)
	availableSeatRow(seatRows, 10, "A1", 5000)
	availableSeatRow(seatRows, 11, "A2", 7500)
	mock.ExpectQuery(`SELECT .+ FROM seats WHERE seat_id IN .+ FOR UPDATE`).
		WillReturnRows(seatRows)
	for _, seatID := range []uint64{10, 11} {
		mock.ExpectExec(`UPDATE seats SET status = 'RESERVED'`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO reservations`).
			WillReturnResult(sqlmock.NewResult(int64(seatID+100), 1))
	}
	mock.ExpectExec(`UPDATE events SET available_seats = available_seats`).
		WithArgs(-2, uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reservations, total, err := eng.Reserve(context.Background(), 1, []uint64{10, 11}, "u1", nil)
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.EqualValues(t, 12500, total)
	// All holds from one call share a deadline.
	assert.Equal(t, testNow.Add(10*time.Minute), reservations[0].ExpiresAt)
	assert.Equal(t, reservations[0].ExpiresAt, reservations[1].ExpiresAt)
	assert.Equal(t, model.ReservationActive, reservations[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRejectsOversizedBatch(t *testing.T) {
	eng, _ := newTestEngine(t)
	ids := make([]uint64, 11)
	for i := range ids {
		ids[i] = uint64(i + 1)
	}
	_, _, err := eng.Reserve(context.Background(), 1, ids, "u1", nil)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestReserveDedupesSeatIDs(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM events WHERE event_id`).
		WillReturnRows(onSaleEventRow())
	seatRows := sqlmock.NewRows(seatCols)
	availableSeatRow(seatRows, 10, "A1", 5000)
	mock.ExpectQuery(`SELECT .+ FROM seats WHERE seat_id IN .+ FOR UPDATE`).
		WillReturnRows(seatRows)
	mock.ExpectExec(`UPDATE seats SET status = 'RESERVED'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO reservations`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE events SET available_seats`).
		WithArgs(-1, uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reservations, _, err := eng.Reserve(context.Background(), 1, []uint64{10, 10, 0, 10}, "u1", nil)
	require.NoError(t, err)
	assert.Len(t, reservations, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveReportsUnavailableLabels(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM events WHERE event_id`).
		WillReturnRows(onSaleEventRow())
	seatRows := sqlmock.NewRows(seatCols)
	availableSeatRow(seatRows, 10, "A1", 5000)
	seatRows.AddRow(11, 1, "A2", "A", "1", "REGULAR", 5000, "RESERVED", 3,
		"someone", testNow.Add(5*time.Minute), nil, testNow.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM seats WHERE seat_id IN .+ FOR UPDATE`).
		WillReturnRows(seatRows)
	mock.ExpectRollback()

	_, _, err := eng.Reserve(context.Background(), 1, []uint64{10, 11}, "u1", nil)
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Equal(t, []string{"A2"}, LabelsOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRequiresOnSaleEvent(t *testing.T) {
	eng, mock := newTestEngine(t)

	rows := sqlmock.NewRows(eventCols).
		AddRow(1, "Concert", testNow.Add(72*time.Hour), nil, 100, 100,
			"UPCOMING", nil, testNow.Add(-time.Hour))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM events WHERE event_id`).WillReturnRows(rows)
	mock.ExpectRollback()

	_, _, err := eng.Reserve(context.Background(), 1, []uint64{10}, "u1", nil)
	assert.Equal(t, KindStateMismatch, KindOf(err))
}

func TestReserveRejectsForeignSeat(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM events WHERE event_id`).
		WillReturnRows(onSaleEventRow())
	seatRows := sqlmock.NewRows(seatCols).
		AddRow(10, 2, "A1", nil, nil, "REGULAR", 5000, "AVAILABLE", 0,
			nil, nil, nil, testNow.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM seats WHERE seat_id IN .+ FOR UPDATE`).
		WillReturnRows(seatRows)
	mock.ExpectRollback()

	_, _, err := eng.Reserve(context.Background(), 1, []uint64{10}, "u1", nil)
	assert.Equal(t, KindWrongEvent, KindOf(err))
}

func TestBookRejectsSeatsHeldByAnotherUser(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectBegin()
	seatRows := sqlmock.NewRows(seatCols).
		AddRow(10, 1, "A1", nil, nil, "REGULAR", 5000, "RESERVED", 1,
			"other-user", testNow.Add(5*time.Minute), nil, testNow.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM seats WHERE seat_id IN .+ FOR UPDATE`).
		WillReturnRows(seatRows)
	mock.ExpectRollback()

	_, err := eng.Book(context.Background(), 1, []uint64{10}, "u1")
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestConfirmPaymentRequiresPendingBooking(t *testing.T) {
	eng, mock := newTestEngine(t)

	rows := sqlmock.NewRows(bookingCols).
		AddRow(5, 1, "u1", 5000, "CONFIRMED", "pay-1", "SUCCESS", "BK-X",
			testNow.Add(-time.Hour), testNow.Add(-time.Hour))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM bookings WHERE booking_id .+ FOR UPDATE`).
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := eng.ConfirmPayment(context.Background(), 5, "pay-2")
	assert.Equal(t, KindStateMismatch, KindOf(err))
}

func TestCancelBookingChecksOwnership(t *testing.T) {
	eng, mock := newTestEngine(t)

	rows := sqlmock.NewRows(bookingCols).
		AddRow(5, 1, "owner", 5000, "PENDING", nil, "PENDING", "BK-X",
			testNow.Add(-time.Hour), nil)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM bookings WHERE booking_id .+ FOR UPDATE`).
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := eng.CancelBooking(context.Background(), 5, "intruder")
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestExtendReservationBounds(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.ExtendReservation(context.Background(), 1, "u1", 0)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	_, err = eng.ExtendReservation(context.Background(), 1, "u1", 16)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestExpireOverdueReleasesHeldSeats(t *testing.T) {
	eng, mock := newTestEngine(t)

	resRows := sqlmock.NewRows(reservationCols).
		AddRow(7, 10, 1, "u1", nil, testNow.Add(-time.Minute), "ACTIVE",
			testNow.Add(-11*time.Minute))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM reservations WHERE status = 'ACTIVE' AND expires_at`).
		WillReturnRows(resRows)
	mock.ExpectExec(`UPDATE reservations SET status`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	seatRows := sqlmock.NewRows(seatCols).
		AddRow(10, 1, "A1", nil, nil, "REGULAR", 5000, "RESERVED", 1,
			"u1", testNow.Add(-time.Minute), nil, testNow.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM seats WHERE seat_id = .+ FOR UPDATE`).
		WillReturnRows(seatRows)
	mock.ExpectExec(`UPDATE seats SET status = 'AVAILABLE'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE events SET available_seats`).
		WithArgs(1, uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := eng.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireOverdueSkipsBookedSeats(t *testing.T) {
	eng, mock := newTestEngine(t)

	resRows := sqlmock.NewRows(reservationCols).
		AddRow(7, 10, 1, "u1", nil, testNow.Add(-time.Minute), "ACTIVE",
			testNow.Add(-11*time.Minute))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM reservations WHERE status = 'ACTIVE' AND expires_at`).
		WillReturnRows(resRows)
	mock.ExpectExec(`UPDATE reservations SET status`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The seat was booked between the deadline and the sweep; its state
	// wins and it is not released.
	seatRows := sqlmock.NewRows(seatCols).
		AddRow(10, 1, "A1", nil, nil, "REGULAR", 5000, "BOOKED", 2,
			nil, nil, 5, testNow.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM seats WHERE seat_id = .+ FOR UPDATE`).
		WillReturnRows(seatRows)
	mock.ExpectCommit()

	n, err := eng.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
