package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/seatlab/ticketing/internal/model"
)

// SeatRepo provides data access to the seats table.  Every mutation
// increments the row's version column so that two observers reading the
// same version are guaranteed to have seen the same seat state.  Batch
// reads that take row locks always order by seat_id: identical acquisition
// order across concurrent transactions is what prevents lock-order
// deadlocks in the database, mirroring the sorted-key rule of the
// distributed mutex.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a SeatRepo bound to the provided database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

const seatColumns = `seat_id, event_id, seat_number, section, row_number, seat_type, price_cents, status, version, reserved_by, reserved_until, booking_id, created_at`

func scanSeat(row interface{ Scan(...any) error }) (*model.Seat, error) {
	var (
		s          model.Seat
		section    sql.NullString
		rowNum     sql.NullString
		seatType   string
		status     string
		reservedBy sql.NullString
		until      sql.NullTime
		bookingID  sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.EventID, &s.SeatNumber, &section, &rowNum, &seatType,
		&s.PriceCents, &status, &s.Version, &reservedBy, &until, &bookingID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.SeatType = model.SeatType(seatType)
	s.Status = model.SeatStatus(status)
	if section.Valid {
		v := section.String
		s.Section = &v
	}
	if rowNum.Valid {
		v := rowNum.String
		s.RowNumber = &v
	}
	if reservedBy.Valid {
		v := reservedBy.String
		s.ReservedBy = &v
	}
	if until.Valid {
		t := until.Time
		s.ReservedUntil = &t
	}
	if bookingID.Valid {
		id := uint64(bookingID.Int64)
		s.BookingID = &id
	}
	return &s, nil
}

func collectSeats(rows *sql.Rows) ([]model.Seat, error) {
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		seats = append(seats, *s)
	}
	return seats, rows.Err()
}

// CreateBulkTx inserts multiple seats for one event in a single statement.
// All seats start AVAILABLE with version 0.
func (r *SeatRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, eventID uint64, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (event_id, seat_number, section, row_number, seat_type, price_cents, status) VALUES `
	args := make([]any, 0, len(seats)*7)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, eventID, s.SeatNumber, s.Section, s.RowNumber,
			string(s.SeatType), s.PriceCents, string(model.SeatAvailable))
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetByID loads a single seat without locking.
func (r *SeatRepo) GetByID(ctx context.Context, id uint64) (*model.Seat, error) {
	s, err := scanSeat(r.db.QueryRowContext(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE seat_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSeatNotFound
	}
	return s, err
}

// GetByIDsForUpdateTx loads the requested seats with row-level locks, in
// seat_id order.  Missing ids are simply absent from the result; the
// caller decides whether that is an error.
func (r *SeatRepo) GetByIDsForUpdateTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.Seat, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + seatColumns + ` FROM seats WHERE seat_id IN (` + placeholders(len(ids)) + `) ORDER BY seat_id FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	return collectSeats(rows)
}

// GetByIDForUpdateTx loads one seat with a row-level lock.
func (r *SeatRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Seat, error) {
	s, err := scanSeat(tx.QueryRowContext(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE seat_id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSeatNotFound
	}
	return s, err
}

// ListByBookingForUpdateTx loads all seats attached to a booking with row
// locks, in seat_id order.
func (r *SeatRepo) ListByBookingForUpdateTx(ctx context.Context, tx *sql.Tx, bookingID uint64) ([]model.Seat, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE booking_id = ? ORDER BY seat_id FOR UPDATE`, bookingID)
	if err != nil {
		return nil, err
	}
	return collectSeats(rows)
}

// SeatFilter narrows ListByEvent results.  Nil fields are ignored.
type SeatFilter struct {
	Status   *model.SeatStatus
	Section  *string
	SeatType *model.SeatType
}

// ListByEvent returns an event's seats ordered by section, row and label.
func (r *SeatRepo) ListByEvent(ctx context.Context, eventID uint64, f SeatFilter) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE event_id = ?`
	args := []any{eventID}
	if f.Status != nil {
		q += ` AND status = ?`
		args = append(args, string(*f.Status))
	}
	if f.Section != nil {
		q += ` AND section = ?`
		args = append(args, *f.Section)
	}
	if f.SeatType != nil {
		q += ` AND seat_type = ?`
		args = append(args, string(*f.SeatType))
	}
	q += ` ORDER BY section, row_number, seat_number`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectSeats(rows)
}

// MarkReservedTx transitions a row-locked seat to RESERVED for user until
// the given deadline.
func (r *SeatRepo) MarkReservedTx(ctx context.Context, tx *sql.Tx, seatID uint64, user string, until time.Time) error {
	const q = `UPDATE seats SET status = 'RESERVED', reserved_by = ?, reserved_until = ?, version = version + 1 WHERE seat_id = ?`
	_, err := tx.ExecContext(ctx, q, user, until.UTC(), seatID)
	return err
}

// MarkBookedTx transitions a row-locked seat to BOOKED, attaching the
// booking and clearing the hold fields.
func (r *SeatRepo) MarkBookedTx(ctx context.Context, tx *sql.Tx, seatID, bookingID uint64) error {
	const q = `UPDATE seats SET status = 'BOOKED', booking_id = ?, reserved_by = NULL, reserved_until = NULL, version = version + 1 WHERE seat_id = ?`
	_, err := tx.ExecContext(ctx, q, bookingID, seatID)
	return err
}

// ReleaseTx returns a row-locked seat to AVAILABLE, clearing holder, hold
// deadline and booking attachment.
func (r *SeatRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, seatID uint64) error {
	const q = `UPDATE seats SET status = 'AVAILABLE', reserved_by = NULL, reserved_until = NULL, booking_id = NULL, version = version + 1 WHERE seat_id = ?`
	_, err := tx.ExecContext(ctx, q, seatID)
	return err
}

// UpdateHoldDeadlineTx moves a row-locked seat's hold deadline.
func (r *SeatRepo) UpdateHoldDeadlineTx(ctx context.Context, tx *sql.Tx, seatID uint64, until time.Time) error {
	const q = `UPDATE seats SET reserved_until = ?, version = version + 1 WHERE seat_id = ?`
	_, err := tx.ExecContext(ctx, q, until.UTC(), seatID)
	return err
}
