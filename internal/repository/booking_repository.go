package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/seatlab/ticketing/internal/model"
)

// BookingRepo provides data access to the bookings and booking_seats
// tables.  booking_seats snapshots the price each seat was sold at; a
// booking's total never changes after creation.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `booking_id, event_id, user_id, total_amount_cents, status, payment_id, payment_status, booking_reference, created_at, confirmed_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var (
		b           model.Booking
		status      string
		payID       sql.NullString
		payStatus   string
		confirmedAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.TotalAmountCents, &status,
		&payID, &payStatus, &b.Reference, &b.CreatedAt, &confirmedAt)
	if err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	b.PaymentStatus = model.PaymentStatus(payStatus)
	if payID.Valid {
		v := payID.String
		b.PaymentID = &v
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		b.ConfirmedAt = &t
	}
	return &b, nil
}

// CreateTx inserts a booking within the caller's transaction and populates
// the generated ID.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (event_id, user_id, total_amount_cents, status, payment_status, booking_reference)
	           VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, b.EventID, b.UserID, b.TotalAmountCents,
		string(b.Status), string(b.PaymentStatus), b.Reference)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.CreatedAt = time.Now().UTC()
	return nil
}

// AddSeatsTx inserts the booking_seats rows for a booking in one statement.
func (r *BookingRepo) AddSeatsTx(ctx context.Context, tx *sql.Tx, seats []model.BookingSeat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO booking_seats (booking_id, seat_id, price_cents) VALUES `
	args := make([]any, 0, len(seats)*3)
	for i, bs := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, bs.BookingID, bs.SeatID, bs.PriceCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetByID loads a booking.  Returns ErrBookingNotFound when absent.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE booking_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// GetByIDForUpdateTx loads a booking with a row lock.
func (r *BookingRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE booking_id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// GetByReference loads a booking by its external reference.
func (r *BookingRepo) GetByReference(ctx context.Context, ref string) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE booking_reference = ?`, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// ListByUser returns a user's bookings, newest first, optionally filtered
// by status.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string, status *model.BookingStatus) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ?`
	args := []any{userID}
	if status != nil {
		q += ` AND status = ?`
		args = append(args, string(*status))
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// SeatIDs returns the seat ids attached to a booking, without locking.
// The immediate path uses this to compute lock keys before opening the
// transaction.
func (r *BookingRepo) SeatIDs(ctx context.Context, bookingID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seat_id FROM booking_seats WHERE booking_id = ? ORDER BY seat_id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetPaymentTx records the outcome of the payment step on a row-locked
// booking.
func (r *BookingRepo) SetPaymentTx(ctx context.Context, tx *sql.Tx, id uint64, status model.BookingStatus, payStatus model.PaymentStatus, paymentID *string, confirmedAt *time.Time) error {
	const q = `UPDATE bookings SET status = ?, payment_status = ?, payment_id = ?, confirmed_at = ? WHERE booking_id = ?`
	_, err := tx.ExecContext(ctx, q, string(status), string(payStatus), paymentID, confirmedAt, id)
	return err
}

// UpdateStatusTx moves a booking to the given status.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.BookingStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ? WHERE booking_id = ?`, string(status), id)
	return err
}
