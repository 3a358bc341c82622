package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/seatlab/ticketing/internal/model"
)

// ReservationRepo provides data access to the reservations table.  One row
// is created per seat per reserve call; rows from the same call share the
// same expires_at.  Timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `reservation_id, seat_id, event_id, user_id, session_id, expires_at, status, created_at`

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var (
		res     model.Reservation
		session sql.NullString
		status  string
	)
	err := row.Scan(&res.ID, &res.SeatID, &res.EventID, &res.UserID, &session,
		&res.ExpiresAt, &status, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	res.Status = model.ReservationStatus(status)
	if session.Valid {
		v := session.String
		res.SessionID = &v
	}
	return &res, nil
}

// CreateTx inserts a reservation within the caller's transaction and
// populates the generated ID and creation timestamp on the record.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (seat_id, event_id, user_id, session_id, expires_at, status)
	           VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, res.SeatID, res.EventID, res.UserID,
		res.SessionID, res.ExpiresAt.UTC(), string(res.Status))
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.CreatedAt = time.Now().UTC()
	return nil
}

// GetByID loads a reservation.  Returns ErrReservationNotFound when absent.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE reservation_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	return res, err
}

// GetByIDForUpdateTx loads a reservation with a row lock.
func (r *ReservationRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE reservation_id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	return res, err
}

// ReservationFilter narrows ListByUser results.  Nil fields are ignored.
type ReservationFilter struct {
	EventID *uint64
	Status  *model.ReservationStatus
}

// ListByUser returns a user's reservations, newest first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID string, f ReservationFilter) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = ?`
	args := []any{userID}
	if f.EventID != nil {
		q += ` AND event_id = ?`
		args = append(args, *f.EventID)
	}
	if f.Status != nil {
		q += ` AND status = ?`
		args = append(args, string(*f.Status))
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// UpdateStatusTx moves a reservation to the given status.
func (r *ReservationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ReservationStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ? WHERE reservation_id = ?`, string(status), id)
	return err
}

// UpdateExpiryTx moves a reservation's deadline.
func (r *ReservationRepo) UpdateExpiryTx(ctx context.Context, tx *sql.Tx, id uint64, expiresAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE reservations SET expires_at = ? WHERE reservation_id = ?`, expiresAt.UTC(), id)
	return err
}

// ConfirmActiveBySeatsTx flips the user's ACTIVE reservations on the given
// seats to CONFIRMED, as part of booking creation.
func (r *ReservationRepo) ConfirmActiveBySeatsTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64, userID string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	q := `UPDATE reservations SET status = 'CONFIRMED' WHERE seat_id IN (` + placeholders(len(seatIDs)) + `) AND user_id = ? AND status = 'ACTIVE'`
	args := append(idArgs(seatIDs), userID)
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// ListExpiredActiveForUpdateTx returns ACTIVE reservations whose deadline
// has passed, row-locked, in seat_id order so the reclaimer acquires seat
// row locks in the same order as every other transaction.
func (r *ReservationRepo) ListExpiredActiveForUpdateTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE status = 'ACTIVE' AND expires_at < ? ORDER BY seat_id FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}
