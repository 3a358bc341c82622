package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/seatlab/ticketing/internal/model"
)

// EventRepo provides data access to the events table.  The denormalized
// available_seats counter is always adjusted inside the same transaction
// as the seat-status mutation that changes it; see AdjustAvailableSeatsTx.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns an EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span multiple repositories.
func (r *EventRepo) DB() *sql.DB { return r.db }

const eventColumns = `event_id, event_name, event_date, venue_name, total_seats, available_seats, status, sale_start_time, created_at`

func scanEvent(row interface{ Scan(...any) error }) (*model.Event, error) {
	var (
		ev        model.Event
		venue     sql.NullString
		saleStart sql.NullTime
		status    string
	)
	err := row.Scan(&ev.ID, &ev.Name, &ev.EventDate, &venue, &ev.TotalSeats,
		&ev.AvailableSeats, &status, &saleStart, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	ev.Status = model.EventStatus(status)
	if venue.Valid {
		v := venue.String
		ev.VenueName = &v
	}
	if saleStart.Valid {
		t := saleStart.Time
		ev.SaleStartTime = &t
	}
	return &ev, nil
}

// Create inserts a new event and populates the generated ID.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
	const q = `INSERT INTO events (event_name, event_date, venue_name, total_seats, available_seats, status, sale_start_time)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, ev.Name, ev.EventDate, ev.VenueName,
		ev.TotalSeats, ev.AvailableSeats, string(ev.Status), ev.SaleStartTime)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)
	return nil
}

// GetByID loads a single event.  Returns ErrEventNotFound when absent.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE event_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// GetTx is GetByID inside an existing transaction.
func (r *EventRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Event, error) {
	ev, err := scanEvent(tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE event_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// List returns events, optionally filtered by status, newest first.
func (r *EventRepo) List(ctx context.Context, status *model.EventStatus) ([]model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if status != nil {
		q += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	q += ` ORDER BY event_date`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// AdjustAvailableSeatsTx moves the cached availability counter by delta
// within the caller's transaction.  The counter is advisory; the per-seat
// status remains authoritative, so the update is a plain relative add.
func (r *EventRepo) AdjustAvailableSeatsTx(ctx context.Context, tx *sql.Tx, eventID uint64, delta int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE events SET available_seats = available_seats + ? WHERE event_id = ?`,
		delta, eventID)
	return err
}

// AddSeatCapacityTx grows total_seats and available_seats when seats are
// created for an event.
func (r *EventRepo) AddSeatCapacityTx(ctx context.Context, tx *sql.Tx, eventID uint64, n int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE events SET total_seats = total_seats + ?, available_seats = available_seats + ? WHERE event_id = ?`,
		n, n, eventID)
	return err
}
