// Package engine implements the seat lifecycle state machine.  Every
// operation runs inside a single database transaction and takes row locks
// on the implicated seats in seat_id order, so concurrent operations over
// overlapping seat sets serialize regardless of which path (immediate or
// queued) invoked them.  The engine itself takes no distributed locks;
// callers that need them wrap these primitives.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seatlab/ticketing/internal/model"
	"github.com/seatlab/ticketing/internal/repository"
	"github.com/seatlab/ticketing/internal/utils"
)

// Config carries the tunables the engine needs.
type Config struct {
	// ReservationTimeout is how long a hold lasts before the reclaimer
	// may return the seat to the pool.
	ReservationTimeout time.Duration
	// MaxSeatsPerBooking bounds the batch size of a single reserve call.
	MaxSeatsPerBooking int
}

// Engine drives seat, reservation and booking state.
type Engine struct {
	db           *sql.DB
	events       *repository.EventRepo
	seats        *repository.SeatRepo
	reservations *repository.ReservationRepo
	bookings     *repository.BookingRepo
	cfg          Config
	logger       *zap.Logger
	now          func() time.Time
}

// New constructs an Engine over the given repositories.
func New(db *sql.DB, events *repository.EventRepo, seats *repository.SeatRepo,
	reservations *repository.ReservationRepo, bookings *repository.BookingRepo,
	cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		db:           db,
		events:       events,
		seats:        seats,
		reservations: reservations,
		bookings:     bookings,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// inTx runs fn inside a transaction: any error from fn rolls everything
// back, so partial state is never observable.
func (e *Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// dedupe drops zero and repeated ids, preserving first-seen order.
func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// loadSeatsForUpdate locks the requested seats and validates existence and
// event membership.
func (e *Engine) loadSeatsForUpdate(ctx context.Context, tx *sql.Tx, eventID uint64, seatIDs []uint64) ([]model.Seat, error) {
	seats, err := e.seats.GetByIDsForUpdateTx(ctx, tx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("lock seats: %w", err)
	}
	if len(seats) != len(seatIDs) {
		return nil, Errf(KindNotFound, "one or more seats not found")
	}
	for _, s := range seats {
		if s.EventID != eventID {
			return nil, Errf(KindWrongEvent, "seat %d does not belong to event %d", s.ID, eventID)
		}
	}
	return seats, nil
}

// Reserve places an exclusive hold on every seat in seatIDs for user.  The
// batch succeeds or fails as a whole; all created reservations share one
// deadline so the client sees a single countdown.  Returns the
// reservations and the total price in cents.
func (e *Engine) Reserve(ctx context.Context, eventID uint64, seatIDs []uint64, userID string, sessionID *string) ([]model.Reservation, int64, error) {
	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return nil, 0, Errf(KindInvalidInput, "no valid seat ids provided")
	}
	if len(seatIDs) > e.cfg.MaxSeatsPerBooking {
		return nil, 0, Errf(KindInvalidInput, "cannot reserve more than %d seats", e.cfg.MaxSeatsPerBooking)
	}

	var (
		reservations []model.Reservation
		total        int64
	)
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		event, err := e.events.GetTx(ctx, tx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrEventNotFound) {
				return Errf(KindNotFound, "event %d not found", eventID)
			}
			return fmt.Errorf("load event: %w", err)
		}
		if event.Status != model.EventOnSale {
			return Errf(KindStateMismatch, "event %d is not on sale", eventID)
		}

		seats, err := e.loadSeatsForUpdate(ctx, tx, eventID, seatIDs)
		if err != nil {
			return err
		}
		var taken []string
		for _, s := range seats {
			if s.Status != model.SeatAvailable {
				taken = append(taken, s.SeatNumber)
			}
		}
		if len(taken) > 0 {
			return Unavailable(taken)
		}

		expiresAt := e.now().Add(e.cfg.ReservationTimeout)
		for _, s := range seats {
			if err := e.seats.MarkReservedTx(ctx, tx, s.ID, userID, expiresAt); err != nil {
				return fmt.Errorf("reserve seat %d: %w", s.ID, err)
			}
			res := model.Reservation{
				SeatID:    s.ID,
				EventID:   eventID,
				UserID:    userID,
				SessionID: sessionID,
				ExpiresAt: expiresAt,
				Status:    model.ReservationActive,
			}
			if err := e.reservations.CreateTx(ctx, tx, &res); err != nil {
				return fmt.Errorf("create reservation for seat %d: %w", s.ID, err)
			}
			reservations = append(reservations, res)
			total += s.PriceCents
		}
		return e.events.AdjustAvailableSeatsTx(ctx, tx, eventID, -len(seats))
	})
	if err != nil {
		return nil, 0, err
	}
	e.logger.Info("seats reserved",
		zap.Uint64("event_id", eventID),
		zap.String("user_id", userID),
		zap.Int("seats", len(reservations)),
		zap.Int64("total_cents", total))
	return reservations, total, nil
}

// Book converts the user's holds on seatIDs into a PENDING booking,
// snapshotting current prices into booking_seats and flipping the matching
// ACTIVE reservations to CONFIRMED.
func (e *Engine) Book(ctx context.Context, eventID uint64, seatIDs []uint64, userID string) (*model.Booking, error) {
	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return nil, Errf(KindInvalidInput, "no valid seat ids provided")
	}

	var booking *model.Booking
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		seats, err := e.loadSeatsForUpdate(ctx, tx, eventID, seatIDs)
		if err != nil {
			return err
		}
		var notHeld []string
		for _, s := range seats {
			if s.Status != model.SeatReserved {
				notHeld = append(notHeld, s.SeatNumber)
				continue
			}
			if s.ReservedBy == nil || *s.ReservedBy != userID {
				return Errf(KindForbidden, "seat %s is not reserved by you", s.SeatNumber)
			}
		}
		if len(notHeld) > 0 {
			return Unavailable(notHeld)
		}

		var total int64
		for _, s := range seats {
			total += s.PriceCents
		}
		b := model.Booking{
			EventID:          eventID,
			UserID:           userID,
			TotalAmountCents: total,
			Status:           model.BookingPending,
			PaymentStatus:    model.PaymentPending,
			Reference:        utils.NewBookingReference(),
		}
		if err := e.bookings.CreateTx(ctx, tx, &b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		bookingSeats := make([]model.BookingSeat, 0, len(seats))
		for _, s := range seats {
			bookingSeats = append(bookingSeats, model.BookingSeat{
				BookingID:  b.ID,
				SeatID:     s.ID,
				PriceCents: s.PriceCents,
			})
		}
		if err := e.bookings.AddSeatsTx(ctx, tx, bookingSeats); err != nil {
			return fmt.Errorf("attach booking seats: %w", err)
		}
		for _, s := range seats {
			if err := e.seats.MarkBookedTx(ctx, tx, s.ID, b.ID); err != nil {
				return fmt.Errorf("book seat %d: %w", s.ID, err)
			}
		}
		if err := e.reservations.ConfirmActiveBySeatsTx(ctx, tx, seatIDs, userID); err != nil {
			return fmt.Errorf("confirm reservations: %w", err)
		}
		booking = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("booking created",
		zap.Uint64("booking_id", booking.ID),
		zap.String("reference", booking.Reference),
		zap.String("user_id", userID))
	return booking, nil
}

// ConfirmPayment finalizes a PENDING booking after a successful payment.
func (e *Engine) ConfirmPayment(ctx context.Context, bookingID uint64, paymentID string) (*model.Booking, error) {
	var booking *model.Booking
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		b, err := e.bookings.GetByIDForUpdateTx(ctx, tx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrBookingNotFound) {
				return Errf(KindNotFound, "booking %d not found", bookingID)
			}
			return fmt.Errorf("load booking: %w", err)
		}
		if b.Status != model.BookingPending {
			return Errf(KindStateMismatch, "booking is not pending")
		}
		confirmedAt := e.now()
		if err := e.bookings.SetPaymentTx(ctx, tx, b.ID, model.BookingConfirmed,
			model.PaymentSuccess, &paymentID, &confirmedAt); err != nil {
			return fmt.Errorf("confirm payment: %w", err)
		}
		b.Status = model.BookingConfirmed
		b.PaymentStatus = model.PaymentSuccess
		b.PaymentID = &paymentID
		b.ConfirmedAt = &confirmedAt
		booking = b
		return nil
	})
	return booking, err
}

// FailPayment marks a PENDING booking's payment as failed and returns its
// seats to the available pool.
func (e *Engine) FailPayment(ctx context.Context, bookingID uint64, paymentID *string) (*model.Booking, error) {
	var booking *model.Booking
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		b, err := e.bookings.GetByIDForUpdateTx(ctx, tx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrBookingNotFound) {
				return Errf(KindNotFound, "booking %d not found", bookingID)
			}
			return fmt.Errorf("load booking: %w", err)
		}
		if b.Status != model.BookingPending {
			return Errf(KindStateMismatch, "booking is not pending")
		}
		released, err := e.releaseBookingSeatsTx(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if err := e.bookings.SetPaymentTx(ctx, tx, b.ID, model.BookingFailed,
			model.PaymentFailed, paymentID, nil); err != nil {
			return fmt.Errorf("fail payment: %w", err)
		}
		if released > 0 {
			if err := e.events.AdjustAvailableSeatsTx(ctx, tx, b.EventID, released); err != nil {
				return err
			}
		}
		b.Status = model.BookingFailed
		b.PaymentStatus = model.PaymentFailed
		b.PaymentID = paymentID
		booking = b
		return nil
	})
	return booking, err
}

// CancelBooking cancels a PENDING or CONFIRMED booking owned by userID and
// releases its seats.
func (e *Engine) CancelBooking(ctx context.Context, bookingID uint64, userID string) (*model.Booking, error) {
	var booking *model.Booking
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		b, err := e.bookings.GetByIDForUpdateTx(ctx, tx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrBookingNotFound) {
				return Errf(KindNotFound, "booking %d not found", bookingID)
			}
			return fmt.Errorf("load booking: %w", err)
		}
		if b.UserID != userID {
			return Errf(KindForbidden, "cannot cancel another user's booking")
		}
		if b.Status != model.BookingPending && b.Status != model.BookingConfirmed {
			return Errf(KindStateMismatch, "booking cannot be cancelled")
		}
		released, err := e.releaseBookingSeatsTx(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if err := e.bookings.UpdateStatusTx(ctx, tx, b.ID, model.BookingCancelled); err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		if released > 0 {
			if err := e.events.AdjustAvailableSeatsTx(ctx, tx, b.EventID, released); err != nil {
				return err
			}
		}
		b.Status = model.BookingCancelled
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("booking cancelled",
		zap.Uint64("booking_id", bookingID), zap.String("user_id", userID))
	return booking, nil
}

// releaseBookingSeatsTx returns every seat of a booking to AVAILABLE and
// reports how many were released.
func (e *Engine) releaseBookingSeatsTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (int, error) {
	seats, err := e.seats.ListByBookingForUpdateTx(ctx, tx, bookingID)
	if err != nil {
		return 0, fmt.Errorf("lock booking seats: %w", err)
	}
	for _, s := range seats {
		if err := e.seats.ReleaseTx(ctx, tx, s.ID); err != nil {
			return 0, fmt.Errorf("release seat %d: %w", s.ID, err)
		}
	}
	return len(seats), nil
}

// CancelReservation voids an ACTIVE reservation owned by userID, returning
// the seat to AVAILABLE when it is still held.
func (e *Engine) CancelReservation(ctx context.Context, reservationID uint64, userID string) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		res, err := e.reservations.GetByIDForUpdateTx(ctx, tx, reservationID)
		if err != nil {
			if errors.Is(err, repository.ErrReservationNotFound) {
				return Errf(KindNotFound, "reservation %d not found", reservationID)
			}
			return fmt.Errorf("load reservation: %w", err)
		}
		if res.UserID != userID {
			return Errf(KindForbidden, "cannot cancel another user's reservation")
		}
		if res.Status != model.ReservationActive {
			return Errf(KindStateMismatch, "reservation is not active")
		}
		seat, err := e.seats.GetByIDForUpdateTx(ctx, tx, res.SeatID)
		if err != nil {
			return fmt.Errorf("lock seat: %w", err)
		}
		// The seat may already have moved on (e.g. reclaimed moments
		// ago); release only when this hold still owns it.
		if seat.Status == model.SeatReserved {
			if err := e.seats.ReleaseTx(ctx, tx, seat.ID); err != nil {
				return fmt.Errorf("release seat %d: %w", seat.ID, err)
			}
			if err := e.events.AdjustAvailableSeatsTx(ctx, tx, res.EventID, 1); err != nil {
				return err
			}
		}
		return e.reservations.UpdateStatusTx(ctx, tx, res.ID, model.ReservationCancelled)
	})
}

// ExtendReservation moves an ACTIVE reservation's deadline to now plus the
// requested minutes, bounded to [1, 15].  Both the reservation and the
// seat's hold deadline move together.
func (e *Engine) ExtendReservation(ctx context.Context, reservationID uint64, userID string, minutes int) (*model.Reservation, error) {
	if minutes < 1 || minutes > 15 {
		return nil, Errf(KindInvalidInput, "extension must be between 1 and 15 minutes")
	}
	var out *model.Reservation
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		res, err := e.reservations.GetByIDForUpdateTx(ctx, tx, reservationID)
		if err != nil {
			if errors.Is(err, repository.ErrReservationNotFound) {
				return Errf(KindNotFound, "reservation %d not found", reservationID)
			}
			return fmt.Errorf("load reservation: %w", err)
		}
		if res.UserID != userID {
			return Errf(KindForbidden, "cannot extend another user's reservation")
		}
		if res.Status != model.ReservationActive {
			return Errf(KindStateMismatch, "reservation is not active")
		}
		newExpiry := e.now().Add(time.Duration(minutes) * time.Minute)
		seat, err := e.seats.GetByIDForUpdateTx(ctx, tx, res.SeatID)
		if err != nil {
			return fmt.Errorf("lock seat: %w", err)
		}
		if seat.Status == model.SeatReserved {
			if err := e.seats.UpdateHoldDeadlineTx(ctx, tx, seat.ID, newExpiry); err != nil {
				return fmt.Errorf("extend seat hold: %w", err)
			}
		}
		if err := e.reservations.UpdateExpiryTx(ctx, tx, res.ID, newExpiry); err != nil {
			return fmt.Errorf("extend reservation: %w", err)
		}
		res.ExpiresAt = newExpiry
		out = res
		return nil
	})
	return out, err
}

// ExpireOverdue flips ACTIVE reservations past their deadline to EXPIRED
// and returns still-held seats to AVAILABLE.  Seats booked just before the
// tick are left alone: the seat's own status, not expires_at, is
// authoritative.  Returns the number of reservations expired.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	var count int
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		overdue, err := e.reservations.ListExpiredActiveForUpdateTx(ctx, tx, e.now())
		if err != nil {
			return fmt.Errorf("load expired reservations: %w", err)
		}
		releasedPerEvent := make(map[uint64]int)
		for _, res := range overdue {
			if err := e.reservations.UpdateStatusTx(ctx, tx, res.ID, model.ReservationExpired); err != nil {
				return fmt.Errorf("expire reservation %d: %w", res.ID, err)
			}
			seat, err := e.seats.GetByIDForUpdateTx(ctx, tx, res.SeatID)
			if err != nil {
				return fmt.Errorf("lock seat %d: %w", res.SeatID, err)
			}
			if seat.Status == model.SeatReserved {
				if err := e.seats.ReleaseTx(ctx, tx, seat.ID); err != nil {
					return fmt.Errorf("release seat %d: %w", seat.ID, err)
				}
				releasedPerEvent[res.EventID]++
			}
			count++
		}
		for eventID, n := range releasedPerEvent {
			if err := e.events.AdjustAvailableSeatsTx(ctx, tx, eventID, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
