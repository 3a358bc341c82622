// Package service composes the engine with the coordination primitives:
// the immediate path wraps engine calls in distributed seat locks, the
// queued path feeds them through per-event worker queues.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/seatlab/ticketing/internal/engine"
	"github.com/seatlab/ticketing/internal/lock"
	"github.com/seatlab/ticketing/internal/metrics"
	"github.com/seatlab/ticketing/internal/model"
	"github.com/seatlab/ticketing/internal/repository"
)

// seatLockName returns the mutex name guarding one seat.
func seatLockName(id uint64) string { return fmt.Sprintf("seat:%d", id) }

func seatLockNames(ids []uint64) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = seatLockName(id)
	}
	return names
}

// outcomeLabel collapses an operation result into a metric label.
func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if kind := engine.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// acquireSeats takes the distributed locks for the given seats, mapping
// lock failures onto engine error kinds so handlers translate them
// uniformly.
func acquireSeats(ctx context.Context, locker *lock.Locker, seatIDs []uint64) (*lock.MultiLock, error) {
	m, err := locker.AcquireMulti(ctx, seatLockNames(seatIDs))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			metrics.LockConflictsTotal.Inc()
			return nil, engine.Errf(engine.KindRetryableConflict,
				"seats are being processed by another request, please retry")
		}
		return nil, engine.Errf(engine.KindInfraUnavailable, "lock store unavailable")
	}
	return m, nil
}

// ReservationService is the immediate (lock-based) reservation path.
type ReservationService struct {
	engine       *engine.Engine
	locker       *lock.Locker
	reservations *repository.ReservationRepo
	logger       *zap.Logger
}

// NewReservationService wires the immediate reservation path.
func NewReservationService(eng *engine.Engine, locker *lock.Locker, reservations *repository.ReservationRepo, logger *zap.Logger) *ReservationService {
	return &ReservationService{engine: eng, locker: locker, reservations: reservations, logger: logger}
}

// Reserve holds the requested seats for the user.  The distributed locks
// are held only for the duration of the engine transaction; row locks in
// the database are the correctness backstop, the distributed locks keep
// hot seats from hammering the same rows.
func (s *ReservationService) Reserve(ctx context.Context, eventID uint64, seatIDs []uint64, userID string, sessionID *string) ([]model.Reservation, int64, error) {
	m, err := acquireSeats(ctx, s.locker, seatIDs)
	if err != nil {
		metrics.ReservationsTotal.WithLabelValues("immediate", outcomeLabel(err)).Inc()
		return nil, 0, err
	}
	defer func() { _ = m.Release(ctx) }()

	res, total, err := s.engine.Reserve(ctx, eventID, seatIDs, userID, sessionID)
	metrics.ReservationsTotal.WithLabelValues("immediate", outcomeLabel(err)).Inc()
	return res, total, err
}

// Get returns a reservation if it belongs to the user.
func (s *ReservationService) Get(ctx context.Context, reservationID uint64, userID string) (*model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil, engine.Errf(engine.KindNotFound, "reservation %d not found", reservationID)
		}
		return nil, err
	}
	if res.UserID != userID {
		return nil, engine.Errf(engine.KindForbidden, "cannot view another user's reservation")
	}
	return res, nil
}

// List returns the user's reservations.
func (s *ReservationService) List(ctx context.Context, userID string, f repository.ReservationFilter) ([]model.Reservation, error) {
	return s.reservations.ListByUser(ctx, userID, f)
}

// Cancel voids the user's reservation, guarding the seat with its
// distributed lock like any other immediate-path mutation.
func (s *ReservationService) Cancel(ctx context.Context, reservationID uint64, userID string) error {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return engine.Errf(engine.KindNotFound, "reservation %d not found", reservationID)
		}
		return err
	}
	m, err := acquireSeats(ctx, s.locker, []uint64{res.SeatID})
	if err != nil {
		return err
	}
	defer func() { _ = m.Release(ctx) }()
	return s.engine.CancelReservation(ctx, reservationID, userID)
}

// CancelBatch cancels several of the user's reservations, best effort:
// a reservation that cannot be cancelled (already gone, not owned, not
// active) is skipped rather than failing the batch.  Returns how many
// were cancelled.
func (s *ReservationService) CancelBatch(ctx context.Context, reservationIDs []uint64, userID string) (int, error) {
	cancelled := 0
	for _, id := range reservationIDs {
		if err := s.Cancel(ctx, id, userID); err != nil {
			if engine.KindOf(err) == engine.KindInfraUnavailable {
				return cancelled, err
			}
			s.logger.Debug("batch cancel skipped reservation",
				zap.Uint64("reservation_id", id),
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// Extend moves the user's reservation deadline out by minutes.
func (s *ReservationService) Extend(ctx context.Context, reservationID uint64, userID string, minutes int) (*model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil, engine.Errf(engine.KindNotFound, "reservation %d not found", reservationID)
		}
		return nil, err
	}
	m, err := acquireSeats(ctx, s.locker, []uint64{res.SeatID})
	if err != nil {
		return nil, err
	}
	defer func() { _ = m.Release(ctx) }()
	return s.engine.ExtendReservation(ctx, reservationID, userID, minutes)
}
