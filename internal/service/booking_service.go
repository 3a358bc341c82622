package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/seatlab/ticketing/internal/engine"
	"github.com/seatlab/ticketing/internal/lock"
	"github.com/seatlab/ticketing/internal/metrics"
	"github.com/seatlab/ticketing/internal/model"
	"github.com/seatlab/ticketing/internal/notify"
	"github.com/seatlab/ticketing/internal/repository"
)

// BookingService is the immediate path for bookings and payments.
type BookingService struct {
	engine   *engine.Engine
	locker   *lock.Locker
	bookings *repository.BookingRepo
	notifier notify.Publisher
	logger   *zap.Logger
}

// NewBookingService wires the booking path.  notifier may be a no-op
// publisher when the broker is not configured.
func NewBookingService(eng *engine.Engine, locker *lock.Locker, bookings *repository.BookingRepo, notifier notify.Publisher, logger *zap.Logger) *BookingService {
	return &BookingService{engine: eng, locker: locker, bookings: bookings, notifier: notifier, logger: logger}
}

// Book converts the user's holds into a pending booking.
func (s *BookingService) Book(ctx context.Context, eventID uint64, seatIDs []uint64, userID string) (*model.Booking, error) {
	m, err := acquireSeats(ctx, s.locker, seatIDs)
	if err != nil {
		metrics.BookingsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	defer func() { _ = m.Release(ctx) }()

	b, err := s.engine.Book(ctx, eventID, seatIDs, userID)
	metrics.BookingsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	if err == nil {
		s.notifier.BookingCreated(ctx, b)
	}
	return b, err
}

// lockBookingSeats resolves a booking's seats and takes their locks.
func (s *BookingService) lockBookingSeats(ctx context.Context, bookingID uint64) (*lock.MultiLock, error) {
	seatIDs, err := s.bookings.SeatIDs(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if len(seatIDs) == 0 {
		// Booking without seats (or unknown id); let the engine report
		// the precise error under its own row locks.
		return nil, nil
	}
	return acquireSeats(ctx, s.locker, seatIDs)
}

// ConfirmPayment finalizes a pending booking after payment success.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID uint64, userID, paymentID string) (*model.Booking, error) {
	b, err := s.getOwned(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	m, err := s.lockBookingSeats(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		defer func() { _ = m.Release(ctx) }()
	}
	out, err := s.engine.ConfirmPayment(ctx, b.ID, paymentID)
	if err == nil {
		s.notifier.BookingConfirmed(ctx, out)
	}
	return out, err
}

// FailPayment records a failed payment and frees the booking's seats.
func (s *BookingService) FailPayment(ctx context.Context, bookingID uint64, userID string, paymentID *string) (*model.Booking, error) {
	b, err := s.getOwned(ctx, bookingID, userID)
	if err != nil {
		return nil, err
	}
	m, err := s.lockBookingSeats(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		defer func() { _ = m.Release(ctx) }()
	}
	return s.engine.FailPayment(ctx, b.ID, paymentID)
}

// Cancel cancels the user's booking and frees its seats.
func (s *BookingService) Cancel(ctx context.Context, bookingID uint64, userID string) (*model.Booking, error) {
	m, err := s.lockBookingSeats(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		defer func() { _ = m.Release(ctx) }()
	}
	b, err := s.engine.CancelBooking(ctx, bookingID, userID)
	if err == nil {
		s.notifier.BookingCancelled(ctx, b)
	}
	return b, err
}

// getOwned loads a booking and checks ownership.
func (s *BookingService) getOwned(ctx context.Context, bookingID uint64, userID string) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return nil, engine.Errf(engine.KindNotFound, "booking %d not found", bookingID)
		}
		return nil, err
	}
	if b.UserID != userID {
		return nil, engine.Errf(engine.KindForbidden, "cannot access another user's booking")
	}
	return b, nil
}

// Get returns the user's booking by id.
func (s *BookingService) Get(ctx context.Context, bookingID uint64, userID string) (*model.Booking, error) {
	return s.getOwned(ctx, bookingID, userID)
}

// GetByReference returns the user's booking by external reference.
func (s *BookingService) GetByReference(ctx context.Context, ref, userID string) (*model.Booking, error) {
	b, err := s.bookings.GetByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return nil, engine.Errf(engine.KindNotFound, "booking %s not found", ref)
		}
		return nil, err
	}
	if b.UserID != userID {
		return nil, engine.Errf(engine.KindForbidden, "cannot access another user's booking")
	}
	return b, nil
}

// List returns the user's bookings.
func (s *BookingService) List(ctx context.Context, userID string, status *model.BookingStatus) ([]model.Booking, error) {
	return s.bookings.ListByUser(ctx, userID, status)
}
