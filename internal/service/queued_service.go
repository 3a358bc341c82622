package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seatlab/ticketing/internal/engine"
	"github.com/seatlab/ticketing/internal/metrics"
	"github.com/seatlab/ticketing/internal/queue"
	"github.com/seatlab/ticketing/internal/repository"
	"github.com/seatlab/ticketing/internal/status"
	"github.com/seatlab/ticketing/internal/utils"
)

// vipSetKey holds the user ids entitled to automatic high priority.
const vipSetKey = "ticketing:vip"

// QueuedService is the queue-based reservation path: requests are
// accepted immediately and executed by the event's worker in arrival
// order within each priority band.
type QueuedService struct {
	queue    *queue.Queue
	registry *status.Registry
	pool     *queue.WorkerPool
	events   *repository.EventRepo
	rdb      redis.UniversalClient
	// perRequest is the processing time assumed when estimating waits.
	perRequest time.Duration
	logger     *zap.Logger
}

// NewQueuedService wires the queued reservation path.
func NewQueuedService(q *queue.Queue, reg *status.Registry, pool *queue.WorkerPool,
	events *repository.EventRepo, rdb redis.UniversalClient, perRequest time.Duration, logger *zap.Logger) *QueuedService {
	return &QueuedService{
		queue:      q,
		registry:   reg,
		pool:       pool,
		events:     events,
		rdb:        rdb,
		perRequest: perRequest,
		logger:     logger,
	}
}

// SubmitResult is the acceptance receipt for a queued request.
type SubmitResult struct {
	RequestID     string               `json:"request_id"`
	Status        status.RequestStatus `json:"status"`
	Priority      queue.Priority       `json:"priority"`
	QueuePosition int64                `json:"queue_position"`
	EstimatedWait float64              `json:"estimated_wait_seconds"`
}

// effectivePriority resolves the band a request lands in.  The client's
// priority header is advisory: high is granted only to members of the VIP
// set, everyone else is demoted to normal.
func (s *QueuedService) effectivePriority(ctx context.Context, userID, requested string) queue.Priority {
	p := queue.ParsePriority(requested)
	if p != queue.PriorityHigh {
		return p
	}
	isVIP, err := s.rdb.SIsMember(ctx, vipSetKey, userID).Result()
	if err != nil {
		s.logger.Warn("vip lookup failed", zap.String("user_id", userID), zap.Error(err))
		return queue.PriorityNormal
	}
	if !isVIP {
		return queue.PriorityNormal
	}
	return queue.PriorityHigh
}

// SubmitReserve validates and enqueues a reservation request.  Validation
// here covers only what can be checked without touching seat state; seat
// availability is decided by the worker when the request's turn comes.
func (s *QueuedService) SubmitReserve(ctx context.Context, eventID uint64, seatIDs []uint64, userID string, sessionID *string, requestedPriority string) (*SubmitResult, error) {
	if len(seatIDs) == 0 {
		return nil, engine.Errf(engine.KindInvalidInput, "no seat ids provided")
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, engine.Errf(engine.KindNotFound, "event %d not found", eventID)
		}
		return nil, err
	}

	req := queue.TicketRequest{
		RequestID: utils.NewRequestID(),
		Action:    queue.ActionReserve,
		EventID:   eventID,
		SeatIDs:   seatIDs,
		UserID:    userID,
		SessionID: sessionID,
		Priority:  s.effectivePriority(ctx, userID, requestedPriority),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.registry.Create(ctx, req.RequestID); err != nil {
		return nil, engine.Errf(engine.KindInfraUnavailable, "status store unavailable")
	}
	if _, err := s.queue.Enqueue(ctx, req); err != nil {
		return nil, engine.Errf(engine.KindInfraUnavailable, "queue unavailable")
	}
	s.pool.Ensure(eventID)
	metrics.QueueEnqueuedTotal.WithLabelValues(string(req.Priority)).Inc()

	position, err := s.queue.Position(ctx, eventID, req.Priority)
	if err != nil {
		position = 0
	}
	return &SubmitResult{
		RequestID:     req.RequestID,
		Status:        status.StatusPending,
		Priority:      req.Priority,
		QueuePosition: position,
		EstimatedWait: float64(position) * s.perRequest.Seconds(),
	}, nil
}

// Status returns the current state of a queued request, including its
// result once completed.
func (s *QueuedService) Status(ctx context.Context, requestID string) (*status.Entry, error) {
	e, err := s.registry.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, status.ErrUnknownRequest) {
			return nil, engine.Errf(engine.KindNotFound, "request %s not found", requestID)
		}
		return nil, err
	}
	return e, nil
}

// Cancel flags a still-queued request so the worker discards it.  Returns
// false when the request already started processing or finished.
func (s *QueuedService) Cancel(ctx context.Context, requestID string) (bool, error) {
	ok, err := s.registry.RequestCancel(ctx, requestID)
	if err != nil {
		if errors.Is(err, status.ErrUnknownRequest) {
			return false, engine.Errf(engine.KindNotFound, "request %s not found", requestID)
		}
		return false, err
	}
	return ok, nil
}

// EventQueueStats reports the queue depth of one event per band.
func (s *QueuedService) EventQueueStats(ctx context.Context, eventID uint64) (map[queue.Priority]queue.BandStats, error) {
	return s.queue.Stats(ctx, eventID)
}

// QueueHealth summarizes the queued path across all events.
type QueueHealth struct {
	ActiveWorkers int                                         `json:"active_workers"`
	DeadLetters   int64                                       `json:"dead_letters"`
	Events        map[uint64]map[queue.Priority]queue.BandStats `json:"events"`
}

// Health aggregates per-event queue stats for every known event.
func (s *QueuedService) Health(ctx context.Context) (*QueueHealth, error) {
	events, err := s.events.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	h := &QueueHealth{
		ActiveWorkers: s.pool.ActiveWorkers(),
		Events:        make(map[uint64]map[queue.Priority]queue.BandStats, len(events)),
	}
	for _, ev := range events {
		stats, err := s.queue.Stats(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		h.Events[ev.ID] = stats
	}
	h.DeadLetters, err = s.queue.DeadLetterCount(ctx)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ReserveResult is the payload stored for a completed queued reserve.
type ReserveResult struct {
	ReservationIDs []uint64  `json:"reservation_ids"`
	SeatIDs        []uint64  `json:"seat_ids"`
	ExpiresAt      time.Time `json:"expires_at"`
	TotalCents     int64     `json:"total_cents"`
}

// BookResult is the payload stored for a completed queued book.
type BookResult struct {
	BookingID  uint64 `json:"booking_id"`
	Reference  string `json:"booking_reference"`
	TotalCents int64  `json:"total_cents"`
	Status     string `json:"status"`
}

// RequestProcessor executes dequeued requests against the engine.  No
// distributed locks are taken on this path: the single worker per event
// is the serialization mechanism.
type RequestProcessor struct {
	engine *engine.Engine
}

// NewRequestProcessor returns the worker-side executor.
func NewRequestProcessor(eng *engine.Engine) *RequestProcessor {
	return &RequestProcessor{engine: eng}
}

// Process implements queue.Processor.
func (p *RequestProcessor) Process(ctx context.Context, req queue.TicketRequest) (any, error) {
	switch req.Action {
	case queue.ActionReserve:
		reservations, total, err := p.engine.Reserve(ctx, req.EventID, req.SeatIDs, req.UserID, req.SessionID)
		outcome := outcomeLabel(err)
		metrics.ReservationsTotal.WithLabelValues("queued", outcome).Inc()
		metrics.QueueProcessedTotal.WithLabelValues(outcome).Inc()
		if err != nil {
			return nil, err
		}
		result := ReserveResult{TotalCents: total}
		for _, r := range reservations {
			result.ReservationIDs = append(result.ReservationIDs, r.ID)
			result.SeatIDs = append(result.SeatIDs, r.SeatID)
			result.ExpiresAt = r.ExpiresAt
		}
		return result, nil
	case queue.ActionBook:
		booking, err := p.engine.Book(ctx, req.EventID, req.SeatIDs, req.UserID)
		outcome := outcomeLabel(err)
		metrics.BookingsTotal.WithLabelValues(outcome).Inc()
		metrics.QueueProcessedTotal.WithLabelValues(outcome).Inc()
		if err != nil {
			return nil, err
		}
		return BookResult{
			BookingID:  booking.ID,
			Reference:  booking.Reference,
			TotalCents: booking.TotalAmountCents,
			Status:     string(booking.Status),
		}, nil
	default:
		return nil, engine.Errf(engine.KindInvalidInput, "unknown action %q", req.Action)
	}
}

var _ queue.Processor = (*RequestProcessor)(nil)

// AddVIP and RemoveVIP manage the high-priority member set.
func (s *QueuedService) AddVIP(ctx context.Context, userID string) error {
	return s.rdb.SAdd(ctx, vipSetKey, userID).Err()
}

func (s *QueuedService) RemoveVIP(ctx context.Context, userID string) error {
	return s.rdb.SRem(ctx, vipSetKey, userID).Err()
}
