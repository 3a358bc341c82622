package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seatlab/ticketing/internal/engine"
	"github.com/seatlab/ticketing/internal/status"
)

// Processor executes a dequeued request and returns the client-visible
// result payload.
type Processor interface {
	Process(ctx context.Context, req TicketRequest) (any, error)
}

// Worker serializes all queued requests for a single event.  One worker
// per event is the concurrency model: no distributed locks are needed on
// this path because nothing else mutates the event's seats concurrently.
type Worker struct {
	queue     *Queue
	registry  *status.Registry
	proc      Processor
	eventID   uint64
	consumer  string
	claimIdle time.Duration
	logger    *zap.Logger
}

// NewWorker builds a worker for one event.  claimIdle is how long a
// message may sit in another consumer's pending list before this worker
// steals it.
func NewWorker(q *Queue, reg *status.Registry, proc Processor, eventID uint64, claimIdle time.Duration, logger *zap.Logger) *Worker {
	host, _ := os.Hostname()
	return &Worker{
		queue:     q,
		registry:  reg,
		proc:      proc,
		eventID:   eventID,
		consumer:  fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		claimIdle: claimIdle,
		logger: logger.With(
			zap.Uint64("event_id", eventID)),
	}
}

// Run consumes the event's queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.EnsureGroups(ctx, w.eventID); err != nil {
		return err
	}
	w.logger.Info("worker started", zap.String("consumer", w.consumer))

	lastClaim := time.Now()
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}
		if time.Since(lastClaim) >= w.claimIdle {
			lastClaim = time.Now()
			claimed, err := w.queue.Claim(ctx, w.consumer, w.eventID, w.claimIdle)
			if err != nil {
				w.logger.Warn("claim failed", zap.Error(err))
			}
			for _, msg := range claimed {
				w.handle(ctx, msg)
			}
		}
		msgs, err := w.queue.Dequeue(ctx, w.consumer, w.eventID)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopped")
				return nil
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range msgs {
			w.handle(ctx, msg)
		}
	}
}

// handle runs one request through the engine and records the outcome.
// The message is acknowledged only after the status registry holds the
// final state, so a crash in between causes a redelivery, which the
// terminal-status check below turns into a no-op.
func (w *Worker) handle(ctx context.Context, msg *Message) {
	req := msg.Request
	log := w.logger.With(zap.String("request_id", req.RequestID))

	st, err := w.registry.StatusOf(ctx, req.RequestID)
	if err == nil && st.Terminal() {
		log.Debug("skipping redelivered request", zap.String("status", string(st)))
		_ = w.queue.Ack(ctx, msg)
		return
	}

	cancelled, err := w.registry.CancelRequested(ctx, req.RequestID)
	if err != nil {
		log.Warn("cancel flag check failed", zap.Error(err))
	}
	if cancelled {
		if _, err := w.registry.Transition(ctx, req.RequestID, status.StatusCancelled, ""); err != nil {
			log.Error("record cancellation failed", zap.Error(err))
			return
		}
		_ = w.queue.Ack(ctx, msg)
		return
	}

	if _, err := w.registry.Transition(ctx, req.RequestID, status.StatusProcessing, ""); err != nil {
		log.Error("record processing failed", zap.Error(err))
		return
	}

	result, err := w.proc.Process(ctx, req)
	switch {
	case err == nil:
		if err := w.registry.Complete(ctx, req.RequestID, result); err != nil {
			log.Error("record completion failed", zap.Error(err))
			return
		}
	case engine.KindOf(err) == engine.KindInfraUnavailable:
		// Leave the message pending; a later claim retries it once the
		// backing stores recover.
		log.Warn("processing hit unavailable infrastructure", zap.Error(err))
		return
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Shutdown or a timeout interrupted the request before the engine
		// committed.  Leave the message pending so a later claim retries
		// it instead of failing work that never ran.
		log.Warn("processing interrupted", zap.Error(err))
		return
	case engine.KindOf(err) == "":
		// Unclassified failure, most likely a poisoned request.  The
		// terminal status goes down first; if it cannot be written the
		// message stays pending and a redelivery repeats the attempt.
		if ferr := w.registry.Fail(ctx, req.RequestID, "internal error"); ferr != nil {
			log.Error("record failure failed", zap.Error(ferr))
			return
		}
		if dlqErr := w.queue.ToDeadLetter(ctx, msg, err.Error()); dlqErr != nil {
			log.Error("dead letter failed", zap.Error(dlqErr))
		}
		return
	default:
		if ferr := w.registry.Fail(ctx, req.RequestID, err.Error()); ferr != nil {
			log.Error("record failure failed", zap.Error(ferr))
			return
		}
	}
	_ = w.queue.Ack(ctx, msg)
}

// WorkerPool lazily spawns one worker per event and owns their lifetimes.
type WorkerPool struct {
	queue     *Queue
	registry  *status.Registry
	proc      Processor
	claimIdle time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	running map[uint64]struct{}
	g       *errgroup.Group
	ctx     context.Context
}

// NewWorkerPool returns a pool whose workers stop when ctx is cancelled.
func NewWorkerPool(ctx context.Context, q *Queue, reg *status.Registry, proc Processor, claimIdle time.Duration, logger *zap.Logger) *WorkerPool {
	g, gctx := errgroup.WithContext(ctx)
	return &WorkerPool{
		queue:     q,
		registry:  reg,
		proc:      proc,
		claimIdle: claimIdle,
		logger:    logger,
		running:   make(map[uint64]struct{}),
		g:         g,
		ctx:       gctx,
	}
}

// Ensure starts the event's worker if it is not already running.
func (p *WorkerPool) Ensure(eventID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.running[eventID]; ok {
		return
	}
	p.running[eventID] = struct{}{}
	w := NewWorker(p.queue, p.registry, p.proc, eventID, p.claimIdle, p.logger)
	p.g.Go(func() error { return w.Run(p.ctx) })
}

// ActiveWorkers reports how many per-event workers are running.
func (p *WorkerPool) ActiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Wait blocks until every worker has exited.
func (p *WorkerPool) Wait() error { return p.g.Wait() }
