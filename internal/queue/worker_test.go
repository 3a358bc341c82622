package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seatlab/ticketing/internal/engine"
	"github.com/seatlab/ticketing/internal/status"
)

type fakeProcessor struct {
	calls  []string
	result any
	err    error
}

func (f *fakeProcessor) Process(_ context.Context, req TicketRequest) (any, error) {
	f.calls = append(f.calls, req.RequestID)
	return f.result, f.err
}

func newWorkerFixture(t *testing.T, proc *fakeProcessor) (*Worker, *Queue, *status.Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	q := New(rdb, 50*time.Millisecond, zap.NewNop())
	reg := status.NewRegistry(rdb, 24*time.Hour, zap.NewNop())
	w := NewWorker(q, reg, proc, 1, 30*time.Second, zap.NewNop())
	return w, q, reg, mr
}

func enqueueAndFetch(t *testing.T, q *Queue, w *Worker, reg *status.Registry, id string) *Message {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, q.EnsureGroups(ctx, 1))
	require.NoError(t, reg.Create(ctx, id))
	_, err := q.Enqueue(ctx, testRequest(1, id, PriorityNormal))
	require.NoError(t, err)
	msgs, err := q.Dequeue(ctx, w.consumer, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	return msgs[0]
}

func TestHandleCompletesAndAcks(t *testing.T) {
	proc := &fakeProcessor{result: map[string]any{"total_cents": 5000}}
	w, q, reg, _ := newWorkerFixture(t, proc)
	ctx := context.Background()

	msg := enqueueAndFetch(t, q, w, reg, "ok-1")
	w.handle(ctx, msg)

	e, err := reg.Get(ctx, "ok-1")
	require.NoError(t, err)
	assert.Equal(t, status.StatusCompleted, e.Status)
	assert.JSONEq(t, `{"total_cents":5000}`, string(e.Result))
	assert.Equal(t, []string{"ok-1"}, proc.calls)

	stats, err := q.Stats(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats[PriorityNormal].Pending)
}

func TestHandleSkipsRedelivery(t *testing.T) {
	proc := &fakeProcessor{result: "done"}
	w, q, reg, _ := newWorkerFixture(t, proc)
	ctx := context.Background()

	msg := enqueueAndFetch(t, q, w, reg, "dup-1")
	w.handle(ctx, msg)
	require.Len(t, proc.calls, 1)

	// Simulate a redelivery of the same entry after a crash between the
	// registry write and the ack.
	w.handle(ctx, msg)
	assert.Len(t, proc.calls, 1)

	e, err := reg.Get(ctx, "dup-1")
	require.NoError(t, err)
	assert.Equal(t, status.StatusCompleted, e.Status)
}

func TestHandleHonoursCancelFlag(t *testing.T) {
	proc := &fakeProcessor{}
	w, q, reg, _ := newWorkerFixture(t, proc)
	ctx := context.Background()

	msg := enqueueAndFetch(t, q, w, reg, "cancel-1")
	ok, err := reg.RequestCancel(ctx, "cancel-1")
	require.NoError(t, err)
	require.True(t, ok)

	w.handle(ctx, msg)

	assert.Empty(t, proc.calls)
	st, err := reg.StatusOf(ctx, "cancel-1")
	require.NoError(t, err)
	assert.Equal(t, status.StatusCancelled, st)
}

func TestHandleRecordsBusinessFailure(t *testing.T) {
	proc := &fakeProcessor{err: engine.Unavailable([]string{"A1", "A2"})}
	w, q, reg, _ := newWorkerFixture(t, proc)
	ctx := context.Background()

	msg := enqueueAndFetch(t, q, w, reg, "fail-1")
	w.handle(ctx, msg)

	e, err := reg.Get(ctx, "fail-1")
	require.NoError(t, err)
	assert.Equal(t, status.StatusFailed, e.Status)
	assert.Equal(t, "Seats not available: A1, A2", e.Error)

	stats, err := q.Stats(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats[PriorityNormal].Pending)
}

func TestHandleLeavesInterruptedRequestsPending(t *testing.T) {
	proc := &fakeProcessor{err: context.Canceled}
	w, q, reg, _ := newWorkerFixture(t, proc)
	ctx := context.Background()

	msg := enqueueAndFetch(t, q, w, reg, "stop-1")
	w.handle(ctx, msg)

	// The engine never committed, so the request must not be failed or
	// dead-lettered; a later claim runs it again.
	st, err := reg.StatusOf(ctx, "stop-1")
	require.NoError(t, err)
	assert.Equal(t, status.StatusProcessing, st)

	n, err := q.DeadLetterCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	stats, err := q.Stats(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats[PriorityNormal].Pending)
}

func TestHandleDeadLettersPoisonedRequests(t *testing.T) {
	proc := &fakeProcessor{err: errors.New(`unknown action "upgrade"`)}
	w, q, reg, _ := newWorkerFixture(t, proc)
	ctx := context.Background()

	msg := enqueueAndFetch(t, q, w, reg, "poison-1")
	w.handle(ctx, msg)

	e, err := reg.Get(ctx, "poison-1")
	require.NoError(t, err)
	assert.Equal(t, status.StatusFailed, e.Status)
	assert.Equal(t, "internal error", e.Error)

	n, err := q.DeadLetterCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stats, err := q.Stats(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats[PriorityNormal].Pending)
}

func TestHandleLeavesInfraFailuresPending(t *testing.T) {
	proc := &fakeProcessor{err: engine.Errf(engine.KindInfraUnavailable, "store down")}
	w, q, reg, _ := newWorkerFixture(t, proc)
	ctx := context.Background()

	msg := enqueueAndFetch(t, q, w, reg, "infra-1")
	w.handle(ctx, msg)

	st, err := reg.StatusOf(ctx, "infra-1")
	require.NoError(t, err)
	assert.Equal(t, status.StatusProcessing, st)

	stats, err := q.Stats(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats[PriorityNormal].Pending)
}
