package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, 50*time.Millisecond, zap.NewNop()), mr, rdb
}

func testRequest(event uint64, id string, p Priority) TicketRequest {
	return TicketRequest{
		RequestID: id,
		Action:    ActionReserve,
		EventID:   event,
		SeatIDs:   []uint64{1, 2},
		UserID:    "u1",
		Priority:  p,
		CreatedAt: time.Now().UTC(),
	}
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ParsePriority("HIGH"))
	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityNormal, ParsePriority(""))
	assert.Equal(t, PriorityNormal, ParsePriority("bogus"))
}

func TestDequeueDrainsBandsInOrder(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroups(ctx, 1))

	_, err := q.Enqueue(ctx, testRequest(1, "low-1", PriorityLow))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, testRequest(1, "normal-1", PriorityNormal))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, testRequest(1, "high-1", PriorityHigh))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, testRequest(1, "high-2", PriorityHigh))
	require.NoError(t, err)

	var got []string
	for {
		msgs, err := q.Dequeue(ctx, "c1", 1)
		require.NoError(t, err)
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			got = append(got, m.Request.RequestID)
			require.NoError(t, q.Ack(ctx, m))
		}
	}
	assert.Equal(t, []string{"high-1", "high-2", "normal-1", "low-1"}, got)
}

func TestAckClearsPending(t *testing.T) {
	q, _, rdb := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroups(ctx, 2))

	_, err := q.Enqueue(ctx, testRequest(2, "r1", PriorityNormal))
	require.NoError(t, err)

	msgs, err := q.Dequeue(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	stream := StreamKey(2, PriorityNormal)
	info, err := rdb.XPending(ctx, stream, group).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.Count)

	require.NoError(t, q.Ack(ctx, msgs[0]))
	info, err = rdb.XPending(ctx, stream, group).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, info.Count)
}

func TestPositionCountsSameAndHigherBands(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, testRequest(3, "h", PriorityHigh))
		require.NoError(t, err)
	}
	_, err := q.Enqueue(ctx, testRequest(3, "n", PriorityNormal))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, testRequest(3, "l", PriorityLow))
	require.NoError(t, err)

	pos, err := q.Position(ctx, 3, PriorityHigh)
	require.NoError(t, err)
	assert.EqualValues(t, 3, pos)

	pos, err = q.Position(ctx, 3, PriorityNormal)
	require.NoError(t, err)
	assert.EqualValues(t, 4, pos)

	pos, err = q.Position(ctx, 3, PriorityLow)
	require.NoError(t, err)
	assert.EqualValues(t, 5, pos)
}

func TestToDeadLetter(t *testing.T) {
	q, _, rdb := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroups(ctx, 4))

	_, err := q.Enqueue(ctx, testRequest(4, "bad", PriorityNormal))
	require.NoError(t, err)
	msgs, err := q.Dequeue(ctx, "c1", 4)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, q.ToDeadLetter(ctx, msgs[0], "unknown action"))

	n, err := q.DeadLetterCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	info, err := rdb.XPending(ctx, StreamKey(4, PriorityNormal), group).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, info.Count)
}

func TestStats(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.EnsureGroups(ctx, 5))

	for i := 0; i < 2; i++ {
		_, err := q.Enqueue(ctx, testRequest(5, "n", PriorityNormal))
		require.NoError(t, err)
	}
	msgs, err := q.Dequeue(ctx, "c1", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	stats, err := q.Stats(ctx, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats[PriorityNormal].Length)
	assert.EqualValues(t, 1, stats[PriorityNormal].Pending)
	assert.EqualValues(t, 0, stats[PriorityHigh].Length)
}
