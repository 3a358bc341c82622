// Package queue carries ticket requests over Redis streams.  Each event
// gets one stream per priority band; all workers join a single consumer
// group per stream so every message is processed exactly once per group,
// and unacknowledged messages survive worker crashes in the pending
// entries list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Priority selects which band of an event's queue a request lands in.
// Within an event, every high message is drained before any normal one,
// and every normal before any low.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// bands lists the priorities in drain order.
var bands = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// ParsePriority maps a client-supplied string onto a Priority, defaulting
// to normal.  "vip" and "premium" are aliases clients use for the high
// band; whether the caller is actually entitled to it is checked upstream.
func ParsePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "high", "vip", "premium":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

const (
	// group is the consumer group every worker joins.
	group = "ticketing-workers"
	// dlqStream collects messages that exhausted their delivery budget.
	dlqStream = "ticketing:dlq"
)

// TicketRequest is the unit of work a queued client submits.
type TicketRequest struct {
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	EventID   uint64    `json:"event_id"`
	SeatIDs   []uint64  `json:"seat_ids"`
	UserID    string    `json:"user_id"`
	SessionID *string   `json:"session_id,omitempty"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// Actions a TicketRequest can carry.
const (
	ActionReserve = "reserve"
	ActionBook    = "book"
)

// Message is a delivered request together with the coordinates needed to
// acknowledge it.
type Message struct {
	ID      string
	Stream  string
	Request TicketRequest
}

// Queue publishes and consumes ticket requests for all events.
type Queue struct {
	rdb    redis.UniversalClient
	block  time.Duration
	logger *zap.Logger
}

// New returns a Queue whose blocking reads wait up to block before giving
// the caller a chance to observe shutdown.
func New(rdb redis.UniversalClient, block time.Duration, logger *zap.Logger) *Queue {
	return &Queue{rdb: rdb, block: block, logger: logger}
}

// StreamKey names the stream for one event and priority band.
func StreamKey(eventID uint64, p Priority) string {
	return fmt.Sprintf("ticketing:queue:%d:%s", eventID, p)
}

// EnsureGroups creates the consumer group on every band of an event's
// queue.  Creating a group that already exists is not an error.
func (q *Queue) EnsureGroups(ctx context.Context, eventID uint64) error {
	for _, p := range bands {
		err := q.rdb.XGroupCreateMkStream(ctx, StreamKey(eventID, p), group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("queue: create group on %s: %w", StreamKey(eventID, p), err)
		}
	}
	return nil
}

// Enqueue appends the request to its event's stream for the request's
// priority band and returns the stream entry id.
func (q *Queue) Enqueue(ctx context.Context, req TicketRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("queue: marshal request %s: %w", req.RequestID, err)
	}
	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(req.EventID, req.Priority),
		Values: map[string]any{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("queue: enqueue %s: %w", req.RequestID, err)
	}
	q.logger.Debug("request enqueued",
		zap.String("request_id", req.RequestID),
		zap.Uint64("event_id", req.EventID),
		zap.String("priority", string(req.Priority)),
		zap.String("stream_id", id))
	return id, nil
}

// Position estimates how many requests sit ahead of a newly enqueued one:
// everything in the same band plus everything in higher bands.
func (q *Queue) Position(ctx context.Context, eventID uint64, p Priority) (int64, error) {
	var ahead int64
	for _, band := range bands {
		n, err := q.rdb.XLen(ctx, StreamKey(eventID, band)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("queue: xlen: %w", err)
		}
		ahead += n
		if band == p {
			break
		}
	}
	return ahead, nil
}

// Dequeue fetches the next batch of requests for an event, honouring band
// order.  Each band is probed without blocking, highest first; only when
// every band is empty does the call block across all three streams for up
// to the configured window.  Every message returned is already in this
// consumer's pending list, so the caller must process and acknowledge all
// of them, in order.  Returns an empty batch when nothing arrived in time.
func (q *Queue) Dequeue(ctx context.Context, consumer string, eventID uint64) ([]*Message, error) {
	for _, p := range bands {
		msgs, err := q.readGroup(ctx, consumer, []string{StreamKey(eventID, p)}, -1)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
	}
	streams := make([]string, 0, len(bands))
	for _, p := range bands {
		streams = append(streams, StreamKey(eventID, p))
	}
	return q.readGroup(ctx, consumer, streams, q.block)
}

// readGroup issues one XREADGROUP over the given streams and returns the
// delivered entries in stream (band) order.  block < 0 means do not block
// at all.
func (q *Queue) readGroup(ctx context.Context, consumer string, streams []string, block time.Duration) ([]*Message, error) {
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}
	res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  args,
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: read group: %w", err)
	}
	// COUNT applies per stream, so a multi-stream read can deliver one
	// entry per band. All of them are now pending on this consumer;
	// surface them in band order so the caller drains high first.
	var out []*Message
	for _, want := range streams {
		for _, s := range res {
			if s.Stream != want {
				continue
			}
			for _, m := range s.Messages {
				msg, err := q.decode(s.Stream, m)
				if err != nil {
					return nil, err
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (q *Queue) decode(stream string, m redis.XMessage) (*Message, error) {
	raw, ok := m.Values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("queue: entry %s on %s has no payload", m.ID, stream)
	}
	var req TicketRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("queue: decode entry %s on %s: %w", m.ID, stream, err)
	}
	return &Message{ID: m.ID, Stream: stream, Request: req}, nil
}

// Ack removes the message from the group's pending list.  Called only
// after the request's final status has been recorded, so a crash between
// processing and acking leads to redelivery, never loss.
func (q *Queue) Ack(ctx context.Context, msg *Message) error {
	if err := q.rdb.XAck(ctx, msg.Stream, group, msg.ID).Err(); err != nil {
		return fmt.Errorf("queue: ack %s on %s: %w", msg.ID, msg.Stream, err)
	}
	return nil
}

// ToDeadLetter copies a poisoned message onto the dead letter stream with
// the failure reason, then acknowledges the original.
func (q *Queue) ToDeadLetter(ctx context.Context, msg *Message, reason string) error {
	payload, err := json.Marshal(msg.Request)
	if err != nil {
		return fmt.Errorf("queue: marshal dead letter %s: %w", msg.Request.RequestID, err)
	}
	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStream,
		Values: map[string]any{
			"payload":       payload,
			"reason":        reason,
			"origin_stream": msg.Stream,
			"origin_id":     msg.ID,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("queue: dead letter %s: %w", msg.Request.RequestID, err)
	}
	q.logger.Warn("request dead-lettered",
		zap.String("request_id", msg.Request.RequestID), zap.String("reason", reason))
	return q.Ack(ctx, msg)
}

// Claim transfers messages that have been pending longer than minIdle to
// this consumer, so work owned by a crashed worker is retried.
func (q *Queue) Claim(ctx context.Context, consumer string, eventID uint64, minIdle time.Duration) ([]*Message, error) {
	var out []*Message
	for _, p := range bands {
		stream := StreamKey(eventID, p)
		msgs, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    "0",
			Count:    16,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("queue: autoclaim %s: %w", stream, err)
		}
		for _, m := range msgs {
			msg, err := q.decode(stream, m)
			if err != nil {
				q.logger.Warn("dropping undecodable claimed entry",
					zap.String("stream", stream), zap.String("id", m.ID), zap.Error(err))
				_ = q.rdb.XAck(ctx, stream, group, m.ID).Err()
				continue
			}
			out = append(out, msg)
		}
	}
	return out, nil
}

// BandStats describes one priority band of an event's queue.
type BandStats struct {
	Length  int64 `json:"length"`
	Pending int64 `json:"pending"`
}

// Stats reports queue depth and in-flight counts per band for an event.
func (q *Queue) Stats(ctx context.Context, eventID uint64) (map[Priority]BandStats, error) {
	out := make(map[Priority]BandStats, len(bands))
	for _, p := range bands {
		stream := StreamKey(eventID, p)
		length, err := q.rdb.XLen(ctx, stream).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("queue: xlen %s: %w", stream, err)
		}
		var pending int64
		info, err := q.rdb.XPending(ctx, stream, group).Result()
		if err == nil {
			pending = info.Count
		} else if !errors.Is(err, redis.Nil) && !strings.Contains(err.Error(), "NOGROUP") {
			return nil, fmt.Errorf("queue: xpending %s: %w", stream, err)
		}
		out[p] = BandStats{Length: length, Pending: pending}
	}
	return out, nil
}

// DeadLetterCount reports how many poisoned messages have accumulated.
func (q *Queue) DeadLetterCount(ctx context.Context) (int64, error) {
	n, err := q.rdb.XLen(ctx, dlqStream).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("queue: xlen dlq: %w", err)
	}
	return n, nil
}
