// Package status tracks the lifecycle of queued requests in Redis.  Each
// request gets a status hash and, on completion, a result hash; both live
// for a bounded retention window so clients can poll well after the fact.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RequestStatus enumerates the states a queued request moves through.
// Transitions only move forward; completed, failed and cancelled are
// terminal.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
	StatusCancelled  RequestStatus = "cancelled"
)

// Terminal reports whether s admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ErrUnknownRequest is returned when no status entry exists for an id,
// either because it never existed or its retention window lapsed.
var ErrUnknownRequest = errors.New("status: unknown request")

// transitionScript applies a status change only when it moves forward.
// A worker retrying a redelivered message cannot drag a terminal entry
// back to processing.
var transitionScript = redis.NewScript(`
local ranks = {pending=0, processing=1, completed=2, failed=2, cancelled=2}
local cur = redis.call("HGET", KEYS[1], "status")
local new = ARGV[1]
if cur and ranks[cur] and ranks[cur] >= ranks[new] then
	return 0
end
redis.call("HSET", KEYS[1], "status", new, "updated_at", ARGV[2])
if ARGV[3] ~= "" then
	redis.call("HSET", KEYS[1], "error", ARGV[3])
end
redis.call("EXPIRE", KEYS[1], ARGV[4])
return 1`)

// cancelScript flags a request for cancellation only while it is still
// waiting in the queue.
var cancelScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "status")
if cur == "pending" then
	redis.call("HSET", KEYS[1], "cancel_requested", "1", "updated_at", ARGV[1])
	return 1
end
return 0`)

// Entry is the externally visible state of a queued request.
type Entry struct {
	RequestID       string          `json:"request_id"`
	Status          RequestStatus   `json:"status"`
	Error           string          `json:"error,omitempty"`
	CancelRequested bool            `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Result          json.RawMessage `json:"result,omitempty"`
}

// Registry reads and writes request status entries.
type Registry struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRegistry returns a Registry retaining entries for ttl.
func NewRegistry(rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{rdb: rdb, ttl: ttl, logger: logger}
}

func statusKey(id string) string { return "ticketing:status:" + id }
func resultKey(id string) string { return "ticketing:result:" + id }

func (r *Registry) ttlSeconds() int64 { return int64(r.ttl / time.Second) }

// Create registers a freshly enqueued request as pending.
func (r *Registry) Create(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, statusKey(id),
		"request_id", id,
		"status", string(StatusPending),
		"created_at", now,
		"updated_at", now)
	pipe.Expire(ctx, statusKey(id), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("status: create %s: %w", id, err)
	}
	return nil
}

// Transition moves a request to the given status.  Returns false when the
// entry was already at or past that status.
func (r *Registry) Transition(ctx context.Context, id string, to RequestStatus, errMsg string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	n, err := transitionScript.Run(ctx, r.rdb, []string{statusKey(id)},
		string(to), now, errMsg, r.ttlSeconds()).Int()
	if err != nil {
		return false, fmt.Errorf("status: transition %s to %s: %w", id, to, err)
	}
	if n == 1 {
		r.logger.Debug("request status changed",
			zap.String("request_id", id), zap.String("status", string(to)))
	}
	return n == 1, nil
}

// Complete stores the operation's result payload and marks the request
// completed in that order, so a reader that observes completed always
// finds the result.
func (r *Registry) Complete(ctx context.Context, id string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("status: marshal result for %s: %w", id, err)
	}
	if err := r.rdb.Set(ctx, resultKey(id), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("status: store result for %s: %w", id, err)
	}
	_, err = r.Transition(ctx, id, StatusCompleted, "")
	return err
}

// Fail marks the request failed with a message for the client.
func (r *Registry) Fail(ctx context.Context, id, message string) error {
	_, err := r.Transition(ctx, id, StatusFailed, message)
	return err
}

// RequestCancel flags a still-queued request for cancellation.  Returns
// false when the request has already started processing or finished.
func (r *Registry) RequestCancel(ctx context.Context, id string) (bool, error) {
	exists, err := r.rdb.Exists(ctx, statusKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("status: cancel %s: %w", id, err)
	}
	if exists == 0 {
		return false, ErrUnknownRequest
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	n, err := cancelScript.Run(ctx, r.rdb, []string{statusKey(id)}, now).Int()
	if err != nil {
		return false, fmt.Errorf("status: cancel %s: %w", id, err)
	}
	return n == 1, nil
}

// CancelRequested reports whether a cancellation flag is set for id.
func (r *Registry) CancelRequested(ctx context.Context, id string) (bool, error) {
	v, err := r.rdb.HGet(ctx, statusKey(id), "cancel_requested").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("status: read cancel flag %s: %w", id, err)
	}
	return v == "1", nil
}

// Get loads the status entry and, when present, its result payload.
func (r *Registry) Get(ctx context.Context, id string) (*Entry, error) {
	fields, err := r.rdb.HGetAll(ctx, statusKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("status: get %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrUnknownRequest
	}
	e := &Entry{
		RequestID: fields["request_id"],
		Status:    RequestStatus(fields["status"]),
		Error:     fields["error"],
	}
	e.CancelRequested = fields["cancel_requested"] == "1"
	if t, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		e.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		e.UpdatedAt = t
	}
	if e.Status == StatusCompleted {
		payload, err := r.rdb.Get(ctx, resultKey(id)).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("status: get result %s: %w", id, err)
		}
		e.Result = payload
	}
	return e, nil
}

// StatusOf is a lighter Get for callers that only need the state.
func (r *Registry) StatusOf(ctx context.Context, id string) (RequestStatus, error) {
	v, err := r.rdb.HGet(ctx, statusKey(id), "status").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUnknownRequest
	}
	if err != nil {
		return "", fmt.Errorf("status: read %s: %w", id, err)
	}
	return RequestStatus(v), nil
}

// Touch extends the retention window of a live entry, used while a long
// request sits deep in the queue.
func (r *Registry) Touch(ctx context.Context, id string) error {
	return r.rdb.Expire(ctx, statusKey(id), r.ttl).Err()
}
