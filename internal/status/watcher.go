package status

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Watch polls a request's entry and delivers a snapshot whenever its
// status changes, starting with the current state.  While the status is
// unchanged a keep-alive snapshot is re-sent every keepAlive, and the
// entry's retention window is extended so a long wait deep in the queue
// does not outlive its status record.  The channel closes after a
// terminal status is delivered, when the entry disappears, or when ctx
// is done.  Intended for server-side streaming of queued request
// progress.
func (r *Registry) Watch(ctx context.Context, id string, interval, keepAlive time.Duration) <-chan Entry {
	out := make(chan Entry, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last RequestStatus
		lastSent := time.Now()
		for {
			e, err := r.Get(ctx, id)
			if err != nil {
				if !errors.Is(err, ErrUnknownRequest) {
					r.logger.Warn("status watch poll failed",
						zap.String("request_id", id), zap.Error(err))
				}
				return
			}
			send := e.Status != last
			if !send && keepAlive > 0 && time.Since(lastSent) >= keepAlive {
				if terr := r.Touch(ctx, id); terr != nil {
					r.logger.Warn("status watch touch failed",
						zap.String("request_id", id), zap.Error(terr))
				}
				send = true
			}
			if send {
				last = e.Status
				lastSent = time.Now()
				select {
				case out <- *e:
				case <-ctx.Done():
					return
				}
				if e.Status.Terminal() {
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
