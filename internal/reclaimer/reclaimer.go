// Package reclaimer returns expired seat holds to the available pool on a
// fixed interval.
package reclaimer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seatlab/ticketing/internal/engine"
	"github.com/seatlab/ticketing/internal/metrics"
)

// Reclaimer periodically expires overdue reservations.
type Reclaimer struct {
	engine   *engine.Engine
	interval time.Duration
	logger   *zap.Logger
}

// New returns a Reclaimer sweeping every interval.
func New(eng *engine.Engine, interval time.Duration, logger *zap.Logger) *Reclaimer {
	return &Reclaimer{engine: eng, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled.  A failed sweep is logged and retried
// on the next tick; transient database errors must not kill the loop.
func (r *Reclaimer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Info("reclaimer started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reclaimer stopped")
			return nil
		case <-ticker.C:
			n, err := r.engine.ExpireOverdue(ctx)
			if err != nil {
				if ctx.Err() != nil {
					r.logger.Info("reclaimer stopped")
					return nil
				}
				r.logger.Error("reclaim sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				metrics.ReservationsReclaimedTotal.Add(float64(n))
				r.logger.Info("expired reservations reclaimed", zap.Int("count", n))
			}
		}
	}
}
