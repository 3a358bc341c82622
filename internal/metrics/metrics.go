// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationsTotal counts reserve attempts by path (immediate or
	// queued) and outcome (success or the error kind).
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "reservations_total",
		Help:      "Reserve operations by path and outcome.",
	}, []string{"path", "outcome"})

	// BookingsTotal counts booking creations by outcome.
	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "bookings_total",
		Help:      "Booking creations by outcome.",
	}, []string{"outcome"})

	// LockConflictsTotal counts immediate-path requests that lost the
	// race for their seat locks.
	LockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "lock_conflicts_total",
		Help:      "Requests rejected because seat locks were contended.",
	})

	// QueueEnqueuedTotal counts requests accepted onto the queue by
	// priority band.
	QueueEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "queue_enqueued_total",
		Help:      "Requests enqueued by priority band.",
	}, []string{"priority"})

	// QueueProcessedTotal counts queued requests by final status.
	QueueProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "queue_processed_total",
		Help:      "Queued requests finished by final status.",
	}, []string{"status"})

	// ReservationsReclaimedTotal counts holds returned to the pool by the
	// background reclaimer.
	ReservationsReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketing",
		Name:      "reservations_reclaimed_total",
		Help:      "Expired reservations reclaimed.",
	})
)
