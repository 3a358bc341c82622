// Package router wires HTTP routes to their handlers.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/seatlab/ticketing/internal/handler"
	"github.com/seatlab/ticketing/internal/middleware"
)

// RegisterOps registers the unauthenticated operational endpoints: health
// probes and the Prometheus scrape target.
func RegisterOps(e *echo.Echo, db *sql.DB, rdb redis.UniversalClient) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db, rdb))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterCatalog registers the event and seat catalog endpoints.  Reads
// are public; catalog writes sit behind the identity middleware like every
// other mutation.
func RegisterCatalog(e *echo.Echo, ev *handler.EventHandler, jwtSecret string) {
	e.GET("/v1/events", ev.List)
	e.GET("/v1/events/:id", ev.Get)
	e.GET("/v1/events/:id/seats", ev.ListSeats)

	g := e.Group("/v1")
	g.Use(middleware.Identity(jwtSecret))
	g.POST("/events", ev.Create)
	g.POST("/events/:id/seats", ev.CreateSeats)
}

// RegisterImmediate registers the lock-based v1 reservation and booking
// endpoints.  Every route requires an authenticated principal.
func RegisterImmediate(e *echo.Echo, res *handler.ReservationHandler, bk *handler.BookingHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.Identity(jwtSecret))
	if limiter != nil {
		g.Use(limiter)
	}

	g.POST("/reservations", res.Create)
	g.GET("/reservations", res.List)
	g.GET("/reservations/:id", res.Get)
	g.POST("/reservations/cancel-batch", res.CancelBatch)
	g.DELETE("/reservations/:id", res.Cancel)
	g.POST("/reservations/:id/extend", res.Extend)

	g.POST("/bookings", bk.Create)
	g.GET("/bookings", bk.List)
	g.GET("/bookings/:id", bk.Get)
	g.GET("/bookings/ref/:reference", bk.GetByReference)
	g.POST("/bookings/:id/confirm-payment", bk.ConfirmPayment)
	g.POST("/bookings/:id/cancel", bk.Cancel)
}

// RegisterQueued registers the queue-based v2 endpoints.
func RegisterQueued(e *echo.Echo, q *handler.QueueHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v2")
	g.Use(middleware.Identity(jwtSecret))
	if limiter != nil {
		g.Use(limiter)
	}

	g.POST("/reservations", q.Submit)
	g.GET("/reservations/:request_id", q.Status)
	g.DELETE("/reservations/:request_id", q.Cancel)
	g.GET("/queue/stats/:event_id", q.Stats)
	g.GET("/queue/health", q.Health)
}
