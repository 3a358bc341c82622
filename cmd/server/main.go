package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seatlab/ticketing/internal/config"
	"github.com/seatlab/ticketing/internal/database"
	"github.com/seatlab/ticketing/internal/engine"
	"github.com/seatlab/ticketing/internal/handler"
	"github.com/seatlab/ticketing/internal/lock"
	"github.com/seatlab/ticketing/internal/middleware"
	"github.com/seatlab/ticketing/internal/notify"
	"github.com/seatlab/ticketing/internal/queue"
	"github.com/seatlab/ticketing/internal/reclaimer"
	"github.com/seatlab/ticketing/internal/repository"
	"github.com/seatlab/ticketing/internal/router"
	"github.com/seatlab/ticketing/internal/service"
	"github.com/seatlab/ticketing/internal/status"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Env == "prod" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	rdb, err := config.NewRedisClient()
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer rdb.Close()

	events := repository.NewEventRepo(db)
	seats := repository.NewSeatRepo(db)
	reservations := repository.NewReservationRepo(db)
	bookings := repository.NewBookingRepo(db)

	eng := engine.New(db, events, seats, reservations, bookings, engine.Config{
		ReservationTimeout: cfg.ReservationTimeout,
		MaxSeatsPerBooking: cfg.MaxSeatsPerBooking,
	}, logger.Named("engine"))

	locker := lock.NewLocker(rdb, lock.Options{
		TTL:        cfg.LockTTL,
		RetryDelay: cfg.LockRetryDelay,
		MaxRetries: cfg.LockMaxRetries,
	}, logger.Named("lock"))

	registry := status.NewRegistry(rdb, cfg.StatusTTL, logger.Named("status"))
	q := queue.New(rdb, cfg.QueueBlock, logger.Named("queue"))

	var notifier notify.Publisher = notify.NopPublisher{}
	if cfg.RabbitURL != "" {
		notifier = notify.NewAMQPPublisher(cfg.RabbitURL, logger.Named("notify"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := queue.NewWorkerPool(ctx, q, registry, service.NewRequestProcessor(eng),
		cfg.ClaimIdle, logger.Named("worker"))

	resSvc := service.NewReservationService(eng, locker, reservations, logger.Named("reserve"))
	bkSvc := service.NewBookingService(eng, locker, bookings, notifier, logger.Named("booking"))
	qSvc := service.NewQueuedService(q, registry, pool, events, rdb,
		cfg.PerRequestEstimate, logger.Named("queued"))

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	router.RegisterOps(e, db, rdb)
	router.RegisterCatalog(e, handler.NewEventHandler(events, seats), cfg.JWTSecret)
	router.RegisterImmediate(e, handler.NewReservationHandler(resSvc),
		handler.NewBookingHandler(bkSvc), cfg.JWTSecret, limiter)
	router.RegisterQueued(e, handler.NewQueueHandler(qSvc), cfg.JWTSecret, limiter)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rec := reclaimer.New(eng, cfg.ReclaimInterval, logger.Named("reclaimer"))
		return rec.Run(gctx)
	})
	if cfg.RabbitURL != "" {
		g.Go(func() error {
			return notify.StartConsumer(gctx, cfg.RabbitURL, logger.Named("consumer"))
		})
	}
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", ":"+cfg.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	if err := pool.Wait(); err != nil {
		logger.Error("worker pool exited", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
