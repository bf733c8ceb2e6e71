package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/cinema-seat-booking/internal/config"
	"github.com/iliyamo/cinema-seat-booking/internal/database"
	"github.com/iliyamo/cinema-seat-booking/internal/handler"
	"github.com/iliyamo/cinema-seat-booking/internal/holdstore"
	"github.com/iliyamo/cinema-seat-booking/internal/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/middleware"
	"github.com/iliyamo/cinema-seat-booking/internal/queue"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
	"github.com/iliyamo/cinema-seat-booking/internal/reservation"
	"github.com/iliyamo/cinema-seat-booking/internal/router"
	"github.com/iliyamo/cinema-seat-booking/internal/service"
)

func main() {
	cfg, err := config.Load() // Load and validate environment config
	if err != nil {
		logger.New("prod", "error").Error("config", "error", err.Error())
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	var (
		db       *sql.DB
		pinger   handler.Pinger
		bookings reservation.BookingStore
		catalog  repository.CatalogReader
	)
	switch cfg.Storage {
	case "memory":
		mem := repository.NewMemoryBookings()
		bookings = mem
		catalog = repository.DemoCatalog(time.Now().UTC())
		log.Warn("using in-memory storage; bookings are lost on restart")
	default:
		db, err = database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.WithError(err).Error("open database")
			os.Exit(1)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Error("migrate database")
			os.Exit(1)
		}
		pinger = db
		bookings = repository.NewBookingRepo(db)
		catalog = repository.NewCatalogRepo(db)
	}

	// ---- Redis (optional) ----
	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and catalog cache disabled")
	} else {
		defer rdb.Close()
	}
	catalog = repository.NewCachedCatalog(config.LoadCatalogCacheConfig(), rdb, catalog)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)

	// ---- Reservation engine ----
	opts := []reservation.Option{}
	if cfg.AMQPURL != "" {
		pub := service.NewBookingPublisher(cfg.AMQPURL, log)
		defer pub.Close()
		opts = append(opts, reservation.WithPublisher(pub))
	}
	engine := reservation.New(reservation.Config{
		SelectionTTL:       cfg.Reservation.SelectionTTL,
		PaymentTTL:         cfg.Reservation.PaymentTTL,
		MaxSeatsPerSession: cfg.Reservation.MaxSeatsPerSession,
		SessionRetention:   cfg.Reservation.SessionRetention,
	}, holdstore.New(cfg.Reservation.HoldStripes), catalog, bookings, log, opts...)

	go reservation.NewSweeper(engine, cfg.Reservation.SweepInterval, log).Start(ctx)
	if cfg.AMQPURL != "" {
		go queue.StartBookingConsumer(ctx, cfg.AMQPURL, queue.NewAuditLog(cfg.AuditLogPath), log)
	}

	// ---- HTTP ----
	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, handler.Ready(pinger))
	router.RegisterReservation(e, handler.NewReservationHandler(engine, log), limiter)
	router.RegisterStaff(e, handler.NewStaffHandler(engine, log), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "storage", cfg.Storage, "engine", engine.String())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	log.Info("server stopped")
}
