package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // APP_TIMEZONE must resolve in minimal images

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/booking"
	"github.com/iliyamo/cinema-booking/internal/cinemaapi"
	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/logger"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/router"
	"github.com/iliyamo/cinema-booking/internal/store"
)

func main() {
	cfg := config.Load()
	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := config.NewRedisClient()
	if rdb == nil {
		zl.Warn("redis unavailable: rate limit and cache disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	bills, closeBills, err := openBillStore(ctx, cfg, rdb, zl)
	if err != nil {
		zl.Fatal("active bill store", zap.Error(err))
	}
	defer closeBills()

	api := cinemaapi.New(cfg.CinemaAPIBaseURL, cfg.CinemaAPIPrefix,
		cinemaapi.WithTimeout(cfg.CinemaAPITimeout),
		cinemaapi.WithLogger(zl.Named("cinemaapi")),
	)

	deps := booking.Deps{API: api, Bills: bills, Log: zl}
	if cfg.BookingEventsEnabled {
		deps.Events = queue.NewPublisher(cfg.RabbitURL, zl)
	}
	sessions := booking.NewManager(deps, booking.Settings{SeatPrice: cfg.SeatPrice, MaxSeats: cfg.MaxSeats})
	defer sessions.Close()
	go sessions.RunSweeper(ctx, time.Minute, cfg.SessionIdleTTL)

	if cfg.BookingConsumerEnabled {
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.BookingLogPath, zl)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("booking consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(zl.Named("http")))

	guards := router.Guards{
		Auth:  middleware.JWTAuth(cfg.JWTSecret, middleware.NewUserResolver(api, cinemaapi.WithToken, rdb, 15*time.Minute)),
		Limit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, zl.Named("ratelimit")),
		Cache: middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	}
	router.RegisterRoutes(e)
	router.RegisterBooking(e, handler.NewBookingHandler(sessions, api, zl), guards)
	router.RegisterCheckout(e, handler.NewCheckoutHandler(sessions, zl), guards)
	router.RegisterBrowse(e, handler.NewBrowseHandler(api, sessions, cfg.Location, zl), guards)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("upstream", cfg.CinemaAPIBaseURL+cfg.CinemaAPIPrefix))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Warn("shutdown", zap.Error(err))
	}
}

// openBillStore picks the active-bill backend.  Redis falls back to the
// in-memory store when the server is unreachable; mysql failures are fatal.
func openBillStore(ctx context.Context, cfg config.Config, rdb *redis.Client, zl *zap.Logger) (store.ActiveBills, func(), error) {
	kind, err := store.ParseKind(cfg.ActiveBillStore)
	if err != nil {
		return nil, nil, err
	}
	switch kind {
	case store.KindMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewMySQLStore(db, cfg.ActiveBillTTL)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, func() { _ = db.Close() }, nil
	case store.KindRedis:
		if rdb != nil {
			return store.NewRedisStore(rdb, "active_bill", cfg.ActiveBillTTL), func() {}, nil
		}
		zl.Warn("redis unavailable: active bills kept in memory")
	}
	return store.NewMemoryStore(cfg.ActiveBillTTL), func() {}, nil
}
