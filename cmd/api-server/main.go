package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicops/clinic-scheduling/internal/api"
	"github.com/clinicops/clinic-scheduling/internal/booking"
	"github.com/clinicops/clinic-scheduling/internal/config"
	"github.com/clinicops/clinic-scheduling/internal/db"
	redisclient "github.com/clinicops/clinic-scheduling/internal/redis"
	"github.com/clinicops/clinic-scheduling/internal/schedule"
	"github.com/clinicops/clinic-scheduling/pkg/logging"
)

const version = "1.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	scheduleRepo := schedule.NewPgRepository(pgPool)
	availability := schedule.NewAvailability(scheduleRepo)
	cachedSlots := schedule.NewCachedSlots(availability, rdb, cfg.SlotCacheTTL, logger)
	scheduleSvc := schedule.NewService(scheduleRepo, cachedSlots, logger)

	ledger := booking.NewPgLedger(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	engine := booking.NewEngine(ledger, cachedSlots, availability, locker, logger)

	router := api.NewRouter(api.RouterConfig{
		Bookings: engine,
		Slots:    slotService{cached: cachedSlots, avail: availability},
		Admin:    scheduleSvc,
		Logger:   logger,
		PgPool:   pgPool,
		Redis:    rdb,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	logger.Info("api-server stopped")
}

// slotService combines the cached slot lister with the availability
// predicate for the public slots endpoint.
type slotService struct {
	cached *schedule.CachedSlots
	avail  *schedule.Availability
}

func (s slotService) SlotsForDate(ctx context.Context, d schedule.Date) ([]schedule.TimeOfDay, error) {
	return s.cached.SlotsForDate(ctx, d)
}

func (s slotService) IsDateAvailable(ctx context.Context, d schedule.Date) (bool, error) {
	return s.avail.IsDateAvailable(ctx, d)
}
