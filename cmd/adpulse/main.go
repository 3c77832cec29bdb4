package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/database"
	"github.com/radiusdt/adpulse/internal/httpserver"
	"github.com/radiusdt/adpulse/internal/jobs"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/middleware"
	"github.com/radiusdt/adpulse/internal/simulator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet, fall back to panic
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting adpulse",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.Bool("strict_consistency", cfg.Aggregation.StrictConsistency),
	)

	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := &httpserver.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewMetrics("adpulse"),
	}
	closeStores := connectStores(ctx, cfg, deps)
	defer closeStores()

	services := httpserver.BuildServices(deps)
	defer services.Close()

	handler := httpserver.NewServer(deps, services)

	// Apply middleware chain (order matters: outermost first)
	// Recovery -> Logging -> RateLimit -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger, cfg.Metrics.Path)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	rateLimitMW.SetMetrics(deps.Metrics)

	finalHandler := recoveryMW.Handler(
		loggingMW.Handler(
			rateLimitMW.Handler(
				rateLimitMW.HandlerPerIP(handler),
			),
		),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Minute,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	cronManager := jobs.NewManager(logger)
	resyncJob := jobs.NewResyncJob(services.Resync, 30*time.Minute, logger)
	if err := cronManager.Register("resync", cfg.Jobs.ResyncSchedule, resyncJob); err != nil {
		logger.Fatal("failed to schedule resync", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", zap.Error(err))
		}
		cronManager.Stop(shutdownCtx)
		return nil
	})

	if cfg.Simulator.Enabled {
		runner := simulator.NewRunner(services.Ingest, services.Simulation, services.Catalog, simulator.Config{
			IdleInterval:       cfg.Simulator.PollInterval,
			EventsPerIntensity: cfg.Simulator.EventsPerIntensity,
		}, logger, deps.Metrics)
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}

	cronManager.Start()

	// Start rate limiter cleanup goroutine
	g.Go(func() error {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rateLimitMW.CleanupIPLimiters()
			case <-gctx.Done():
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

// connectStores opens every enabled backend and bootstraps its schema.
// A backend that cannot be reached is left nil so the in-process store is
// used instead. The returned function closes whatever was opened.
func connectStores(ctx context.Context, cfg *config.Config, deps *httpserver.Dependencies) func() {
	logger := deps.Logger
	var closers []func()

	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Warn("PostgreSQL unavailable, using in-memory storage", zap.Error(err))
		} else if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to bootstrap PostgreSQL schema", zap.Error(err))
		} else {
			deps.DB = db
			deps.Metrics.RegisterPool("postgres", db.PoolStats)
			closers = append(closers, db.Close)
		}
	}

	if cfg.Redis.Enabled {
		redis, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis unavailable, using in-process locking", zap.Error(err))
		} else {
			deps.Redis = redis
			deps.Metrics.RegisterPool("redis", redis.PoolStats)
			closers = append(closers, func() { _ = redis.Close() })
		}
	}

	if cfg.ClickHouse.Enabled {
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
		}
		if err := ch.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to bootstrap ClickHouse schema", zap.Error(err))
		}
		deps.ClickHouse = ch
		closers = append(closers, func() { _ = ch.Close() })
	}

	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}
