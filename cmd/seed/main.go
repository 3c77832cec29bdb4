package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/database"
	"github.com/radiusdt/adpulse/internal/httpserver"
	"github.com/radiusdt/adpulse/internal/middleware"
	"github.com/radiusdt/adpulse/internal/seed"
	"go.uber.org/zap"
)

func main() {
	defaults := seed.DefaultOptions()
	events := flag.Int("events", defaults.Events, "number of historical events to generate")
	batch := flag.Int("batch", defaults.BatchSize, "events written per batch")
	window := flag.Duration("window", defaults.Window, "how far back event timestamps are spread")
	rngSeed := flag.Int64("seed", defaults.Seed, "random seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := &httpserver.Dependencies{Config: cfg, Logger: logger}

	// Seeding into process memory would be lost on exit, so the stores are
	// required here.
	db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to bootstrap PostgreSQL schema", zap.Error(err))
	}
	deps.DB = db

	if cfg.Redis.Enabled {
		redis, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		deps.Redis = redis
	}

	if cfg.ClickHouse.Enabled {
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
		}
		defer ch.Close()
		if err := ch.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to bootstrap ClickHouse schema", zap.Error(err))
		}
		deps.ClickHouse = ch
	}

	services := httpserver.BuildServices(deps)
	defer services.Close()

	seeder := seed.NewSeeder(services.Catalog, services.Events, services.Resync, logger)

	start := time.Now()
	res, err := seeder.Run(ctx, seed.Options{
		Events:    *events,
		BatchSize: *batch,
		Window:    *window,
		Seed:      *rngSeed,
	})
	if err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
	if res.Skipped {
		return
	}

	logger.Info("seed complete",
		zap.Int("customers", res.Customers),
		zap.Int("brands", res.Brands),
		zap.Int("ads", res.Ads),
		zap.Int("events", res.Events),
		zap.Int("events_applied", res.Resync.EventsApplied),
		zap.Int("campaign_rows", res.Resync.CampaignRows),
		zap.Duration("duration", time.Since(start)),
	)
}
