package httpserver

import (
	"github.com/radiusdt/adpulse/internal/analytics"
	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/database"
	"github.com/radiusdt/adpulse/internal/geo"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/radiusdt/adpulse/internal/tracking"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server. DB, Redis
// and ClickHouse are optional; nil falls back to in-process storage.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Services is the wired analytics layer shared by the HTTP server, the
// simulator, the scheduled jobs and the seeder.
type Services struct {
	Catalog    *analytics.CatalogService
	Ingest     *analytics.IngestService
	Resync     *analytics.ResyncService
	Stats      *analytics.StatsService
	Simulation *analytics.SimulationService
	Tracking   *tracking.TrackingService

	Events storage.EventStore
	geo    *geo.Resolver
}

// BuildServices picks a backend for each store and wires the services.
func BuildServices(deps *Dependencies) *Services {
	cfg := deps.Config
	logger := deps.Logger

	var (
		catalogRepo storage.CatalogRepo
		aggregates  storage.AggregateStore
		simRepo     storage.SimulationRepo
		eventStore  storage.EventStore
		locker      storage.Locker
	)

	if deps.DB != nil {
		catalogRepo = storage.NewPostgresCatalogRepo(deps.DB.Pool)
		aggregates = storage.NewPostgresAggregateStore(deps.DB.Pool)
		simRepo = storage.NewPostgresSimulationRepo(deps.DB.Pool)
		eventStore = storage.NewPostgresEventStore(deps.DB.Pool)
	} else {
		catalogRepo = storage.NewInMemoryCatalogRepo()
		aggregates = storage.NewInMemoryAggregateStore()
		simRepo = storage.NewInMemorySimulationRepo()
		eventStore = storage.NewInMemoryEventStore()
	}

	if deps.ClickHouse != nil {
		eventStore = storage.NewClickHouseEventStore(deps.ClickHouse.Conn)
	}

	if deps.Redis != nil {
		locker = storage.NewRedisLocker(deps.Redis.Client, cfg.Aggregation.LockTTL, logger)
	} else {
		locker = storage.NewLocalLocker()
	}

	// Initialize region lookup
	var resolver *geo.Resolver
	if cfg.Geo.Enabled {
		provider, err := geo.NewMaxMindProvider(cfg.Geo.DatabasePath)
		if err != nil {
			logger.Warn("failed to initialize geo provider, regions will not be resolved", zap.Error(err))
		} else {
			resolver = geo.NewResolver(provider, cfg.Geo.CacheSize, cfg.Geo.CacheTTL, deps.Metrics)
		}
	}

	updater := analytics.NewUpdater(catalogRepo, aggregates, logger, deps.Metrics)

	ingest := analytics.NewIngestService(eventStore, updater, logger, deps.Metrics)
	ingest.SetGeoResolver(resolver)
	if cfg.Aggregation.StrictConsistency {
		ingest.SetStrictLocking(locker, cfg.Aggregation.LockWait)
	}

	resync := analytics.NewResyncService(catalogRepo, eventStore, aggregates, locker, analytics.ResyncOptions{
		LockWait:  cfg.Aggregation.LockWait,
		PageSize:  cfg.Aggregation.ResyncPageSize,
		BatchSize: cfg.Aggregation.ResyncBatchSize,
	}, logger, deps.Metrics)

	return &Services{
		Catalog:    analytics.NewCatalogService(catalogRepo, logger),
		Ingest:     ingest,
		Resync:     resync,
		Stats:      analytics.NewStatsService(catalogRepo, aggregates, simRepo, logger),
		Simulation: analytics.NewSimulationService(simRepo, logger),
		Tracking:   tracking.NewTrackingService(ingest, tracking.UserAgentDetector{}, cfg.Server.PublicURL, logger),
		Events:     eventStore,
		geo:        resolver,
	}
}

// Close releases resources owned by the services.
func (s *Services) Close() error {
	return s.geo.Close()
}
