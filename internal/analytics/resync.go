package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/radiusdt/adpulse/internal/aggregate"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"go.uber.org/zap"
)

// ResyncResult summarizes one rebuild of the aggregate store.
type ResyncResult struct {
	EventsScanned int   `json:"events_scanned"`
	EventsApplied int   `json:"events_applied"`
	EventsSkipped int   `json:"events_skipped"`
	ScalarRows    int   `json:"scalar_rows"`
	CampaignRows  int   `json:"campaign_rows"`
	SeriesRows    int   `json:"series_rows"`
	DurationMs    int64 `json:"duration_ms"`
}

// ResyncService rebuilds the aggregates from the event log and clears
// them. Both hold the aggregates lock for their whole duration.
type ResyncService struct {
	catalog    storage.CatalogRepo
	events     storage.EventStore
	aggregates storage.AggregateStore
	locker     storage.Locker
	lockWait   time.Duration
	pageSize   int
	batchSize  int
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

type ResyncOptions struct {
	LockWait  time.Duration
	PageSize  int
	BatchSize int
}

func NewResyncService(
	catalog storage.CatalogRepo,
	events storage.EventStore,
	aggregates storage.AggregateStore,
	locker storage.Locker,
	opts ResyncOptions,
	logger *zap.Logger,
	m *metrics.Metrics,
) *ResyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &ResyncService{
		catalog:    catalog,
		events:     events,
		aggregates: aggregates,
		locker:     locker,
		lockWait:   opts.LockWait,
		pageSize:   opts.PageSize,
		batchSize:  opts.BatchSize,
		logger:     logger,
		metrics:    m,
	}
}

// Resync clears every aggregate and recomputes it from the full event log.
// Unlike incremental ingest it also computes the unique ad counts. Events
// whose ad or brand no longer exists are skipped.
func (s *ResyncService) Resync(ctx context.Context) (*ResyncResult, error) {
	start := time.Now()
	result, err := s.resync(ctx)
	if s.metrics != nil {
		scanned := 0
		if result != nil {
			scanned = result.EventsScanned
		}
		s.metrics.RecordResync(scanned, time.Since(start), err)
	}
	if err != nil {
		s.logger.Error("resync failed", zap.Error(err))
		return nil, err
	}

	result.DurationMs = time.Since(start).Milliseconds()
	s.logger.Info("resync completed",
		zap.Int("events_scanned", result.EventsScanned),
		zap.Int("events_applied", result.EventsApplied),
		zap.Int("events_skipped", result.EventsSkipped),
		zap.Int64("duration_ms", result.DurationMs),
	)
	return result, nil
}

func (s *ResyncService) resync(ctx context.Context) (*ResyncResult, error) {
	unlock, err := acquire(ctx, s.locker, aggregatesLock, s.lockWait, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire aggregates lock: %w", err)
	}
	defer release(unlock, s.logger, aggregatesLock)

	if err := s.aggregates.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear aggregates: %w", err)
	}

	lookup, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	result := &ResyncResult{}
	acc := aggregate.NewAccumulator(true)
	cursor := ""
	for {
		page, err := s.events.Scan(ctx, cursor, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to scan events: %w", err)
		}
		for _, e := range page.Events {
			result.EventsScanned++
			dims, ok := lookup.Dimensions(e.AdID, e.Device)
			if !ok {
				result.EventsSkipped++
				continue
			}
			acc.Add(dims, e.IsClick, aggregate.Bucket(e.Timestamp))
		}
		s.logger.Debug("resync page scanned",
			zap.Int("page_events", len(page.Events)),
			zap.Int("events_scanned", result.EventsScanned),
		)
		if page.Done {
			break
		}
		cursor = page.Cursor
	}
	result.EventsApplied = acc.Events()

	scalars := acc.Scalars()
	if err := writeChunks(ctx, scalars, s.batchSize, s.aggregates.InsertScalars); err != nil {
		return nil, fmt.Errorf("failed to write scalar metrics: %w", err)
	}
	campaigns := acc.Campaigns()
	if err := writeChunks(ctx, campaigns, s.batchSize, s.aggregates.InsertCampaigns); err != nil {
		return nil, fmt.Errorf("failed to write campaign metrics: %w", err)
	}
	series := acc.Series()
	if err := writeChunks(ctx, series, s.batchSize, s.aggregates.InsertTimeSeries); err != nil {
		return nil, fmt.Errorf("failed to write time series metrics: %w", err)
	}

	result.ScalarRows = len(scalars)
	result.CampaignRows = len(campaigns)
	result.SeriesRows = len(series)
	return result, nil
}

func (s *ResyncService) loadCatalog(ctx context.Context) (*Lookup, error) {
	ads, err := s.catalog.ListAds(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load ads: %w", err)
	}
	brands, err := s.catalog.ListBrands(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load brands: %w", err)
	}

	adMap := make(map[string]*models.Ad, len(ads))
	for _, a := range ads {
		adMap[a.ID] = a
	}
	brandMap := make(map[string]*models.Brand, len(brands))
	for _, b := range brands {
		brandMap[b.ID] = b
	}
	return newLookup(adMap, brandMap), nil
}

// ClearAggregates empties every aggregate table. The event log is kept.
func (s *ResyncService) ClearAggregates(ctx context.Context) error {
	unlock, err := acquire(ctx, s.locker, aggregatesLock, s.lockWait, s.metrics)
	if err != nil {
		return fmt.Errorf("failed to acquire aggregates lock: %w", err)
	}
	defer release(unlock, s.logger, aggregatesLock)

	if err := s.aggregates.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear aggregates: %w", err)
	}
	s.logger.Info("aggregates cleared")
	return nil
}

func writeChunks[T any](ctx context.Context, rows []T, size int, write func(context.Context, []T) error) error {
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		if err := write(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}
