package seed

import (
	"context"
	"testing"

	"github.com/radiusdt/adpulse/internal/analytics"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSeederRun(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	catalogRepo := storage.NewInMemoryCatalogRepo()
	events := storage.NewInMemoryEventStore()
	aggregates := storage.NewInMemoryAggregateStore()

	catalog := analytics.NewCatalogService(catalogRepo, logger)
	resync := analytics.NewResyncService(catalogRepo, events, aggregates, nil, analytics.ResyncOptions{}, logger, nil)
	stats := analytics.NewStatsService(catalogRepo, aggregates, nil, logger)
	s := NewSeeder(catalog, events, resync, logger)

	res, err := s.Run(ctx, Options{Events: 1234, BatchSize: 500, Seed: 1})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, len(Customers), res.Customers)
	assert.GreaterOrEqual(t, res.Brands, 3*len(Customers))
	assert.LessOrEqual(t, res.Brands, 5*len(Customers))
	assert.GreaterOrEqual(t, res.Ads, 10*res.Brands)
	assert.LessOrEqual(t, res.Ads, 14*res.Brands)
	assert.Equal(t, 1234, events.Len())
	require.NotNil(t, res.Resync)
	assert.Equal(t, 1234, res.Resync.EventsApplied)

	global, err := stats.GetGlobalStats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), global.TotalImpressions)
	assert.Positive(t, global.UniqueAds)

	again, err := s.Run(ctx, Options{Events: 10, Seed: 2})
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, 1234, events.Len())
}
