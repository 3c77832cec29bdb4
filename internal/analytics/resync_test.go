package analytics

import (
	"context"
	"sync"
	"testing"

	"github.com/radiusdt/adpulse/internal/aggregate"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResyncMatchesIncrementalTotals(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ids := fixture(t, h)
	events := randomEvents(ids, 120, 3)

	u, incremental := newUpdaterOn(h)
	for _, e := range events {
		_, err := u.applyEvent(ctx, e)
		require.NoError(t, err)
	}
	require.NoError(t, h.events.AppendBatch(ctx, events))

	res, err := h.resync.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, res.EventsScanned)
	assert.Equal(t, 120, res.EventsApplied)
	assert.Equal(t, 0, res.EventsSkipped)

	want := incremental.Snapshot()
	got := h.aggregates.Snapshot()
	assert.Equal(t, want.Campaigns, got.Campaigns)
	assert.Equal(t, want.Series, got.Series)
	require.Len(t, got.Scalars, len(want.Scalars))
	for i := range want.Scalars {
		assert.Equal(t, want.Scalars[i].Key, got.Scalars[i].Key)
		assert.Equal(t, want.Scalars[i].TotalImpressions, got.Scalars[i].TotalImpressions, want.Scalars[i].Key)
		assert.Equal(t, want.Scalars[i].TotalClicks, got.Scalars[i].TotalClicks, want.Scalars[i].Key)
		assert.Zero(t, want.Scalars[i].UniqueAds)
	}
	assert.Equal(t, res.ScalarRows, len(got.Scalars))
	assert.Equal(t, res.CampaignRows, len(got.Campaigns))
	assert.Equal(t, res.SeriesRows, len(got.Series))
}

func TestResyncComputesUniqueAds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.customer(t, "Acme")
	b := h.brand(t, c.ID, "Sport")
	a1 := h.ad(t, b.ID, "One")
	a2 := h.ad(t, b.ID, "Two")
	ts := fixedNow.UnixMilli()

	require.NoError(t, h.events.AppendBatch(ctx, []*models.Event{
		{ID: "1", AdID: a1.ID, Timestamp: ts, Device: "desktop"},
		{ID: "2", AdID: a1.ID, Timestamp: ts, Device: "mobile"},
		{ID: "3", AdID: a2.ID, Timestamp: ts, Device: "mobile", IsClick: true},
	}))

	_, err := h.resync.Resync(ctx)
	require.NoError(t, err)

	stats, err := h.stats.GetGlobalStats(ctx, "", b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalImpressions)
	assert.Equal(t, int64(2), stats.UniqueAds)

	mobile, err := h.aggregates.GetScalar(ctx, aggregate.DeviceKey("mobile"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), mobile.UniqueAds)
	desktop, err := h.aggregates.GetScalar(ctx, aggregate.DeviceKey("desktop"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), desktop.UniqueAds)
}

func TestResyncIsIdempotentAndPageSizeIndependent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ids := fixture(t, h)
	require.NoError(t, h.events.AppendBatch(ctx, randomEvents(ids, 80, 11)))
	require.NoError(t, h.events.Append(ctx, &models.Event{ID: "ghost", AdID: "deleted", Timestamp: fixedNow.UnixMilli()}))

	first, err := h.resync.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.EventsSkipped)
	snap := h.aggregates.Snapshot()

	_, err = h.resync.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, h.aggregates.Snapshot())

	other := storage.NewInMemoryAggregateStore()
	big := NewResyncService(h.catalog, h.events, other, nil, ResyncOptions{PageSize: 1000, BatchSize: 1000}, zap.NewNop(), nil)
	_, err = big.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, other.Snapshot())
}

func TestResyncClearsStaleAggregates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.aggregates.UpsertScalar(ctx, "brand:stale", models.Delta{Impressions: 9}))

	res, err := h.resync.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EventsScanned)
	assert.Empty(t, h.aggregates.Snapshot().Scalars)
}

func TestClearAggregatesKeepsEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.customer(t, "Acme")
	b := h.brand(t, c.ID, "Sport")
	a := h.ad(t, b.ID, "Banner")

	_, err := h.ingest.RecordEvent(ctx, EventInput{AdID: a.ID})
	require.NoError(t, err)
	require.NoError(t, h.resync.ClearAggregates(ctx))

	stats, err := h.stats.GetGlobalStats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, &GlobalStats{}, stats)
	assert.Equal(t, 1, h.events.Len())

	_, err = h.resync.Resync(ctx)
	require.NoError(t, err)
	stats, err = h.stats.GetGlobalStats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalImpressions)
	assert.Equal(t, int64(1), stats.UniqueAds)
}

// interleavedStore runs hook once just before the first bulk scalar write,
// after resync has cleared the store.
type interleavedStore struct {
	*storage.InMemoryAggregateStore
	once sync.Once
	hook func()
}

func (s *interleavedStore) InsertScalars(ctx context.Context, rows []models.ScalarMetric) error {
	s.once.Do(s.hook)
	return s.InMemoryAggregateStore.InsertScalars(ctx, rows)
}

func TestResyncKeepsIngestLandingDuringRebuild(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.customer(t, "Acme")
	b := h.brand(t, c.ID, "Sport")
	a := h.ad(t, b.ID, "Banner")

	_, err := h.ingest.RecordEvent(ctx, EventInput{AdID: a.ID, Device: "desktop"})
	require.NoError(t, err)

	store := &interleavedStore{InMemoryAggregateStore: h.aggregates}
	store.hook = func() {
		_, err := h.ingest.RecordEvent(ctx, EventInput{AdID: a.ID, Device: "desktop", IsClick: true})
		require.NoError(t, err)
	}
	resync := NewResyncService(h.catalog, h.events, store, h.locker, ResyncOptions{PageSize: 3, BatchSize: 2}, zap.NewNop(), nil)

	res, err := resync.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EventsScanned)

	stats, err := h.stats.GetGlobalStats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalImpressions)
	assert.Equal(t, int64(1), stats.TotalClicks)
	assert.Equal(t, int64(1), stats.UniqueAds)

	series, err := h.aggregates.ListTimeSeries(ctx, aggregate.SeriesKeyGlobal, 0)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, int64(2), series[0].Value)
}
