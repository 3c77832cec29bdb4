package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/radiusdt/adpulse/internal/aggregate"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEventFirstImpression(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	acme := h.customer(t, "Acme")
	sport := h.brand(t, acme.ID, "Acme/Sport")
	banner := h.ad(t, sport.ID, "Banner")

	res, err := h.ingest.RecordEvent(ctx, EventInput{AdID: banner.ID, Device: "desktop"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, fixedNow.UnixMilli(), res.Timestamp)
	assert.NotEmpty(t, res.EventID)

	stats, err := h.stats.GetGlobalStats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, &GlobalStats{TotalImpressions: 1}, stats)

	devices, err := h.stats.GetDeviceDistribution(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []DeviceCount{{Device: "desktop", Count: 1}}, devices)

	for _, key := range []string{aggregate.BrandKey(sport.ID), aggregate.CustomerKey(acme.ID), aggregate.BrandDeviceKey(sport.ID, "desktop")} {
		row, err := h.aggregates.GetScalar(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, row, key)
		assert.Equal(t, int64(1), row.TotalImpressions, key)
	}

	bucket := aggregate.Bucket(fixedNow.UnixMilli())
	for _, key := range []string{aggregate.SeriesKeyGlobal, aggregate.SeriesBrandKey(sport.ID), aggregate.SeriesCampaignKey(banner.ID)} {
		points, err := h.aggregates.ListTimeSeries(ctx, key, 0)
		require.NoError(t, err)
		require.Len(t, points, 1, key)
		assert.Equal(t, bucket, points[0].Bucket)
		assert.Equal(t, int64(1), points[0].Value)
	}
}

func TestRecordEventWithoutDeviceSkipsDeviceKeys(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.customer(t, "Acme")
	b := h.brand(t, c.ID, "Sport")
	a := h.ad(t, b.ID, "Banner")

	_, err := h.ingest.RecordEvent(ctx, EventInput{AdID: a.ID})
	require.NoError(t, err)

	devices, err := h.stats.GetDeviceDistribution(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, devices)

	stats, err := h.stats.GetGlobalStats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalImpressions)
}

func TestRecordEventUnknownAd(t *testing.T) {
	h := newHarness(t)

	_, err := h.ingest.RecordEvent(context.Background(), EventInput{AdID: "missing"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, h.events.Len())

	_, err = h.ingest.RecordEvent(context.Background(), EventInput{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordEventMissingBrandKeepsEventDropsMetrics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.catalog.CreateAd(ctx, &models.Ad{ID: "orphan", BrandID: "gone", Name: "Orphan", Type: models.AdTypeStatic}))

	res, err := h.ingest.RecordEvent(ctx, EventInput{AdID: "orphan", Device: "mobile"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, h.events.Len())

	snap := h.aggregates.Snapshot()
	assert.Empty(t, snap.Scalars)
	assert.Empty(t, snap.Campaigns)
	assert.Empty(t, snap.Series)
}

func TestRecordEventRejectsMismatchedExtension(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.customer(t, "Acme")
	b := h.brand(t, c.ID, "Sport")
	a := h.ad(t, b.ID, "Banner")

	_, err := h.ingest.RecordEvent(ctx, EventInput{
		AdID: a.ID,
		Extension: &models.Extension{
			Kind:  models.ExtensionVideo,
			Video: &models.VideoExtension{DurationMs: 15000, CompletedQuartiles: 2},
		},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, h.events.Len())
}

func TestRecordEventBatchSkipsUnresolvable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.customer(t, "Acme")
	b := h.brand(t, c.ID, "Sport")
	a := h.ad(t, b.ID, "Banner")
	require.NoError(t, h.catalog.CreateAd(ctx, &models.Ad{ID: "orphan", BrandID: "gone", Name: "Orphan", Type: models.AdTypeStatic}))

	res, err := h.ingest.RecordEventBatch(ctx, []EventInput{
		{AdID: a.ID, Device: "desktop"},
		{AdID: "missing"},
		{AdID: a.ID, Device: "mobile", IsClick: true},
		{AdID: "orphan"},
	})
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{Success: true, Count: 2, Skipped: 2}, res)
	assert.Equal(t, 2, h.events.Len())

	stats, err := h.stats.GetGlobalStats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalImpressions)
	assert.Equal(t, int64(1), stats.TotalClicks)
	assert.InDelta(t, 0.5, stats.AvgCTR, 1e-9)
}

func TestRecordEventBatchSkipsInvalidItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.customer(t, "Acme")
	b := h.brand(t, c.ID, "Sport")
	a := h.ad(t, b.ID, "Banner")

	res, err := h.ingest.RecordEventBatch(ctx, []EventInput{
		{AdID: a.ID, Device: "desktop"},
		{AdID: ""},
		{AdID: a.ID, Device: "mobile", IP: "not-an-ip"},
		{AdID: a.ID, Region: strings.Repeat("r", 65)},
	})
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{Success: true, Count: 2, Skipped: 2}, res)
	assert.Equal(t, 2, h.events.Len())
}

func TestRecordEventBatchEmpty(t *testing.T) {
	h := newHarness(t)

	res, err := h.ingest.RecordEventBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{Success: true}, res)
}

func TestRecordEventBatchSharesOneBucket(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.customer(t, "Acme")
	b := h.brand(t, c.ID, "Sport")
	a := h.ad(t, b.ID, "Banner")

	inputs := make([]EventInput, 25)
	for i := range inputs {
		inputs[i] = EventInput{AdID: a.ID}
	}
	_, err := h.ingest.RecordEventBatch(ctx, inputs)
	require.NoError(t, err)

	points, err := h.aggregates.ListTimeSeries(ctx, aggregate.SeriesKeyGlobal, 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, int64(25), points[0].Value)
}

func TestStrictIngestWaitsForAggregatesLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.customer(t, "Acme")
	b := h.brand(t, c.ID, "Sport")
	a := h.ad(t, b.ID, "Banner")
	h.ingest.SetStrictLocking(h.locker, 20*time.Millisecond)

	unlock, err := h.locker.Lock(ctx, aggregatesLock)
	require.NoError(t, err)

	_, err = h.ingest.RecordEvent(ctx, EventInput{AdID: a.ID})
	require.ErrorIs(t, err, storage.ErrLockNotAcquired)
	assert.Equal(t, 0, h.events.Len())

	require.NoError(t, unlock(ctx))
	_, err = h.ingest.RecordEvent(ctx, EventInput{AdID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, h.events.Len())
}
