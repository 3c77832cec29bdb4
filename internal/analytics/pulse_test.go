package analytics

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/radiusdt/adpulse/internal/aggregate"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPulseInterpolatesAndHolds(t *testing.T) {
	start := int64(1_000_000)
	key := aggregate.SeriesKeyGlobal
	at := func(i int) int64 { return start + int64(i)*aggregate.BucketSizeMs }

	rows := buildPulse(start, 0, []PulseSeries{{Key: key}}, map[string][]*models.TimeSeriesMetric{
		key: {
			{Key: key, Bucket: at(10), Value: 5},
			{Key: key, Bucket: at(13), Value: 15},
		},
	})

	require.Len(t, rows, pulseIntervals+1)
	assert.Equal(t, start, rows[0].Time)
	assert.Equal(t, at(pulseIntervals), rows[pulseIntervals].Time)

	assert.Zero(t, rows[9].Values[key])
	assert.InDelta(t, 5, rows[10].Values[key], 1e-9)
	assert.InDelta(t, 5+10.0/3, rows[11].Values[key], 1e-9)
	assert.InDelta(t, 5+20.0/3, rows[12].Values[key], 1e-9)
	assert.InDelta(t, 15, rows[13].Values[key], 1e-9)
	for i := 14; i <= pulseIntervals; i++ {
		assert.InDelta(t, 15, rows[i].Values[key], 1e-9, "row %d", i)
	}
}

func TestBuildPulseZeroesRowsBeforeReset(t *testing.T) {
	start := int64(0)
	key := aggregate.SeriesKeyGlobal
	points := make([]*models.TimeSeriesMetric, 0, pulseIntervals+1)
	for i := 0; i <= pulseIntervals; i++ {
		points = append(points, &models.TimeSeriesMetric{Key: key, Bucket: int64(i) * aggregate.BucketSizeMs, Value: 3})
	}

	reset := int64(20*aggregate.BucketSizeMs + 1)
	rows := buildPulse(start, reset, []PulseSeries{{Key: key}}, map[string][]*models.TimeSeriesMetric{key: points})

	for i, row := range rows {
		if row.Time < reset {
			assert.Zero(t, row.Values[key], "row %d", i)
		} else {
			assert.InDelta(t, 3, row.Values[key], 1e-9, "row %d", i)
		}
	}
	assert.Zero(t, rows[20].Values[key])
	assert.InDelta(t, 3, rows[21].Values[key], 1e-9)
}

func TestBuildPulseEmptySeriesIsZero(t *testing.T) {
	rows := buildPulse(0, 0, []PulseSeries{{Key: "ts:campaign:x"}}, nil)
	for _, row := range rows {
		assert.Equal(t, map[string]float64{"ts:campaign:x": 0}, row.Values)
	}
}

func TestPulseRowMarshalsFlat(t *testing.T) {
	raw, err := json.Marshal(PulseRow{Time: 10_000, Values: map[string]float64{"ts:global": 2.5}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":10000,"ts:global":2.5}`, string(raw))
}

func TestGetPulseSeries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.customer(t, "Acme")
	b := h.brand(t, c.ID, "Sport")

	ads := make([]*models.Ad, 0, 7)
	for _, name := range []string{"G", "F", "E", "D", "C", "B", "A"} {
		ads = append(ads, h.ad(t, b.ID, name))
	}
	inputs := make([]EventInput, 0)
	for i, ad := range ads {
		n := 1
		if i < 5 {
			n = 10 - i
		}
		for j := 0; j < n; j++ {
			inputs = append(inputs, EventInput{AdID: ad.ID})
		}
	}
	_, err := h.ingest.RecordEventBatch(ctx, inputs)
	require.NoError(t, err)

	feed, err := h.stats.GetPulseSeries(ctx, "")
	require.NoError(t, err)

	require.Len(t, feed.Series, 6)
	assert.Equal(t, PulseSeries{Key: aggregate.SeriesKeyGlobal, Label: "Global Total"}, feed.Series[0])
	labels := make([]string, 0, 5)
	for _, s := range feed.Series[1:] {
		labels = append(labels, s.Label)
	}
	assert.Equal(t, []string{"G", "F", "E", "D", "C"}, labels)

	require.Len(t, feed.Data, pulseIntervals+1)
	last := feed.Data[pulseIntervals]
	assert.Equal(t, aggregate.Bucket(fixedNow.UnixMilli()), last.Time)
	assert.InDelta(t, float64(len(inputs)), last.Values[aggregate.SeriesKeyGlobal], 1e-9)
	assert.InDelta(t, 10, last.Values[aggregate.SeriesCampaignKey(ads[0].ID)], 1e-9)
	assert.Zero(t, feed.Data[0].Values[aggregate.SeriesKeyGlobal])

	scoped, err := h.stats.GetPulseSeries(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, PulseSeries{Key: aggregate.SeriesBrandKey(b.ID), Label: "Brand Total"}, scoped.Series[0])
}

func TestGetPulseSeriesUnknownAdLabel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.aggregates.UpsertCampaign(ctx, "gone", "b", models.Delta{Impressions: 1}))

	feed, err := h.stats.GetPulseSeries(ctx, "")
	require.NoError(t, err)
	require.Len(t, feed.Series, 2)
	assert.Equal(t, "Unknown Ad", feed.Series[1].Label)
}
