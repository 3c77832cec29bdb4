package aggregate

import (
	"sort"

	"github.com/radiusdt/adpulse/internal/models"
)

type scalarEntry struct {
	delta models.Delta
	ads   map[string]struct{}
}

type seriesPoint struct {
	key    string
	bucket int64
}

// Accumulator folds event contributions into per-key deltas so that many
// events touching the same key cost one write. Addition is commutative, so
// the result does not depend on the order or grouping of Add calls.
type Accumulator struct {
	trackUniqueAds bool
	events         int

	scalars   map[string]*scalarEntry
	campaigns map[string]*models.CampaignMetric
	series    map[seriesPoint]int64
}

// NewAccumulator returns an empty accumulator. When trackUniqueAds is set
// each scalar key also records the set of distinct ads touching it.
func NewAccumulator(trackUniqueAds bool) *Accumulator {
	return &Accumulator{
		trackUniqueAds: trackUniqueAds,
		scalars:        make(map[string]*scalarEntry),
		campaigns:      make(map[string]*models.CampaignMetric),
		series:         make(map[seriesPoint]int64),
	}
}

// Add records one event with dimensions d in the given bucket.
func (a *Accumulator) Add(d Dimensions, isClick bool, bucket int64) {
	var clicks int64
	if isClick {
		clicks = 1
	}
	a.events++

	for _, key := range d.ScalarKeys() {
		e, ok := a.scalars[key]
		if !ok {
			e = &scalarEntry{}
			if a.trackUniqueAds {
				e.ads = make(map[string]struct{})
			}
			a.scalars[key] = e
		}
		e.delta.Impressions++
		e.delta.Clicks += clicks
		if e.ads != nil {
			e.ads[d.AdID] = struct{}{}
		}
	}

	c, ok := a.campaigns[d.AdID]
	if !ok {
		c = &models.CampaignMetric{AdID: d.AdID, BrandID: d.BrandID}
		a.campaigns[d.AdID] = c
	}
	c.Impressions++
	c.Clicks += clicks

	for _, key := range d.SeriesKeys() {
		a.series[seriesPoint{key: key, bucket: bucket}]++
	}
}

// Events returns the number of events added.
func (a *Accumulator) Events() int { return a.events }

// Empty reports whether nothing has been added.
func (a *Accumulator) Empty() bool { return a.events == 0 }

// Scalars returns the accumulated scalar rows ordered by key.
func (a *Accumulator) Scalars() []models.ScalarMetric {
	out := make([]models.ScalarMetric, 0, len(a.scalars))
	for key, e := range a.scalars {
		out = append(out, models.ScalarMetric{
			Key:              key,
			TotalImpressions: e.delta.Impressions,
			TotalClicks:      e.delta.Clicks,
			UniqueAds:        int64(len(e.ads)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Campaigns returns the accumulated campaign rows ordered by ad id.
func (a *Accumulator) Campaigns() []models.CampaignMetric {
	out := make([]models.CampaignMetric, 0, len(a.campaigns))
	for _, c := range a.campaigns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdID < out[j].AdID })
	return out
}

// Series returns the accumulated time-series rows ordered by key then
// bucket.
func (a *Accumulator) Series() []models.TimeSeriesMetric {
	out := make([]models.TimeSeriesMetric, 0, len(a.series))
	for p, v := range a.series {
		out = append(out, models.TimeSeriesMetric{Key: p.key, Bucket: p.bucket, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Bucket < out[j].Bucket
	})
	return out
}
