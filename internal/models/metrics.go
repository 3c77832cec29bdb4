package models

// Delta is an additive contribution to a counter row.
type Delta struct {
	Impressions int64
	Clicks      int64
}

// ScalarMetric is a running total for one dimension key. UniqueAds is only
// populated by a full resync.
type ScalarMetric struct {
	Key              string `json:"key"`
	TotalImpressions int64  `json:"total_impressions"`
	TotalClicks      int64  `json:"total_clicks"`
	UniqueAds        int64  `json:"unique_ads"`
}

// CampaignMetric is the running total for one ad, with its brand
// denormalized for brand-scoped rankings.
type CampaignMetric struct {
	AdID        string `json:"ad_id"`
	BrandID     string `json:"brand_id"`
	Impressions int64  `json:"impressions"`
	Clicks      int64  `json:"clicks"`
}

// TimeSeriesMetric is the event count for one series key in one bucket.
type TimeSeriesMetric struct {
	Key    string `json:"key"`
	Bucket int64  `json:"bucket"`
	Value  int64  `json:"value"`
}

// CTR returns clicks/impressions, or 0 when there are no impressions.
func CTR(clicks, impressions int64) float64 {
	if impressions <= 0 {
		return 0
	}
	return float64(clicks) / float64(impressions)
}
