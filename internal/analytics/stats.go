package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/radiusdt/adpulse/internal/aggregate"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTopCampaigns = 5
	MaxTopCampaigns     = 100
)

// Unit economics used to derive spend and ROI from reach and clicks.
var (
	SpendPerImpression = decimal.RequireFromString("0.05")
	ValuePerClick      = decimal.RequireFromString("5.0")
)

type GlobalStats struct {
	TotalImpressions int64   `json:"total_impressions"`
	TotalClicks      int64   `json:"total_clicks"`
	UniqueAds        int64   `json:"unique_ads"`
	AvgCTR           float64 `json:"avg_ctr"`
}

type BrandPerformance struct {
	BrandID      string  `json:"brand_id"`
	Name         string  `json:"name"`
	Reach        int64   `json:"reach"`
	Spend        float64 `json:"spend"`
	ROI          float64 `json:"roi"`
	CustomerID   string  `json:"customer_id"`
	CustomerName string  `json:"customer_name"`
}

type CampaignStats struct {
	AdID        string  `json:"ad_id"`
	AdName      string  `json:"ad_name"`
	BrandName   string  `json:"brand_name"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
}

type DeviceCount struct {
	Device string `json:"device"`
	Count  int64  `json:"count"`
}

// StatsService answers the read queries. Everything is computed from the
// aggregate store; the event log is never read.
type StatsService struct {
	catalog    storage.CatalogRepo
	aggregates storage.AggregateStore
	simulation storage.SimulationRepo
	logger     *zap.Logger
	now        func() time.Time
}

func NewStatsService(catalog storage.CatalogRepo, aggregates storage.AggregateStore, simulation storage.SimulationRepo, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		catalog:    catalog,
		aggregates: aggregates,
		simulation: simulation,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the clock used for window queries.
func (s *StatsService) SetClock(now func() time.Time) {
	s.now = now
}

// GetGlobalStats returns the totals of one scope: the brand when brandID is
// set, else the customer when customerID is set, else global.
func (s *StatsService) GetGlobalStats(ctx context.Context, customerID, brandID string) (*GlobalStats, error) {
	key := aggregate.KeyGlobal
	switch {
	case brandID != "":
		key = aggregate.BrandKey(brandID)
	case customerID != "":
		key = aggregate.CustomerKey(customerID)
	}

	row, err := s.aggregates.GetScalar(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for %s: %w", key, err)
	}
	if row == nil {
		return &GlobalStats{}, nil
	}
	return &GlobalStats{
		TotalImpressions: row.TotalImpressions,
		TotalClicks:      row.TotalClicks,
		UniqueAds:        row.UniqueAds,
		AvgCTR:           models.CTR(row.TotalClicks, row.TotalImpressions),
	}, nil
}

// GetBrandPerformance returns one row per brand, in creation order,
// optionally restricted to one customer.
func (s *StatsService) GetBrandPerformance(ctx context.Context, customerID string) ([]BrandPerformance, error) {
	brands, err := s.catalog.ListBrands(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}

	customerIDs := make([]string, 0, len(brands))
	for _, b := range brands {
		customerIDs = append(customerIDs, b.CustomerID)
	}
	customers, err := s.catalog.GetCustomersByIDs(ctx, distinct(customerIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customers: %w", err)
	}

	out := make([]BrandPerformance, 0, len(brands))
	for _, b := range brands {
		row, err := s.aggregates.GetScalar(ctx, aggregate.BrandKey(b.ID))
		if err != nil {
			return nil, fmt.Errorf("failed to get stats for brand %s: %w", b.ID, err)
		}
		var reach, clicks int64
		if row != nil {
			reach, clicks = row.TotalImpressions, row.TotalClicks
		}

		customerName := "Unknown"
		if c, ok := customers[b.CustomerID]; ok {
			customerName = c.Name
		}

		spend, roi := unitEconomics(reach, clicks)
		out = append(out, BrandPerformance{
			BrandID:      b.ID,
			Name:         b.Name,
			Reach:        reach,
			Spend:        spend,
			ROI:          roi,
			CustomerID:   b.CustomerID,
			CustomerName: customerName,
		})
	}
	return out, nil
}

func unitEconomics(reach, clicks int64) (spend, roi float64) {
	s := decimal.NewFromInt(reach).Mul(SpendPerImpression)
	if s.IsZero() {
		return 0, 0
	}
	value := decimal.NewFromInt(clicks).Mul(ValuePerClick)
	return s.InexactFloat64(), value.Div(s).InexactFloat64()
}

// GetTopCampaigns returns the limit campaigns with the most impressions,
// ties broken by ad name. Campaigns whose ad or brand is gone are skipped.
func (s *StatsService) GetTopCampaigns(ctx context.Context, brandID string, limit int) ([]CampaignStats, error) {
	if limit <= 0 {
		limit = DefaultTopCampaigns
	}
	if limit > MaxTopCampaigns {
		limit = MaxTopCampaigns
	}

	rows, err := s.aggregates.TopCampaigns(ctx, brandID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top campaigns: %w", err)
	}

	adIDs := make([]string, 0, len(rows))
	brandIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		adIDs = append(adIDs, r.AdID)
		brandIDs = append(brandIDs, r.BrandID)
	}
	ads, err := s.catalog.GetAdsByIDs(ctx, adIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ads: %w", err)
	}
	brands, err := s.catalog.GetBrandsByIDs(ctx, distinct(brandIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve brands: %w", err)
	}

	out := make([]CampaignStats, 0, len(rows))
	for _, r := range rows {
		ad, ok := ads[r.AdID]
		if !ok {
			continue
		}
		brand, ok := brands[r.BrandID]
		if !ok {
			continue
		}
		out = append(out, CampaignStats{
			AdID:        r.AdID,
			AdName:      ad.Name,
			BrandName:   brand.Name,
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			CTR:         models.CTR(r.Clicks, r.Impressions),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Impressions != out[j].Impressions {
			return out[i].Impressions > out[j].Impressions
		}
		if out[i].AdName != out[j].AdName {
			return out[i].AdName < out[j].AdName
		}
		return out[i].AdID < out[j].AdID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetDeviceDistribution returns impressions per device, most first, ties
// broken by device name.
func (s *StatsService) GetDeviceDistribution(ctx context.Context, brandID string) ([]DeviceCount, error) {
	prefix := aggregate.DevicePrefix()
	if brandID != "" {
		prefix = aggregate.BrandDevicePrefix(brandID)
	}

	rows, err := s.aggregates.ListScalarsByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list device stats: %w", err)
	}

	out := make([]DeviceCount, 0, len(rows))
	for _, r := range rows {
		device := aggregate.DeviceFromKey(r.Key, prefix)
		if device == "" {
			continue
		}
		out = append(out, DeviceCount{Device: device, Count: r.TotalImpressions})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Device < out[j].Device
	})
	return out, nil
}

// GetRecentImpressionsCount sums the buckets of the last lastXSeconds,
// rounded up to whole buckets, never reaching before the chart reset.
func (s *StatsService) GetRecentImpressionsCount(ctx context.Context, lastXSeconds int64, brandID string) (int64, error) {
	if lastXSeconds < 0 {
		return 0, fmt.Errorf("%w: seconds must not be negative", ErrInvalidInput)
	}

	key := aggregate.SeriesKeyGlobal
	if brandID != "" {
		key = aggregate.SeriesBrandKey(brandID)
	}

	resetTime, err := s.resetTime(ctx)
	if err != nil {
		return 0, err
	}

	bucketSeconds := aggregate.BucketSizeMs / 1000
	lookback := ((lastXSeconds + bucketSeconds - 1) / bucketSeconds) * aggregate.BucketSizeMs
	start := aggregate.Bucket(s.now().UnixMilli()) - lookback
	if resetTime > start {
		start = resetTime
	}

	points, err := s.aggregates.ListTimeSeries(ctx, key, start)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", key, err)
	}

	var total int64
	for _, p := range points {
		total += p.Value
	}
	return total, nil
}

// GetPulseSeries returns the chart feed for the trailing ten minutes: the
// scope total plus the scope's top campaigns.
func (s *StatsService) GetPulseSeries(ctx context.Context, brandID string) (*PulseFeed, error) {
	primary := PulseSeries{Key: aggregate.SeriesKeyGlobal, Label: "Global Total"}
	if brandID != "" {
		primary = PulseSeries{Key: aggregate.SeriesBrandKey(brandID), Label: "Brand Total"}
	}

	startBucket := aggregate.Bucket(s.now().UnixMilli() - pulseWindowMs)

	campaigns, err := s.pulseCampaigns(ctx, brandID)
	if err != nil {
		return nil, err
	}
	series := append([]PulseSeries{primary}, campaigns...)

	results := make([][]*models.TimeSeriesMetric, len(series))
	g, gctx := errgroup.WithContext(ctx)
	for i, ps := range series {
		i, key := i, ps.Key
		g.Go(func() error {
			points, err := s.aggregates.ListTimeSeries(gctx, key, startBucket)
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", key, err)
			}
			results[i] = points
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	points := make(map[string][]*models.TimeSeriesMetric, len(series))
	for i, ps := range series {
		points[ps.Key] = results[i]
	}

	resetTime, err := s.resetTime(ctx)
	if err != nil {
		return nil, err
	}

	return &PulseFeed{
		Series: series,
		Data:   buildPulse(startBucket, resetTime, series, points),
	}, nil
}

// pulseCampaigns picks the top campaigns of the scope by impressions, ties
// broken by label then ad id.
func (s *StatsService) pulseCampaigns(ctx context.Context, brandID string) ([]PulseSeries, error) {
	rows, err := s.aggregates.TopCampaigns(ctx, brandID, pulseCampaigns)
	if err != nil {
		return nil, fmt.Errorf("failed to get top campaigns: %w", err)
	}

	adIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		adIDs = append(adIDs, r.AdID)
	}
	ads, err := s.catalog.GetAdsByIDs(ctx, adIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ads: %w", err)
	}

	type ranked struct {
		series      PulseSeries
		adID        string
		impressions int64
	}
	list := make([]ranked, 0, len(rows))
	for _, r := range rows {
		label := "Unknown Ad"
		if ad, ok := ads[r.AdID]; ok {
			label = ad.Name
		}
		list = append(list, ranked{
			series:      PulseSeries{Key: aggregate.SeriesCampaignKey(r.AdID), Label: label},
			adID:        r.AdID,
			impressions: r.Impressions,
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].impressions != list[j].impressions {
			return list[i].impressions > list[j].impressions
		}
		if list[i].series.Label != list[j].series.Label {
			return list[i].series.Label < list[j].series.Label
		}
		return list[i].adID < list[j].adID
	})
	if len(list) > pulseCampaigns {
		list = list[:pulseCampaigns]
	}

	out := make([]PulseSeries, 0, len(list))
	for _, r := range list {
		out = append(out, r.series)
	}
	return out, nil
}

func (s *StatsService) resetTime(ctx context.Context) (int64, error) {
	if s.simulation == nil {
		return 0, nil
	}
	state, err := s.simulation.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get simulation state: %w", err)
	}
	return state.ResetTime(), nil
}
