package analytics

import (
	"context"
	"fmt"

	"github.com/radiusdt/adpulse/internal/aggregate"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// upsertConcurrency bounds the upserts one apply call runs at a time.
const upsertConcurrency = 8

// Lookup resolves ads to their brand and customer without further store
// round trips.
type Lookup struct {
	ads    map[string]*models.Ad
	brands map[string]*models.Brand
}

func newLookup(ads map[string]*models.Ad, brands map[string]*models.Brand) *Lookup {
	return &Lookup{ads: ads, brands: brands}
}

// Ad returns the ad with id, or nil.
func (l *Lookup) Ad(id string) *models.Ad {
	return l.ads[id]
}

// Dimensions returns the aggregation dimensions of an event on adID. It
// reports false when the ad or its brand is unknown.
func (l *Lookup) Dimensions(adID, device string) (aggregate.Dimensions, bool) {
	ad, ok := l.ads[adID]
	if !ok {
		return aggregate.Dimensions{}, false
	}
	brand, ok := l.brands[ad.BrandID]
	if !ok {
		return aggregate.Dimensions{}, false
	}
	return aggregate.Dimensions{
		AdID:       adID,
		BrandID:    brand.ID,
		CustomerID: brand.CustomerID,
		Device:     device,
	}, true
}

// Updater applies event contributions to the aggregate store. The single
// and batch paths share one accumulate-then-upsert routine, so any
// partition of the same events ends in the same totals.
type Updater struct {
	catalog    storage.CatalogRepo
	aggregates storage.AggregateStore
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func NewUpdater(catalog storage.CatalogRepo, aggregates storage.AggregateStore, logger *zap.Logger, m *metrics.Metrics) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		catalog:    catalog,
		aggregates: aggregates,
		logger:     logger,
		metrics:    m,
	}
}

// Resolve fetches every distinct ad in adIDs and their brands with one
// bulk lookup per entity type.
func (u *Updater) Resolve(ctx context.Context, adIDs []string) (*Lookup, error) {
	ids := distinct(adIDs)
	ads, err := u.catalog.GetAdsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ads: %w", err)
	}

	brandIDs := make([]string, 0, len(ads))
	for _, ad := range ads {
		brandIDs = append(brandIDs, ad.BrandID)
	}
	brands, err := u.catalog.GetBrandsByIDs(ctx, distinct(brandIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve brands: %w", err)
	}
	return newLookup(ads, brands), nil
}

// ApplyResolved accumulates events against lookup and writes one upsert
// per affected key. Each event lands in the bucket of its own timestamp.
func (u *Updater) ApplyResolved(ctx context.Context, events []*models.Event, lookup *Lookup) (int, error) {
	acc := aggregate.NewAccumulator(false)
	dropped := 0
	for _, e := range events {
		dims, ok := lookup.Dimensions(e.AdID, e.Device)
		if !ok {
			dropped++
			u.logger.Warn("dropping metric contribution for unresolved event",
				zap.String("event_id", e.ID),
				zap.String("ad_id", e.AdID),
			)
			continue
		}
		acc.Add(dims, e.IsClick, aggregate.Bucket(e.Timestamp))
	}
	if dropped > 0 && u.metrics != nil {
		u.metrics.RecordDropped("unresolved", dropped)
	}
	if acc.Empty() {
		return 0, nil
	}

	if err := u.apply(ctx, acc); err != nil {
		return 0, err
	}
	return acc.Events(), nil
}

// apply issues the accumulated upserts. Keys are independent, so they run
// concurrently; a failure leaves earlier upserts in place.
func (u *Updater) apply(ctx context.Context, acc *aggregate.Accumulator) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(upsertConcurrency)

	for _, row := range acc.Scalars() {
		row := row
		g.Go(func() error {
			err := u.aggregates.UpsertScalar(gctx, row.Key, models.Delta{Impressions: row.TotalImpressions, Clicks: row.TotalClicks})
			u.record("scalar", err)
			return err
		})
	}
	for _, row := range acc.Campaigns() {
		row := row
		g.Go(func() error {
			err := u.aggregates.UpsertCampaign(gctx, row.AdID, row.BrandID, models.Delta{Impressions: row.Impressions, Clicks: row.Clicks})
			u.record("campaign", err)
			return err
		})
	}
	for _, row := range acc.Series() {
		row := row
		g.Go(func() error {
			err := u.aggregates.UpsertTimeSeries(gctx, row.Key, row.Bucket, row.Value)
			u.record("time_series", err)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to apply aggregates: %w", err)
	}
	return nil
}

func (u *Updater) record(table string, err error) {
	if u.metrics != nil {
		u.metrics.RecordUpsert(table, err)
	}
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
