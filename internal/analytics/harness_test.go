package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixedNow is deliberately not aligned to a bucket boundary.
var fixedNow = time.UnixMilli(1_700_000_005_000)

type harness struct {
	catalog    *storage.InMemoryCatalogRepo
	events     *storage.InMemoryEventStore
	aggregates *storage.InMemoryAggregateStore
	simRepo    *storage.InMemorySimulationRepo
	locker     *storage.LocalLocker
	metrics    *metrics.Metrics

	updater    *Updater
	ingest     *IngestService
	resync     *ResyncService
	stats      *StatsService
	simulation *SimulationService
	catalogSvc *CatalogService

	now time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := zap.NewNop()
	h := &harness{
		catalog:    storage.NewInMemoryCatalogRepo(),
		events:     storage.NewInMemoryEventStore(),
		aggregates: storage.NewInMemoryAggregateStore(),
		simRepo:    storage.NewInMemorySimulationRepo(),
		locker:     storage.NewLocalLocker(),
		metrics:    metrics.NewMetrics("test"),
		now:        fixedNow,
	}
	clock := func() time.Time { return h.now }

	h.updater = NewUpdater(h.catalog, h.aggregates, logger, h.metrics)
	h.ingest = NewIngestService(h.events, h.updater, logger, h.metrics)
	h.ingest.SetClock(clock)
	h.resync = NewResyncService(h.catalog, h.events, h.aggregates, h.locker, ResyncOptions{PageSize: 3, BatchSize: 2}, logger, h.metrics)
	h.stats = NewStatsService(h.catalog, h.aggregates, h.simRepo, logger)
	h.stats.SetClock(clock)
	h.simulation = NewSimulationService(h.simRepo, logger)
	h.simulation.SetClock(clock)
	h.catalogSvc = NewCatalogService(h.catalog, logger)
	h.catalogSvc.SetClock(clock)
	return h
}

func (h *harness) customer(t *testing.T, name string) *models.Customer {
	t.Helper()
	c, err := h.catalogSvc.CreateCustomer(context.Background(), CreateCustomerInput{Name: name})
	require.NoError(t, err)
	return c
}

func (h *harness) brand(t *testing.T, customerID, name string) *models.Brand {
	t.Helper()
	b, err := h.catalogSvc.CreateBrand(context.Background(), CreateBrandInput{CustomerID: customerID, Name: name})
	require.NoError(t, err)
	return b
}

func (h *harness) ad(t *testing.T, brandID, name string) *models.Ad {
	t.Helper()
	a, err := h.catalogSvc.CreateAd(context.Background(), CreateAdInput{BrandID: brandID, Name: name, Type: "static", Dimensions: "1080x1080"})
	require.NoError(t, err)
	return a
}

// applyEvent applies one event. It reports false when the event's brand
// cannot be resolved, in which case the contribution is dropped.
func (u *Updater) applyEvent(ctx context.Context, e *models.Event) (bool, error) {
	lookup, err := u.Resolve(ctx, []string{e.AdID})
	if err != nil {
		return false, err
	}
	applied, err := u.ApplyResolved(ctx, []*models.Event{e}, lookup)
	return applied == 1, err
}

// applyBatch resolves and applies events, skipping those whose ad or brand
// is unknown. It returns the number of events applied.
func (u *Updater) applyBatch(ctx context.Context, events []*models.Event) (int, error) {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.AdID)
	}
	lookup, err := u.Resolve(ctx, ids)
	if err != nil {
		return 0, err
	}
	return u.ApplyResolved(ctx, events, lookup)
}
