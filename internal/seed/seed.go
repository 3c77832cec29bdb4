// Package seed fills an empty deployment with a demo catalog and a day of
// historical traffic.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/adpulse/internal/analytics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"go.uber.org/zap"
)

var (
	Customers = []string{"Shutterstock", "Three", "IKEA", "SEGA", "Storytel"}
	Devices   = []string{"desktop", "mobile", "tablet"}
	Regions   = []string{"North America", "Europe", "Asia", "South America", "Africa", "Oceania"}
)

type Options struct {
	Events    int
	BatchSize int
	Window    time.Duration
	Seed      int64
}

func DefaultOptions() Options {
	return Options{
		Events:    100_000,
		BatchSize: 5_000,
		Window:    24 * time.Hour,
		Seed:      time.Now().UnixNano(),
	}
}

type Result struct {
	Skipped   bool
	Customers int
	Brands    int
	Ads       int
	Events    int
	Resync    *analytics.ResyncResult
}

// Seeder writes historical events straight to the event store, with their
// own timestamps, and then rebuilds the aggregates from them.
type Seeder struct {
	catalog *analytics.CatalogService
	events  storage.EventStore
	resync  *analytics.ResyncService
	logger  *zap.Logger
	now     func() time.Time
}

func NewSeeder(catalog *analytics.CatalogService, events storage.EventStore, resync *analytics.ResyncService, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{catalog: catalog, events: events, resync: resync, logger: logger, now: time.Now}
}

// Run seeds the catalog and events. It does nothing when any ad already
// exists.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	existing, err := s.catalog.ListAds(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list ads: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Info("catalog already populated, skipping seed", zap.Int("ads", len(existing)))
		return &Result{Skipped: true}, nil
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5_000
	}
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	res := &Result{}

	ads, err := s.createCatalog(ctx, rng, res)
	if err != nil {
		return nil, err
	}
	s.logger.Info("catalog seeded",
		zap.Int("customers", res.Customers),
		zap.Int("brands", res.Brands),
		zap.Int("ads", res.Ads),
	)

	now := s.now().UnixMilli()
	windowMs := opts.Window.Milliseconds()
	for written := 0; written < opts.Events; {
		n := opts.BatchSize
		if remaining := opts.Events - written; remaining < n {
			n = remaining
		}
		batch := make([]*models.Event, n)
		for i := range batch {
			ad := ads[rng.Intn(len(ads))]
			batch[i] = &models.Event{
				ID:        uuid.New().String(),
				AdID:      ad.ID,
				Timestamp: now - rng.Int63n(windowMs),
				Device:    Devices[rng.Intn(len(Devices))],
				Region:    Regions[rng.Intn(len(Regions))],
				IsClick:   rng.Float64() < ad.Type.ClickProbability(),
			}
		}
		if err := s.events.AppendBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to write seed events: %w", err)
		}
		written += n
		s.logger.Debug("seed batch written", zap.Int("written", written))
	}
	res.Events = opts.Events

	resync, err := s.resync.Resync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild aggregates after seeding: %w", err)
	}
	res.Resync = resync
	return res, nil
}

func (s *Seeder) createCatalog(ctx context.Context, rng *rand.Rand, res *Result) ([]*models.Ad, error) {
	var ads []*models.Ad
	for _, name := range Customers {
		customer, err := s.catalog.CreateCustomer(ctx, analytics.CreateCustomerInput{Name: name})
		if err != nil {
			return nil, err
		}
		res.Customers++

		numBrands := 3 + rng.Intn(3)
		for i := 1; i <= numBrands; i++ {
			brand, err := s.catalog.CreateBrand(ctx, analytics.CreateBrandInput{
				CustomerID: customer.ID,
				Name:       fmt.Sprintf("%s Brand %d", name, i),
			})
			if err != nil {
				return nil, err
			}
			res.Brands++

			numAds := 10 + rng.Intn(5)
			for j := 1; j <= numAds; j++ {
				ad, err := s.catalog.CreateAd(ctx, analytics.CreateAdInput{
					BrandID:    brand.ID,
					Name:       fmt.Sprintf("%s Ad %d", brand.Name, j),
					Type:       string(models.AdTypes[rng.Intn(len(models.AdTypes))]),
					Dimensions: "1080x1080",
				})
				if err != nil {
					return nil, err
				}
				ads = append(ads, ad)
				res.Ads++
			}
		}
	}
	return ads, nil
}
