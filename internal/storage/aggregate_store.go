package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/radiusdt/adpulse/internal/models"
)

type seriesKey struct {
	key    string
	bucket int64
}

// InMemoryAggregateStore is an AggregateStore guarded by a single mutex,
// which makes every upsert atomic per key.
type InMemoryAggregateStore struct {
	mu        sync.RWMutex
	scalars   map[string]*models.ScalarMetric
	campaigns map[string]*models.CampaignMetric
	series    map[seriesKey]int64
}

func NewInMemoryAggregateStore() *InMemoryAggregateStore {
	return &InMemoryAggregateStore{
		scalars:   make(map[string]*models.ScalarMetric),
		campaigns: make(map[string]*models.CampaignMetric),
		series:    make(map[seriesKey]int64),
	}
}

// =============================================
// Upserts
// =============================================

func (s *InMemoryAggregateStore) UpsertScalar(ctx context.Context, key string, d models.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.scalars[key]
	if !ok {
		row = &models.ScalarMetric{Key: key}
		s.scalars[key] = row
	}
	row.TotalImpressions += d.Impressions
	row.TotalClicks += d.Clicks
	return nil
}

func (s *InMemoryAggregateStore) UpsertCampaign(ctx context.Context, adID, brandID string, d models.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.campaigns[adID]
	if !ok {
		row = &models.CampaignMetric{AdID: adID, BrandID: brandID}
		s.campaigns[adID] = row
	}
	row.Impressions += d.Impressions
	row.Clicks += d.Clicks
	return nil
}

func (s *InMemoryAggregateStore) UpsertTimeSeries(ctx context.Context, key string, bucket, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.series[seriesKey{key: key, bucket: bucket}] += value
	return nil
}

// =============================================
// Bulk writes
// =============================================

// The bulk writers add onto rows an upsert created after Clear. UniqueAds
// takes the rebuilt value.

func (s *InMemoryAggregateStore) InsertScalars(ctx context.Context, rows []models.ScalarMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		row, ok := s.scalars[r.Key]
		if !ok {
			cp := r
			s.scalars[r.Key] = &cp
			continue
		}
		row.TotalImpressions += r.TotalImpressions
		row.TotalClicks += r.TotalClicks
		row.UniqueAds = r.UniqueAds
	}
	return nil
}

func (s *InMemoryAggregateStore) InsertCampaigns(ctx context.Context, rows []models.CampaignMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		row, ok := s.campaigns[r.AdID]
		if !ok {
			cp := r
			s.campaigns[r.AdID] = &cp
			continue
		}
		row.Impressions += r.Impressions
		row.Clicks += r.Clicks
	}
	return nil
}

func (s *InMemoryAggregateStore) InsertTimeSeries(ctx context.Context, rows []models.TimeSeriesMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		s.series[seriesKey{key: r.Key, bucket: r.Bucket}] += r.Value
	}
	return nil
}

func (s *InMemoryAggregateStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scalars = make(map[string]*models.ScalarMetric)
	s.campaigns = make(map[string]*models.CampaignMetric)
	s.series = make(map[seriesKey]int64)
	return nil
}

// =============================================
// Reads
// =============================================

func (s *InMemoryAggregateStore) GetScalar(ctx context.Context, key string) (*models.ScalarMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.scalars[key]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *InMemoryAggregateStore) ListScalarsByPrefix(ctx context.Context, prefix string) ([]*models.ScalarMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ScalarMetric, 0)
	for key, row := range s.scalars {
		if strings.HasPrefix(key, prefix) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemoryAggregateStore) TopCampaigns(ctx context.Context, brandID string, limit int) ([]*models.CampaignMetric, error) {
	s.mu.RLock()
	rows := make([]*models.CampaignMetric, 0, len(s.campaigns))
	for _, row := range s.campaigns {
		if brandID != "" && row.BrandID != brandID {
			continue
		}
		cp := *row
		rows = append(rows, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Impressions != rows[j].Impressions {
			return rows[i].Impressions > rows[j].Impressions
		}
		return rows[i].AdID < rows[j].AdID
	})

	if limit <= 0 || len(rows) <= limit {
		return rows, nil
	}
	cutoff := rows[limit-1].Impressions
	end := limit
	for end < len(rows) && rows[end].Impressions == cutoff {
		end++
	}
	return rows[:end], nil
}

func (s *InMemoryAggregateStore) ListTimeSeries(ctx context.Context, key string, fromBucket int64) ([]*models.TimeSeriesMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.TimeSeriesMetric, 0)
	for k, v := range s.series {
		if k.key == key && k.bucket >= fromBucket {
			out = append(out, &models.TimeSeriesMetric{Key: k.key, Bucket: k.bucket, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out, nil
}

// AggregateSnapshot is a deterministic copy of every aggregate row.
type AggregateSnapshot struct {
	Scalars   []models.ScalarMetric
	Campaigns []models.CampaignMetric
	Series    []models.TimeSeriesMetric
}

// Snapshot returns all rows sorted by their keys.
func (s *InMemoryAggregateStore) Snapshot() AggregateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := AggregateSnapshot{
		Scalars:   make([]models.ScalarMetric, 0, len(s.scalars)),
		Campaigns: make([]models.CampaignMetric, 0, len(s.campaigns)),
		Series:    make([]models.TimeSeriesMetric, 0, len(s.series)),
	}
	for _, r := range s.scalars {
		snap.Scalars = append(snap.Scalars, *r)
	}
	for _, r := range s.campaigns {
		snap.Campaigns = append(snap.Campaigns, *r)
	}
	for k, v := range s.series {
		snap.Series = append(snap.Series, models.TimeSeriesMetric{Key: k.key, Bucket: k.bucket, Value: v})
	}
	sort.Slice(snap.Scalars, func(i, j int) bool { return snap.Scalars[i].Key < snap.Scalars[j].Key })
	sort.Slice(snap.Campaigns, func(i, j int) bool { return snap.Campaigns[i].AdID < snap.Campaigns[j].AdID })
	sort.Slice(snap.Series, func(i, j int) bool {
		if snap.Series[i].Key != snap.Series[j].Key {
			return snap.Series[i].Key < snap.Series[j].Key
		}
		return snap.Series[i].Bucket < snap.Series[j].Bucket
	})
	return snap
}
