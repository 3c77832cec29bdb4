package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/adpulse/internal/models"
)

// PostgresAggregateStore implements AggregateStore using PostgreSQL.
// Each upsert is a single INSERT ... ON CONFLICT statement, which the
// database applies atomically per row.
type PostgresAggregateStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAggregateStore creates a new PostgreSQL-backed aggregate store.
func NewPostgresAggregateStore(pool *pgxpool.Pool) *PostgresAggregateStore {
	return &PostgresAggregateStore{pool: pool}
}

// =============================================
// Upserts
// =============================================

func (s *PostgresAggregateStore) UpsertScalar(ctx context.Context, key string, d models.Delta) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scalar_metrics AS t (key, total_impressions, total_clicks, unique_ads)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (key) DO UPDATE SET
			total_impressions = t.total_impressions + EXCLUDED.total_impressions,
			total_clicks = t.total_clicks + EXCLUDED.total_clicks
	`, key, d.Impressions, d.Clicks)
	if err != nil {
		return fmt.Errorf("failed to upsert scalar metric %s: %w", key, err)
	}
	return nil
}

func (s *PostgresAggregateStore) UpsertCampaign(ctx context.Context, adID, brandID string, d models.Delta) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO campaign_metrics AS t (ad_id, brand_id, impressions, clicks)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ad_id) DO UPDATE SET
			impressions = t.impressions + EXCLUDED.impressions,
			clicks = t.clicks + EXCLUDED.clicks
	`, adID, brandID, d.Impressions, d.Clicks)
	if err != nil {
		return fmt.Errorf("failed to upsert campaign metric %s: %w", adID, err)
	}
	return nil
}

func (s *PostgresAggregateStore) UpsertTimeSeries(ctx context.Context, key string, bucket, value int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO time_series_metrics AS t (key, bucket, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (key, bucket) DO UPDATE SET
			value = t.value + EXCLUDED.value
	`, key, bucket, value)
	if err != nil {
		return fmt.Errorf("failed to upsert time series %s@%d: %w", key, bucket, err)
	}
	return nil
}

// =============================================
// Bulk writes
// =============================================

// The bulk writers add onto rows an ingest may have created after Clear,
// so a rebuild running alongside live traffic never hits a key conflict.
// Resync writes each key once, so unique_ads takes the rebuilt value.

func (s *PostgresAggregateStore) InsertScalars(ctx context.Context, rows []models.ScalarMetric) error {
	keys := make([]string, len(rows))
	impressions := make([]int64, len(rows))
	clicks := make([]int64, len(rows))
	uniqueAds := make([]int64, len(rows))
	for i, r := range rows {
		keys[i], impressions[i], clicks[i], uniqueAds[i] = r.Key, r.TotalImpressions, r.TotalClicks, r.UniqueAds
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO scalar_metrics AS t (key, total_impressions, total_clicks, unique_ads)
		SELECT * FROM unnest($1::text[], $2::bigint[], $3::bigint[], $4::bigint[])
		ON CONFLICT (key) DO UPDATE SET
			total_impressions = t.total_impressions + EXCLUDED.total_impressions,
			total_clicks = t.total_clicks + EXCLUDED.total_clicks,
			unique_ads = EXCLUDED.unique_ads
	`, keys, impressions, clicks, uniqueAds)
	if err != nil {
		return fmt.Errorf("failed to insert scalar metrics: %w", err)
	}
	return nil
}

func (s *PostgresAggregateStore) InsertCampaigns(ctx context.Context, rows []models.CampaignMetric) error {
	adIDs := make([]string, len(rows))
	brandIDs := make([]string, len(rows))
	impressions := make([]int64, len(rows))
	clicks := make([]int64, len(rows))
	for i, r := range rows {
		adIDs[i], brandIDs[i], impressions[i], clicks[i] = r.AdID, r.BrandID, r.Impressions, r.Clicks
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO campaign_metrics AS t (ad_id, brand_id, impressions, clicks)
		SELECT * FROM unnest($1::text[], $2::text[], $3::bigint[], $4::bigint[])
		ON CONFLICT (ad_id) DO UPDATE SET
			impressions = t.impressions + EXCLUDED.impressions,
			clicks = t.clicks + EXCLUDED.clicks
	`, adIDs, brandIDs, impressions, clicks)
	if err != nil {
		return fmt.Errorf("failed to insert campaign metrics: %w", err)
	}
	return nil
}

func (s *PostgresAggregateStore) InsertTimeSeries(ctx context.Context, rows []models.TimeSeriesMetric) error {
	keys := make([]string, len(rows))
	buckets := make([]int64, len(rows))
	values := make([]int64, len(rows))
	for i, r := range rows {
		keys[i], buckets[i], values[i] = r.Key, r.Bucket, r.Value
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO time_series_metrics AS t (key, bucket, value)
		SELECT * FROM unnest($1::text[], $2::bigint[], $3::bigint[])
		ON CONFLICT (key, bucket) DO UPDATE SET
			value = t.value + EXCLUDED.value
	`, keys, buckets, values)
	if err != nil {
		return fmt.Errorf("failed to insert time series metrics: %w", err)
	}
	return nil
}

func (s *PostgresAggregateStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE scalar_metrics, campaign_metrics, time_series_metrics`)
	if err != nil {
		return fmt.Errorf("failed to clear aggregates: %w", err)
	}
	return nil
}

// =============================================
// Reads
// =============================================

func (s *PostgresAggregateStore) GetScalar(ctx context.Context, key string) (*models.ScalarMetric, error) {
	var m models.ScalarMetric
	err := s.pool.QueryRow(ctx, `
		SELECT key, total_impressions, total_clicks, unique_ads
		FROM scalar_metrics WHERE key = $1
	`, key).Scan(&m.Key, &m.TotalImpressions, &m.TotalClicks, &m.UniqueAds)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scalar metric %s: %w", key, err)
	}
	return &m, nil
}

func (s *PostgresAggregateStore) ListScalarsByPrefix(ctx context.Context, prefix string) ([]*models.ScalarMetric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, total_impressions, total_clicks, unique_ads
		FROM scalar_metrics
		WHERE starts_with(key, $1)
		ORDER BY key
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list scalar metrics: %w", err)
	}
	defer rows.Close()

	var out []*models.ScalarMetric
	for rows.Next() {
		var m models.ScalarMetric
		if err := rows.Scan(&m.Key, &m.TotalImpressions, &m.TotalClicks, &m.UniqueAds); err != nil {
			return nil, fmt.Errorf("failed to scan scalar metric: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PostgresAggregateStore) TopCampaigns(ctx context.Context, brandID string, limit int) ([]*models.CampaignMetric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ad_id, brand_id, impressions, clicks FROM (
			SELECT ad_id, brand_id, impressions, clicks,
				RANK() OVER (ORDER BY impressions DESC) AS rnk
			FROM campaign_metrics
			WHERE $1::text = '' OR brand_id = $1
		) ranked
		WHERE rnk <= $2
		ORDER BY impressions DESC, ad_id
	`, brandID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top campaigns: %w", err)
	}
	defer rows.Close()

	var out []*models.CampaignMetric
	for rows.Next() {
		var m models.CampaignMetric
		if err := rows.Scan(&m.AdID, &m.BrandID, &m.Impressions, &m.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan campaign metric: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PostgresAggregateStore) ListTimeSeries(ctx context.Context, key string, fromBucket int64) ([]*models.TimeSeriesMetric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, bucket, value FROM time_series_metrics
		WHERE key = $1 AND bucket >= $2
		ORDER BY bucket
	`, key, fromBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list time series %s: %w", key, err)
	}
	defer rows.Close()

	var out []*models.TimeSeriesMetric
	for rows.Next() {
		var m models.TimeSeriesMetric
		if err := rows.Scan(&m.Key, &m.Bucket, &m.Value); err != nil {
			return nil, fmt.Errorf("failed to scan time series: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
