package database

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		seq        BIGSERIAL,
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		slug       TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS brands (
		seq         BIGSERIAL,
		id          TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		name        TEXT NOT NULL,
		slug        TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (customer_id, slug)
	)`,
	`CREATE TABLE IF NOT EXISTS ads (
		seq        BIGSERIAL,
		id         TEXT PRIMARY KEY,
		brand_id   TEXT NOT NULL REFERENCES brands(id),
		name       TEXT NOT NULL,
		type       TEXT NOT NULL,
		dimensions TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ads_brand_idx ON ads (brand_id)`,
	`CREATE TABLE IF NOT EXISTS events (
		seq       BIGSERIAL PRIMARY KEY,
		id        TEXT NOT NULL UNIQUE,
		ad_id     TEXT NOT NULL,
		ts        BIGINT NOT NULL,
		device    TEXT NOT NULL DEFAULT '',
		region    TEXT NOT NULL DEFAULT '',
		is_click  BOOLEAN NOT NULL DEFAULT FALSE,
		extension JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS events_ad_ts_idx ON events (ad_id, ts)`,
	`CREATE TABLE IF NOT EXISTS scalar_metrics (
		key               TEXT PRIMARY KEY,
		total_impressions BIGINT NOT NULL DEFAULT 0,
		total_clicks      BIGINT NOT NULL DEFAULT 0,
		unique_ads        BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_metrics (
		ad_id       TEXT PRIMARY KEY,
		brand_id    TEXT NOT NULL,
		impressions BIGINT NOT NULL DEFAULT 0,
		clicks      BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS campaign_metrics_impressions_idx ON campaign_metrics (impressions DESC)`,
	`CREATE INDEX IF NOT EXISTS campaign_metrics_brand_impressions_idx ON campaign_metrics (brand_id, impressions DESC)`,
	`CREATE TABLE IF NOT EXISTS time_series_metrics (
		key    TEXT NOT NULL,
		bucket BIGINT NOT NULL,
		value  BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (key, bucket)
	)`,
	`CREATE TABLE IF NOT EXISTS simulation_state (
		id               SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		status           TEXT NOT NULL,
		intensity        INT NOT NULL,
		last_updated     BIGINT NOT NULL DEFAULT 0,
		chart_reset_time BIGINT
	)`,
}

// EnsureSchema creates the PostgreSQL tables and indexes if they do not
// exist yet.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	db.logger.Info("PostgreSQL schema ready")
	return nil
}

const clickHouseEventsTable = `CREATE TABLE IF NOT EXISTS events (
	id        String,
	ad_id     String,
	ts        Int64,
	device    LowCardinality(String),
	region    LowCardinality(String),
	is_click  Bool,
	extension String
) ENGINE = MergeTree
ORDER BY (ts, id)`

// EnsureSchema creates the ClickHouse events table if it does not exist.
func (db *ClickHouseDB) EnsureSchema(ctx context.Context) error {
	if err := db.Conn.Exec(ctx, clickHouseEventsTable); err != nil {
		return fmt.Errorf("failed to apply ClickHouse schema: %w", err)
	}
	db.logger.Info("ClickHouse schema ready")
	return nil
}
