package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/adpulse/internal/models"
)

// PostgresEventStore implements EventStore using PostgreSQL. Scans follow
// the BIGSERIAL seq column; the cursor is the last seq returned.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates a new PostgreSQL-backed event store.
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

const insertEventSQL = `
	INSERT INTO events (id, ad_id, ts, device, region, is_click, extension)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
`

func eventArgs(e *models.Event) ([]any, error) {
	var ext []byte
	if e.Extension != nil {
		b, err := json.Marshal(e.Extension)
		if err != nil {
			return nil, fmt.Errorf("failed to encode extension: %w", err)
		}
		ext = b
	}
	return []any{e.ID, e.AdID, e.Timestamp, e.Device, e.Region, e.IsClick, ext}, nil
}

func (s *PostgresEventStore) Append(ctx context.Context, e *models.Event) error {
	args, err := eventArgs(e)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertEventSQL, args...); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// AppendBatch writes all events in one transaction using a pipelined batch.
func (s *PostgresEventStore) AppendBatch(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		args, err := eventArgs(e)
		if err != nil {
			return err
		}
		batch.Queue(insertEventSQL, args...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to append events: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresEventStore) Scan(ctx context.Context, cursor string, limit int) (*EventPage, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("scan limit must be positive, got %d", limit)
	}

	var after int64
	if cursor != "" {
		n, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		after = n
	}

	rows, err := s.pool.Query(ctx, `
		SELECT seq, id, ad_id, ts, device, region, is_click, extension
		FROM events
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	defer rows.Close()

	page := &EventPage{Events: make([]*models.Event, 0, limit)}
	last := after
	for rows.Next() {
		var e models.Event
		var ext []byte
		if err := rows.Scan(&last, &e.ID, &e.AdID, &e.Timestamp, &e.Device, &e.Region, &e.IsClick, &ext); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(ext) > 0 {
			e.Extension = &models.Extension{}
			if err := json.Unmarshal(ext, e.Extension); err != nil {
				return nil, fmt.Errorf("failed to decode extension of event %s: %w", e.ID, err)
			}
		}
		page.Events = append(page.Events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}

	page.Cursor = strconv.FormatInt(last, 10)
	page.Done = len(page.Events) < limit
	return page, nil
}
