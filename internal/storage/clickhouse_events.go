package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/radiusdt/adpulse/internal/models"
)

// ClickHouseEventStore implements EventStore on a ClickHouse MergeTree
// table ordered by (ts, id). The scan cursor is "<ts>:<id>" of the last
// event returned and pages are fetched with a tuple keyset predicate.
type ClickHouseEventStore struct {
	conn driver.Conn
}

func NewClickHouseEventStore(conn driver.Conn) *ClickHouseEventStore {
	return &ClickHouseEventStore{conn: conn}
}

func (s *ClickHouseEventStore) Append(ctx context.Context, e *models.Event) error {
	return s.AppendBatch(ctx, []*models.Event{e})
}

func (s *ClickHouseEventStore) AppendBatch(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO events (id, ad_id, ts, device, region, is_click, extension)")
	if err != nil {
		return fmt.Errorf("failed to prepare event batch: %w", err)
	}

	for _, e := range events {
		ext := ""
		if e.Extension != nil {
			b, err := json.Marshal(e.Extension)
			if err != nil {
				return fmt.Errorf("failed to encode extension: %w", err)
			}
			ext = string(b)
		}
		if err := batch.Append(e.ID, e.AdID, e.Timestamp, e.Device, e.Region, e.IsClick, ext); err != nil {
			return fmt.Errorf("failed to append event %s: %w", e.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send event batch: %w", err)
	}
	return nil
}

func (s *ClickHouseEventStore) Scan(ctx context.Context, cursor string, limit int) (*EventPage, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("scan limit must be positive, got %d", limit)
	}

	query := `SELECT id, ad_id, ts, device, region, is_click, extension FROM events`
	args := []any{}
	if cursor != "" {
		ts, id, err := parseClickHouseCursor(cursor)
		if err != nil {
			return nil, err
		}
		query += ` WHERE (ts, id) > (?, ?)`
		args = append(args, ts, id)
	}
	query += ` ORDER BY ts, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	defer rows.Close()

	page := &EventPage{Events: make([]*models.Event, 0, limit), Cursor: cursor}
	for rows.Next() {
		var e models.Event
		var ext string
		if err := rows.Scan(&e.ID, &e.AdID, &e.Timestamp, &e.Device, &e.Region, &e.IsClick, &ext); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if ext != "" {
			e.Extension = &models.Extension{}
			if err := json.Unmarshal([]byte(ext), e.Extension); err != nil {
				return nil, fmt.Errorf("failed to decode extension of event %s: %w", e.ID, err)
			}
		}
		page.Events = append(page.Events, &e)
		page.Cursor = formatClickHouseCursor(e.Timestamp, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}

	page.Done = len(page.Events) < limit
	return page, nil
}

func formatClickHouseCursor(ts int64, id string) string {
	return strconv.FormatInt(ts, 10) + ":" + id
}

func parseClickHouseCursor(cursor string) (int64, string, error) {
	tsPart, id, ok := strings.Cut(cursor, ":")
	if !ok {
		return 0, "", fmt.Errorf("invalid cursor %q", cursor)
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid cursor %q", cursor)
	}
	return ts, id, nil
}
