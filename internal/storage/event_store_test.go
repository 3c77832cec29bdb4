package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/radiusdt/adpulse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryEventStoreScanPages(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryEventStore()

	events := make([]*models.Event, 0, 7)
	for i := 0; i < 7; i++ {
		events = append(events, &models.Event{ID: fmt.Sprintf("e%d", i), AdID: "a1", Timestamp: int64(i)})
	}
	require.NoError(t, s.AppendBatch(ctx, events[:5]))
	require.NoError(t, s.Append(ctx, events[5]))
	require.NoError(t, s.Append(ctx, events[6]))
	assert.Equal(t, 7, s.Len())

	var seen []string
	cursor := ""
	pages := 0
	for {
		page, err := s.Scan(ctx, cursor, 3)
		require.NoError(t, err)
		pages++
		for _, e := range page.Events {
			seen = append(seen, e.ID)
		}
		cursor = page.Cursor
		if page.Done {
			break
		}
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"e0", "e1", "e2", "e3", "e4", "e5", "e6"}, seen)
}

func TestInMemoryEventStoreScanEmpty(t *testing.T) {
	page, err := NewInMemoryEventStore().Scan(context.Background(), "", 10)
	require.NoError(t, err)
	assert.True(t, page.Done)
	assert.Empty(t, page.Events)
}

func TestInMemoryEventStoreScanRejectsBadInput(t *testing.T) {
	s := NewInMemoryEventStore()
	_, err := s.Scan(context.Background(), "abc", 10)
	assert.Error(t, err)
	_, err = s.Scan(context.Background(), "", 0)
	assert.Error(t, err)
}

func TestClickHouseCursorRoundTrip(t *testing.T) {
	c := formatClickHouseCursor(1700000000123, "7f1c-uuid")
	ts, id, err := parseClickHouseCursor(c)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ts)
	assert.Equal(t, "7f1c-uuid", id)

	_, _, err = parseClickHouseCursor("no-separator")
	assert.Error(t, err)
	_, _, err = parseClickHouseCursor("x:id")
	assert.Error(t, err)
}
