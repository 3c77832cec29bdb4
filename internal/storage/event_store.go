package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/radiusdt/adpulse/internal/models"
)

// InMemoryEventStore keeps events in append order. The scan cursor is the
// decimal offset of the next event.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []*models.Event
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{}
}

func (s *InMemoryEventStore) Append(ctx context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *InMemoryEventStore) AppendBatch(ctx context.Context, events []*models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		cp := *e
		s.events = append(s.events, &cp)
	}
	return nil
}

func (s *InMemoryEventStore) Scan(ctx context.Context, cursor string, limit int) (*EventPage, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("scan limit must be positive, got %d", limit)
	}

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = n
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset > len(s.events) {
		offset = len(s.events)
	}
	end := offset + limit
	if end > len(s.events) {
		end = len(s.events)
	}

	page := &EventPage{
		Events: make([]*models.Event, 0, end-offset),
		Cursor: strconv.Itoa(end),
		Done:   end >= len(s.events),
	}
	for _, e := range s.events[offset:end] {
		cp := *e
		page.Events = append(page.Events, &cp)
	}
	return page, nil
}

// Len returns the number of stored events.
func (s *InMemoryEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
