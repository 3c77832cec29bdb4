package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/radiusdt/adpulse/internal/geo"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"go.uber.org/zap"
)

// EventInput is one event as submitted by a client. IP is only used to
// fill Region when it is empty.
type EventInput struct {
	AdID      string            `json:"ad_id" validate:"required"`
	IsClick   bool              `json:"is_click"`
	Device    string            `json:"device" validate:"max=64"`
	Region    string            `json:"region" validate:"max=64"`
	IP        string            `json:"ip,omitempty" validate:"omitempty,ip"`
	Extension *models.Extension `json:"extension,omitempty"`
}

var validate = validator.New()

type RecordResult struct {
	Success   bool   `json:"success"`
	EventID   string `json:"event_id"`
	Timestamp int64  `json:"timestamp"`
}

type BatchResult struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Skipped int  `json:"skipped"`
}

// IngestService appends events to the log and applies their aggregate
// contribution. Events are stamped with the service clock at ingest, one
// reading per call, so a batch shares a single timestamp and bucket.
type IngestService struct {
	events  storage.EventStore
	updater *Updater
	geo     *geo.Resolver
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	locker   storage.Locker
	lockWait time.Duration
}

func NewIngestService(events storage.EventStore, updater *Updater, logger *zap.Logger, m *metrics.Metrics) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		events:  events,
		updater: updater,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// SetGeoResolver enables region lookup for events submitted without one.
func (s *IngestService) SetGeoResolver(r *geo.Resolver) {
	s.geo = r
}

// SetStrictLocking makes every ingest call hold the aggregates lock, the
// same lock resync and clear take.
func (s *IngestService) SetStrictLocking(locker storage.Locker, wait time.Duration) {
	s.locker = locker
	s.lockWait = wait
}

// SetClock overrides the ingest clock.
func (s *IngestService) SetClock(now func() time.Time) {
	s.now = now
}

// RecordEvent appends one event and applies it. A missing ad fails with
// ErrNotFound and nothing is appended. A missing brand keeps the event in
// the log but drops its aggregate contribution.
func (s *IngestService) RecordEvent(ctx context.Context, in EventInput) (*RecordResult, error) {
	start := time.Now()

	if in.AdID == "" {
		s.rejected("single")
		return nil, fmt.Errorf("%w: ad_id is required", ErrInvalidInput)
	}

	lookup, err := s.updater.Resolve(ctx, []string{in.AdID})
	if err != nil {
		return nil, err
	}
	ad := lookup.Ad(in.AdID)
	if ad == nil {
		s.rejected("single")
		return nil, fmt.Errorf("ad %s: %w", in.AdID, ErrNotFound)
	}
	if err := validateExtension(in.Extension, ad); err != nil {
		s.rejected("single")
		return nil, err
	}

	unlock, err := acquire(ctx, s.locker, aggregatesLock, s.lockWait, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize ingest: %w", err)
	}
	defer release(unlock, s.logger, aggregatesLock)

	e := s.newEvent(in, s.now().UnixMilli())
	if err := s.events.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	if _, err := s.updater.ApplyResolved(ctx, []*models.Event{e}, lookup); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordIngest("single", 1, 0, time.Since(start))
	}
	return &RecordResult{Success: true, EventID: e.ID, Timestamp: e.Timestamp}, nil
}

// RecordEventBatch appends and applies every event whose ad and brand
// resolve. Unresolvable or invalid events are skipped and not counted.
func (s *IngestService) RecordEventBatch(ctx context.Context, inputs []EventInput) (*BatchResult, error) {
	start := time.Now()
	if len(inputs) == 0 {
		return &BatchResult{Success: true}, nil
	}

	valid := make([]EventInput, 0, len(inputs))
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		item, ok := batchItem(in)
		if !ok {
			continue
		}
		valid = append(valid, item)
		ids = append(ids, item.AdID)
	}
	lookup, err := s.updater.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}

	ts := s.now().UnixMilli()
	events := make([]*models.Event, 0, len(valid))
	for _, in := range valid {
		if _, ok := lookup.Dimensions(in.AdID, in.Device); !ok {
			continue
		}
		if err := validateExtension(in.Extension, lookup.Ad(in.AdID)); err != nil {
			s.logger.Debug("skipping invalid batch event", zap.String("ad_id", in.AdID), zap.Error(err))
			continue
		}
		events = append(events, s.newEvent(in, ts))
	}
	skipped := len(inputs) - len(events)

	if len(events) > 0 {
		unlock, err := acquire(ctx, s.locker, aggregatesLock, s.lockWait, s.metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize ingest: %w", err)
		}
		defer release(unlock, s.logger, aggregatesLock)

		if err := s.events.AppendBatch(ctx, events); err != nil {
			return nil, fmt.Errorf("failed to record events: %w", err)
		}
		if _, err := s.updater.ApplyResolved(ctx, events, lookup); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.RecordIngest("batch", len(events), skipped, time.Since(start))
	}
	return &BatchResult{Success: true, Count: len(events), Skipped: skipped}, nil
}

func (s *IngestService) newEvent(in EventInput, ts int64) *models.Event {
	region := in.Region
	if region == "" && in.IP != "" {
		region = s.geo.Region(in.IP)
	}
	return &models.Event{
		ID:        uuid.New().String(),
		AdID:      in.AdID,
		Timestamp: ts,
		Device:    in.Device,
		Region:    region,
		IsClick:   in.IsClick,
		Extension: in.Extension,
	}
}

// batchItem checks one batch entry on its own. An unparseable IP is
// dropped since it only feeds the region lookup; any other invalid field
// skips the entry.
func batchItem(in EventInput) (EventInput, bool) {
	if in.IP != "" && validate.Var(in.IP, "ip") != nil {
		in.IP = ""
	}
	return in, validate.Struct(in) == nil
}

func (s *IngestService) rejected(path string) {
	if s.metrics != nil {
		s.metrics.RecordRejected(path)
	}
}

func validateExtension(x *models.Extension, ad *models.Ad) error {
	if x == nil {
		return nil
	}
	if err := x.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !x.MatchesAdType(ad.Type) {
		return fmt.Errorf("%w: %s extension on %s ad", ErrInvalidInput, x.Kind, ad.Type)
	}
	return nil
}
