package storage

import (
	"context"
	"errors"

	"github.com/radiusdt/adpulse/internal/models"
)

var (
	// ErrDuplicate is returned when a unique slug is already taken.
	ErrDuplicate = errors.New("duplicate")
	// ErrLockNotAcquired is returned when a lock could not be taken before
	// the context expired.
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// =============================================
// CATALOG REPOSITORY
// =============================================

// CatalogRepo stores the customer -> brand -> ad hierarchy. Point lookups
// return nil, nil when the row does not exist. List methods return rows in
// creation order; an empty filter means all rows.
type CatalogRepo interface {
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	ListCustomers(ctx context.Context) ([]*models.Customer, error)

	CreateBrand(ctx context.Context, b *models.Brand) error
	GetBrand(ctx context.Context, id string) (*models.Brand, error)
	ListBrands(ctx context.Context, customerID string) ([]*models.Brand, error)

	CreateAd(ctx context.Context, a *models.Ad) error
	GetAd(ctx context.Context, id string) (*models.Ad, error)
	ListAds(ctx context.Context, brandID string) ([]*models.Ad, error)

	// Bulk lookups keyed by id; missing ids are absent from the map.
	GetAdsByIDs(ctx context.Context, ids []string) (map[string]*models.Ad, error)
	GetBrandsByIDs(ctx context.Context, ids []string) (map[string]*models.Brand, error)
	GetCustomersByIDs(ctx context.Context, ids []string) (map[string]*models.Customer, error)
}

// =============================================
// EVENT STORE
// =============================================

// EventPage is one page of a cursor scan. Cursor resumes after the last
// event of the page; Done is set once the scan is exhausted.
type EventPage struct {
	Events []*models.Event
	Cursor string
	Done   bool
}

// EventStore is the append-only event log. Scan visits every event exactly
// once in a stable order; an empty cursor starts from the beginning.
type EventStore interface {
	Append(ctx context.Context, e *models.Event) error
	AppendBatch(ctx context.Context, events []*models.Event) error
	Scan(ctx context.Context, cursor string, limit int) (*EventPage, error)
}

// =============================================
// AGGREGATE STORE
// =============================================

// AggregateStore holds the denormalized counters. Upserts are atomic per
// key and additive; nothing except Clear ever decreases a counter. Rows
// created by an upsert start with UniqueAds = 0 and upserts never touch it.
type AggregateStore interface {
	UpsertScalar(ctx context.Context, key string, d models.Delta) error
	UpsertCampaign(ctx context.Context, adID, brandID string, d models.Delta) error
	UpsertTimeSeries(ctx context.Context, key string, bucket, value int64) error

	// Bulk writers used by resync on an empty store.
	InsertScalars(ctx context.Context, rows []models.ScalarMetric) error
	InsertCampaigns(ctx context.Context, rows []models.CampaignMetric) error
	InsertTimeSeries(ctx context.Context, rows []models.TimeSeriesMetric) error

	Clear(ctx context.Context) error

	GetScalar(ctx context.Context, key string) (*models.ScalarMetric, error)
	ListScalarsByPrefix(ctx context.Context, prefix string) ([]*models.ScalarMetric, error)
	// TopCampaigns returns the campaigns ranked within the first limit
	// positions by impressions, optionally scoped to a brand. Rows tied with
	// the last ranked position are all included.
	TopCampaigns(ctx context.Context, brandID string, limit int) ([]*models.CampaignMetric, error)
	// ListTimeSeries returns the buckets of key at or after fromBucket in
	// ascending order.
	ListTimeSeries(ctx context.Context, key string, fromBucket int64) ([]*models.TimeSeriesMetric, error)
}

// =============================================
// SIMULATION STATE
// =============================================

// SimulationRepo stores the singleton simulation record. Get returns
// nil, nil before the first Save.
type SimulationRepo interface {
	Get(ctx context.Context) (*models.SimulationState, error)
	Save(ctx context.Context, s *models.SimulationState) error
}

// =============================================
// LOCKING
// =============================================

// Locker provides named mutual exclusion. Lock blocks until the lock is
// held or ctx is done; the returned function releases it.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(context.Context) error, err error)
}
