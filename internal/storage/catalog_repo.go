package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/radiusdt/adpulse/internal/models"
)

// InMemoryCatalogRepo is a CatalogRepo backed by maps. Order slices keep
// listings in creation order.
type InMemoryCatalogRepo struct {
	mu        sync.RWMutex
	customers map[string]*models.Customer
	brands    map[string]*models.Brand
	ads       map[string]*models.Ad

	customerOrder []string
	brandOrder    []string
	adOrder       []string
}

func NewInMemoryCatalogRepo() *InMemoryCatalogRepo {
	return &InMemoryCatalogRepo{
		customers: make(map[string]*models.Customer),
		brands:    make(map[string]*models.Brand),
		ads:       make(map[string]*models.Ad),
	}
}

// =============================================
// Customers
// =============================================

func (r *InMemoryCatalogRepo) CreateCustomer(ctx context.Context, c *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.customers {
		if existing.Slug == c.Slug {
			return fmt.Errorf("customer slug %q: %w", c.Slug, ErrDuplicate)
		}
	}
	cp := *c
	r.customers[c.ID] = &cp
	r.customerOrder = append(r.customerOrder, c.ID)
	return nil
}

func (r *InMemoryCatalogRepo) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.customers[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryCatalogRepo) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Customer, 0, len(r.customerOrder))
	for _, id := range r.customerOrder {
		cp := *r.customers[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryCatalogRepo) GetCustomersByIDs(ctx context.Context, ids []string) (map[string]*models.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*models.Customer, len(ids))
	for _, id := range ids {
		if c, ok := r.customers[id]; ok {
			cp := *c
			out[id] = &cp
		}
	}
	return out, nil
}

// =============================================
// Brands
// =============================================

func (r *InMemoryCatalogRepo) CreateBrand(ctx context.Context, b *models.Brand) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.brands {
		if existing.CustomerID == b.CustomerID && existing.Slug == b.Slug {
			return fmt.Errorf("brand slug %q: %w", b.Slug, ErrDuplicate)
		}
	}
	cp := *b
	r.brands[b.ID] = &cp
	r.brandOrder = append(r.brandOrder, b.ID)
	return nil
}

func (r *InMemoryCatalogRepo) GetBrand(ctx context.Context, id string) (*models.Brand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.brands[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *InMemoryCatalogRepo) ListBrands(ctx context.Context, customerID string) ([]*models.Brand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Brand, 0, len(r.brandOrder))
	for _, id := range r.brandOrder {
		b := r.brands[id]
		if customerID != "" && b.CustomerID != customerID {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryCatalogRepo) GetBrandsByIDs(ctx context.Context, ids []string) (map[string]*models.Brand, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*models.Brand, len(ids))
	for _, id := range ids {
		if b, ok := r.brands[id]; ok {
			cp := *b
			out[id] = &cp
		}
	}
	return out, nil
}

// =============================================
// Ads
// =============================================

func (r *InMemoryCatalogRepo) CreateAd(ctx context.Context, a *models.Ad) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *a
	r.ads[a.ID] = &cp
	r.adOrder = append(r.adOrder, a.ID)
	return nil
}

func (r *InMemoryCatalogRepo) GetAd(ctx context.Context, id string) (*models.Ad, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.ads[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *InMemoryCatalogRepo) ListAds(ctx context.Context, brandID string) ([]*models.Ad, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Ad, 0, len(r.adOrder))
	for _, id := range r.adOrder {
		a := r.ads[id]
		if brandID != "" && a.BrandID != brandID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryCatalogRepo) GetAdsByIDs(ctx context.Context, ids []string) (map[string]*models.Ad, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*models.Ad, len(ids))
	for _, id := range ids {
		if a, ok := r.ads[id]; ok {
			cp := *a
			out[id] = &cp
		}
	}
	return out, nil
}
