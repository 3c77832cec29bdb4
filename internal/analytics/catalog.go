package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"go.uber.org/zap"
)

type CreateCustomerInput struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"max=200"`
}

type CreateBrandInput struct {
	CustomerID string `json:"customer_id" validate:"required"`
	Name       string `json:"name" validate:"required,max=200"`
	Slug       string `json:"slug" validate:"max=200"`
}

type CreateAdInput struct {
	BrandID    string `json:"brand_id" validate:"required"`
	Name       string `json:"name" validate:"required,max=200"`
	Type       string `json:"type" validate:"required"`
	Dimensions string `json:"dimensions" validate:"max=32"`
}

// CatalogService provisions and lists customers, brands and ads.
type CatalogService struct {
	repo   storage.CatalogRepo
	logger *zap.Logger
	now    func() time.Time
}

func NewCatalogService(repo storage.CatalogRepo, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, logger: logger, now: time.Now}
}

// CreateCustomer stores a customer. The slug defaults to the name and is
// always normalized.
func (s *CatalogService) CreateCustomer(ctx context.Context, in CreateCustomerInput) (*models.Customer, error) {
	c := &models.Customer{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(in.Name),
		Slug:      slugFor(in.Slug, in.Name),
		CreatedAt: s.now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.repo.CreateCustomer(ctx, c); err != nil {
		return nil, createError("customer", c.Slug, err)
	}
	s.logger.Info("customer created", zap.String("customer_id", c.ID), zap.String("slug", c.Slug))
	return c, nil
}

// CreateBrand stores a brand under an existing customer.
func (s *CatalogService) CreateBrand(ctx context.Context, in CreateBrandInput) (*models.Brand, error) {
	customer, err := s.repo.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if customer == nil {
		return nil, fmt.Errorf("customer %s: %w", in.CustomerID, ErrNotFound)
	}

	b := &models.Brand{
		ID:         uuid.New().String(),
		CustomerID: customer.ID,
		Name:       strings.TrimSpace(in.Name),
		Slug:       slugFor(in.Slug, in.Name),
		CreatedAt:  s.now().UTC(),
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.repo.CreateBrand(ctx, b); err != nil {
		return nil, createError("brand", b.Slug, err)
	}
	s.logger.Info("brand created", zap.String("brand_id", b.ID), zap.String("customer_id", b.CustomerID))
	return b, nil
}

// CreateAd stores an ad under an existing brand.
func (s *CatalogService) CreateAd(ctx context.Context, in CreateAdInput) (*models.Ad, error) {
	adType, err := models.ParseAdType(in.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	brand, err := s.repo.GetBrand(ctx, in.BrandID)
	if err != nil {
		return nil, fmt.Errorf("failed to get brand: %w", err)
	}
	if brand == nil {
		return nil, fmt.Errorf("brand %s: %w", in.BrandID, ErrNotFound)
	}

	a := &models.Ad{
		ID:         uuid.New().String(),
		BrandID:    brand.ID,
		Name:       strings.TrimSpace(in.Name),
		Type:       adType,
		Dimensions: in.Dimensions,
		CreatedAt:  s.now().UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.repo.CreateAd(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create ad: %w", err)
	}
	s.logger.Info("ad created", zap.String("ad_id", a.ID), zap.String("brand_id", a.BrandID))
	return a, nil
}

// SetClock overrides the clock used to stamp CreatedAt.
func (s *CatalogService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *CatalogService) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *CatalogService) ListBrands(ctx context.Context, customerID string) ([]*models.Brand, error) {
	return s.repo.ListBrands(ctx, customerID)
}

func (s *CatalogService) ListAds(ctx context.Context, brandID string) ([]*models.Ad, error) {
	return s.repo.ListAds(ctx, brandID)
}

func slugFor(slug, name string) string {
	if strings.TrimSpace(slug) != "" {
		return models.NormalizeSlug(strings.TrimSpace(slug))
	}
	return models.NormalizeSlug(strings.TrimSpace(name))
}

func createError(entity, slug string, err error) error {
	if errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("%s slug %q: %w", entity, slug, ErrConflict)
	}
	return fmt.Errorf("failed to create %s: %w", entity, err)
}
