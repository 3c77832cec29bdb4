package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/adpulse/internal/models"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// PostgresCatalogRepo implements CatalogRepo using PostgreSQL.
type PostgresCatalogRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalogRepo creates a new PostgreSQL-backed catalog.
func NewPostgresCatalogRepo(pool *pgxpool.Pool) *PostgresCatalogRepo {
	return &PostgresCatalogRepo{pool: pool}
}

// =============================================
// Customers
// =============================================

func (r *PostgresCatalogRepo) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO customers (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)
	`, c.ID, c.Name, c.Slug, c.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("customer slug %q: %w", c.Slug, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func (r *PostgresCatalogRepo) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, slug, created_at FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

func (r *PostgresCatalogRepo) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug, created_at FROM customers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return collectCustomers(rows)
}

func (r *PostgresCatalogRepo) GetCustomersByIDs(ctx context.Context, ids []string) (map[string]*models.Customer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, slug, created_at FROM customers WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get customers: %w", err)
	}
	list, err := collectCustomers(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.Customer, len(list))
	for _, c := range list {
		out[c.ID] = c
	}
	return out, nil
}

func collectCustomers(rows pgx.Rows) ([]*models.Customer, error) {
	defer rows.Close()

	var out []*models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// =============================================
// Brands
// =============================================

func (r *PostgresCatalogRepo) CreateBrand(ctx context.Context, b *models.Brand) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO brands (id, customer_id, name, slug, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.CustomerID, b.Name, b.Slug, b.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("brand slug %q: %w", b.Slug, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create brand: %w", err)
	}
	return nil
}

func (r *PostgresCatalogRepo) GetBrand(ctx context.Context, id string) (*models.Brand, error) {
	var b models.Brand
	err := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, name, slug, created_at FROM brands WHERE id = $1
	`, id).Scan(&b.ID, &b.CustomerID, &b.Name, &b.Slug, &b.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get brand: %w", err)
	}
	return &b, nil
}

func (r *PostgresCatalogRepo) ListBrands(ctx context.Context, customerID string) ([]*models.Brand, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, name, slug, created_at FROM brands
		WHERE $1::text = '' OR customer_id = $1
		ORDER BY seq
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return collectBrands(rows)
}

func (r *PostgresCatalogRepo) GetBrandsByIDs(ctx context.Context, ids []string) (map[string]*models.Brand, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, name, slug, created_at FROM brands WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get brands: %w", err)
	}
	list, err := collectBrands(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.Brand, len(list))
	for _, b := range list {
		out[b.ID] = b
	}
	return out, nil
}

func collectBrands(rows pgx.Rows) ([]*models.Brand, error) {
	defer rows.Close()

	var out []*models.Brand
	for rows.Next() {
		var b models.Brand
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.Name, &b.Slug, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan brand: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// =============================================
// Ads
// =============================================

func (r *PostgresCatalogRepo) CreateAd(ctx context.Context, a *models.Ad) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ads (id, brand_id, name, type, dimensions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.BrandID, a.Name, string(a.Type), a.Dimensions, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ad: %w", err)
	}
	return nil
}

func (r *PostgresCatalogRepo) GetAd(ctx context.Context, id string) (*models.Ad, error) {
	var a models.Ad
	var adType string
	err := r.pool.QueryRow(ctx, `
		SELECT id, brand_id, name, type, dimensions, created_at FROM ads WHERE id = $1
	`, id).Scan(&a.ID, &a.BrandID, &a.Name, &adType, &a.Dimensions, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ad: %w", err)
	}
	a.Type = models.AdType(adType)
	return &a, nil
}

func (r *PostgresCatalogRepo) ListAds(ctx context.Context, brandID string) ([]*models.Ad, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, brand_id, name, type, dimensions, created_at FROM ads
		WHERE $1::text = '' OR brand_id = $1
		ORDER BY seq
	`, brandID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ads: %w", err)
	}
	return collectAds(rows)
}

func (r *PostgresCatalogRepo) GetAdsByIDs(ctx context.Context, ids []string) (map[string]*models.Ad, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, brand_id, name, type, dimensions, created_at FROM ads WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get ads: %w", err)
	}
	list, err := collectAds(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.Ad, len(list))
	for _, a := range list {
		out[a.ID] = a
	}
	return out, nil
}

func collectAds(rows pgx.Rows) ([]*models.Ad, error) {
	defer rows.Close()

	var out []*models.Ad
	for rows.Next() {
		var a models.Ad
		var adType string
		if err := rows.Scan(&a.ID, &a.BrandID, &a.Name, &adType, &a.Dimensions, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ad: %w", err)
		}
		a.Type = models.AdType(adType)
		out = append(out, &a)
	}
	return out, rows.Err()
}
