package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OfficeRepository implements domain.OfficeRepository
type OfficeRepository struct {
	pool *pgxpool.Pool
}

// NewOfficeRepository creates a new office repository
func NewOfficeRepository(pool *pgxpool.Pool) *OfficeRepository {
	return &OfficeRepository{pool: pool}
}

// RegionsFor returns the coverage regions registered for an office email
// domain. An unregistered domain is not an error; advice just loses its
// geographic focus.
func (r *OfficeRepository) RegionsFor(ctx context.Context, emailDomain string) ([]string, error) {
	query := `SELECT regions FROM offices WHERE email_domain = $1`

	var regions []string
	err := r.pool.QueryRow(ctx, query, emailDomain).Scan(&regions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get office regions: %w", err)
	}
	return regions, nil
}

// SetRegions registers or replaces the regions for an office domain
func (r *OfficeRepository) SetRegions(ctx context.Context, emailDomain string, regions []string) error {
	query := `
		INSERT INTO offices (email_domain, regions) VALUES ($1, $2)
		ON CONFLICT (email_domain) DO UPDATE SET regions = EXCLUDED.regions
	`
	if _, err := r.pool.Exec(ctx, query, emailDomain, regions); err != nil {
		return fmt.Errorf("failed to set office regions: %w", err)
	}
	return nil
}
