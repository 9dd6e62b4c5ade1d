package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// OfficeRepository implements domain.OfficeRepository
type OfficeRepository struct {
	db *DB
}

// NewOfficeRepository creates a new office repository
func NewOfficeRepository(db *DB) *OfficeRepository {
	return &OfficeRepository{db: db}
}

// RegionsFor returns the coverage regions registered for an office email
// domain. An unregistered domain is not an error.
func (r *OfficeRepository) RegionsFor(ctx context.Context, emailDomain string) ([]string, error) {
	var regionsJSON string
	err := r.db.conn.QueryRowContext(ctx, `SELECT regions FROM offices WHERE email_domain = ?`, emailDomain).Scan(&regionsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get office regions: %w", err)
	}

	var regions []string
	if err := json.Unmarshal([]byte(regionsJSON), &regions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal office regions: %w", err)
	}
	return regions, nil
}

// SetRegions registers or replaces the regions for an office domain
func (r *OfficeRepository) SetRegions(ctx context.Context, emailDomain string, regions []string) error {
	regionsJSON, err := json.Marshal(regions)
	if err != nil {
		return fmt.Errorf("failed to marshal office regions: %w", err)
	}

	query := `
		INSERT INTO offices (email_domain, regions) VALUES (?, ?)
		ON CONFLICT (email_domain) DO UPDATE SET regions = excluded.regions
	`
	if _, err := r.db.conn.ExecContext(ctx, query, emailDomain, string(regionsJSON)); err != nil {
		return fmt.Errorf("failed to set office regions: %w", err)
	}
	return nil
}
