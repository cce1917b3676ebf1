package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"safety-service/internal/models"
)

const zoneColumns = `id, name, description, risk_level, category, city, geom, is_active, created_by, created_at, updated_at`

func (d *DB) CreateZone(ctx context.Context, z *models.RiskZone) error {
	query := `
	INSERT INTO risk_zones (name, description, risk_level, category, city, geom, is_active, created_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, created_at, updated_at`
	err := d.conn.QueryRow(ctx, query,
		z.Name, z.Description, z.RiskLevel, z.Category, z.City, z.Geom, z.IsActive, z.CreatedBy,
	).Scan(&z.ID, &z.CreatedAt, &z.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert risk zone: %w", err)
	}
	return nil
}

// UpsertZone inserts a zone or refreshes the one with the same name and city.
func (d *DB) UpsertZone(ctx context.Context, z *models.RiskZone) error {
	query := `
	INSERT INTO risk_zones (name, description, risk_level, category, city, geom, is_active, created_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (name, COALESCE(city, '')) DO UPDATE SET
		description = EXCLUDED.description, risk_level = EXCLUDED.risk_level,
		category = EXCLUDED.category, geom = EXCLUDED.geom,
		is_active = EXCLUDED.is_active, updated_at = now()
	RETURNING id, created_at, updated_at`
	err := d.conn.QueryRow(ctx, query,
		z.Name, z.Description, z.RiskLevel, z.Category, z.City, z.Geom, z.IsActive, z.CreatedBy,
	).Scan(&z.ID, &z.CreatedAt, &z.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert risk zone %q: %w", z.Name, err)
	}
	return nil
}

func (d *DB) ListZones(ctx context.Context, f models.ZoneFilter) ([]models.RiskZone, error) {
	query := `SELECT ` + zoneColumns + ` FROM risk_zones WHERE TRUE`
	args := []interface{}{}
	if f.City != "" {
		args = append(args, f.City)
		query += fmt.Sprintf(" AND lower(city) = lower($%d)", len(args))
	}
	if f.ActiveOnly {
		query += " AND is_active"
	}
	query += " ORDER BY id"

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk zones: %w", err)
	}
	defer rows.Close()

	list := []models.RiskZone{}
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, z)
	}
	return list, rows.Err()
}

func (d *DB) ActiveZones(ctx context.Context) ([]models.RiskZone, error) {
	return d.ListZones(ctx, models.ZoneFilter{ActiveOnly: true})
}

func scanZone(row pgx.Row) (models.RiskZone, error) {
	var z models.RiskZone
	err := row.Scan(&z.ID, &z.Name, &z.Description, &z.RiskLevel, &z.Category, &z.City,
		&z.Geom, &z.IsActive, &z.CreatedBy, &z.CreatedAt, &z.UpdatedAt)
	if err != nil {
		return z, fmt.Errorf("failed to scan risk zone: %w", err)
	}
	return z, nil
}
