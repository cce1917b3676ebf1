// Package seed loads risk zone definitions from a YAML file so a fresh
// deployment starts with a known set of zones.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"safety-service/internal/geofence"
	"safety-service/internal/logging"
	"safety-service/internal/models"
)

// Upserter stores a zone keyed by name and city.
type Upserter interface {
	UpsertZone(ctx context.Context, z *models.RiskZone) error
}

type file struct {
	Zones []zoneDoc `yaml:"zones"`
}

type zoneDoc struct {
	Name        string                 `yaml:"name"`
	Description *string                `yaml:"description"`
	RiskLevel   string                 `yaml:"risk_level"`
	Category    *string                `yaml:"category"`
	City        *string                `yaml:"city"`
	Geom        map[string]interface{} `yaml:"geom"`
	BBox        []float64              `yaml:"bbox"`
	IsActive    *bool                  `yaml:"is_active"`
}

// Load reads and parses the zone file at path.
func Load(path string) ([]models.RiskZone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zone file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a zone document. A zone may give its geometry either as a
// geom object or as a top-level bbox shorthand; is_active defaults to true.
func Parse(data []byte) ([]models.RiskZone, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse zone file: %w", err)
	}

	zones := make([]models.RiskZone, 0, len(f.Zones))
	for i, d := range f.Zones {
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("zone %d: name is required", i)
		}
		geom := d.Geom
		if geom == nil && len(d.BBox) > 0 {
			bbox := make([]interface{}, len(d.BBox))
			for j, v := range d.BBox {
				bbox[j] = v
			}
			geom = map[string]interface{}{"bbox": bbox}
		}
		if geom == nil {
			return nil, fmt.Errorf("zone %q: geom or bbox is required", d.Name)
		}
		z := models.RiskZone{
			Name:        d.Name,
			Description: d.Description,
			RiskLevel:   models.RiskLevel(strings.ToLower(strings.TrimSpace(d.RiskLevel))),
			Category:    d.Category,
			City:        d.City,
			Geom:        geom,
			IsActive:    d.IsActive == nil || *d.IsActive,
		}
		if _, ok := geofence.BoundingBox(z); !ok {
			return nil, fmt.Errorf("zone %q: bbox must hold four numbers", d.Name)
		}
		zones = append(zones, z)
	}
	return zones, nil
}

// Apply upserts every zone and reports how many were written. It stops at
// the first store error.
func Apply(ctx context.Context, store Upserter, zones []models.RiskZone, logger *logging.Logger) (int, error) {
	seeded := "seed"
	for i := range zones {
		z := zones[i]
		if z.CreatedBy == nil {
			z.CreatedBy = &seeded
		}
		if err := store.UpsertZone(ctx, &z); err != nil {
			return i, err
		}
		logger.Infof("Seeded risk zone %d (%s)", z.ID, z.Name)
	}
	return len(zones), nil
}

// FromFile loads path and applies it. An empty path is a no-op.
func FromFile(ctx context.Context, store Upserter, path string, logger *logging.Logger) (int, error) {
	if path == "" {
		return 0, nil
	}
	zones, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warnf("Zone file %s not found, skipping seed", path)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return Apply(ctx, store, zones, logger)
}
