package models

import "time"

// RiskLevel of a zone. Values are compared case-insensitively.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskZone is an administrator-defined hazardous area. Geom holds a JSON
// object whose "bbox" is [min_lng, min_lat, max_lng, max_lat].
type RiskZone struct {
	ID          int64                  `json:"id"`
	Name        string                 `json:"name" binding:"required"`
	Description *string                `json:"description"`
	RiskLevel   RiskLevel              `json:"risk_level" binding:"required"`
	Category    *string                `json:"category"`
	City        *string                `json:"city"`
	Geom        map[string]interface{} `json:"geom" binding:"required"`
	IsActive    bool                   `json:"is_active"`
	CreatedBy   *string                `json:"created_by"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ZoneFilter narrows zone listings.
type ZoneFilter struct {
	City       string
	ActiveOnly bool
}
