// Package geofence decides whether a point falls inside a risk zone and
// whether that zone warrants an alert.
//
// Zones are matched on an axis-aligned bounding box only; polygon
// containment is intentionally not performed.
package geofence

import (
	"encoding/json"
	"fmt"
	"strings"

	"safety-service/internal/models"
)

// BBox is [min_lng, min_lat, max_lng, max_lat].
type BBox [4]float64

// MinLng etc. name the box edges.
func (b BBox) MinLng() float64 { return b[0] }
func (b BBox) MinLat() float64 { return b[1] }
func (b BBox) MaxLng() float64 { return b[2] }
func (b BBox) MaxLat() float64 { return b[3] }

// Contains reports whether the point is inside the box, edges included.
func (b BBox) Contains(lat, lng float64) bool {
	return b.MinLat() <= lat && lat <= b.MaxLat() &&
		b.MinLng() <= lng && lng <= b.MaxLng()
}

// BoundingBox extracts the zone's bbox. ok is false when the geometry has no
// bbox or it is not exactly four numbers.
func BoundingBox(zone models.RiskZone) (BBox, bool) {
	if zone.Geom == nil {
		return BBox{}, false
	}
	raw, ok := zone.Geom["bbox"]
	if !ok || raw == nil {
		return BBox{}, false
	}

	var values []interface{}
	switch v := raw.(type) {
	case []interface{}:
		values = v
	case []float64:
		for _, f := range v {
			values = append(values, f)
		}
	default:
		return BBox{}, false
	}
	if len(values) != 4 {
		return BBox{}, false
	}

	var box BBox
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return BBox{}, false
		}
		box[i] = f
	}
	return box, true
}

// Contains reports whether (lat, lng) lies inside the zone's bbox.
// Malformed geometry never matches.
func Contains(lat, lng float64, zone models.RiskZone) bool {
	box, ok := BoundingBox(zone)
	if !ok {
		return false
	}
	return box.Contains(lat, lng)
}

// ShouldAlert reports whether entering the zone raises an alert.
func ShouldAlert(zone models.RiskZone) bool {
	switch normalize(zone.RiskLevel) {
	case models.RiskMedium, models.RiskHigh:
		return true
	default:
		return false
	}
}

// Severity maps an alerting zone to the alert severity.
func Severity(zone models.RiskZone) models.Severity {
	if normalize(zone.RiskLevel) == models.RiskHigh {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// Title renders "Entered <Level> risk zone: <Name>".
func Title(zone models.RiskZone) string {
	return fmt.Sprintf("Entered %s risk zone: %s", capitalize(string(zone.RiskLevel)), zone.Name)
}

func normalize(level models.RiskLevel) models.RiskLevel {
	return models.RiskLevel(strings.ToLower(strings.TrimSpace(string(level))))
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
