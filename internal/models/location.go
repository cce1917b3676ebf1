package models

import (
	"errors"
	"fmt"
	"time"
)

// DefaultLocationSource is recorded when a client does not tag its updates.
const DefaultLocationSource = "web"

// Location is one immutable position report for a subject.
type Location struct {
	ID          int64     `json:"id"`
	SubjectID   int64     `json:"tourist_profile_id"`
	SubjectCode string    `json:"tourist_id_code"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	AccuracyM   *float64  `json:"accuracy_m"`
	Source      *string   `json:"source"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ErrInvalidTimestamp is returned for recorded_at values that do not parse.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 or a naive ISO 8601 timestamp, which is
// taken to be UTC. The result is always in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}
