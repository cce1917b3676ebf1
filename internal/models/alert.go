package models

import (
	"errors"
	"time"
)

// AlertKind identifies what raised an alert.
type AlertKind string

const (
	KindPanic          AlertKind = "panic"
	KindGeofenceBreach AlertKind = "geofence_breach"
	KindInactivity     AlertKind = "inactivity"
)

// Severity of an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertStatus is the lifecycle state of an alert: new -> acknowledged -> resolved.
type AlertStatus string

const (
	StatusNew          AlertStatus = "new"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

// ErrAlreadyResolved is returned when a lifecycle change targets a resolved alert.
var ErrAlreadyResolved = errors.New("alert already resolved")

// Payload carries kind-specific context such as zone_id or rule.
type Payload map[string]interface{}

// Alert is a safety alert raised for a tourist.
type Alert struct {
	ID          int64       `json:"id"`
	SubjectID   *int64      `json:"tourist_profile_id"`
	SubjectCode *string     `json:"tourist_id_code"`
	Kind        AlertKind   `json:"type"`
	Severity    Severity    `json:"severity"`
	Status      AlertStatus `json:"status"`
	Title       string      `json:"title"`
	Description *string     `json:"description"`
	Lat         *float64    `json:"lat"`
	Lng         *float64    `json:"lng"`
	TriggeredAt time.Time   `json:"triggered_at"`
	ResolvedAt  *time.Time  `json:"resolved_at"`
	ResolvedBy  *string     `json:"resolved_by"`
	Payload     Payload     `json:"extra_data"`
}

// IsOpen reports whether the alert has not been resolved yet.
func (a Alert) IsOpen() bool {
	return a.Status != StatusResolved
}

// Acknowledge moves a new alert to acknowledged. Acknowledging twice is a no-op.
func (a *Alert) Acknowledge() error {
	if a.Status == StatusResolved {
		return ErrAlreadyResolved
	}
	a.Status = StatusAcknowledged
	return nil
}

// Resolve closes the alert and stamps who resolved it and when.
func (a *Alert) Resolve(by string, at time.Time) error {
	if a.Status == StatusResolved {
		return ErrAlreadyResolved
	}
	a.Status = StatusResolved
	a.ResolvedBy = &by
	a.ResolvedAt = &at
	return nil
}

// OpenAlertQuery selects non-resolved alerts of one kind for a subject.
// ZoneID and TriggeredAfter narrow the match when set.
type OpenAlertQuery struct {
	SubjectID      int64
	Kind           AlertKind
	ZoneID         *int64
	TriggeredAfter *time.Time
}

// AlertFilter is used by listings.
type AlertFilter struct {
	SubjectID   *int64
	SubjectCode string
	Status      string
	Kind        string
	Severity    string
	Offset      int
	Limit       int
}
