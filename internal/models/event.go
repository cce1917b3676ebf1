package models

import "time"

// EventAlertCreated is the only event type published today.
const EventAlertCreated = "alert.created"

// AlertEvent is the envelope sent to the live feed and the alert topic.
type AlertEvent struct {
	ID         string    `json:"event_id"`
	Type       string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Alert      Alert     `json:"alert"`
}
