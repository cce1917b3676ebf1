package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Dispatch statuses.
const (
	DispatchPending = "pending"
	DispatchSent    = "sent"
	DispatchFailed  = "failed"
)

// Dispatch records one delivery attempt of an alert over a single channel.
type Dispatch struct {
	ID        [16]byte   `json:"id"`
	RequestID [16]byte   `json:"request_id"`
	AlertID   int64      `json:"alert_id"`
	Channel   string     `json:"channel"`
	Recipient string     `json:"recipient,omitempty"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// MarshalJSON customizes JSON serialization for Dispatch to return UUIDs as strings.
func (d Dispatch) MarshalJSON() ([]byte, error) {
	type Alias Dispatch
	return json.Marshal(&struct {
		ID        string `json:"id"`
		RequestID string `json:"request_id"`
		*Alias
	}{
		ID:        uuid.UUID(d.ID).String(),
		RequestID: uuid.UUID(d.RequestID).String(),
		Alias:     (*Alias)(&d),
	})
}
