package engine

import (
	"context"
	"time"

	"safety-service/internal/models"
)

// GeofenceDedupWindow is how long an open breach for the same zone
// suppresses a new one.
const GeofenceDedupWindow = 5 * time.Minute

// Deduplicator decides whether a candidate alert would repeat one that is
// still open. It must run inside the transaction that inserts the alert.
type Deduplicator struct {
	window time.Duration
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{window: GeofenceDedupWindow}
}

// GeofenceSuppressed reports whether an open breach for the same zone was
// triggered within the window.
func (d *Deduplicator) GeofenceSuppressed(ctx context.Context, tx Tx, subjectID, zoneID int64, now time.Time) (bool, error) {
	after := now.Add(-d.window)
	return tx.HasOpenAlert(ctx, models.OpenAlertQuery{
		SubjectID:      subjectID,
		Kind:           models.KindGeofenceBreach,
		ZoneID:         &zoneID,
		TriggeredAfter: &after,
	})
}

// InactivitySuppressed reports whether any open inactivity alert exists, of any age.
func (d *Deduplicator) InactivitySuppressed(ctx context.Context, tx Tx, subjectID int64) (bool, error) {
	return tx.HasOpenAlert(ctx, models.OpenAlertQuery{
		SubjectID: subjectID,
		Kind:      models.KindInactivity,
	})
}
