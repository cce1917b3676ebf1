package engine

import (
	"context"
	"time"

	"safety-service/internal/models"
)

// Store is the persistence the engine reads from and writes to.
// Lookups that match nothing return models.ErrNotFound.
type Store interface {
	SubjectByCode(ctx context.Context, code string) (models.Subject, error)
	SubjectByActor(ctx context.Context, actorID string) (models.Subject, error)
	ActiveSubjects(ctx context.Context) ([]models.Subject, error)
	UpdateSafetyScore(ctx context.Context, subjectID int64, score int) error

	ActiveZones(ctx context.Context) ([]models.RiskZone, error)

	AlertsSince(ctx context.Context, subjectID int64, since time.Time) ([]models.Alert, error)
	GetAlert(ctx context.Context, id int64) (models.Alert, error)
	UpdateAlertStatus(ctx context.Context, alert models.Alert) error
	InsertAlert(ctx context.Context, alert *models.Alert) error

	// WithTx runs fn in one transaction. A non-nil error from fn rolls back.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the transactional unit used while ingesting a location.
type Tx interface {
	// LockSubject serializes alert evaluation for one subject until commit.
	LockSubject(ctx context.Context, subjectID int64) error
	// PreviousLocation returns the latest location recorded strictly before
	// the given time, or nil when there is none.
	PreviousLocation(ctx context.Context, subjectID int64, before time.Time) (*models.Location, error)
	InsertLocation(ctx context.Context, loc *models.Location) error
	HasOpenAlert(ctx context.Context, q models.OpenAlertQuery) (bool, error)
	InsertAlert(ctx context.Context, alert *models.Alert) error
}

// Notifier receives every alert the engine creates. Implementations must not block.
type Notifier interface {
	Notify(alert models.Alert, subject models.Subject)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(alert models.Alert, subject models.Subject)

func (f NotifierFunc) Notify(alert models.Alert, subject models.Subject) { f(alert, subject) }
