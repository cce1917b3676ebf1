// Package engine turns location updates and panic requests into safety
// alerts and keeps per-tourist safety scores current.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"safety-service/internal/geofence"
	"safety-service/internal/logging"
	"safety-service/internal/metrics"
	"safety-service/internal/models"
	"safety-service/internal/ratelimit"
	"safety-service/internal/score"
)

// InactivityThreshold is the gap between consecutive updates that raises an
// inactivity alert.
const InactivityThreshold = 30 * time.Minute

const (
	inactivityRule  = "inactivity_30_min"
	inactivityTitle = "No movement detected for over 30 minutes"
	inactivityDesc  = "System detected a long gap between location updates."
	panicTitle      = "Panic button activated"
	panicSource     = "panic_button"

	// isoLayout renders last_recorded_at as a naive UTC timestamp.
	isoLayout = "2006-01-02T15:04:05.999999"
)

// LocationUpdate is one position report for a tourist.
type LocationUpdate struct {
	SubjectCode string
	Lat         float64
	Lng         float64
	AccuracyM   *float64
	Source      *string
	RecordedAt  *time.Time
}

// PanicRequest is a panic-button press by an actor, optionally naming the
// tourist it concerns.
type PanicRequest struct {
	ActorID     string
	SubjectCode string
	Lat         *float64
	Lng         *float64
	Note        *string
}

// Config carries the limiters and instrumentation injected into the engine.
type Config struct {
	LocationLimiter *ratelimit.Limiter
	PanicLimiter    *ratelimit.Limiter
	Metrics         *metrics.Metrics
}

type Engine struct {
	store    Store
	sink     Notifier
	logger   *logging.Logger
	dedup    *Deduplicator
	location *ratelimit.Limiter
	panics   *ratelimit.Limiter
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(store Store, sink Notifier, logger *logging.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.LocationLimiter == nil {
		cfg.LocationLimiter = ratelimit.New(120, 300*time.Second)
	}
	if cfg.PanicLimiter == nil {
		cfg.PanicLimiter = ratelimit.New(3, 60*time.Second)
	}
	return &Engine{
		store:    store,
		sink:     sink,
		logger:   logger,
		dedup:    NewDeduplicator(),
		location: cfg.LocationLimiter,
		panics:   cfg.PanicLimiter,
		metrics:  cfg.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the engine's time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = func() time.Time { return now().UTC() }
}

// IngestLocation stores the update and returns the alerts it raised.
func (e *Engine) IngestLocation(ctx context.Context, upd LocationUpdate) ([]models.Alert, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveIngest(time.Since(start)) }()

	subject, err := e.store.SubjectByCode(ctx, upd.SubjectCode)
	if err != nil {
		return nil, subjectErr(err)
	}

	if !e.location.Allow(strconv.FormatInt(subject.ID, 10)) {
		e.metrics.RateLimited("location")
		return nil, ErrRateLimitExceeded
	}

	now := e.now()
	recordedAt := now
	if upd.RecordedAt != nil {
		recordedAt = upd.RecordedAt.UTC()
	}
	source := models.DefaultLocationSource
	if upd.Source != nil && *upd.Source != "" {
		source = *upd.Source
	}

	zones, err := e.store.ActiveZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk zones: %w", err)
	}

	alerts := []models.Alert{}
	err = e.store.WithTx(ctx, func(tx Tx) error {
		alerts = alerts[:0]
		if err := tx.LockSubject(ctx, subject.ID); err != nil {
			return err
		}
		prev, err := tx.PreviousLocation(ctx, subject.ID, recordedAt)
		if err != nil {
			return err
		}

		loc := &models.Location{
			SubjectID:   subject.ID,
			SubjectCode: subject.Code,
			Lat:         upd.Lat,
			Lng:         upd.Lng,
			AccuracyM:   upd.AccuracyM,
			Source:      &source,
			RecordedAt:  recordedAt,
		}
		if err := tx.InsertLocation(ctx, loc); err != nil {
			return err
		}

		for _, zone := range zones {
			if !geofence.Contains(upd.Lat, upd.Lng, zone) || !geofence.ShouldAlert(zone) {
				continue
			}
			dup, err := e.dedup.GeofenceSuppressed(ctx, tx, subject.ID, zone.ID, now)
			if err != nil {
				return err
			}
			if dup {
				e.metrics.AlertSuppressed(string(models.KindGeofenceBreach))
				continue
			}
			alerts = append(alerts, breachAlert(subject, zone, upd, now))
		}

		if prev != nil && recordedAt.Sub(prev.RecordedAt) > InactivityThreshold {
			dup, err := e.dedup.InactivitySuppressed(ctx, tx, subject.ID)
			if err != nil {
				return err
			}
			if dup {
				e.metrics.AlertSuppressed(string(models.KindInactivity))
			} else {
				alerts = append(alerts, inactivityAlert(subject, *prev, upd, now))
			}
		}

		for i := range alerts {
			if err := tx.InsertAlert(ctx, &alerts[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ingest location for %s: %w", subject.Code, err)
	}

	e.metrics.LocationIngested(source)
	for _, a := range alerts {
		e.metrics.AlertCreated(string(a.Kind), string(a.Severity))
		e.dispatch(a, subject)
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return alerts, nil
}

// TriggerPanic raises a critical panic alert. Panic alerts are never deduplicated.
func (e *Engine) TriggerPanic(ctx context.Context, req PanicRequest) (models.Alert, error) {
	if !e.panics.Allow(req.ActorID) {
		e.metrics.RateLimited("panic")
		return models.Alert{}, ErrRateLimitExceeded
	}

	var (
		subject models.Subject
		err     error
	)
	if req.SubjectCode != "" {
		subject, err = e.store.SubjectByCode(ctx, req.SubjectCode)
	} else {
		subject, err = e.store.SubjectByActor(ctx, req.ActorID)
	}
	if err != nil {
		return models.Alert{}, subjectErr(err)
	}

	payload := models.Payload{
		"source":       panicSource,
		"triggered_by": req.ActorID,
	}
	if req.Note != nil && *req.Note != "" {
		payload["note"] = *req.Note
	}
	if subject.HasEmergencyContact() {
		payload["emergency_contact_name"] = subject.EmergencyContactName
		payload["emergency_contact_phone"] = subject.EmergencyContactPhone
	}

	alert := models.Alert{
		SubjectID:   &subject.ID,
		SubjectCode: &subject.Code,
		Kind:        models.KindPanic,
		Severity:    models.SeverityCritical,
		Status:      models.StatusNew,
		Title:       panicTitle,
		Description: req.Note,
		Lat:         req.Lat,
		Lng:         req.Lng,
		TriggeredAt: e.now(),
		Payload:     payload,
	}
	if err := e.store.InsertAlert(ctx, &alert); err != nil {
		return models.Alert{}, fmt.Errorf("failed to create panic alert: %w", err)
	}

	e.logger.Warnf("Panic alert %d raised for %s by %s", alert.ID, subject.Code, req.ActorID)
	e.metrics.AlertCreated(string(alert.Kind), string(alert.Severity))
	e.dispatch(alert, subject)
	return alert, nil
}

// AcknowledgeAlert marks an alert as seen. Acknowledging twice is a no-op.
func (e *Engine) AcknowledgeAlert(ctx context.Context, id int64) (models.Alert, error) {
	alert, err := e.getAlert(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	if err := alert.Acknowledge(); err != nil {
		return models.Alert{}, ErrAlertResolved
	}
	if err := e.store.UpdateAlertStatus(ctx, alert); err != nil {
		return models.Alert{}, fmt.Errorf("failed to acknowledge alert %d: %w", id, err)
	}
	return alert, nil
}

// ResolveAlert closes an alert on behalf of resolver.
func (e *Engine) ResolveAlert(ctx context.Context, id int64, resolver string) (models.Alert, error) {
	alert, err := e.getAlert(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	if err := alert.Resolve(resolver, e.now()); err != nil {
		return models.Alert{}, ErrAlertResolved
	}
	if err := e.store.UpdateAlertStatus(ctx, alert); err != nil {
		return models.Alert{}, fmt.Errorf("failed to resolve alert %d: %w", id, err)
	}
	e.logger.Infof("Alert %d resolved by %s", id, resolver)
	return alert, nil
}

// ComputeScore recalculates the subject's safety score from recent alerts
// and stores the snapshot.
func (e *Engine) ComputeScore(ctx context.Context, subject models.Subject) (int, error) {
	now := e.now()
	alerts, err := e.store.AlertsSince(ctx, subject.ID, now.Add(-score.Lookback))
	if err != nil {
		return 0, fmt.Errorf("failed to load alerts for %s: %w", subject.Code, err)
	}
	s := score.Compute(alerts, now)
	if err := e.store.UpdateSafetyScore(ctx, subject.ID, s); err != nil {
		return 0, fmt.Errorf("failed to update safety score for %s: %w", subject.Code, err)
	}
	e.metrics.ObserveScore(s)
	return s, nil
}

// RefreshScores recomputes the score of every active subject. Failures for
// one subject are logged and do not stop the others.
func (e *Engine) RefreshScores(ctx context.Context) (int, error) {
	subjects, err := e.store.ActiveSubjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active tourists: %w", err)
	}
	updated := 0
	for _, s := range subjects {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if _, err := e.ComputeScore(ctx, s); err != nil {
			e.logger.Errorf("Score refresh failed: %v", err)
			continue
		}
		updated++
	}
	return updated, nil
}

func (e *Engine) getAlert(ctx context.Context, id int64) (models.Alert, error) {
	alert, err := e.store.GetAlert(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.Alert{}, ErrAlertNotFound
	}
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return alert, nil
}

// dispatch hands the alert to the sink. The alert is already committed, so
// sink failures are only logged.
func (e *Engine) dispatch(alert models.Alert, subject models.Subject) {
	if e.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Notification sink failed for alert %d: %v", alert.ID, r)
		}
	}()
	e.sink.Notify(alert, subject)
}

func subjectErr(err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return ErrSubjectNotFound
	}
	return fmt.Errorf("failed to get tourist profile: %w", err)
}

func breachAlert(subject models.Subject, zone models.RiskZone, upd LocationUpdate, now time.Time) models.Alert {
	lat, lng := upd.Lat, upd.Lng
	var city interface{}
	if zone.City != nil {
		city = *zone.City
	}
	return models.Alert{
		SubjectID:   &subject.ID,
		SubjectCode: &subject.Code,
		Kind:        models.KindGeofenceBreach,
		Severity:    geofence.Severity(zone),
		Status:      models.StatusNew,
		Title:       geofence.Title(zone),
		Description: zone.Description,
		Lat:         &lat,
		Lng:         &lng,
		TriggeredAt: now,
		Payload:     models.Payload{"zone_id": zone.ID, "zone_city": city},
	}
}

func inactivityAlert(subject models.Subject, prev models.Location, upd LocationUpdate, now time.Time) models.Alert {
	lat, lng := upd.Lat, upd.Lng
	desc := inactivityDesc
	return models.Alert{
		SubjectID:   &subject.ID,
		SubjectCode: &subject.Code,
		Kind:        models.KindInactivity,
		Severity:    models.SeverityMedium,
		Status:      models.StatusNew,
		Title:       inactivityTitle,
		Description: &desc,
		Lat:         &lat,
		Lng:         &lng,
		TriggeredAt: now,
		Payload: models.Payload{
			"rule":             inactivityRule,
			"last_recorded_at": prev.RecordedAt.UTC().Format(isoLayout),
		},
	}
}
