// Package memstore is an in-memory implementation of the service's stores,
// used by tests and by local runs without PostgreSQL.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"safety-service/internal/engine"
	"safety-service/internal/models"
)

type Store struct {
	// txMu serializes transactions, standing in for per-subject locks.
	txMu sync.Mutex

	mu         sync.RWMutex
	subjects   []models.Subject
	zones      []models.RiskZone
	locations  []models.Location
	alerts     []models.Alert
	dispatches []models.Dispatch
	seq        struct{ subject, zone, location, alert int64 }

	// FailInsertAlert, when set, is returned by every alert insert.
	FailInsertAlert error
}

func New() *Store {
	return &Store{}
}

// Subjects

func (s *Store) CreateSubject(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq.subject++
	subject.ID = s.seq.subject
	if subject.Code == "" {
		subject.Code = fmt.Sprintf("TR-%06d", subject.ID)
	}
	now := time.Now().UTC()
	subject.CreatedAt, subject.UpdatedAt = now, now
	s.subjects = append(s.subjects, *subject)
	return nil
}

func (s *Store) UpdateSubject(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subjects {
		if s.subjects[i].ID == subject.ID {
			subject.UpdatedAt = time.Now().UTC()
			s.subjects[i] = *subject
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *Store) SubjectByCode(_ context.Context, code string) (models.Subject, error) {
	return s.findSubject(func(x models.Subject) bool { return x.IsActive && x.Code == code })
}

func (s *Store) LookupSubject(_ context.Context, code string) (models.Subject, error) {
	return s.findSubject(func(x models.Subject) bool { return x.Code == code })
}

func (s *Store) SubjectByActor(_ context.Context, actorID string) (models.Subject, error) {
	return s.findSubject(func(x models.Subject) bool { return x.IsActive && x.ActorID == actorID })
}

func (s *Store) ActiveSubjects(_ context.Context) ([]models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Subject
	for _, x := range s.subjects {
		if x.IsActive {
			out = append(out, x)
		}
	}
	return out, nil
}

func (s *Store) UpdateSafetyScore(_ context.Context, subjectID int64, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subjects {
		if s.subjects[i].ID == subjectID {
			v := score
			s.subjects[i].SafetyScore = &v
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *Store) findSubject(match func(models.Subject) bool) (models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, x := range s.subjects {
		if match(x) {
			return x, nil
		}
	}
	return models.Subject{}, models.ErrNotFound
}

// Zones

func (s *Store) CreateZone(_ context.Context, zone *models.RiskZone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq.zone++
	zone.ID = s.seq.zone
	now := time.Now().UTC()
	zone.CreatedAt, zone.UpdatedAt = now, now
	s.zones = append(s.zones, *zone)
	return nil
}

// UpsertZone replaces the zone with the same name and city, or adds it.
func (s *Store) UpsertZone(ctx context.Context, zone *models.RiskZone) error {
	s.mu.Lock()
	for i, z := range s.zones {
		if z.Name == zone.Name && cityOf(z) == cityOf(*zone) {
			zone.ID, zone.CreatedAt, zone.CreatedBy = z.ID, z.CreatedAt, z.CreatedBy
			zone.UpdatedAt = time.Now().UTC()
			s.zones[i] = *zone
			s.mu.Unlock()
			return nil
		}
	}
	s.mu.Unlock()
	return s.CreateZone(ctx, zone)
}

func cityOf(z models.RiskZone) string {
	if z.City == nil {
		return ""
	}
	return *z.City
}

func (s *Store) ListZones(_ context.Context, f models.ZoneFilter) ([]models.RiskZone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.RiskZone{}
	for _, z := range s.zones {
		if f.ActiveOnly && !z.IsActive {
			continue
		}
		if f.City != "" && (z.City == nil || !strings.EqualFold(*z.City, f.City)) {
			continue
		}
		out = append(out, z)
	}
	return out, nil
}

func (s *Store) ActiveZones(ctx context.Context) ([]models.RiskZone, error) {
	return s.ListZones(ctx, models.ZoneFilter{ActiveOnly: true})
}

// Alerts

func (s *Store) InsertAlert(_ context.Context, alert *models.Alert) error {
	if s.FailInsertAlert != nil {
		return s.FailInsertAlert
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq.alert++
	alert.ID = s.seq.alert
	s.alerts = append(s.alerts, *alert)
	return nil
}

func (s *Store) GetAlert(_ context.Context, id int64) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return models.Alert{}, models.ErrNotFound
}

func (s *Store) UpdateAlertStatus(_ context.Context, alert models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == alert.ID {
			s.alerts[i].Status = alert.Status
			s.alerts[i].ResolvedAt = alert.ResolvedAt
			s.alerts[i].ResolvedBy = alert.ResolvedBy
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *Store) AlertsSince(_ context.Context, subjectID int64, since time.Time) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if a.SubjectID != nil && *a.SubjectID == subjectID && !a.TriggeredAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListAlerts returns matching alerts, newest first.
func (s *Store) ListAlerts(_ context.Context, f models.AlertFilter) ([]models.Alert, error) {
	s.mu.RLock()
	matched := []models.Alert{}
	for _, a := range s.alerts {
		if f.SubjectID != nil && (a.SubjectID == nil || *a.SubjectID != *f.SubjectID) {
			continue
		}
		if f.SubjectCode != "" && (a.SubjectCode == nil || *a.SubjectCode != f.SubjectCode) {
			continue
		}
		if f.Status != "" && string(a.Status) != f.Status {
			continue
		}
		if f.Kind != "" && string(a.Kind) != f.Kind {
			continue
		}
		if f.Severity != "" && string(a.Severity) != f.Severity {
			continue
		}
		matched = append(matched, a)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].TriggeredAt.After(matched[j].TriggeredAt)
	})
	if f.Offset >= len(matched) {
		return []models.Alert{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// Dispatches

func (s *Store) CreateDispatch(_ context.Context, d models.Dispatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatches = append(s.dispatches, d)
	return nil
}

func (s *Store) UpdateDispatchStatus(_ context.Context, id [16]byte, status, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.dispatches {
		d := &s.dispatches[i]
		if d.ID != id {
			continue
		}
		d.Status, d.Error = status, lastError
		if status == models.DispatchSent {
			now := time.Now().UTC()
			d.SentAt = &now
		}
		return nil
	}
	return fmt.Errorf("no dispatch updated for id %x", id)
}

func (s *Store) DispatchesForAlert(_ context.Context, alertID int64) ([]models.Dispatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Dispatch{}
	for _, d := range s.dispatches {
		if d.AlertID == alertID {
			out = append(out, d)
		}
	}
	return out, nil
}

// Alerts returns a copy of every stored alert in insertion order.
func (s *Store) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Alert(nil), s.alerts...)
}

// Locations returns a copy of every stored location in insertion order.
func (s *Store) Locations() []models.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Location(nil), s.locations...)
}

// AddLocation stores a location outside any transaction.
func (s *Store) AddLocation(loc models.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq.location++
	loc.ID = s.seq.location
	s.locations = append(s.locations, loc)
}

// WithTx buffers writes and applies them only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{s: s}
	if err := fn(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, loc := range t.locations {
		s.seq.location++
		loc.ID = s.seq.location
		s.locations = append(s.locations, loc)
	}
	for _, a := range t.alerts {
		s.seq.alert++
		a.ID = s.seq.alert
		s.alerts = append(s.alerts, a)
	}
	// Hand the committed ids back to the caller's structs.
	for i, p := range t.alertPtrs {
		p.ID = s.seq.alert - int64(len(t.alertPtrs)-1-i)
	}
	return nil
}

type tx struct {
	s         *Store
	locations []models.Location
	alerts    []models.Alert
	alertPtrs []*models.Alert
}

func (t *tx) LockSubject(context.Context, int64) error { return nil }

func (t *tx) PreviousLocation(_ context.Context, subjectID int64, before time.Time) (*models.Location, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var best *models.Location
	for _, list := range [][]models.Location{t.s.locations, t.locations} {
		for i := range list {
			l := list[i]
			if l.SubjectID != subjectID || !l.RecordedAt.Before(before) {
				continue
			}
			if best == nil || l.RecordedAt.After(best.RecordedAt) {
				best = &l
			}
		}
	}
	return best, nil
}

func (t *tx) InsertLocation(_ context.Context, loc *models.Location) error {
	t.locations = append(t.locations, *loc)
	return nil
}

func (t *tx) HasOpenAlert(_ context.Context, q models.OpenAlertQuery) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, list := range [][]models.Alert{t.s.alerts, t.alerts} {
		for _, a := range list {
			if matchesOpen(a, q) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *tx) InsertAlert(_ context.Context, alert *models.Alert) error {
	if t.s.FailInsertAlert != nil {
		return t.s.FailInsertAlert
	}
	t.alerts = append(t.alerts, *alert)
	t.alertPtrs = append(t.alertPtrs, alert)
	return nil
}

func matchesOpen(a models.Alert, q models.OpenAlertQuery) bool {
	if a.SubjectID == nil || *a.SubjectID != q.SubjectID || a.Kind != q.Kind || !a.IsOpen() {
		return false
	}
	if q.TriggeredAfter != nil && a.TriggeredAt.Before(*q.TriggeredAfter) {
		return false
	}
	if q.ZoneID != nil && !zoneMatches(a.Payload["zone_id"], *q.ZoneID) {
		return false
	}
	return true
}

func zoneMatches(v interface{}, id int64) bool {
	switch n := v.(type) {
	case int64:
		return n == id
	case int:
		return int64(n) == id
	case float64:
		return int64(n) == id
	}
	return false
}
