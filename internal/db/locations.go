package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"safety-service/internal/models"
)

// PreviousLocation returns the latest location recorded strictly before the given time.
func (t *Tx) PreviousLocation(ctx context.Context, subjectID int64, before time.Time) (*models.Location, error) {
	query := `
	SELECT id, tourist_profile_id, tourist_id_code, lat, lng, accuracy_m, source, recorded_at
	FROM tourist_locations
	WHERE tourist_profile_id = $1 AND recorded_at < $2
	ORDER BY recorded_at DESC
	LIMIT 1`
	var l models.Location
	err := t.q.QueryRow(ctx, query, subjectID, before).Scan(
		&l.ID, &l.SubjectID, &l.SubjectCode, &l.Lat, &l.Lng, &l.AccuracyM, &l.Source, &l.RecordedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get previous location: %w", err)
	}
	l.RecordedAt = l.RecordedAt.UTC()
	return &l, nil
}

func (t *Tx) InsertLocation(ctx context.Context, l *models.Location) error {
	query := `
	INSERT INTO tourist_locations (tourist_profile_id, tourist_id_code, lat, lng, accuracy_m, source, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`
	err := t.q.QueryRow(ctx, query,
		l.SubjectID, l.SubjectCode, l.Lat, l.Lng, l.AccuracyM, l.Source, l.RecordedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("failed to insert location: %w", err)
	}
	return nil
}
