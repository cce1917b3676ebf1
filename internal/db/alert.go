package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"safety-service/internal/models"
)

const alertColumns = `
	id, tourist_profile_id, tourist_id_code, type, severity, status, title, description,
	lat, lng, triggered_at, resolved_at, resolved_by, extra_data`

// InsertAlert stores a new alert and sets its id.
func (d *DB) InsertAlert(ctx context.Context, a *models.Alert) error {
	return insertAlert(ctx, d.conn, a)
}

func (t *Tx) InsertAlert(ctx context.Context, a *models.Alert) error {
	return insertAlert(ctx, t.q, a)
}

// HasOpenAlert reports whether a non-resolved alert matches q.
func (t *Tx) HasOpenAlert(ctx context.Context, q models.OpenAlertQuery) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM safety_alerts
		WHERE tourist_profile_id = $1 AND type = $2 AND status <> 'resolved'`
	args := []interface{}{q.SubjectID, q.Kind}
	if q.TriggeredAfter != nil {
		args = append(args, *q.TriggeredAfter)
		query += fmt.Sprintf(" AND triggered_at >= $%d", len(args))
	}
	if q.ZoneID != nil {
		args = append(args, *q.ZoneID)
		query += fmt.Sprintf(" AND (extra_data->>'zone_id')::bigint = $%d", len(args))
	}
	query += `)`

	var exists bool
	if err := t.q.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check open alerts: %w", err)
	}
	return exists, nil
}

func (d *DB) GetAlert(ctx context.Context, id int64) (models.Alert, error) {
	a, err := scanAlert(d.conn.QueryRow(ctx, `SELECT `+alertColumns+` FROM safety_alerts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Alert{}, models.ErrNotFound
	}
	return a, err
}

// UpdateAlertStatus persists the lifecycle fields. triggered_at is never touched.
func (d *DB) UpdateAlertStatus(ctx context.Context, a models.Alert) error {
	tag, err := d.conn.Exec(ctx,
		`UPDATE safety_alerts SET status = $2, resolved_at = $3, resolved_by = $4 WHERE id = $1`,
		a.ID, a.Status, a.ResolvedAt, a.ResolvedBy)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (d *DB) AlertsSince(ctx context.Context, subjectID int64, since time.Time) ([]models.Alert, error) {
	rows, err := d.conn.Query(ctx,
		`SELECT `+alertColumns+` FROM safety_alerts WHERE tourist_profile_id = $1 AND triggered_at >= $2`,
		subjectID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	return collectAlerts(rows)
}

// ListAlerts returns alerts matching f, newest first.
func (d *DB) ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM safety_alerts WHERE TRUE`
	args := []interface{}{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+cond, len(args))
	}
	if f.SubjectID != nil {
		add("tourist_profile_id = $%d", *f.SubjectID)
	}
	if f.SubjectCode != "" {
		add("tourist_id_code = $%d", f.SubjectCode)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Kind != "" {
		add("type = $%d", f.Kind)
	}
	if f.Severity != "" {
		add("severity = $%d", f.Severity)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY triggered_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return collectAlerts(rows)
}

func insertAlert(ctx context.Context, q querier, a *models.Alert) error {
	query := `
	INSERT INTO safety_alerts (
		tourist_profile_id, tourist_id_code, type, severity, status, title, description,
		lat, lng, triggered_at, extra_data
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING id`
	err := q.QueryRow(ctx, query,
		a.SubjectID, a.SubjectCode, a.Kind, a.Severity, a.Status, a.Title, a.Description,
		a.Lat, a.Lng, a.TriggeredAt, a.Payload,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func collectAlerts(rows pgx.Rows) ([]models.Alert, error) {
	defer rows.Close()
	list := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func scanAlert(row pgx.Row) (models.Alert, error) {
	var a models.Alert
	err := row.Scan(&a.ID, &a.SubjectID, &a.SubjectCode, &a.Kind, &a.Severity, &a.Status,
		&a.Title, &a.Description, &a.Lat, &a.Lng, &a.TriggeredAt, &a.ResolvedAt, &a.ResolvedBy, &a.Payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan alert: %w", err)
	}
	a.TriggeredAt = a.TriggeredAt.UTC()
	return a, nil
}
