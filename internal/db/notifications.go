package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"safety-service/internal/models"
)

// CreateDispatch records a delivery attempt before it is sent.
func (d *DB) CreateDispatch(ctx context.Context, n models.Dispatch) error {
	query := `
	INSERT INTO alert_dispatches (id, request_id, alert_id, channel, recipient, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := d.conn.Exec(ctx, query,
		pgtype.UUID{Bytes: n.ID, Valid: true}, pgtype.UUID{Bytes: n.RequestID, Valid: true},
		n.AlertID, n.Channel, n.Recipient, n.Status, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create dispatch: %w", err)
	}
	return nil
}

func (d *DB) UpdateDispatchStatus(ctx context.Context, id [16]byte, status, lastError string) error {
	query := `
	UPDATE alert_dispatches
	SET status = $1, last_error = NULLIF($2, ''),
		sent_at = CASE WHEN $1 = 'sent' THEN $3 ELSE sent_at END
	WHERE id = $4`
	result, err := d.conn.Exec(ctx, query, status, lastError, time.Now().UTC(), pgtype.UUID{Bytes: id, Valid: true})
	if err != nil {
		return fmt.Errorf("failed to update dispatch status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no dispatch updated for id %x", id)
	}
	return nil
}

// DispatchesForAlert lists delivery attempts for an alert, oldest first.
func (d *DB) DispatchesForAlert(ctx context.Context, alertID int64) ([]models.Dispatch, error) {
	rows, err := d.conn.Query(ctx, `
	SELECT id, request_id, alert_id, channel, COALESCE(recipient, ''), status,
	       COALESCE(last_error, ''), created_at, sent_at
	FROM alert_dispatches
	WHERE alert_id = $1
	ORDER BY created_at`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatches for alert %d: %w", alertID, err)
	}
	defer rows.Close()

	list := []models.Dispatch{}
	for rows.Next() {
		var n models.Dispatch
		var id, reqID pgtype.UUID
		err := rows.Scan(&id, &reqID, &n.AlertID, &n.Channel, &n.Recipient, &n.Status,
			&n.Error, &n.CreatedAt, &n.SentAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		n.ID = id.Bytes
		n.RequestID = reqID.Bytes
		list = append(list, n)
	}
	return list, rows.Err()
}
