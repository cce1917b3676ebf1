package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"safety-service/internal/models"
)

const subjectColumns = `
	id, user_id, tourist_id_code, full_name, gender, nationality, id_type, id_number,
	phone, email, emergency_contact_name, emergency_contact_phone, trip_start_date,
	trip_end_date, planned_cities, accommodation_details, is_active, safety_score,
	created_at, updated_at`

// CreateSubject inserts a profile and assigns its id and TR-NNNNNN code.
func (d *DB) CreateSubject(ctx context.Context, s *models.Subject) error {
	idNumber, phone, err := d.sealPII(s)
	if err != nil {
		return err
	}

	var id int64
	if err := d.conn.QueryRow(ctx, `SELECT nextval(pg_get_serial_sequence('tourist_profiles', 'id'))`).Scan(&id); err != nil {
		return fmt.Errorf("failed to allocate tourist id: %w", err)
	}
	s.ID = id
	s.Code = fmt.Sprintf("TR-%06d", id)

	query := `
	INSERT INTO tourist_profiles (
		id, user_id, tourist_id_code, full_name, gender, nationality, id_type, id_number,
		phone, email, emergency_contact_name, emergency_contact_phone, trip_start_date,
		trip_end_date, planned_cities, accommodation_details, is_active
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	RETURNING created_at, updated_at`
	err = d.conn.QueryRow(ctx, query,
		s.ID, s.ActorID, s.Code, s.FullName, s.Gender, s.Nationality, s.IDType, idNumber,
		s.Phone, s.Email, s.EmergencyContactName, phone, s.TripStartDate,
		s.TripEndDate, s.PlannedCities, s.AccommodationDetails, s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tourist profile: %w", err)
	}
	return nil
}

// UpdateSubject overwrites the editable profile fields.
func (d *DB) UpdateSubject(ctx context.Context, s *models.Subject) error {
	idNumber, phone, err := d.sealPII(s)
	if err != nil {
		return err
	}
	query := `
	UPDATE tourist_profiles SET
		full_name = $2, gender = $3, nationality = $4, id_type = $5, id_number = $6,
		phone = $7, email = $8, emergency_contact_name = $9, emergency_contact_phone = $10,
		trip_start_date = $11, trip_end_date = $12, planned_cities = $13,
		accommodation_details = $14, updated_at = now()
	WHERE id = $1
	RETURNING updated_at`
	err = d.conn.QueryRow(ctx, query,
		s.ID, s.FullName, s.Gender, s.Nationality, s.IDType, idNumber,
		s.Phone, s.Email, s.EmergencyContactName, phone,
		s.TripStartDate, s.TripEndDate, s.PlannedCities, s.AccommodationDetails,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update tourist profile %d: %w", s.ID, err)
	}
	return nil
}

// SubjectByCode returns the active profile with the given code.
func (d *DB) SubjectByCode(ctx context.Context, code string) (models.Subject, error) {
	return d.oneSubject(ctx, `WHERE tourist_id_code = $1 AND is_active`, code)
}

// LookupSubject returns the profile with the given code, active or not.
func (d *DB) LookupSubject(ctx context.Context, code string) (models.Subject, error) {
	return d.oneSubject(ctx, `WHERE tourist_id_code = $1`, code)
}

// SubjectByActor returns the actor's active profile.
func (d *DB) SubjectByActor(ctx context.Context, actorID string) (models.Subject, error) {
	return d.oneSubject(ctx, `WHERE user_id = $1 AND is_active ORDER BY id LIMIT 1`, actorID)
}

func (d *DB) ActiveSubjects(ctx context.Context) ([]models.Subject, error) {
	rows, err := d.conn.Query(ctx, `SELECT `+subjectColumns+` FROM tourist_profiles WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tourist profiles: %w", err)
	}
	defer rows.Close()

	var list []models.Subject
	for rows.Next() {
		s, err := d.scanSubject(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (d *DB) UpdateSafetyScore(ctx context.Context, subjectID int64, score int) error {
	tag, err := d.conn.Exec(ctx, `UPDATE tourist_profiles SET safety_score = $2 WHERE id = $1`, subjectID, score)
	if err != nil {
		return fmt.Errorf("failed to update safety score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (d *DB) oneSubject(ctx context.Context, where string, arg any) (models.Subject, error) {
	row := d.conn.QueryRow(ctx, `SELECT `+subjectColumns+` FROM tourist_profiles `+where, arg)
	s, err := d.scanSubject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Subject{}, models.ErrNotFound
	}
	return s, err
}

func (d *DB) scanSubject(row pgx.Row) (models.Subject, error) {
	var s models.Subject
	err := row.Scan(
		&s.ID, &s.ActorID, &s.Code, &s.FullName, &s.Gender, &s.Nationality, &s.IDType, &s.IDNumber,
		&s.Phone, &s.Email, &s.EmergencyContactName, &s.EmergencyContactPhone, &s.TripStartDate,
		&s.TripEndDate, &s.PlannedCities, &s.AccommodationDetails, &s.IsActive, &s.SafetyScore,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("failed to scan tourist profile: %w", err)
	}
	if s.IDNumber, err = d.sealer.Open(s.IDNumber); err != nil {
		return s, fmt.Errorf("failed to open id_number for %s: %w", s.Code, err)
	}
	if s.EmergencyContactPhone, err = d.sealer.Open(s.EmergencyContactPhone); err != nil {
		return s, fmt.Errorf("failed to open emergency_contact_phone for %s: %w", s.Code, err)
	}
	return s, nil
}

func (d *DB) sealPII(s *models.Subject) (idNumber, phone *string, err error) {
	if idNumber, err = d.sealer.Seal(s.IDNumber); err != nil {
		return nil, nil, fmt.Errorf("failed to seal id_number: %w", err)
	}
	if phone, err = d.sealer.Seal(s.EmergencyContactPhone); err != nil {
		return nil, nil, fmt.Errorf("failed to seal emergency_contact_phone: %w", err)
	}
	return idNumber, phone, nil
}
