package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Subject is a tracked tourist profile.
type Subject struct {
	ID                    int64      `json:"id"`
	ActorID               string     `json:"user_id"`
	Code                  string     `json:"tourist_id_code"`
	FullName              string     `json:"full_name"`
	Gender                *string    `json:"gender"`
	Nationality           *string    `json:"nationality"`
	IDType                *string    `json:"id_type"`
	IDNumber              *string    `json:"id_number"`
	Phone                 *string    `json:"phone"`
	Email                 *string    `json:"email"`
	EmergencyContactName  *string    `json:"emergency_contact_name"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone"`
	TripStartDate         *time.Time `json:"trip_start_date"`
	TripEndDate           *time.Time `json:"trip_end_date"`
	PlannedCities         []string   `json:"planned_cities"`
	AccommodationDetails  *string    `json:"accommodation_details"`
	IsActive              bool       `json:"is_active"`
	SafetyScore           *int       `json:"safety_score"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// HasEmergencyContact reports whether either emergency contact field is
// non-empty.
func (s Subject) HasEmergencyContact() bool {
	return nonEmpty(s.EmergencyContactName) || nonEmpty(s.EmergencyContactPhone)
}

func nonEmpty(v *string) bool {
	return v != nil && *v != ""
}

// SubjectInput is the payload for creating or updating an own profile.
type SubjectInput struct {
	FullName              string     `json:"full_name" binding:"required"`
	Gender                *string    `json:"gender"`
	Nationality           *string    `json:"nationality"`
	IDType                *string    `json:"id_type"`
	IDNumber              *string    `json:"id_number"`
	Phone                 *string    `json:"phone"`
	Email                 *string    `json:"email"`
	EmergencyContactName  *string    `json:"emergency_contact_name"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone"`
	TripStartDate         *time.Time `json:"trip_start_date"`
	TripEndDate           *time.Time `json:"trip_end_date"`
	PlannedCities         []string   `json:"planned_cities"`
	AccommodationDetails  *string    `json:"accommodation_details"`
}

// Apply copies the input fields onto s.
func (in SubjectInput) Apply(s *Subject) {
	s.FullName = in.FullName
	s.Gender = in.Gender
	s.Nationality = in.Nationality
	s.IDType = in.IDType
	s.IDNumber = in.IDNumber
	s.Phone = in.Phone
	s.Email = in.Email
	s.EmergencyContactName = in.EmergencyContactName
	s.EmergencyContactPhone = in.EmergencyContactPhone
	s.TripStartDate = in.TripStartDate
	s.TripEndDate = in.TripEndDate
	s.PlannedCities = in.PlannedCities
	s.AccommodationDetails = in.AccommodationDetails
}
