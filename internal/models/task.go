package models

import "time"

// Task is one alert queued for notification dispatch.
type Task struct {
	RequestID string
	Alert     Alert
	Subject   Subject
	QueuedAt  time.Time
}
