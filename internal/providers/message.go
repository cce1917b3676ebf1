package providers

import (
	"fmt"
	"strings"

	"safety-service/internal/models"
)

// Message is one rendered alert addressed to a single recipient.
type Message struct {
	AlertID   int64
	Recipient string
	Subject   string
	Body      string
}

// Compose renders the subject line and body shared by every channel.
func Compose(alert models.Alert, subject models.Subject) (string, string) {
	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "Alert #%d (%s)\n", alert.ID, alert.Kind)
	fmt.Fprintf(&b, "Tourist: %s (%s)\n", subject.FullName, subject.Code)
	if alert.Description != nil && *alert.Description != "" {
		fmt.Fprintf(&b, "Details: %s\n", *alert.Description)
	}
	if alert.Lat != nil && alert.Lng != nil {
		fmt.Fprintf(&b, "Location: %.6f, %.6f\n", *alert.Lat, *alert.Lng)
	}
	if subject.Phone != nil {
		fmt.Fprintf(&b, "Tourist phone: %s\n", *subject.Phone)
	}
	fmt.Fprintf(&b, "Triggered at: %s UTC", alert.TriggeredAt.UTC().Format("2006-01-02 15:04:05"))
	return title, b.String()
}
