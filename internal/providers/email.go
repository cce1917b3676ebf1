package providers

import (
	"context"
	"fmt"

	"safety-service/internal/config"
	"safety-service/pkg/email"
)

// NewEmail returns a provider mailing the alert to Message.Recipient over SMTP.
func NewEmail(cfg config.Config) func(context.Context, Message) error {
	sender := email.Sender{
		Server:   cfg.Email.SMTPServer,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
	}
	return func(ctx context.Context, msg Message) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sender.Send([]string{msg.Recipient}, msg.Subject, msg.Body); err != nil {
			return fmt.Errorf("failed to send email for alert %d: %w", msg.AlertID, err)
		}
		return nil
	}
}
