package providers

import (
	"context"
	"fmt"
	"time"

	"safety-service/internal/config"
	"safety-service/internal/logging"
	"safety-service/internal/utils"
	"safety-service/pkg/sms"
)

// NewSMS returns a provider texting Message.Recipient through Twilio.
func NewSMS(cfg config.Config, logger *logging.Logger) (func(context.Context, Message) error, error) {
	client, err := sms.New(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, msg Message) error {
		body := fmt.Sprintf("%s\n%s", msg.Subject, msg.Body)
		return utils.Retry(ctx, logger, 2, 500*time.Millisecond, func() error {
			sid, err := client.Send(msg.Recipient, body)
			if err != nil {
				return err
			}
			logger.Infof("SMS %s queued for alert %d", sid, msg.AlertID)
			return nil
		})
	}, nil
}
