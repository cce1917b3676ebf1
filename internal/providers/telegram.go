package providers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"safety-service/internal/config"
	"safety-service/internal/logging"
	"safety-service/internal/utils"
	"safety-service/pkg/telegram"
)

// NewTelegram returns a provider posting to the configured ops chat. Sends
// share one rate limiter so bursts stay under Telegram's flood limits.
func NewTelegram(cfg config.Config, logger *logging.Logger) (func(context.Context, Message) error, error) {
	client, err := telegram.New(cfg.Telegram.BotToken)
	if err != nil {
		return nil, err
	}
	if cfg.Telegram.ChatID == 0 {
		return nil, fmt.Errorf("missing telegram chat_id")
	}
	burst := int(cfg.Telegram.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Telegram.RatePerSecond), burst)
	chatID := cfg.Telegram.ChatID

	return func(ctx context.Context, msg Message) error {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram rate limit exceeded: %w", err)
		}
		text := fmt.Sprintf("*%s*\n%s", telegram.Escape(msg.Subject), telegram.Escape(msg.Body))
		return utils.Retry(ctx, logger, 3, time.Second, func() error {
			return client.Send(ctx, chatID, text)
		})
	}, nil
}
