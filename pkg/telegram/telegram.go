package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Client posts messages to Telegram chats through a bot.
type Client struct {
	bot *bot.Bot
}

func New(token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}
	// Skip the getMe call so a slow Telegram API does not block startup.
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return &Client{bot: b}, nil
}

// Send posts a Markdown message to chatID.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
	})
	if err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err)
	}
	return nil
}

var markdownReplacer = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// Escape quotes user supplied text for legacy Markdown.
func Escape(s string) string {
	return markdownReplacer.Replace(s)
}
