package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TelegramSender delivers messages through the Telegram Bot API.
type TelegramSender struct {
	bot *bot.Bot
}

// NewTelegramSender creates a sender over an existing bot client.
func NewTelegramSender(b *bot.Bot) *TelegramSender {
	return &TelegramSender{bot: b}
}

// Send delivers text to the chat ID in dest.Address.
func (s *TelegramSender) Send(ctx context.Context, dest Destination, text string) error {
	chatID, err := strconv.ParseInt(dest.Address, 10, 64)
	if err != nil {
		return Permanent(fmt.Errorf("bad telegram chat id %q: %w", dest.Address, err))
	}

	disablePreview := true
	_, err = s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	if err != nil {
		return classifyTelegramError(err)
	}

	return nil
}

// classifyTelegramError marks rejections that retrying cannot fix. The bot
// library exposes a single sentinel for these: a user who has blocked or
// never started the bot is Forbidden, and no retry will change that.
func classifyTelegramError(err error) error {
	if errors.Is(err, bot.ErrorForbidden) {
		return Permanent(err)
	}
	return fmt.Errorf("telegram send: %w", err)
}
