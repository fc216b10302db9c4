// Package chat normalizes inbound channel webhooks into one message shape
// and routes parsed commands to their handlers.
package chat

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/Call-cmd/zarmate/internal/notify"
)

// Inbound is one normalized incoming chat message, regardless of channel.
type Inbound struct {
	Channel notify.Channel
	From    string // phone number (WhatsApp) or chat ID (Telegram)
	Text    string

	// Username is the sender's channel-level handle when the channel
	// exposes one (Telegram only); used as a registration fallback.
	Username string
}

// ParseWhatsAppForm normalizes a Twilio webhook's form fields. Twilio
// addresses carry a "whatsapp:" prefix which is stripped for lookup.
func ParseWhatsAppForm(from, body string) (Inbound, bool) {
	from = strings.TrimPrefix(strings.TrimSpace(from), "whatsapp:")
	if from == "" || strings.TrimSpace(body) == "" {
		return Inbound{}, false
	}

	return Inbound{
		Channel: notify.ChannelWhatsApp,
		From:    from,
		Text:    body,
	}, true
}

// ParseTelegramUpdate normalizes a Telegram webhook body. Updates without a
// text message (edits, joins, stickers) are ignored.
func ParseTelegramUpdate(body io.Reader) (Inbound, bool) {
	var update models.Update
	if err := json.NewDecoder(body).Decode(&update); err != nil {
		return Inbound{}, false
	}

	msg := update.Message
	if msg == nil || msg.Text == "" {
		return Inbound{}, false
	}

	in := Inbound{
		Channel: notify.ChannelTelegram,
		From:    strconv.FormatInt(msg.Chat.ID, 10),
		Text:    msg.Text,
	}
	if msg.From != nil {
		in.Username = msg.From.Username
	}

	return in, true
}
