package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Call-cmd/zarmate/internal/notify"
)

func TestParseWhatsAppForm(t *testing.T) {
	t.Run("strips whatsapp prefix", func(t *testing.T) {
		in, ok := ParseWhatsAppForm("whatsapp:+27820000001", "balance")
		require.True(t, ok)
		assert.Equal(t, notify.ChannelWhatsApp, in.Channel)
		assert.Equal(t, "+27820000001", in.From)
		assert.Equal(t, "balance", in.Text)
	})

	t.Run("bare number", func(t *testing.T) {
		in, ok := ParseWhatsAppForm("+27820000001", "bal")
		require.True(t, ok)
		assert.Equal(t, "+27820000001", in.From)
	})

	t.Run("empty sender", func(t *testing.T) {
		_, ok := ParseWhatsAppForm("", "balance")
		assert.False(t, ok)
	})

	t.Run("empty body", func(t *testing.T) {
		_, ok := ParseWhatsAppForm("whatsapp:+27820000001", "   ")
		assert.False(t, ok)
	})
}

func TestParseTelegramUpdate(t *testing.T) {
	t.Run("text message", func(t *testing.T) {
		body := `{
			"update_id": 1,
			"message": {
				"message_id": 10,
				"text": "send R50 to @thabo",
				"chat": {"id": 424242, "type": "private"},
				"from": {"id": 7, "is_bot": false, "first_name": "Lebo", "username": "lebo"}
			}
		}`

		in, ok := ParseTelegramUpdate(strings.NewReader(body))
		require.True(t, ok)
		assert.Equal(t, notify.ChannelTelegram, in.Channel)
		assert.Equal(t, "424242", in.From)
		assert.Equal(t, "send R50 to @thabo", in.Text)
		assert.Equal(t, "lebo", in.Username)
	})

	t.Run("no message payload", func(t *testing.T) {
		_, ok := ParseTelegramUpdate(strings.NewReader(`{"update_id": 2}`))
		assert.False(t, ok)
	})

	t.Run("non-text message", func(t *testing.T) {
		body := `{
			"update_id": 3,
			"message": {
				"message_id": 11,
				"chat": {"id": 424242, "type": "private"}
			}
		}`

		_, ok := ParseTelegramUpdate(strings.NewReader(body))
		assert.False(t, ok)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, ok := ParseTelegramUpdate(strings.NewReader(`not json`))
		assert.False(t, ok)
	})
}
