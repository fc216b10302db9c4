package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTelegramError(t *testing.T) {
	t.Run("forbidden is permanent", func(t *testing.T) {
		err := classifyTelegramError(fmt.Errorf("send message: %w", bot.ErrorForbidden))
		require.Error(t, err)
		assert.True(t, IsPermanent(err), "a blocked bot never succeeds on retry")
		assert.ErrorIs(t, err, bot.ErrorForbidden)
	})

	t.Run("transport errors stay retryable", func(t *testing.T) {
		err := classifyTelegramError(errors.New("connection reset"))
		require.Error(t, err)
		assert.False(t, IsPermanent(err))
	})
}

func TestTelegramSendBadChatID(t *testing.T) {
	s := NewTelegramSender(nil)

	err := s.Send(context.Background(), Destination{Channel: ChannelTelegram, Address: "not-a-number"}, "hi")

	require.Error(t, err)
	assert.True(t, IsPermanent(err), "an unparseable chat id can never deliver")
}
