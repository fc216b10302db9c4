package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSender struct {
	calls int
	errs  []error // one per attempt; nil past the end
}

func (s *scriptedSender) Send(_ context.Context, _ Destination, _ string) error {
	s.calls++
	if s.calls <= len(s.errs) {
		return s.errs[s.calls-1]
	}
	return nil
}

func newTestNotifier(s Sender) *Notifier {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log, map[Channel]Sender{ChannelWhatsApp: s})
}

var waDest = Destination{Channel: ChannelWhatsApp, Address: "+27820000001"}

func TestSendFirstAttemptSucceeds(t *testing.T) {
	s := &scriptedSender{}
	n := newTestNotifier(s)

	require.NoError(t, n.Send(context.Background(), waDest, "hi"))
	assert.Equal(t, 1, s.calls)
}

func TestSendRetriesTransientErrors(t *testing.T) {
	s := &scriptedSender{errs: []error{
		errors.New("timeout"),
		errors.New("timeout"),
	}}
	n := newTestNotifier(s)

	require.NoError(t, n.Send(context.Background(), waDest, "hi"))
	assert.Equal(t, 3, s.calls)
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("timeout")
	s := &scriptedSender{errs: []error{transient, transient, transient, transient}}
	n := newTestNotifier(s)

	err := n.Send(context.Background(), waDest, "hi")
	require.Error(t, err)
	assert.Equal(t, 3, s.calls)
}

func TestSendPermanentErrorSkipsRetry(t *testing.T) {
	rejected := Permanent(errors.New("unknown recipient"))
	s := &scriptedSender{errs: []error{rejected}}
	n := newTestNotifier(s)

	err := n.Send(context.Background(), waDest, "hi")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, s.calls, "permanent rejections are not retried")
}

func TestSendUnknownChannel(t *testing.T) {
	n := newTestNotifier(&scriptedSender{})

	err := n.Send(context.Background(), Destination{Channel: ChannelTelegram, Address: "42"}, "hi")
	require.Error(t, err)
}

func TestSendCancelledContext(t *testing.T) {
	s := &scriptedSender{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	n := newTestNotifier(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Send(ctx, waDest, "hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.calls, "no retry once the context is gone")
}

func TestPermanentNilPassthrough(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(errors.New("plain")))
}
