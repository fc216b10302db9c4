// Package notify delivers chat messages to users over their messaging
// channel. Transient transport failures are retried with backoff; permanent
// rejections are not.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Channel is a messaging transport.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
)

// Destination addresses one user on one channel. For WhatsApp the address is
// a phone number; for Telegram it is a chat ID.
type Destination struct {
	Channel Channel
	Address string
}

// Sender delivers a single text message.
type Sender interface {
	Send(ctx context.Context, dest Destination, text string) error
}

// permanentError marks a rejection that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the retry loop gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err is a permanent rejection.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

const (
	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 5 * time.Second
)

// Notifier routes messages to the sender for their channel and retries
// transient failures.
type Notifier struct {
	senders map[Channel]Sender
	log     *slog.Logger
}

// New creates a Notifier over a set of channel senders.
func New(log *slog.Logger, senders map[Channel]Sender) *Notifier {
	return &Notifier{senders: senders, log: log}
}

// Send delivers text to dest, retrying up to three times on transient
// transport errors.
func (n *Notifier) Send(ctx context.Context, dest Destination, text string) error {
	sender, ok := n.senders[dest.Channel]
	if !ok {
		return fmt.Errorf("no sender for channel %q", dest.Channel)
	}

	var lastErr error
	backoff := baseBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := sender.Send(ctx, dest, text)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			n.log.Warn("message rejected",
				"channel", dest.Channel,
				"error", err,
			)
			return err
		}

		n.log.Warn("send message failed",
			"channel", dest.Channel,
			"attempt", attempt,
			"error", err,
		)

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return lastErr
}
