package transfer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Call-cmd/zarmate/internal/notify"
	"github.com/Call-cmd/zarmate/internal/processor"
)

// countingProcessor records transfers under a lock so the queue's workers can
// hit it concurrently.
type countingProcessor struct {
	mu        sync.Mutex
	transfers int
}

func (c *countingProcessor) TransferFunds(_ context.Context, _ string, _ processor.TransferRequest) (*processor.TransferResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transfers++
	return &processor.TransferResponse{Receipt: &processor.Receipt{Status: processor.ReceiptStatusSuccess}}, nil
}

func (c *countingProcessor) UpdateCharge(_ context.Context, _, _ string, _ processor.UpdateChargeRequest) error {
	return nil
}

func (c *countingProcessor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfers
}

type lockedSender struct {
	mu   sync.Mutex
	sent int
}

func (l *lockedSender) Send(_ context.Context, _ notify.Destination, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent++
	return nil
}

func TestQueueProcessesJobs(t *testing.T) {
	api := &countingProcessor{}
	store := &fakeStore{}
	msgs := &lockedSender{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	q := NewQueue(New(api, store, msgs, "@communityfund", log), 8, 2, log)
	q.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Intent{
			Sender:     sender,
			Recipient:  recipient,
			Amount:     decimal.RequireFromString("10"),
			SenderDest: senderDest,
		}))
	}

	// Stop drains every accepted job before returning.
	q.Stop()

	assert.Equal(t, 5, api.count())
}

func TestQueueFull(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := NewQueue(New(&countingProcessor{}, &fakeStore{}, &lockedSender{}, "@communityfund", log), 1, 1, log)

	// Workers never started, so the buffer fills immediately.
	require.NoError(t, q.Enqueue(Intent{Sender: sender, Recipient: recipient, Amount: decimal.New(1, 0)}))
	assert.ErrorIs(t, q.Enqueue(Intent{Sender: sender, Recipient: recipient, Amount: decimal.New(1, 0)}), ErrQueueFull)
}

func TestQueueEnqueueAfterStop(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := NewQueue(New(&countingProcessor{}, &fakeStore{}, &lockedSender{}, "@communityfund", log), 4, 1, log)
	q.Start()
	q.Stop()

	// A webhook goroutine outliving shutdown must get a rejection, not a
	// panic on the closed jobs channel.
	var err error
	assert.NotPanics(t, func() {
		err = q.Enqueue(Intent{Sender: sender, Recipient: recipient, Amount: decimal.New(1, 0)})
	})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueueStopIdempotent(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := NewQueue(New(&countingProcessor{}, &fakeStore{}, &lockedSender{}, "@communityfund", log), 4, 1, log)
	q.Start()

	q.Stop()
	assert.NotPanics(t, q.Stop)
}
