// Package transfer executes funds movements against the processor and
// resolves their side effects: round-up contributions, charge completion and
// party notifications. Orchestrations run decoupled from the request that
// produced them; nothing here reports back to a caller.
package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Call-cmd/zarmate/internal/notify"
	"github.com/Call-cmd/zarmate/internal/processor"
	"github.com/Call-cmd/zarmate/internal/storage"
)

// Intent is a single requested funds movement. It is a parameter bundle, not
// a stored entity; it is consumed exactly once.
type Intent struct {
	Sender    *storage.User
	Recipient *storage.User
	Amount    decimal.Decimal // nominal amount, > 0, two decimal places
	Note      string
	ChargeID  string // optional; set when redeeming a merchant charge

	// SenderDest is where the sender's confirmation or apology goes,
	// normally the channel the command arrived on.
	SenderDest notify.Destination
}

// ProcessorAPI is the slice of the processor client the orchestrator needs.
type ProcessorAPI interface {
	TransferFunds(ctx context.Context, senderID string, req processor.TransferRequest) (*processor.TransferResponse, error)
	UpdateCharge(ctx context.Context, merchantID, chargeID string, req processor.UpdateChargeRequest) error
}

// ChargeStore is the slice of storage the orchestrator needs.
type ChargeStore interface {
	UserByHandle(ctx context.Context, handle string) (*storage.User, error)
	CompleteCharge(ctx context.Context, id, customerID, customerHandle string) error
	ReleaseCharge(ctx context.Context, id string) error
}

// MessageSender delivers one text message to a destination.
type MessageSender interface {
	Send(ctx context.Context, dest notify.Destination, text string) error
}

// Orchestrator executes exactly one funds movement per invocation.
type Orchestrator struct {
	api        ProcessorAPI
	store      ChargeStore
	notifier   MessageSender
	fundHandle string
	log        *slog.Logger
}

// New creates an Orchestrator. fundHandle is the reserved handle of the
// community fund account receiving round-up contributions.
func New(api ProcessorAPI, store ChargeStore, notifier MessageSender, fundHandle string, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		api:        api,
		store:      store,
		notifier:   notifier,
		fundHandle: fundHandle,
		log:        log,
	}
}

// Execute runs one orchestration to completion. It never returns an error:
// it is the terminal point of a fire-and-forget job, so failures end as logs
// and a notification to the sender.
func (o *Orchestrator) Execute(ctx context.Context, intent Intent) {
	rounded := intent.Amount.Ceil()
	contribution := rounded.Sub(intent.Amount)

	o.log.Info("executing transfer",
		"sender", intent.Sender.Handle,
		"recipient", intent.Recipient.Handle,
		"amount", intent.Amount.StringFixed(2),
		"rounded", rounded.StringFixed(2),
		"contribution", contribution.StringFixed(2),
		"charge_id", intent.ChargeID,
	)

	// The sender pays the rounded-up amount; the recipient acts as a
	// temporary custodian for the fractional part.
	resp, err := o.api.TransferFunds(ctx, intent.Sender.ID, processor.TransferRequest{
		Amount:    rounded,
		Recipient: intent.Recipient.PaymentIdentifier,
		Notes:     intent.Note,
	})
	if err == nil && !resp.Committed() {
		err = fmt.Errorf("ledger receipt missing or not successful")
	}
	if err != nil {
		o.fail(ctx, intent, err)
		return
	}

	if contribution.IsPositive() {
		o.contribute(ctx, intent, contribution)
	}

	if intent.ChargeID != "" {
		o.completeCharge(ctx, intent)
	}

	o.notifySender(ctx, intent, rounded, contribution)
	o.notifyRecipient(ctx, intent)
}

// contribute transfers the round-up fraction from the recipient to the
// community fund. Failure here never fails the primary transfer.
func (o *Orchestrator) contribute(ctx context.Context, intent Intent, contribution decimal.Decimal) {
	fund, err := o.store.UserByHandle(ctx, o.fundHandle)
	if err != nil {
		o.log.Warn("community fund user not found, skipping contribution",
			"handle", o.fundHandle,
			"error", err,
		)
		return
	}

	note := fmt.Sprintf("Round-up from %s", intent.Sender.Handle)
	if intent.ChargeID != "" {
		note = fmt.Sprintf("Round-up from charge %s", intent.ChargeID)
	}

	resp, err := o.api.TransferFunds(ctx, intent.Recipient.ID, processor.TransferRequest{
		Amount:    contribution,
		Recipient: fund.PaymentIdentifier,
		Notes:     note,
	})
	if err == nil && !resp.Committed() {
		err = fmt.Errorf("ledger receipt missing or not successful")
	}
	if err != nil {
		o.log.Error("community fund contribution failed",
			"amount", contribution.StringFixed(2),
			"charge_id", intent.ChargeID,
			"error", err,
		)
		return
	}

	o.log.Info("community fund contribution sent", "amount", contribution.StringFixed(2))
}

// completeCharge marks the charge settled in the local store, which is
// authoritative for charge status, then mirrors the status to the processor.
func (o *Orchestrator) completeCharge(ctx context.Context, intent Intent) {
	if err := o.store.CompleteCharge(ctx, intent.ChargeID, intent.Sender.ID, intent.Sender.Handle); err != nil {
		o.log.Error("mark charge complete",
			"charge_id", intent.ChargeID,
			"error", err,
		)
	}

	if err := o.api.UpdateCharge(ctx, intent.Recipient.ID, intent.ChargeID, processor.UpdateChargeRequest{
		Status: string(storage.ChargeComplete),
	}); err != nil {
		o.log.Warn("mirror charge status to processor",
			"charge_id", intent.ChargeID,
			"error", err,
		)
	}
}

func (o *Orchestrator) fail(ctx context.Context, intent Intent, cause error) {
	o.log.Error("transfer failed",
		"sender", intent.Sender.Handle,
		"recipient", intent.Recipient.Handle,
		"charge_id", intent.ChargeID,
		"error", cause,
	)

	// A claimed charge goes back to PENDING so the customer can retry.
	if intent.ChargeID != "" {
		if err := o.store.ReleaseCharge(ctx, intent.ChargeID); err != nil {
			o.log.Error("release charge", "charge_id", intent.ChargeID, "error", err)
		}
	}

	text := fmt.Sprintf("❌ Your transfer of R%s failed. Please try again later.",
		intent.Amount.StringFixed(2))
	if err := o.notifier.Send(ctx, intent.SenderDest, text); err != nil {
		o.log.Error("send failure notification", "error", err)
	}
}

// notifySender confirms the amount actually paid, i.e. the rounded amount.
func (o *Orchestrator) notifySender(ctx context.Context, intent Intent, rounded, contribution decimal.Decimal) {
	text := fmt.Sprintf("✅ Transfer complete! You paid R%s to %s.",
		rounded.StringFixed(2), intent.Recipient.Handle)
	if contribution.IsPositive() {
		text += fmt.Sprintf(" Thank you for your R%s contribution to the community fund!",
			contribution.StringFixed(2))
	}

	if err := o.notifier.Send(ctx, intent.SenderDest, text); err != nil {
		o.log.Error("send sender notification", "error", err)
	}
}

// notifyRecipient confirms the amount credited, i.e. the nominal amount
// excluding any round-up.
func (o *Orchestrator) notifyRecipient(ctx context.Context, intent Intent) {
	dest, ok := DestinationFor(intent.Recipient)
	if !ok {
		o.log.Warn("recipient has no reachable channel", "handle", intent.Recipient.Handle)
		return
	}

	text := fmt.Sprintf("🎉 You received R%s from %s!",
		intent.Amount.StringFixed(2), intent.Sender.Handle)
	if err := o.notifier.Send(ctx, dest, text); err != nil {
		o.log.Error("send recipient notification", "error", err)
	}
}

// DestinationFor picks the channel a user is reachable on, preferring
// Telegram when the user has messaged the bot before.
func DestinationFor(u *storage.User) (notify.Destination, bool) {
	if u.TelegramChatID != 0 {
		return notify.Destination{
			Channel: notify.ChannelTelegram,
			Address: fmt.Sprintf("%d", u.TelegramChatID),
		}, true
	}
	if u.WhatsAppNumber != "" {
		return notify.Destination{
			Channel: notify.ChannelWhatsApp,
			Address: u.WhatsAppNumber,
		}, true
	}
	return notify.Destination{}, false
}
