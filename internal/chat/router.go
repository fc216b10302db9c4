package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Call-cmd/zarmate/internal/command"
	"github.com/Call-cmd/zarmate/internal/notify"
	"github.com/Call-cmd/zarmate/internal/processor"
	"github.com/Call-cmd/zarmate/internal/storage"
	"github.com/Call-cmd/zarmate/internal/transfer"
)

const helpMessage = "Sorry, I didn't understand that. Try 'send R50 to @handle' or 'balance'."

// UserStore is the slice of storage the router needs.
type UserStore interface {
	UserByWhatsApp(ctx context.Context, number string) (*storage.User, error)
	UserByTelegramChatID(ctx context.Context, chatID int64) (*storage.User, error)
	UserByHandle(ctx context.Context, handle string) (*storage.User, error)
	UserByID(ctx context.Context, id string) (*storage.User, error)
	LinkTelegramChat(ctx context.Context, userID string, chatID int64) error
	ChargeByID(ctx context.Context, id string) (*storage.Charge, error)
	SaveCharge(ctx context.Context, c *storage.Charge) error
	ClaimCharge(ctx context.Context, id string) error
	ReleaseCharge(ctx context.Context, id string) error
}

// ProcessorAPI is the slice of the processor client the router needs for
// read paths and the coupon workaround.
type ProcessorAPI interface {
	GetBalance(ctx context.Context, userID string) (*processor.BalanceResponse, error)
	GetTransactions(ctx context.Context, userID string) ([]processor.Transaction, error)
	GetCharge(ctx context.Context, chargeID string) (*processor.Charge, error)
	GetAllCoupons(ctx context.Context) ([]processor.Coupon, error)
	MintFunds(ctx context.Context, req processor.TransferRequest) (*processor.TransferResponse, error)
}

// TransferQueue accepts orchestration jobs for background execution.
type TransferQueue interface {
	Enqueue(intent transfer.Intent) error
}

// MessageSender delivers one reply to a destination.
type MessageSender interface {
	Send(ctx context.Context, dest notify.Destination, text string) error
}

// Router resolves the sender of an inbound message, parses the command and
// dispatches it. Every failure ends as a polite reply; Handle never returns
// an error because the channel webhook has already been acknowledged.
type Router struct {
	store    UserStore
	api      ProcessorAPI
	queue    TransferQueue
	notifier MessageSender

	tokenName    string
	couponReward decimal.Decimal
	historyLimit int

	log *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(store UserStore, api ProcessorAPI, queue TransferQueue, notifier MessageSender, tokenName string, couponReward decimal.Decimal, historyLimit int, log *slog.Logger) *Router {
	if historyLimit < 1 {
		historyLimit = 5
	}
	return &Router{
		store:        store,
		api:          api,
		queue:        queue,
		notifier:     notifier,
		tokenName:    tokenName,
		couponReward: couponReward,
		historyLimit: historyLimit,
		log:          log,
	}
}

// Handle processes one inbound message end to end.
func (r *Router) Handle(ctx context.Context, in Inbound) {
	dest := notify.Destination{Channel: in.Channel, Address: in.From}

	sender, err := r.resolveSender(ctx, in)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.reply(ctx, dest, "Sorry, your number is not registered with ZarMate.")
			return
		}
		r.log.Error("resolve sender", "channel", in.Channel, "error", err)
		r.reply(ctx, dest, "Sorry, I'm having technical difficulties. Please try again later.")
		return
	}

	intent := command.Parse(in.Text)

	switch intent.Kind {
	case command.KindBalance:
		r.handleBalance(ctx, dest, sender)
	case command.KindHistory:
		r.handleHistory(ctx, dest, sender)
	case command.KindClaimCoupon:
		r.handleClaim(ctx, dest, sender, intent.CouponCode)
	case command.KindTransfer:
		r.handleTransfer(ctx, dest, sender, intent)
	case command.KindPayCharge:
		r.handlePayCharge(ctx, dest, sender, intent.ChargeID)
	default:
		r.reply(ctx, dest, helpMessage)
	}
}

// resolveSender maps a channel address to a registered user. Telegram users
// are matched by chat ID first, then by handle, linking the chat ID for
// future notifications.
func (r *Router) resolveSender(ctx context.Context, in Inbound) (*storage.User, error) {
	switch in.Channel {
	case notify.ChannelTelegram:
		chatID, err := strconv.ParseInt(in.From, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chat id %q: %w", in.From, err)
		}

		user, err := r.store.UserByTelegramChatID(ctx, chatID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, storage.ErrNotFound) || in.Username == "" {
			return nil, err
		}

		user, err = r.store.UserByHandle(ctx, "@"+in.Username)
		if err != nil {
			return nil, err
		}
		if err := r.store.LinkTelegramChat(ctx, user.ID, chatID); err != nil {
			r.log.Warn("link telegram chat", "user_id", user.ID, "error", err)
		}
		user.TelegramChatID = chatID
		return user, nil

	default:
		return r.store.UserByWhatsApp(ctx, in.From)
	}
}

func (r *Router) handleBalance(ctx context.Context, dest notify.Destination, sender *storage.User) {
	resp, err := r.api.GetBalance(ctx, sender.ID)
	if err != nil {
		r.log.Error("fetch balance", "user_id", sender.ID, "error", err)
		r.reply(ctx, dest, "Sorry, I couldn't fetch your balance right now. Please try again later.")
		return
	}

	balance := decimal.Zero
	for _, token := range resp.Tokens {
		if strings.EqualFold(token.Name, r.tokenName) {
			balance = token.Balance
			break
		}
	}

	r.reply(ctx, dest, fmt.Sprintf("Your current ZarMate balance is R%s.", balance.StringFixed(2)))
}

func (r *Router) handleHistory(ctx context.Context, dest notify.Destination, sender *storage.User) {
	transactions, err := r.api.GetTransactions(ctx, sender.ID)
	if err != nil {
		r.log.Error("fetch history", "user_id", sender.ID, "error", err)
		r.reply(ctx, dest, "Sorry, I couldn't fetch your transaction history right now.")
		return
	}

	if len(transactions) == 0 {
		r.reply(ctx, dest, "You have no transactions yet.")
		return
	}

	if len(transactions) > r.historyLimit {
		transactions = transactions[:r.historyLimit]
	}

	var b strings.Builder
	b.WriteString("Your recent transactions:\n\n")
	for _, tx := range transactions {
		amount := tx.Value.StringFixed(2)

		var description string
		switch strings.ToUpper(tx.TxType) {
		case "DEBIT":
			description = fmt.Sprintf("➡️ Sent R%s", amount)
		case "CREDIT":
			description = fmt.Sprintf("⬅️ Received R%s", amount)
		case "MINT":
			description = fmt.Sprintf("🎉 Bonus Received R%s", amount)
		default:
			description = fmt.Sprintf("%s R%s", tx.TxType, amount)
		}

		fmt.Fprintf(&b, "%s on %s\n", description, formatHistoryDate(tx.CreatedAt))
	}

	r.reply(ctx, dest, b.String())
}

// formatHistoryDate renders a processor timestamp as an en-ZA date.
func formatHistoryDate(raw string) string {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006/01/02")
		}
	}
	return raw
}

// handleClaim looks up a coupon and credits its reward by minting directly
// to the claimant. The processor's own claim endpoint is unreliable, so this
// deliberately bypasses it; the deviation is logged on every claim.
func (r *Router) handleClaim(ctx context.Context, dest notify.Destination, sender *storage.User, code string) {
	r.reply(ctx, dest, fmt.Sprintf("Checking code %s...", code))

	coupons, err := r.api.GetAllCoupons(ctx)
	if err != nil {
		r.log.Error("fetch coupons", "user_id", sender.ID, "error", err)
		r.reply(ctx, dest, "❌ Claim failed. An unexpected error occurred while claiming your coupon.")
		return
	}

	var target *processor.Coupon
	for i := range coupons {
		if strings.EqualFold(coupons[i].Code, code) {
			target = &coupons[i]
			break
		}
	}
	if target == nil {
		r.reply(ctx, dest, fmt.Sprintf("Sorry, the coupon code %q is not valid.", code))
		return
	}

	r.log.Info("claim endpoint bypassed, minting reward instead",
		"coupon_id", target.ID,
		"user_id", sender.ID,
		"reward", r.couponReward.StringFixed(2),
	)

	_, err = r.api.MintFunds(ctx, processor.TransferRequest{
		Amount:    r.couponReward,
		Recipient: sender.PaymentIdentifier,
		Notes:     fmt.Sprintf("Reward for claiming coupon: %s", target.Code),
	})
	if err != nil {
		r.log.Error("mint coupon reward", "user_id", sender.ID, "coupon", target.Code, "error", err)
		r.reply(ctx, dest, "❌ Claim failed. An unexpected error occurred while claiming your coupon.")
		return
	}

	r.reply(ctx, dest, fmt.Sprintf("✅ Success! You have claimed the %q coupon. R%s has been added to your balance.",
		target.Title, r.couponReward.StringFixed(2)))
}

func (r *Router) handleTransfer(ctx context.Context, dest notify.Destination, sender *storage.User, intent command.Intent) {
	recipient, err := r.store.UserByHandle(ctx, intent.RecipientHandle)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.reply(ctx, dest, fmt.Sprintf("Sorry, I couldn't find user %s.", intent.RecipientHandle))
			return
		}
		r.log.Error("lookup recipient", "handle", intent.RecipientHandle, "error", err)
		r.reply(ctx, dest, "Sorry, an error occurred while processing your transfer.")
		return
	}

	// Acknowledge before the transfer runs; the orchestration is
	// fire-and-forget from here.
	r.reply(ctx, dest, fmt.Sprintf("Processing your transfer of R%s to %s...",
		intent.Amount.StringFixed(2), recipient.Handle))

	err = r.queue.Enqueue(transfer.Intent{
		Sender:     sender,
		Recipient:  recipient,
		Amount:     intent.Amount,
		Note:       fmt.Sprintf("Transfer from %s", sender.Handle),
		SenderDest: dest,
	})
	if err != nil {
		r.log.Error("enqueue transfer", "error", err)
		r.reply(ctx, dest, "Sorry, we're a bit busy right now. Please try again in a moment.")
	}
}

func (r *Router) handlePayCharge(ctx context.Context, dest notify.Destination, sender *storage.User, chargeID string) {
	charge, err := r.store.ChargeByID(ctx, chargeID)
	if errors.Is(err, storage.ErrNotFound) {
		// Charges issued by the processor itself are mirrored into the
		// local store the first time a customer scans them.
		charge, err = r.adoptProcessorCharge(ctx, chargeID)
	}
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			r.reply(ctx, dest, "Sorry, that payment code is invalid.")
		case errors.Is(err, storage.ErrChargeNotPending):
			r.reply(ctx, dest, "Sorry, that payment code is invalid or has already been paid.")
		default:
			r.log.Error("lookup charge", "charge_id", chargeID, "error", err)
			r.reply(ctx, dest, "Sorry, an error occurred while processing your payment.")
		}
		return
	}

	// Claim is a conditional PENDING -> IN_PROGRESS update, so two
	// customers racing on the same code cannot both pass this point.
	if err := r.store.ClaimCharge(ctx, chargeID); err != nil {
		if errors.Is(err, storage.ErrChargeNotPending) {
			r.reply(ctx, dest, "Sorry, that payment code is invalid or has already been paid.")
			return
		}
		r.log.Error("claim charge", "charge_id", chargeID, "error", err)
		r.reply(ctx, dest, "Sorry, an error occurred while processing your payment.")
		return
	}

	merchant, err := r.store.UserByID(ctx, charge.MerchantID)
	if err != nil {
		r.log.Error("merchant missing for charge", "charge_id", chargeID, "merchant_id", charge.MerchantID, "error", err)
		r.releaseClaim(ctx, chargeID)
		r.reply(ctx, dest, "Sorry, an error occurred with the merchant's account.")
		return
	}

	r.reply(ctx, dest, fmt.Sprintf("Processing your payment of R%s for %q...",
		charge.Amount.StringFixed(2), charge.Note))

	err = r.queue.Enqueue(transfer.Intent{
		Sender:     sender,
		Recipient:  merchant,
		Amount:     charge.Amount,
		Note:       charge.Note,
		ChargeID:   charge.ID,
		SenderDest: dest,
	})
	if err != nil {
		r.log.Error("enqueue charge payment", "charge_id", chargeID, "error", err)
		r.releaseClaim(ctx, chargeID)
		r.reply(ctx, dest, "Sorry, we're a bit busy right now. Please try again in a moment.")
	}
}

// adoptProcessorCharge fetches an unknown charge from the processor and
// mirrors it locally as PENDING. Only pending processor charges are adopted;
// anything else behaves as not found so the caller reports an invalid code.
func (r *Router) adoptProcessorCharge(ctx context.Context, chargeID string) (*storage.Charge, error) {
	remote, err := r.api.GetCharge(ctx, chargeID)
	if err != nil {
		var apiErr *processor.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	if remote.Status != string(storage.ChargePending) {
		return nil, storage.ErrChargeNotPending
	}

	charge := &storage.Charge{
		ID:         remote.ID,
		MerchantID: remote.UserID,
		Amount:     remote.Amount,
		Note:       remote.Note,
		Status:     storage.ChargePending,
	}
	if err := r.store.SaveCharge(ctx, charge); err != nil {
		return nil, err
	}

	r.log.Info("processor charge mirrored locally", "charge_id", chargeID)
	return charge, nil
}

func (r *Router) releaseClaim(ctx context.Context, chargeID string) {
	if err := r.store.ReleaseCharge(ctx, chargeID); err != nil {
		r.log.Error("release charge", "charge_id", chargeID, "error", err)
	}
}

func (r *Router) reply(ctx context.Context, dest notify.Destination, text string) {
	if err := r.notifier.Send(ctx, dest, text); err != nil {
		r.log.Error("send reply", "channel", dest.Channel, "error", err)
	}
}
