// Package command maps free-text chat input to a closed set of intents.
package command

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies which command a message resolved to.
type Kind int

const (
	// KindUnknown is the fallback for anything that matches no command.
	KindUnknown Kind = iota
	KindBalance
	KindHistory
	KindClaimCoupon
	KindTransfer
	KindPayCharge
)

// Intent is the parsed form of one inbound chat message.
type Intent struct {
	Kind Kind

	// Transfer
	Amount          decimal.Decimal
	RecipientHandle string

	// PayCharge
	ChargeID string

	// ClaimCoupon
	CouponCode string
}

var (
	// Amounts allow an optional leading currency symbol and at most two
	// decimal digits; three digits simply fail to match and fall through
	// to KindUnknown.
	reTransfer = regexp.MustCompile(`(?i)^send\s+r?(\d+(?:\.\d{1,2})?)\s+to\s+@(\w+)$`)
	rePay      = regexp.MustCompile(`(?i)^pay\s+([\w-]+)$`)
	reClaim    = regexp.MustCompile(`(?i)^(?:claim|redeem)\s+([\w-]+)$`)
)

// Parse maps raw inbound text to an Intent. It never fails: unmatched or
// malformed input yields KindUnknown.
func Parse(text string) Intent {
	msg := strings.TrimSpace(text)
	lower := strings.ToLower(msg)

	switch lower {
	case "balance", "bal":
		return Intent{Kind: KindBalance}
	case "history", "transactions":
		return Intent{Kind: KindHistory}
	}

	if m := reClaim.FindStringSubmatch(msg); m != nil {
		return Intent{Kind: KindClaimCoupon, CouponCode: strings.ToUpper(m[1])}
	}

	if m := reTransfer.FindStringSubmatch(msg); m != nil {
		amount, err := decimal.NewFromString(m[1])
		if err != nil || !amount.IsPositive() {
			return Intent{Kind: KindUnknown}
		}
		return Intent{Kind: KindTransfer, Amount: amount, RecipientHandle: "@" + m[2]}
	}

	if m := rePay.FindStringSubmatch(msg); m != nil {
		return Intent{Kind: KindPayCharge, ChargeID: m[1]}
	}

	return Intent{Kind: KindUnknown}
}
