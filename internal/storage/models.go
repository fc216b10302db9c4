package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeStatus is the lifecycle state of a merchant charge.
type ChargeStatus string

const (
	// ChargePending means the charge is open and claimable.
	ChargePending ChargeStatus = "PENDING"
	// ChargeInProgress means a customer has claimed the charge and a
	// transfer is being executed for it.
	ChargeInProgress ChargeStatus = "IN_PROGRESS"
	// ChargeComplete is terminal; a completed charge can never be paid again.
	ChargeComplete ChargeStatus = "COMPLETE"
)

// User mirrors a processor account locally, keyed by the processor-assigned ID.
type User struct {
	ID                string
	PaymentIdentifier string
	Handle            string // unique, @name form
	WhatsAppNumber    string
	TelegramChatID    int64 // 0 until the user first messages the bot
	CreatedAt         time.Time
}

// Charge is a merchant-issued payment request.
type Charge struct {
	ID             string
	MerchantID     string
	CustomerID     string // empty until claimed
	CustomerHandle string
	Amount         decimal.Decimal
	Note           string
	Status         ChargeStatus
	CreatedAt      time.Time
}

// MerchantStats are the aggregates shown on the dashboard overview.
type MerchantStats struct {
	PendingSettlement decimal.Decimal
	TotalCharges      int
	UniqueCustomers   int
}

// MerchantCustomer is one row of the dashboard customers tab.
type MerchantCustomer struct {
	Handle      string
	ChargeCount int
	TotalSpent  decimal.Decimal
	LastSeenAt  time.Time
}
