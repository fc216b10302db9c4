package processor

import "github.com/shopspring/decimal"

// ReceiptStatusSuccess is the on-chain marker for a committed transfer.
// Anything else, including an absent receipt, means the funds did not move.
const ReceiptStatusSuccess = 1

// TransferRequest is the payload for transfer and mint calls.
type TransferRequest struct {
	Amount    decimal.Decimal `json:"transactionAmount"`
	Recipient string          `json:"transactionRecipient"`
	Notes     string          `json:"transactionNotes"`
}

// Receipt is the ledger receipt attached to a transfer response.
type Receipt struct {
	Status int    `json:"status"`
	TxHash string `json:"transactionHash,omitempty"`
}

// TransferResponse is the response to a transfer or mint call.
type TransferResponse struct {
	Receipt *Receipt `json:"receipt"`
}

// Committed reports whether the transfer carries an explicit ledger success
// marker. An HTTP 200 without one is still a failure.
func (r *TransferResponse) Committed() bool {
	return r != nil && r.Receipt != nil && r.Receipt.Status == ReceiptStatusSuccess
}

// Token is one entry of a balance response.
type Token struct {
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceResponse lists the tokens held by an account.
type BalanceResponse struct {
	Tokens []Token `json:"tokens"`
}

// Transaction is one ledger entry in an account's history.
type Transaction struct {
	TxType    string          `json:"txType"`
	Value     decimal.Decimal `json:"value"`
	CreatedAt string          `json:"createdAt"`
}

// TransactionsResponse is an account's transaction history, newest first.
type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

// Charge is the processor's view of a merchant charge.
type Charge struct {
	ID     string          `json:"id"`
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
	Status string          `json:"status"`
}

// ChargeResponse wraps a single charge.
type ChargeResponse struct {
	Charge *Charge `json:"charge"`
}

// CreateChargeRequest creates a charge against a merchant account.
type CreateChargeRequest struct {
	PaymentID string          `json:"paymentId"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note"`
}

// UpdateChargeRequest mutates a charge's status at the processor.
type UpdateChargeRequest struct {
	Status string `json:"status"`
}

// CreateUserRequest registers an account with the processor.
type CreateUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// CreatedUser is the processor-assigned identity for a new account.
type CreatedUser struct {
	ID                string `json:"id"`
	PaymentIdentifier string `json:"paymentIdentifier"`
}

// CreateUserResponse wraps a created user.
type CreateUserResponse struct {
	User *CreatedUser `json:"user"`
}

// Coupon is a claimable coupon definition.
type Coupon struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

// CreateCouponRequest creates a coupon owned by a merchant.
type CreateCouponRequest struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// FloatResponse is the business float balance.
type FloatResponse struct {
	Balance decimal.Decimal `json:"balance"`
}
