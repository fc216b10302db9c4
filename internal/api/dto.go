package api

// RegisterUserRequest registers a new user, creating the account at the
// processor first.
type RegisterUserRequest struct {
	Handle         string `json:"handle" validate:"required,startswith=@,min=2,max=50"`
	WhatsAppNumber string `json:"whatsappNumber" validate:"required,min=6,max=20"`
	Email          string `json:"email" validate:"required,email"`
	FirstName      string `json:"firstName" validate:"omitempty,max=100"`
	LastName       string `json:"lastName" validate:"omitempty,max=100"`
}

// RegisterUserResponse acknowledges an accepted registration; the welcome
// bonus is provisioned in the background.
type RegisterUserResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Handle  string `json:"handle"`
}

// CreateChargeRequest creates a merchant payment request.
type CreateChargeRequest struct {
	MerchantHandle string `json:"merchantId" validate:"required,startswith=@"`
	Amount         string `json:"amount" validate:"required"`
	Notes          string `json:"notes" validate:"omitempty,max=500"`
}

// CreateChargeResponse carries the charge ID and the QR payload a customer
// sends back over chat.
type CreateChargeResponse struct {
	Message   string `json:"message"`
	ChargeID  string `json:"chargeId"`
	QRContent string `json:"qrContent"`
}

// LoginRequest authenticates a dashboard user by handle.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

// LoginResponse carries the session token.
type LoginResponse struct {
	Message string    `json:"message"`
	Token   string    `json:"token"`
	User    LoginUser `json:"user"`
}

// LoginUser is the identity echoed back on login.
type LoginUser struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

// OverviewResponse is the dashboard overview tab.
type OverviewResponse struct {
	Balance           string `json:"lzarBalance"`
	PendingSettlement string `json:"pendingSettlement"`
	TotalTransactions int    `json:"totalTransactions"`
	UniqueCustomers   int    `json:"uniqueCustomers"`
}

// ChargeItem is one row of the dashboard transactions tab.
type ChargeItem struct {
	ID             string `json:"id"`
	CreatedAt      string `json:"createdAt"`
	CustomerHandle string `json:"customerHandle,omitempty"`
	Amount         string `json:"amount"`
	Status         string `json:"status"`
}

// CustomerItem is one row of the dashboard customers tab.
type CustomerItem struct {
	Handle      string `json:"customerHandle"`
	ChargeCount int    `json:"transactionCount"`
	TotalSpent  string `json:"totalSpent"`
	LastSeenAt  string `json:"lastSeen"`
}

// CommunityFundResponse is the community fund balance.
type CommunityFundResponse struct {
	Handle  string `json:"handle"`
	Balance string `json:"balance"`
}

// FloatResponse is the processor's backing reserve balance.
type FloatResponse struct {
	Balance string `json:"balance"`
}

// CreateCouponRequest creates a coupon owned by a merchant.
type CreateCouponRequest struct {
	Code  string `json:"code" validate:"required,alphanum,min=3,max=32"`
	Title string `json:"title" validate:"required,max=200"`
}

// CreateCouponResponse echoes the created coupon.
type CreateCouponResponse struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}
