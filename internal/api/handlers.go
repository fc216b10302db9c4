package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Call-cmd/zarmate/internal/chat"
	"github.com/Call-cmd/zarmate/internal/processor"
	"github.com/Call-cmd/zarmate/internal/storage"
)

// --- Channel webhooks ---

// handleWhatsAppWebhook accepts Twilio's form-encoded webhook. The channel
// protocol requires a 200 regardless of business outcome, otherwise the
// provider retries the delivery.
func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.log.Warn("bad whatsapp webhook", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	in, ok := chat.ParseWhatsAppForm(r.PostFormValue("From"), r.PostFormValue("Body"))
	if !ok {
		s.log.Warn("whatsapp webhook without sender or body")
		w.WriteHeader(http.StatusOK)
		return
	}

	s.log.Info("whatsapp message received", "from", in.From)

	// Process after acknowledging; replies go out through the notifier.
	go s.router.Handle(context.Background(), in)

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleTelegramWebhook accepts Telegram update payloads, acknowledging
// everything to prevent provider-side retries.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	in, ok := chat.ParseTelegramUpdate(r.Body)
	if !ok {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
		return
	}

	s.log.Info("telegram message received", "chat_id", in.From, "username", in.Username)

	go s.router.Handle(context.Background(), in)

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// --- Users ---

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	firstName := req.FirstName
	if firstName == "" {
		firstName = "ZarMate"
	}
	lastName := req.LastName
	if lastName == "" {
		lastName = "User"
	}

	// The processor assigns the canonical IDs; we mirror them locally.
	created, err := s.api.CreateUser(r.Context(), processor.CreateUserRequest{
		Email:     req.Email,
		FirstName: firstName,
		LastName:  lastName,
	})
	if err != nil {
		s.log.Error("create processor user", "handle", req.Handle, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to register user.")
		return
	}

	user := &storage.User{
		ID:                created.ID,
		PaymentIdentifier: created.PaymentIdentifier,
		Handle:            req.Handle,
		WhatsAppNumber:    strings.TrimPrefix(req.WhatsAppNumber, "whatsapp:"),
	}
	if err := s.store.SaveUser(r.Context(), user); err != nil {
		s.log.Error("save user", "handle", req.Handle, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to register user.")
		return
	}

	s.log.Info("user registered", "user_id", created.ID, "handle", req.Handle)

	go s.provisionWelcomeBonus(created.ID, created.PaymentIdentifier)

	writeJSON(w, http.StatusAccepted, RegisterUserResponse{
		Message: "User registration successful. Welcome bonus is being processed.",
		UserID:  created.ID,
		Handle:  req.Handle,
	})
}

// provisionWelcomeBonus enables gas sponsorship and mints the signup bonus.
// The delay gives the processor time to finish account activation before the
// mint lands.
func (s *Server) provisionWelcomeBonus(userID, paymentID string) {
	ctx := context.Background()

	if err := s.api.EnableGas(ctx, userID); err != nil {
		s.log.Error("enable gas", "user_id", userID, "error", err)
		return
	}

	time.Sleep(10 * time.Second)

	_, err := s.api.MintFunds(ctx, processor.TransferRequest{
		Amount:    s.cfg.WelcomeBonus,
		Recipient: paymentID,
		Notes:     "Welcome bonus",
	})
	if err != nil {
		s.log.Error("mint welcome bonus", "user_id", userID, "error", err)
		return
	}

	s.log.Info("welcome bonus minted", "user_id", userID, "amount", s.cfg.WelcomeBonus.StringFixed(2))
}

// --- Merchant charges ---

func (s *Server) handleCreateCharge(w http.ResponseWriter, r *http.Request) {
	var req CreateChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	merchant, err := s.store.UserByHandle(r.Context(), req.MerchantHandle)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound,
				fmt.Sprintf("Merchant with handle '%s' not found.", req.MerchantHandle))
			return
		}
		s.log.Error("lookup merchant", "handle", req.MerchantHandle, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create charge.")
		return
	}

	// The local store is authoritative for charge state, so the ID is
	// issued here; the processor sees the charge as a mirror.
	charge := &storage.Charge{
		ID:         "charge_" + uuid.NewString(),
		MerchantID: merchant.ID,
		Amount:     amount,
		Note:       req.Notes,
		Status:     storage.ChargePending,
	}
	if err := s.store.SaveCharge(r.Context(), charge); err != nil {
		s.log.Error("save charge", "merchant_id", merchant.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create charge.")
		return
	}

	s.log.Info("charge created",
		"charge_id", charge.ID,
		"merchant", merchant.Handle,
		"amount", amount.StringFixed(2),
	)

	writeJSON(w, http.StatusCreated, CreateChargeResponse{
		Message:   "Charge created successfully.",
		ChargeID:  charge.ID,
		QRContent: "pay " + charge.ID,
	})
}

// --- Dashboard ---

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	merchantID := chi.URLParam(r, "merchantID")

	stats, err := s.store.StatsForMerchant(r.Context(), merchantID)
	if err != nil {
		s.log.Error("merchant stats", "merchant_id", merchantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch overview stats")
		return
	}

	balance := decimal.Zero
	if resp, err := s.api.GetBalance(r.Context(), merchantID); err != nil {
		s.log.Warn("fetch merchant balance", "merchant_id", merchantID, "error", err)
	} else {
		balance = tokenBalance(resp, s.cfg.TokenName)
	}

	writeJSON(w, http.StatusOK, OverviewResponse{
		Balance:           balance.StringFixed(2),
		PendingSettlement: stats.PendingSettlement.StringFixed(2),
		TotalTransactions: stats.TotalCharges,
		UniqueCustomers:   stats.UniqueCustomers,
	})
}

func (s *Server) handleMerchantTransactions(w http.ResponseWriter, r *http.Request) {
	merchantID := chi.URLParam(r, "merchantID")

	charges, err := s.store.ChargesForMerchant(r.Context(), merchantID)
	if err != nil {
		s.log.Error("merchant charges", "merchant_id", merchantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	items := make([]ChargeItem, 0, len(charges))
	for _, c := range charges {
		items = append(items, ChargeItem{
			ID:             c.ID,
			CreatedAt:      c.CreatedAt.UTC().Format(time.RFC3339),
			CustomerHandle: c.CustomerHandle,
			Amount:         c.Amount.StringFixed(2),
			Status:         string(c.Status),
		})
	}

	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleMerchantCustomers(w http.ResponseWriter, r *http.Request) {
	merchantID := chi.URLParam(r, "merchantID")

	customers, err := s.store.CustomersForMerchant(r.Context(), merchantID)
	if err != nil {
		s.log.Error("merchant customers", "merchant_id", merchantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch customers")
		return
	}

	items := make([]CustomerItem, 0, len(customers))
	for _, mc := range customers {
		items = append(items, CustomerItem{
			Handle:      mc.Handle,
			ChargeCount: mc.ChargeCount,
			TotalSpent:  mc.TotalSpent.StringFixed(2),
			LastSeenAt:  mc.LastSeenAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCommunityFund(w http.ResponseWriter, r *http.Request) {
	fund, err := s.store.UserByHandle(r.Context(), s.cfg.CommunityFundHandle)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Community fund account not found")
			return
		}
		s.log.Error("lookup community fund", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch community fund balance")
		return
	}

	resp, err := s.api.GetBalance(r.Context(), fund.ID)
	if err != nil {
		s.log.Error("fetch community fund balance", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch community fund balance")
		return
	}

	writeJSON(w, http.StatusOK, CommunityFundResponse{
		Handle:  fund.Handle,
		Balance: tokenBalance(resp, s.cfg.TokenName).StringFixed(2),
	})
}

// handleBusinessFloat exposes the processor's float balance so operators can
// see whether the backing reserve covers outstanding token supply.
func (s *Server) handleBusinessFloat(w http.ResponseWriter, r *http.Request) {
	resp, err := s.api.GetBusinessFloat(r.Context())
	if err != nil {
		s.log.Error("fetch business float", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch float balance")
		return
	}

	writeJSON(w, http.StatusOK, FloatResponse{
		Balance: resp.Balance.StringFixed(2),
	})
}

func (s *Server) handleCreateCoupon(w http.ResponseWriter, r *http.Request) {
	merchantID := chi.URLParam(r, "merchantID")

	var req CreateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	coupon, err := s.api.CreateCoupon(r.Context(), merchantID, processor.CreateCouponRequest{
		Code:  strings.ToUpper(req.Code),
		Title: req.Title,
	})
	if err != nil {
		s.log.Error("create coupon", "merchant_id", merchantID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create coupon.")
		return
	}

	writeJSON(w, http.StatusCreated, CreateCouponResponse{
		ID:    coupon.ID,
		Code:  coupon.Code,
		Title: coupon.Title,
	})
}

// tokenBalance extracts the named stablecoin's balance from a token list,
// defaulting to zero when absent.
func tokenBalance(resp *processor.BalanceResponse, name string) decimal.Decimal {
	for _, token := range resp.Tokens {
		if strings.EqualFold(token.Name, name) {
			return token.Balance
		}
	}
	return decimal.Zero
}
