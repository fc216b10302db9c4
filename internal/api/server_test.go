package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Call-cmd/zarmate/internal/chat"
	"github.com/Call-cmd/zarmate/internal/config"
	"github.com/Call-cmd/zarmate/internal/notify"
	"github.com/Call-cmd/zarmate/internal/processor"
	"github.com/Call-cmd/zarmate/internal/storage"
	"github.com/Call-cmd/zarmate/internal/transfer"
)

type noopQueue struct{}

func (noopQueue) Enqueue(transfer.Intent) error { return nil }

type noopSender struct{}

func (noopSender) Send(context.Context, notify.Destination, string) error { return nil }

type fixture struct {
	store  *storage.Storage
	server *Server
	routes http.Handler
}

// newFixture builds a Server over real sqlite storage and a stubbed
// processor backend.
func newFixture(t *testing.T, processorHandler http.Handler) *fixture {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if processorHandler == nil {
		processorHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{}`))
		})
	}
	backend := httptest.NewServer(processorHandler)
	t.Cleanup(backend.Close)

	cfg := &config.Config{
		Port:                8080,
		ProcessorBaseURL:    backend.URL,
		TokenName:           "L ZAR COIN",
		CommunityFundHandle: "@communityfund",
		JWTSecret:           "test-secret",
		CouponReward:        decimal.RequireFromString("10"),
		WelcomeBonus:        decimal.RequireFromString("50"),
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := processor.NewClient(backend.URL, "test-key")
	router := chat.NewRouter(store, api, noopQueue{}, noopSender{}, cfg.TokenName, cfg.CouponReward, 5, log)
	server := NewServer(cfg, store, api, router, log)

	return &fixture{store: store, server: server, routes: server.Routes()}
}

func (f *fixture) seedMerchant(t *testing.T) *storage.User {
	t.Helper()

	u := &storage.User{
		ID:                "merchant_cafe",
		PaymentIdentifier: "0xcafe",
		Handle:            "@campuscafe",
		WhatsAppNumber:    "+27820000009",
	}
	require.NoError(t, f.store.SaveUser(context.Background(), u))
	return u
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.routes.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.routes.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zarmate")
}

func TestCreateCharge(t *testing.T) {
	f := newFixture(t, nil)
	f.seedMerchant(t)

	rec := f.postJSON(t, "/api/merchants/charges", map[string]string{
		"merchantId": "@campuscafe",
		"amount":     "12.50",
		"notes":      "2x coffee",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeJSON[CreateChargeResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.ChargeID, "charge_"))
	assert.Equal(t, "pay "+resp.ChargeID, resp.QRContent)

	// The charge is persisted as PENDING with the requested amount.
	charge, err := f.store.ChargeByID(context.Background(), resp.ChargeID)
	require.NoError(t, err)
	assert.Equal(t, storage.ChargePending, charge.Status)
	assert.True(t, decimal.RequireFromString("12.50").Equal(charge.Amount))
	assert.Equal(t, "merchant_cafe", charge.MerchantID)
}

func TestCreateChargeValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.seedMerchant(t)

	tests := []struct {
		name string
		body map[string]string
		code int
	}{
		{
			name: "unknown merchant",
			body: map[string]string{"merchantId": "@ghost", "amount": "10"},
			code: http.StatusNotFound,
		},
		{
			name: "missing handle prefix",
			body: map[string]string{"merchantId": "campuscafe", "amount": "10"},
			code: http.StatusBadRequest,
		},
		{
			name: "zero amount",
			body: map[string]string{"merchantId": "@campuscafe", "amount": "0"},
			code: http.StatusBadRequest,
		},
		{
			name: "negative amount",
			body: map[string]string{"merchantId": "@campuscafe", "amount": "-5"},
			code: http.StatusBadRequest,
		},
		{
			name: "three decimal places",
			body: map[string]string{"merchantId": "@campuscafe", "amount": "10.505"},
			code: http.StatusBadRequest,
		},
		{
			name: "non-numeric amount",
			body: map[string]string{"merchantId": "@campuscafe", "amount": "ten"},
			code: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.postJSON(t, "/api/merchants/charges", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestRegisterUser(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users":
			w.Write([]byte(`{"user":{"id":"user_new","paymentIdentifier":"0xnew"}}`))
		default:
			w.Write([]byte(`{}`))
		}
	})
	f := newFixture(t, backend)

	rec := f.postJSON(t, "/api/users/register", map[string]string{
		"handle":         "@lebo",
		"whatsappNumber": "whatsapp:+27820000001",
		"email":          "lebo@example.com",
	})

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decodeJSON[RegisterUserResponse](t, rec)
	assert.Equal(t, "user_new", resp.UserID)
	assert.Equal(t, "@lebo", resp.Handle)

	// The mirror strips the channel prefix from the number.
	u, err := f.store.UserByWhatsApp(context.Background(), "+27820000001")
	require.NoError(t, err)
	assert.Equal(t, "user_new", u.ID)
	assert.Equal(t, "0xnew", u.PaymentIdentifier)
}

func TestRegisterUserValidation(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.postJSON(t, "/api/users/register", map[string]string{
		"handle": "lebo", // no @ prefix
		"email":  "not-an-email",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	merchant := f.seedMerchant(t)

	rec := f.postJSON(t, "/api/auth/login", map[string]string{"identifier": "@campuscafe"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON[LoginResponse](t, rec)
	assert.Equal(t, merchant.ID, resp.User.ID)
	require.NotEmpty(t, resp.Token)

	// The token verifies against the configured secret and carries the
	// user identity.
	parsed, err := jwt.Parse(resp.Token, func(*jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, merchant.ID, claims["userId"])
	assert.Equal(t, "@campuscafe", claims["handle"])
}

func TestLoginUnknownUser(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.postJSON(t, "/api/auth/login", map[string]string{"identifier": "@nobody"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please sign up")
}

func TestLoginByUserID(t *testing.T) {
	f := newFixture(t, nil)
	merchant := f.seedMerchant(t)

	rec := f.postJSON(t, "/api/auth/login", map[string]string{"identifier": merchant.ID})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOverview(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/balance") {
			w.Write([]byte(`{"tokens":[{"name":"L ZAR COIN","balance":"250"}]}`))
			return
		}
		w.Write([]byte(`{}`))
	})
	f := newFixture(t, backend)
	f.seedMerchant(t)

	ctx := context.Background()
	require.NoError(t, f.store.SaveCharge(ctx, &storage.Charge{
		ID:         "charge_1",
		MerchantID: "merchant_cafe",
		Amount:     decimal.RequireFromString("12.50"),
	}))
	require.NoError(t, f.store.ClaimCharge(ctx, "charge_1"))
	require.NoError(t, f.store.CompleteCharge(ctx, "charge_1", "user_lebo", "@lebo"))

	rec := f.get(t, "/api/dashboard/merchant/merchant_cafe/overview")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON[OverviewResponse](t, rec)
	assert.Equal(t, "250.00", resp.Balance)
	assert.Equal(t, "12.50", resp.PendingSettlement)
	assert.Equal(t, 1, resp.TotalTransactions)
	assert.Equal(t, 1, resp.UniqueCustomers)
}

func TestMerchantTransactions(t *testing.T) {
	f := newFixture(t, nil)
	f.seedMerchant(t)

	require.NoError(t, f.store.SaveCharge(context.Background(), &storage.Charge{
		ID:         "charge_1",
		MerchantID: "merchant_cafe",
		Amount:     decimal.RequireFromString("30"),
		Note:       "lunch",
	}))

	rec := f.get(t, "/api/dashboard/merchant/merchant_cafe/transactions")

	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeJSON[[]ChargeItem](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "charge_1", items[0].ID)
	assert.Equal(t, "30.00", items[0].Amount)
	assert.Equal(t, "PENDING", items[0].Status)
}

func TestCommunityFund(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/balance") {
			w.Write([]byte(`{"tokens":[{"name":"L ZAR COIN","balance":"77.25"}]}`))
			return
		}
		w.Write([]byte(`{}`))
	})
	f := newFixture(t, backend)

	require.NoError(t, f.store.SaveUser(context.Background(), &storage.User{
		ID:                "fund_1",
		PaymentIdentifier: "0xfund",
		Handle:            "@communityfund",
		WhatsAppNumber:    "+27820000000",
	}))

	rec := f.get(t, "/api/dashboard/community-fund")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON[CommunityFundResponse](t, rec)
	assert.Equal(t, "@communityfund", resp.Handle)
	assert.Equal(t, "77.25", resp.Balance)
}

func TestCommunityFundMissing(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/dashboard/community-fund")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBusinessFloat(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/float" {
			w.Write([]byte(`{"balance":"100000.5"}`))
			return
		}
		w.Write([]byte(`{}`))
	})
	f := newFixture(t, backend)

	rec := f.get(t, "/api/dashboard/float")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON[FloatResponse](t, rec)
	assert.Equal(t, "100000.50", resp.Balance)
}

func TestRequestLogging(t *testing.T) {
	f := newFixture(t, nil)

	var buf bytes.Buffer
	f.server.log = slog.New(slog.NewTextHandler(&buf, nil))

	rec := f.get(t, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	logLine := buf.String()
	assert.Contains(t, logLine, "http request")
	assert.Contains(t, logLine, "method=GET")
	assert.Contains(t, logLine, "path=/health")
	assert.Contains(t, logLine, "status=200")
}

func TestWhatsAppWebhookAlwaysAcks(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("valid message", func(t *testing.T) {
		form := "From=whatsapp%3A%2B27820000001&Body=balance"
		req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		f.routes.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("empty form", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", nil)
		rec := httptest.NewRecorder()
		f.routes.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestTelegramWebhookAlwaysAcks(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/telegram/webhook", strings.NewReader(`garbage`))
	rec := httptest.NewRecorder()
	f.routes.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "12.50", want: "12.5"},
		{raw: "1", want: "1"},
		{raw: "0.01", want: "0.01"},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "1.005", wantErr: true},
		{raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseAmount(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got))
		})
	}
}
