// Package api exposes the HTTP surface: channel webhooks, merchant and user
// endpoints, and the dashboard read API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Call-cmd/zarmate/internal/chat"
	"github.com/Call-cmd/zarmate/internal/config"
	"github.com/Call-cmd/zarmate/internal/processor"
	"github.com/Call-cmd/zarmate/internal/storage"
)

// Server wires the HTTP routes to storage, the processor and the chat router.
type Server struct {
	cfg      *config.Config
	store    *storage.Storage
	api      *processor.Client
	router   *chat.Router
	validate *validator.Validate
	log      *slog.Logger

	httpServer *http.Server
}

// NewServer creates an HTTP server for the relay.
func NewServer(cfg *config.Config, store *storage.Storage, api *processor.Client, router *chat.Router, log *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		api:      api,
		router:   router,
		validate: validator.New(),
		log:      log,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)

	r.Post("/api/whatsapp/webhook", s.handleWhatsAppWebhook)
	r.Post("/api/telegram/webhook", s.handleTelegramWebhook)

	r.Post("/api/users/register", s.handleRegisterUser)
	r.Post("/api/merchants/charges", s.handleCreateCharge)
	r.Post("/api/auth/login", s.handleLogin)

	r.Route("/api/dashboard", func(r chi.Router) {
		r.Get("/merchant/{merchantID}/overview", s.handleOverview)
		r.Get("/merchant/{merchantID}/transactions", s.handleMerchantTransactions)
		r.Get("/merchant/{merchantID}/customers", s.handleMerchantCustomers)
		r.Post("/merchant/{merchantID}/coupons", s.handleCreateCoupon)
		r.Get("/community-fund", s.handleCommunityFund)
		r.Get("/float", s.handleBusinessFloat)
	})

	return r
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting http server", "port", s.cfg.Port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	return s.httpServer.ListenAndServe()
}

// requestLogger logs one line per request with status and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK", "service": "zarmate"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// parseAmount accepts a decimal money string with at most two fractional
// digits and a positive value.
func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format")
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be > 0")
	}
	if d.Exponent() < -2 {
		return decimal.Zero, fmt.Errorf("amount must have at most 2 decimal places")
	}
	return d, nil
}
