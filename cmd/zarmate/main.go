package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/joho/godotenv"

	"github.com/Call-cmd/zarmate/internal/api"
	"github.com/Call-cmd/zarmate/internal/chat"
	"github.com/Call-cmd/zarmate/internal/config"
	"github.com/Call-cmd/zarmate/internal/notify"
	"github.com/Call-cmd/zarmate/internal/processor"
	"github.com/Call-cmd/zarmate/internal/storage"
	"github.com/Call-cmd/zarmate/internal/transfer"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.ProcessorBaseURL == "" {
		log.Error("PROCESSOR_BASE_URL is required")
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize processor client
	procClient := processor.NewClient(cfg.ProcessorBaseURL, cfg.ProcessorAPIKey)
	log.Info("processor client initialized", "base_url", cfg.ProcessorBaseURL)

	// Initialize channel senders
	senders := make(map[notify.Channel]notify.Sender)

	if cfg.TelegramBotToken != "" {
		tgBot, err := bot.New(cfg.TelegramBotToken)
		if err != nil {
			log.Error("init telegram bot", "error", err)
			os.Exit(1)
		}
		senders[notify.ChannelTelegram] = notify.NewTelegramSender(tgBot)
		log.Info("telegram sender initialized")
	}

	if cfg.TwilioAccountSID != "" {
		senders[notify.ChannelWhatsApp] = notify.NewWhatsAppSender(
			cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber)
		log.Info("whatsapp sender initialized")
	}

	if len(senders) == 0 {
		log.Error("no messaging channel configured; set TELEGRAM_BOT_TOKEN or TWILIO_ACCOUNT_SID")
		os.Exit(1)
	}

	notifier := notify.New(log, senders)

	// Initialize transfer orchestration
	orch := transfer.New(procClient, store, notifier, cfg.CommunityFundHandle, log)
	queue := transfer.NewQueue(orch, cfg.TransferQueueSize, cfg.TransferWorkers, log)
	queue.Start()

	// Initialize chat router
	router := chat.NewRouter(store, procClient, queue, notifier,
		cfg.TokenName, cfg.CouponReward, cfg.HistoryLimit, log)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start HTTP server
	server := api.NewServer(cfg, store, procClient, router, log)
	if err := server.Start(ctx); err != nil && err != http.ErrServerClosed {
		log.Error("http server", "error", err)
	}

	// Drain accepted transfer jobs before exiting
	queue.Stop()
	log.Info("shutdown complete")
}
