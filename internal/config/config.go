package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Config struct {
	// HTTP
	Port int

	// Processor (the payment API of record)
	ProcessorBaseURL string
	ProcessorAPIKey  string

	// Stablecoin
	TokenName           string
	CommunityFundHandle string

	// Telegram
	TelegramBotToken string

	// Twilio / WhatsApp
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string

	// Dashboard auth
	JWTSecret string

	// Database
	DBPath string

	// Rewards
	CouponReward decimal.Decimal
	WelcomeBonus decimal.Decimal

	// Transfer worker pool
	TransferQueueSize int
	TransferWorkers   int

	// Chat
	HistoryLimit int
}

func Load() *Config {
	return &Config{
		Port: getEnvInt("PORT", 8080),

		ProcessorBaseURL: strings.TrimSuffix(getEnv("PROCESSOR_BASE_URL", ""), "/"),
		ProcessorAPIKey:  getEnv("PROCESSOR_API_KEY", ""),

		TokenName:           getEnv("TOKEN_NAME", "L ZAR COIN"),
		CommunityFundHandle: getEnv("COMMUNITY_FUND_HANDLE", "@communityfund"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		TwilioAccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppNumber: getEnv("TWILIO_WHATSAPP_NUMBER", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		DBPath: getEnv("DB_PATH", "./zarmate.db"),

		CouponReward: getEnvDecimal("COUPON_REWARD", "10.00"),
		WelcomeBonus: getEnvDecimal("WELCOME_BONUS", "50"),

		TransferQueueSize: getEnvInt("TRANSFER_QUEUE_SIZE", 64),
		TransferWorkers:   getEnvInt("TRANSFER_WORKERS", 4),

		HistoryLimit: getEnvInt("HISTORY_LIMIT", 5),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDecimal(key, defaultVal string) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultVal)
	return d
}
