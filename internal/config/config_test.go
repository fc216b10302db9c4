package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "L ZAR COIN", cfg.TokenName)
	assert.Equal(t, "@communityfund", cfg.CommunityFundHandle)
	assert.True(t, decimal.RequireFromString("10.00").Equal(cfg.CouponReward))
	assert.True(t, decimal.RequireFromString("50").Equal(cfg.WelcomeBonus))
	assert.Equal(t, 5, cfg.HistoryLimit)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PROCESSOR_BASE_URL", "https://api.example.com/")
	t.Setenv("COUPON_REWARD", "25.50")
	t.Setenv("TRANSFER_WORKERS", "8")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://api.example.com", cfg.ProcessorBaseURL, "trailing slash is trimmed")
	assert.True(t, decimal.RequireFromString("25.50").Equal(cfg.CouponReward))
	assert.Equal(t, 8, cfg.TransferWorkers)
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("COUPON_REWARD", "not-a-decimal")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, decimal.RequireFromString("10.00").Equal(cfg.CouponReward))
}
