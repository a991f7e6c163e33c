package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "KYC_THRESHOLD", "DAILY_WITHDRAWAL_LIMIT", "PORT", "RATES_CACHE_TTL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.App.StoreBackend)
	assert.Equal(t, 3000, cfg.App.Port)
	assert.True(t, cfg.Policy.KYCThreshold.Equal(decimal.NewFromInt(100000)))
	assert.True(t, cfg.Policy.DailyWithdrawalLimit.Equal(decimal.NewFromInt(500000)))
	assert.True(t, cfg.Policy.WithdrawalFeeRate.Equal(decimal.RequireFromString("0.015")))
	assert.Equal(t, 60*time.Second, cfg.Rates.CacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("KYC_THRESHOLD", "250000")
	t.Setenv("RATES_CACHE_TTL", "2m")
	t.Setenv("PORT", "8080")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.App.StoreBackend)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.True(t, cfg.Policy.KYCThreshold.Equal(decimal.NewFromInt(250000)))
	assert.Equal(t, 2*time.Minute, cfg.Rates.CacheTTL)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"STORE_BACKEND":          "postgres",
		"KYC_THRESHOLD":          "-1",
		"DAILY_WITHDRAWAL_LIMIT": "lots",
		"RATES_TIMEOUT":          "5 seconds",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvInt_IgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
}
