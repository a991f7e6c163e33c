/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	verifyTimeout, err := getEnvDuration("FLW_VERIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	transferTimeout, err := getEnvDuration("FLW_TRANSFER_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	ratesTimeout, err := getEnvDuration("RATES_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	ratesCacheTTL, err := getEnvDuration("RATES_CACHE_TTL", 60*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	kycThreshold, err := getEnvDecimal("KYC_THRESHOLD", decimal.NewFromInt(100000))
	if err != nil {
		return nil, err
	}
	dailyLimit, err := getEnvDecimal("DAILY_WITHDRAWAL_LIMIT", decimal.NewFromInt(500000))
	if err != nil {
		return nil, err
	}

	backend := strings.ToLower(getEnvString("STORE_BACKEND", "memory"))
	if backend != "memory" && backend != "sqlite" {
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: expected memory or sqlite", backend)
	}

	return &models.Config{
		App: models.AppConfig{
			BusinessName:         getEnvString("BUSINESS_NAME", "Aerosoft Trade"),
			SupportHandle:        getEnvString("SUPPORT_HANDLE", "@AerosoftSupport"),
			Port:                 getEnvInt("PORT", 3000),
			AdminKey:             os.Getenv("ADMIN_KEY"),
			DepositWebhookSecret: os.Getenv("DEPOSIT_WEBHOOK_SECRET"),
			StoreBackend:         backend,
			AssetsFile:           getEnvString("ASSETS_FILE", "assets.yaml"),
			LogLevel:             getEnvString("LOG_LEVEL", "info"),
			SeedDemoBalances:     getEnvBool("SEED_DEMO_BALANCES", false),
			ShutdownTimeout:      shutdownTimeout,
		},
		Wallet: models.WalletConfig{
			Mnemonic: strings.TrimSpace(os.Getenv("WALLET_MNEMONIC")),
		},
		Policy: models.PolicyConfig{
			KYCThreshold:         kycThreshold,
			DailyWithdrawalLimit: dailyLimit,
			WithdrawalFeeRate:    decimal.RequireFromString("0.015"),
			MinWithdrawalFee:     decimal.NewFromInt(50),
			MinNetWithdrawal:     decimal.NewFromInt(500),
			SwapFeeRate:          decimal.RequireFromString("0.005"),
		},
		Gateway: models.GatewayConfig{
			BaseURL:         getEnvString("FLW_BASE_URL", "https://api.flutterwave.com/v3"),
			SecretKey:       os.Getenv("FLW_SECRET_KEY"),
			PublicKey:       os.Getenv("FLW_PUBLIC_KEY"),
			VerifyTimeout:   verifyTimeout,
			TransferTimeout: transferTimeout,
		},
		Rates: models.RatesConfig{
			BaseURL:  getEnvString("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			Timeout:  ratesTimeout,
			CacheTTL: ratesCacheTTL,
		},
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "wallet.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Redis: models.RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Nats: models.NatsConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getEnvString("NATS_SUBJECT_PREFIX", "wallet.transactions"),
		},
		Formance: models.FormanceConfig{
			StackURL:     os.Getenv("FORMANCE_STACK_URL"),
			ClientID:     os.Getenv("FORMANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("FORMANCE_CLIENT_SECRET"),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "naira-wallet"),
		},
		Telegram: models.TelegramConfig{
			Token:       os.Getenv("TELEGRAM_TOKEN"),
			Username:    os.Getenv("BOT_USERNAME"),
			WebhookURL:  os.Getenv("WEBHOOK_URL"),
			PollTimeout: getEnvInt("TELEGRAM_POLL_TIMEOUT", 60),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("%s must not be negative, got %s", key, value)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
