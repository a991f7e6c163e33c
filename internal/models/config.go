package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	App      AppConfig
	Wallet   WalletConfig
	Policy   PolicyConfig
	Gateway  GatewayConfig
	Rates    RatesConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Nats     NatsConfig
	Formance FormanceConfig
	Telegram TelegramConfig
}

// AppConfig holds process-level settings
type AppConfig struct {
	BusinessName         string
	SupportHandle        string
	Port                 int
	AdminKey             string
	DepositWebhookSecret string
	StoreBackend         string // "memory" or "sqlite"
	AssetsFile           string
	LogLevel             string
	SeedDemoBalances     bool
	ShutdownTimeout      time.Duration
}

// WalletConfig holds the HD wallet master secret
type WalletConfig struct {
	Mnemonic string
}

// PolicyConfig holds withdrawal limits and fees
type PolicyConfig struct {
	KYCThreshold         decimal.Decimal
	DailyWithdrawalLimit decimal.Decimal
	WithdrawalFeeRate    decimal.Decimal
	MinWithdrawalFee     decimal.Decimal
	MinNetWithdrawal     decimal.Decimal
	SwapFeeRate          decimal.Decimal
}

// GatewayConfig holds payment provider settings
type GatewayConfig struct {
	BaseURL         string
	SecretKey       string
	PublicKey       string
	VerifyTimeout   time.Duration
	TransferTimeout time.Duration
}

// RatesConfig holds price feed settings
type RatesConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NatsConfig struct {
	URL           string
	SubjectPrefix string
}

// FormanceConfig holds Formance Stack connection settings. The mirror is
// disabled when StackURL is empty.
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

type TelegramConfig struct {
	Token       string
	Username    string // filled from getMe when unset
	WebhookURL  string
	PollTimeout int
}
