package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"naira-wallet-bot-go/internal/api"
	"naira-wallet-bot-go/internal/database"
	"naira-wallet-bot-go/internal/engine"
	"naira-wallet-bot-go/internal/events"
	"naira-wallet-bot-go/internal/formance"
	"naira-wallet-bot-go/internal/gateway"
	"naira-wallet-bot-go/internal/hdwallet"
	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/policy"
	"naira-wallet-bot-go/internal/rates"
	"naira-wallet-bot-go/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// init loads environment variables from .env file if it exists
func init() {
	// A missing .env is fine; variables may come from the shell or the container.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is everything a process needs to run the wallet.
type Services struct {
	Store    store.AccountStore
	Deriver  *hdwallet.Deriver
	Rates    *rates.Provider
	Gateway  *gateway.Service
	Ledger   *ledger.Ledger
	Engine   *engine.Engine
	Api      *api.LedgerService
	Formance *formance.Service

	cache     *rates.RedisCache
	publisher *events.Publisher
}

// InitializeLogger builds the global logger. "debug" selects the
// development encoder.
func InitializeLogger(level string) (*zap.Logger, func()) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(level, "debug") {
		cfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeStore opens the configured account store.
func InitializeStore(ctx context.Context, cfg *models.Config) (store.AccountStore, error) {
	switch strings.ToLower(cfg.App.StoreBackend) {
	case "", "sqlite":
		db, err := database.NewService(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		zap.L().Warn("Using in-memory store; balances are lost on restart")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.App.StoreBackend)
	}
}

// InitializeServices wires the store, deriver, providers, ledger and engine.
// Formance and NATS mirrors are attached only when configured, and a Redis
// outage never blocks startup.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	mnemonic := cfg.Wallet.Mnemonic
	if mnemonic == "" {
		generated, err := hdwallet.GenerateMnemonic()
		if err != nil {
			return nil, err
		}
		zap.L().Warn("WALLET_MNEMONIC not set; generated a new one. Addresses change on every restart until it is saved")
		fmt.Fprintf(os.Stderr, "\nWALLET_MNEMONIC=\"%s\"\n\n", generated)
		mnemonic = generated
	}
	deriver, err := hdwallet.NewDeriver(mnemonic)
	if err != nil {
		return nil, err
	}

	st, err := InitializeStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc := &Services{Store: st, Deriver: deriver}

	if err := RestoreAddresses(ctx, st, deriver); err != nil {
		svc.Close()
		return nil, err
	}

	catalog, err := LoadAssetCatalog(cfg.App.AssetsFile)
	if err != nil {
		svc.Close()
		return nil, err
	}

	httpClient, err := NewHttpClient(cfg.Gateway.TransferTimeout)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to build http client: %w", err)
	}

	var cache rates.Cache
	if cfg.Redis.Addr != "" {
		svc.cache = rates.NewRedisCache(ctx, cfg.Redis)
		cache = svc.cache
	}
	svc.Rates = rates.NewProvider(cfg.Rates, httpClient, cache)
	svc.Gateway = gateway.NewService(cfg.Gateway, cfg.App.BusinessName, httpClient)
	if !svc.Gateway.Configured() {
		zap.L().Warn("Payment gateway not configured; bank verification and payouts will fail")
	}

	var sinks []ledger.Sink
	if cfg.Formance.StackURL != "" {
		fs, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			zap.L().Warn("Formance mirror disabled", zap.Error(err))
		} else {
			svc.Formance = fs
			sinks = append(sinks, fs)
		}
	}
	if cfg.Nats.URL != "" {
		pub, err := events.NewPublisher(cfg.Nats)
		if err != nil {
			zap.L().Warn("NATS publisher disabled", zap.Error(err))
		} else {
			svc.publisher = pub
			sinks = append(sinks, pub)
		}
	}

	opts := ledger.DefaultOptions()
	opts.DailyWithdrawalLimit = cfg.Policy.DailyWithdrawalLimit
	opts.SeedDemoBalances = cfg.App.SeedDemoBalances

	svc.Ledger = ledger.New(st, deriver, policy.NewGuard(cfg.Policy), opts, sinks...)
	svc.Engine = engine.New(svc.Ledger, svc.Rates, svc.Gateway, deriver, engine.Options{
		BusinessName:  cfg.App.BusinessName,
		SupportHandle: cfg.App.SupportHandle,
		BotUsername:   cfg.Telegram.Username,
		Policy:        cfg.Policy,
		Catalog:       catalog,
	})
	svc.Api = api.NewLedgerService(svc.Ledger, svc.Engine, svc.Rates, svc.Gateway)

	zap.L().Info("Services initialized",
		zap.String("store", cfg.App.StoreBackend),
		zap.String("master_address", deriver.MasterAddress()),
		zap.Int("known_addresses", deriver.Known()),
		zap.Int("mirrors", len(sinks)))
	return svc, nil
}

// RestoreAddresses re-derives every stored deposit address so deposits to
// them resolve after a restart. A mismatch means the mnemonic changed and is
// fatal.
func RestoreAddresses(ctx context.Context, st store.AccountStore, deriver *hdwallet.Deriver) error {
	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	for _, acct := range accounts {
		for asset, addr := range acct.DepositAddresses {
			if addr == "" {
				continue
			}
			if err := deriver.Restore(acct.UserId, asset, addr); err != nil {
				return err
			}
		}
	}
	zap.L().Info("Deposit addresses restored", zap.Int("accounts", len(accounts)))
	return nil
}

func (cs *Services) Close() {
	if cs.publisher != nil {
		cs.publisher.Close()
	}
	if cs.cache != nil {
		if err := cs.cache.Close(); err != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if cs.Store != nil {
		cs.Store.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
