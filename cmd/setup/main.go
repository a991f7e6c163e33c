package main

import (
	"context"
	"flag"
	"fmt"

	"naira-wallet-bot-go/internal/common"
	"naira-wallet-bot-go/internal/config"
	"naira-wallet-bot-go/internal/hdwallet"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"go.uber.org/zap"
)

// runInit creates the schema and, when no mnemonic is configured, prints a
// fresh one for WALLET_MNEMONIC.
func runInit(ctx context.Context, cfg *models.Config) {
	common.PrintHeader("WALLET SETUP", common.DefaultWidth)

	st, err := common.InitializeStore(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.Close()
	fmt.Printf("✓ Store ready (%s)\n", cfg.App.StoreBackend)

	mnemonic := cfg.Wallet.Mnemonic
	if mnemonic == "" {
		mnemonic, err = hdwallet.GenerateMnemonic()
		if err != nil {
			zap.L().Fatal("Failed to generate mnemonic", zap.Error(err))
		}
		fmt.Println("\nNo WALLET_MNEMONIC set. Add this line to your .env and keep it offline:")
		fmt.Printf("\n  WALLET_MNEMONIC=\"%s\"\n", mnemonic)
	} else {
		fmt.Println("✓ WALLET_MNEMONIC already set")
	}

	deriver, err := hdwallet.NewDeriver(mnemonic)
	if err != nil {
		zap.L().Fatal("Invalid mnemonic", zap.Error(err))
	}
	common.PrintFooter(fmt.Sprintf("Master address: %s", deriver.MasterAddress()), common.DefaultWidth)
}

// backfillAddresses derives deposit addresses missing from stored accounts.
// Existing addresses are never replaced.
func backfillAddresses(ctx context.Context, st store.AccountStore, deriver *hdwallet.Deriver) (int, error) {
	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, acct := range accounts {
		var missing []models.Asset
		for _, asset := range models.CryptoAssets {
			if acct.DepositAddresses[asset] == "" {
				missing = append(missing, asset)
			}
		}
		if len(missing) == 0 {
			continue
		}

		updated, err := st.UpdateAccount(ctx, acct.UserId, func(a *models.Account) error {
			if a.DepositAddresses == nil {
				a.DepositAddresses = make(map[models.Asset]string)
			}
			for _, asset := range missing {
				derived, err := deriver.DeriveAddress(a.UserId, asset)
				if err != nil {
					return err
				}
				a.DepositAddresses[asset] = derived.Address
			}
			return nil
		})
		if err != nil {
			zap.L().Error("Failed to backfill addresses",
				zap.String("user_id", acct.UserId),
				zap.Error(err))
			continue
		}
		for _, asset := range missing {
			fmt.Printf("✓ %s %s: %s\n", acct.UserId, asset, updated.DepositAddresses[asset])
		}
		added += len(missing)
	}
	return added, nil
}

func main() {
	ctx := context.Background()

	initFlag := flag.Bool("init", false, "Create the schema and generate a mnemonic if none is set")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	_, loggerCleanup := common.InitializeLogger(cfg.App.LogLevel)
	defer loggerCleanup()

	if *initFlag {
		runInit(ctx, cfg)
		return
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader("DEPOSIT ADDRESS BACKFILL", common.DefaultWidth)
	added, err := backfillAddresses(ctx, services.Store, services.Deriver)
	if err != nil {
		zap.L().Fatal("Backfill failed", zap.Error(err))
	}
	common.PrintFooter(fmt.Sprintf("Derived %d missing addresses", added), common.DefaultWidth)
}
