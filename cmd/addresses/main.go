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
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"naira-wallet-bot-go/internal/common"
	"naira-wallet-bot-go/internal/config"
	"naira-wallet-bot-go/internal/database"
	"naira-wallet-bot-go/internal/hdwallet"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"go.uber.org/zap"
)

type reportStats struct {
	totalAccounts  int
	totalAddresses int
	mismatches     int
}

func printAccountHeader(acct *models.Account, addressCount int) {
	fmt.Printf("\n┌─ User: %s (chat %d)\n", acct.UserId, acct.ChatId)
	fmt.Printf("│  Referral code: %s\n", acct.ReferralCode)
	fmt.Printf("│  Addresses: %d\n", addressCount)
	common.PrintSeparator("─", 98)
}

// verifyAddress checks that the configured seed still derives stored. The
// returned mark is empty when verification is off.
func verifyAddress(deriver *hdwallet.Deriver, userId string, asset models.Asset, stored string) (string, bool) {
	if deriver == nil {
		return "", true
	}
	if err := deriver.Restore(userId, asset, stored); err != nil {
		if errors.Is(err, hdwallet.ErrSeedMismatch) {
			return "  ✗ seed mismatch", false
		}
		return "  ✗ " + err.Error(), false
	}
	return "  ✓", true
}

func processAccount(acct *models.Account, catalog map[models.Asset]models.AssetInfo, deriver *hdwallet.Deriver, stats *reportStats) {
	var assets []models.Asset
	for _, asset := range models.CryptoAssets {
		if acct.DepositAddresses[asset] != "" {
			assets = append(assets, asset)
		}
	}
	stats.totalAccounts++
	if len(assets) == 0 {
		return
	}

	printAccountHeader(acct, len(assets))
	for i, asset := range assets {
		isLast := i == len(assets)-1
		addr := acct.DepositAddresses[asset]
		verdict, ok := verifyAddress(deriver, acct.UserId, asset, addr)
		if !ok {
			stats.mismatches++
		}
		fmt.Printf("%s%-5s %-20s → %s%s\n", common.TreePrefix(isLast), asset, catalog[asset].Network, addr, verdict)
		if link := catalog[asset].Explorer(addr); link != "" {
			fmt.Printf("%s      %s\n", common.TreeIndent(isLast), link)
		}
		stats.totalAddresses++
	}
}

// findOwner looks an address up in the store. SQLite has an index for it;
// other backends are scanned.
func findOwner(ctx context.Context, st store.AccountStore, address string) (string, models.Asset, error) {
	if db, ok := st.(*database.Service); ok {
		return db.FindUserByAddress(ctx, address)
	}
	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return "", "", err
	}
	for _, acct := range accounts {
		for asset, addr := range acct.DepositAddresses {
			if strings.EqualFold(addr, address) {
				return acct.UserId, asset, nil
			}
		}
	}
	return "", "", store.ErrAccountNotFound
}

func main() {
	ctx := context.Background()

	userFlag := flag.String("user", "", "Filter by user id (optional)")
	findFlag := flag.String("find", "", "Print the owner of one deposit address and exit")
	verifyFlag := flag.Bool("verify", false, "Re-derive each address from WALLET_MNEMONIC and flag mismatches")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.App.LogLevel)
	defer loggerCleanup()

	logger.Info("Starting address query")

	st, err := common.InitializeStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	if *findFlag != "" {
		userId, asset, err := findOwner(ctx, st, *findFlag)
		if err != nil {
			logger.Fatal("Address not found", zap.String("address", *findFlag), zap.Error(err))
		}
		fmt.Printf("%s belongs to user %s (%s)\n", *findFlag, userId, asset)
		return
	}

	catalog, err := common.LoadAssetCatalog(cfg.App.AssetsFile)
	if err != nil {
		logger.Fatal("Failed to load assets", zap.Error(err))
	}

	var deriver *hdwallet.Deriver
	if *verifyFlag {
		deriver, err = hdwallet.NewDeriver(cfg.Wallet.Mnemonic)
		if err != nil {
			logger.Fatal("Cannot verify without a valid WALLET_MNEMONIC", zap.Error(err))
		}
	}

	accounts, err := common.LookupAccounts(ctx, st, *userFlag, logger)
	if err != nil {
		logger.Fatal("Failed to load accounts", zap.Error(err))
	}

	common.PrintHeader("DEPOSIT ADDRESSES REPORT", common.WideWidth)

	stats := &reportStats{}
	for _, acct := range accounts {
		processAccount(acct, catalog, deriver, stats)
	}

	summary := fmt.Sprintf("SUMMARY: %d addresses across %d accounts", stats.totalAddresses, stats.totalAccounts)
	if deriver != nil {
		summary += fmt.Sprintf(" (%d failed verification)", stats.mismatches)
	}
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Address query completed",
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("addresses", stats.totalAddresses),
		zap.Int("mismatches", stats.mismatches))
}
