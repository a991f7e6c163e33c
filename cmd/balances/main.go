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
	"flag"
	"fmt"

	"naira-wallet-bot-go/internal/common"
	"naira-wallet-bot-go/internal/config"
	"naira-wallet-bot-go/internal/database"
	"naira-wallet-bot-go/internal/formance"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts       int
	accountsWithBalance int
	drifted             int
	unreconciled        int
	totals              map[models.Asset]decimal.Decimal
}

func formatTransactionId(txId string) string {
	if txId == "" {
		return "none"
	}
	if len(txId) > 8 {
		return txId[:8] + "..."
	}
	return txId
}

func lastTransactionId(acct *models.Account) string {
	if len(acct.Transactions) == 0 {
		return ""
	}
	return acct.Transactions[len(acct.Transactions)-1].Id
}

func printAccountHeader(acct *models.Account) {
	kyc := "no"
	if acct.KYCVerified {
		kyc = "yes"
	}
	fmt.Printf("\n┌─ User: %s (chat %d)\n", acct.UserId, acct.ChatId)
	fmt.Printf("│  KYC: %s, daily limit: %s, v%d, last_tx: %s\n",
		kyc, acct.DailyWithdrawalLimit.StringFixed(2), acct.Version, formatTransactionId(lastTransactionId(acct)))
	common.PrintSeparator("─", 78)
}

func processAccount(ctx context.Context, acct *models.Account, catalog map[models.Asset]models.AssetInfo, mirror *formance.Service, stats *balanceStats) {
	stats.totalAccounts++

	var assets []models.Asset
	for _, asset := range models.AllAssets {
		if !acct.Balance(asset).IsZero() {
			assets = append(assets, asset)
		}
	}
	if len(assets) == 0 {
		return
	}
	stats.accountsWithBalance++

	var drift map[models.Asset]decimal.Decimal
	if mirror != nil {
		d, err := mirror.Drift(ctx, acct)
		if err != nil {
			zap.L().Warn("Failed to compare with formance", zap.String("user_id", acct.UserId), zap.Error(err))
		} else {
			drift = d
		}
	}

	printAccountHeader(acct)
	for i, asset := range assets {
		bal := acct.Balance(asset)
		stats.totals[asset] = stats.totals[asset].Add(bal)
		line := fmt.Sprintf("%s%-5s: %24s", common.TreePrefix(i == len(assets)-1), asset,
			common.FormatAmount(bal, catalog[asset].Decimals))
		if mirrored, ok := drift[asset]; ok {
			line += fmt.Sprintf("  ⚠ formance has %s", mirrored.String())
			stats.drifted++
		}
		fmt.Println(line)
	}
}

// reconcile replays each account's transaction log against its stored
// balances. Only the SQLite store keeps them separately.
func reconcile(ctx context.Context, st store.AccountStore, accounts []*models.Account, stats *balanceStats) {
	db, ok := st.(*database.Service)
	if !ok {
		fmt.Println("\nReconciliation skipped: store backend keeps no separate balance table")
		return
	}
	fmt.Println()
	for _, acct := range accounts {
		if err := db.ReconcileUserBalances(ctx, acct.UserId); err != nil {
			fmt.Printf("✗ %s: %v\n", acct.UserId, err)
			stats.unreconciled++
		}
	}
}

func main() {
	ctx := context.Background()

	userFlag := flag.String("user", "", "Filter by user id (optional)")
	formanceFlag := flag.Bool("formance", false, "Compare each balance with the Formance mirror")
	reconcileFlag := flag.Bool("reconcile", false, "Check stored balances against the transaction log (sqlite only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.App.LogLevel)
	defer loggerCleanup()

	st, err := common.InitializeStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	catalog, err := common.LoadAssetCatalog(cfg.App.AssetsFile)
	if err != nil {
		logger.Fatal("Failed to load assets", zap.Error(err))
	}

	var mirror *formance.Service
	if *formanceFlag {
		mirror, err = formance.NewService(ctx, cfg.Formance)
		if err != nil {
			logger.Fatal("Failed to connect to formance", zap.Error(err))
		}
	}

	accounts, err := common.LookupAccounts(ctx, st, *userFlag, logger)
	if err != nil {
		logger.Fatal("Failed to load accounts", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT BALANCES REPORT", common.DefaultWidth)

	stats := &balanceStats{totals: make(map[models.Asset]decimal.Decimal)}
	for _, acct := range accounts {
		processAccount(ctx, acct, catalog, mirror, stats)
	}

	if *reconcileFlag {
		reconcile(ctx, st, accounts, stats)
	}

	fmt.Println()
	for _, asset := range models.AllAssets {
		if total, ok := stats.totals[asset]; ok {
			fmt.Printf("TOTAL %-5s: %24s\n", asset, common.FormatAmount(total, catalog[asset].Decimals))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d of %d accounts hold a balance", stats.accountsWithBalance, stats.totalAccounts)
	if mirror != nil {
		summary += fmt.Sprintf(", %d balances drift from formance", stats.drifted)
	}
	if *reconcileFlag {
		summary += fmt.Sprintf(", %d accounts fail reconciliation", stats.unreconciled)
	}
	common.PrintFooter(summary, common.DefaultWidth)
}
