package main

import (
	"context"
	"flag"
	"fmt"
	"regexp"
	"strconv"

	"naira-wallet-bot-go/internal/common"
	"naira-wallet-bot-go/internal/config"
	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var userIdRegex = regexp.MustCompile(`^[0-9]{1,20}$`)

func validateUserId(userId string) error {
	if userId == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if !userIdRegex.MatchString(userId) {
		return fmt.Errorf("invalid user id: %s (expected a numeric chat user id)", userId)
	}
	return nil
}

func parseLimit(raw string) (decimal.Decimal, error) {
	limit, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid limit %q: %w", raw, err)
	}
	if !limit.IsPositive() {
		return decimal.Zero, fmt.Errorf("limit must be positive, got %s", raw)
	}
	return limit, nil
}

func printAccount(acct *models.Account, catalog map[models.Asset]models.AssetInfo) {
	common.PrintHeader("ACCOUNT "+acct.UserId, common.DefaultWidth)
	fmt.Printf("Chat:          %d\n", acct.ChatId)
	fmt.Printf("KYC verified:  %t\n", acct.KYCVerified)
	fmt.Printf("Daily limit:   ₦%s (used ₦%s on %s)\n",
		acct.DailyWithdrawalLimit.StringFixed(2), acct.DailyWithdrawn.StringFixed(2), acct.LastWithdrawalDate)
	fmt.Printf("Referral code: %s (%d referrals)\n", acct.ReferralCode, len(acct.Referrals))
	if acct.BankAccount != nil {
		fmt.Printf("Bank:          %s %s (%s)\n", acct.BankAccount.BankName,
			common.Mask(acct.BankAccount.AccountNumber), acct.BankAccount.AccountName)
	} else {
		fmt.Println("Bank:          not linked")
	}
	for _, asset := range models.AllAssets {
		fmt.Printf("%-5s          %s\n", asset, common.FormatAmount(acct.Balance(asset), catalog[asset].Decimals))
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	ctx := context.Background()

	userFlag := flag.String("user", "", "Chat user id (required)")
	createFlag := flag.Bool("create", false, "Open the account if it does not exist")
	kycFlag := flag.String("kyc", "", "Set KYC status: true or false")
	limitFlag := flag.String("limit", "", "Set the daily withdrawal limit in naira")
	unlinkFlag := flag.Bool("unlink-bank", false, "Remove the linked bank account")
	bonusFlag := flag.String("bonus", "", "Credit a naira bonus")
	flag.Parse()

	if err := validateUserId(*userFlag); err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.App.LogLevel)
	defer loggerCleanup()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	catalog, err := common.LoadAssetCatalog(cfg.App.AssetsFile)
	if err != nil {
		logger.Fatal("Failed to load assets", zap.Error(err))
	}

	l := services.Ledger
	userId := *userFlag

	if *createFlag {
		chatId, _ := strconv.ParseInt(userId, 10, 64)
		_, created, err := l.OpenAccount(ctx, ledger.OpenParams{UserId: userId, ChatId: chatId})
		if err != nil {
			logger.Fatal("Failed to open account", zap.Error(err))
		}
		if created {
			fmt.Printf("✓ Account %s opened\n", userId)
		}
	}

	if *kycFlag != "" {
		verified, err := strconv.ParseBool(*kycFlag)
		if err != nil {
			logger.Fatal("Invalid -kyc value", zap.String("value", *kycFlag))
		}
		if _, err := l.SetKYC(ctx, userId, verified); err != nil {
			logger.Fatal("Failed to update KYC", zap.Error(err))
		}
		fmt.Printf("✓ KYC set to %t\n", verified)
	}

	if *limitFlag != "" {
		limit, err := parseLimit(*limitFlag)
		if err != nil {
			logger.Fatal("Invalid -limit value", zap.Error(err))
		}
		if _, err := l.SetDailyLimit(ctx, userId, limit); err != nil {
			logger.Fatal("Failed to update daily limit", zap.Error(err))
		}
		fmt.Printf("✓ Daily limit set to ₦%s\n", limit.StringFixed(2))
	}

	if *unlinkFlag {
		if _, err := l.RemoveBankAccount(ctx, userId); err != nil {
			logger.Fatal("Failed to unlink bank account", zap.Error(err))
		}
		fmt.Println("✓ Bank account unlinked")
	}

	if *bonusFlag != "" {
		amount, err := parseLimit(*bonusFlag)
		if err != nil {
			logger.Fatal("Invalid -bonus value", zap.Error(err))
		}
		_, tx, err := l.Credit(ctx, userId, models.AssetNGN, amount, ledger.Entry{
			Kind:      models.KindBonus,
			Reference: "ADMIN-" + uuid.NewString()[:8],
		})
		if err != nil {
			logger.Fatal("Failed to credit bonus", zap.Error(err))
		}
		fmt.Printf("✓ Credited ₦%s (%s)\n", amount.StringFixed(2), tx.Reference)
	}

	acct, err := l.Account(ctx, userId)
	if err != nil {
		logger.Fatal("Account not found", zap.String("user_id", userId), zap.Error(err))
	}
	printAccount(acct, catalog)
}
