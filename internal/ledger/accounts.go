package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	referralPrefix   = "AERO"
	referralAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralLength   = 6
	referralAttempts = 8
)

// Starter balances credited when demo seeding is enabled.
var demoBalances = []struct {
	asset  models.Asset
	amount decimal.Decimal
}{
	{models.AssetNGN, decimal.NewFromInt(10000)},
	{models.AssetBTC, decimal.RequireFromString("0.01")},
	{models.AssetETH, decimal.RequireFromString("0.1")},
	{models.AssetSOL, decimal.NewFromInt(1)},
	{models.AssetUSDT, decimal.NewFromInt(10)},
}

type OpenParams struct {
	UserId       string
	ChatId       int64
	ReferralCode string
}

// OpenAccount returns the user's account, creating it on first contact with
// deposit addresses, a referral code and any welcome credits. The bool is true
// when the account was created by this call.
func (l *Ledger) OpenAccount(ctx context.Context, p OpenParams) (*models.Account, bool, error) {
	existing, err := l.store.GetAccount(ctx, p.UserId)
	if err == nil {
		if p.ChatId != 0 && existing.ChatId != p.ChatId {
			return l.updateChat(ctx, p.UserId, p.ChatId)
		}
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, false, err
	}

	addresses, err := l.deriver.DeriveAll(p.UserId)
	if err != nil {
		return nil, false, fmt.Errorf("failed to derive deposit addresses: %w", err)
	}
	code, err := l.uniqueReferralCode(ctx)
	if err != nil {
		return nil, false, err
	}

	now := l.now()
	acct := &models.Account{
		UserId:               p.UserId,
		ChatId:               p.ChatId,
		Balances:             make(map[models.Asset]decimal.Decimal, len(models.AllAssets)),
		DepositAddresses:     addresses,
		DailyWithdrawalLimit: l.opts.DailyWithdrawalLimit,
		ReferralCode:         code,
		CreatedAt:            now,
	}
	for _, asset := range models.AllAssets {
		acct.Balances[asset] = decimal.Zero
	}

	if l.opts.SeedDemoBalances {
		for _, b := range demoBalances {
			tx := l.newTransaction(b.asset, b.amount, Entry{Kind: models.KindBonus, Reference: "starter"})
			if err := applyEntry(acct, tx); err != nil {
				return nil, false, err
			}
		}
	}

	referrer := l.lookupReferrer(ctx, p.UserId, p.ReferralCode)
	if referrer != nil {
		acct.ReferredBy = referrer.UserId
		if l.opts.ReferredBonus.IsPositive() {
			tx := l.newTransaction(models.AssetNGN, l.opts.ReferredBonus, Entry{
				Kind:      models.KindBonus,
				Reference: "referral:" + referrer.ReferralCode,
			})
			if err := applyEntry(acct, tx); err != nil {
				return nil, false, err
			}
		}
	}

	if err := l.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			// Lost a creation race; the winner's record stands.
			winner, getErr := l.store.GetAccount(ctx, p.UserId)
			return winner, false, getErr
		}
		return nil, false, err
	}
	l.publish(ctx, acct.UserId, acct.Transactions)

	zap.L().Info("Opened account",
		zap.String("user_id", acct.UserId),
		zap.String("referral_code", acct.ReferralCode),
		zap.String("referred_by", acct.ReferredBy),
		zap.Int("welcome_entries", len(acct.Transactions)))

	if referrer != nil {
		if err := l.rewardReferrer(ctx, referrer.UserId, acct.UserId); err != nil {
			zap.L().Error("Failed to credit referrer",
				zap.String("referrer", referrer.UserId),
				zap.String("user_id", acct.UserId),
				zap.Error(err))
		}
	}

	return acct, true, nil
}

func (l *Ledger) updateChat(ctx context.Context, userId string, chatId int64) (*models.Account, bool, error) {
	acct, err := l.store.UpdateAccount(ctx, userId, func(a *models.Account) error {
		a.ChatId = chatId
		return nil
	})
	return acct, false, err
}

func (l *Ledger) lookupReferrer(ctx context.Context, userId, code string) *models.Account {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	referrer, err := l.store.FindAccountByReferralCode(ctx, code)
	if err != nil {
		if !errors.Is(err, store.ErrAccountNotFound) {
			zap.L().Warn("Referral lookup failed", zap.String("code", code), zap.Error(err))
		}
		return nil
	}
	if referrer.UserId == userId {
		return nil
	}
	return referrer
}

func (l *Ledger) rewardReferrer(ctx context.Context, referrerId, newUserId string) error {
	bonus := l.opts.ReferrerBonus
	_, _, err := l.mutate(ctx, referrerId, func(a *models.Account) ([]models.Transaction, error) {
		for _, r := range a.Referrals {
			if r.UserId == newUserId {
				return nil, nil
			}
		}
		a.Referrals = append(a.Referrals, models.Referral{
			UserId:    newUserId,
			Bonus:     bonus,
			CreatedAt: l.now(),
		})
		if !bonus.IsPositive() {
			return nil, nil
		}
		tx := l.newTransaction(models.AssetNGN, bonus, Entry{
			Kind:      models.KindBonus,
			Reference: "referral:" + newUserId,
		})
		if err := applyEntry(a, tx); err != nil {
			return nil, err
		}
		a.ReferralRewards = a.ReferralRewards.Add(bonus)
		return []models.Transaction{tx}, nil
	})
	return err
}

func (l *Ledger) uniqueReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < referralAttempts; i++ {
		code, err := newReferralCode()
		if err != nil {
			return "", err
		}
		_, err = l.store.FindAccountByReferralCode(ctx, code)
		if errors.Is(err, store.ErrAccountNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("failed to allocate a unique referral code")
}

func newReferralCode() (string, error) {
	var sb strings.Builder
	sb.WriteString(referralPrefix)
	alphabetSize := big.NewInt(int64(len(referralAlphabet)))
	for i := 0; i < referralLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}
		sb.WriteByte(referralAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// SetBankAccount links a verified payout account, replacing any previous one.
func (l *Ledger) SetBankAccount(ctx context.Context, userId string, bank models.BankAccount) (*models.Account, error) {
	if bank.AddedAt.IsZero() {
		bank.AddedAt = l.now()
	}
	bank.Verified = true
	return l.store.UpdateAccount(ctx, userId, func(a *models.Account) error {
		a.BankAccount = &bank
		return nil
	})
}

func (l *Ledger) RemoveBankAccount(ctx context.Context, userId string) (*models.Account, error) {
	return l.store.UpdateAccount(ctx, userId, func(a *models.Account) error {
		a.BankAccount = nil
		return nil
	})
}

func (l *Ledger) SetKYC(ctx context.Context, userId string, verified bool) (*models.Account, error) {
	return l.store.UpdateAccount(ctx, userId, func(a *models.Account) error {
		a.KYCVerified = verified
		return nil
	})
}

// SetDailyLimit overrides the account's daily fiat withdrawal limit. A zero
// limit falls back to the configured default.
func (l *Ledger) SetDailyLimit(ctx context.Context, userId string, limit decimal.Decimal) (*models.Account, error) {
	if limit.IsNegative() {
		return nil, ErrInvalidAmount
	}
	return l.store.UpdateAccount(ctx, userId, func(a *models.Account) error {
		a.DailyWithdrawalLimit = limit
		return nil
	})
}
