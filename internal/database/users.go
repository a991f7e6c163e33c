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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) GetAccount(ctx context.Context, userId string) (*models.Account, error) {
	return s.loadAccount(ctx, s.db, queryGetAccount, userId)
}

func (s *Service) FindAccountByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	return s.loadAccount(ctx, s.db, queryGetAccountByReferralCode, code)
}

func (s *Service) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx, queryListAccountIds)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	rows.Close()

	accounts := make([]*models.Account, 0, len(ids))
	for _, id := range ids {
		acct, err := s.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}

	zap.L().Debug("Listed accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}

func (s *Service) CreateAccount(ctx context.Context, acct *models.Account) error {
	if err := store.CheckMutation(&models.Account{}, acct); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	bank := acct.BankAccount
	if bank == nil {
		bank = &models.BankAccount{}
	}
	_, err = tx.ExecContext(ctx, queryInsertAccount,
		acct.UserId, acct.ChatId, acct.ReferralCode, acct.ReferredBy,
		acct.TotalDeposited.String(), acct.TotalWithdrawn.String(), acct.DailyWithdrawn.String(),
		acct.LastWithdrawalDate, acct.DailyWithdrawalLimit.String(), acct.KYCVerified,
		acct.ReferralRewards.String(), bank.BankCode, bank.BankName, bank.AccountNumber,
		bank.AccountName, bank.Verified, nullTime(bank.AddedAt), acct.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrAccountExists, acct.UserId)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	empty := &models.Account{UserId: acct.UserId}
	if err := s.writeChildren(ctx, tx, empty, acct); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	acct.Version = 1

	zap.L().Info("Account created",
		zap.String("user_id", acct.UserId),
		zap.String("referral_code", acct.ReferralCode))
	return nil
}

// loadAccount reads the account row and every child table through q, which
// may be the pool or an open transaction.
func (s *Service) loadAccount(ctx context.Context, q querier, query, key string) (*models.Account, error) {
	acct := &models.Account{
		Balances:         make(map[models.Asset]decimal.Decimal),
		DepositAddresses: make(map[models.Asset]string),
	}
	var (
		totalDeposited, totalWithdrawn, dailyWithdrawn, dailyLimit, rewards string
		bank                                                                models.BankAccount
		bankAddedAt                                                         sql.NullTime
	)
	err := q.QueryRowContext(ctx, query, key).Scan(
		&acct.UserId, &acct.ChatId, &acct.ReferralCode, &acct.ReferredBy,
		&totalDeposited, &totalWithdrawn, &dailyWithdrawn, &acct.LastWithdrawalDate,
		&dailyLimit, &acct.KYCVerified, &rewards,
		&bank.BankCode, &bank.BankName, &bank.AccountNumber, &bank.AccountName, &bank.Verified, &bankAddedAt,
		&acct.Version, &acct.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	for dst, raw := range map[*decimal.Decimal]string{
		&acct.TotalDeposited:       totalDeposited,
		&acct.TotalWithdrawn:       totalWithdrawn,
		&acct.DailyWithdrawn:       dailyWithdrawn,
		&acct.DailyWithdrawalLimit: dailyLimit,
		&acct.ReferralRewards:      rewards,
	} {
		if *dst, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("failed to parse stored amount '%s': %w", raw, err)
		}
	}

	if bank.AccountNumber != "" {
		if bankAddedAt.Valid {
			bank.AddedAt = bankAddedAt.Time
		}
		acct.BankAccount = &bank
	}

	if err := s.subledger.loadBalances(ctx, q, acct); err != nil {
		return nil, err
	}
	if err := s.loadAddresses(ctx, q, acct); err != nil {
		return nil, err
	}
	if err := s.loadReferrals(ctx, q, acct); err != nil {
		return nil, err
	}
	if err := s.subledger.loadTransactions(ctx, q, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *Service) loadReferrals(ctx context.Context, q querier, acct *models.Account) error {
	rows, err := q.QueryContext(ctx, queryGetReferrals, acct.UserId)
	if err != nil {
		return fmt.Errorf("failed to get referrals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref models.Referral
		var bonus string
		if err := rows.Scan(&ref.UserId, &bonus, &ref.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan referral: %w", err)
		}
		if ref.Bonus, err = decimal.NewFromString(bonus); err != nil {
			return fmt.Errorf("failed to parse referral bonus '%s': %w", bonus, err)
		}
		acct.Referrals = append(acct.Referrals, ref)
	}
	return rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
