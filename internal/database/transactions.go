package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UpdateAccount loads the account inside a SQL transaction, applies fn to it,
// validates the result and writes back the row (optimistic version check),
// changed balances, new addresses, new referrals and new transactions with
// their journal entries. Nothing is written when fn fails.
func (s *Service) UpdateAccount(ctx context.Context, userId string, fn store.MutateFunc) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	before, err := s.loadAccount(ctx, tx, queryGetAccount, userId)
	if err != nil {
		return nil, err
	}

	after := before.Clone()
	if err := fn(after); err != nil {
		return nil, err
	}
	if after.UserId != userId {
		return nil, fmt.Errorf("%w: user id changed", store.ErrInvariantViolation)
	}
	if err := store.CheckMutation(before, after); err != nil {
		return nil, err
	}

	bank := after.BankAccount
	if bank == nil {
		bank = &models.BankAccount{}
	}
	result, err := tx.ExecContext(ctx, queryUpdateAccount,
		after.ChatId, after.ReferredBy, after.TotalDeposited.String(), after.TotalWithdrawn.String(),
		after.DailyWithdrawn.String(), after.LastWithdrawalDate, after.DailyWithdrawalLimit.String(),
		after.KYCVerified, after.ReferralRewards.String(), bank.BankCode, bank.BankName,
		bank.AccountNumber, bank.AccountName, bank.Verified, nullTime(bank.AddedAt),
		userId, before.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("account update failed - %w", store.ErrConcurrentModification)
	}

	if err := s.writeChildren(ctx, tx, before, after); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	after.Version = before.Version + 1
	return after, nil
}

// writeChildren persists everything in after that is new relative to before.
func (s *Service) writeChildren(ctx context.Context, tx *sql.Tx, before, after *models.Account) error {
	if err := storeNewAddresses(ctx, tx, before, after); err != nil {
		return err
	}

	if len(after.Referrals) < len(before.Referrals) {
		return fmt.Errorf("%w: referrals removed", store.ErrInvariantViolation)
	}
	for _, ref := range after.Referrals[len(before.Referrals):] {
		if _, err := tx.ExecContext(ctx, queryInsertReferral, after.UserId, ref.UserId, ref.Bonus.String(), ref.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert referral: %w", err)
		}
	}

	lastTxId, err := s.subledger.writeTransactions(ctx, tx, before, after)
	if err != nil {
		return err
	}
	return s.subledger.writeBalances(ctx, tx, before, after, lastTxId)
}

// writeTransactions refines the status of existing entries and appends new
// ones. It returns the id of the newest entry.
func (s *SubledgerService) writeTransactions(ctx context.Context, tx *sql.Tx, before, after *models.Account) (string, error) {
	for i := range before.Transactions {
		prev, next := before.Transactions[i], after.Transactions[i]
		if prev.Status == next.Status && prev.ExternalId == next.ExternalId {
			continue
		}
		if _, err := tx.ExecContext(ctx, queryRefineTransaction, next.Status, next.ExternalId, next.Id, after.UserId); err != nil {
			return "", fmt.Errorf("failed to refine transaction %s: %w", next.Id, err)
		}
	}

	lastTxId := ""
	for i := len(before.Transactions); i < len(after.Transactions); i++ {
		t := after.Transactions[i]
		if t.Id == "" {
			t.Id = uuid.New().String()
			after.Transactions[i].Id = t.Id
		}
		_, err := tx.ExecContext(ctx, queryInsertTransaction,
			t.Id, after.UserId, i, t.Kind, string(t.Asset), t.Amount.String(),
			string(t.CounterAsset), t.CounterAmount.String(), t.Fee.String(), t.Rate.String(),
			t.ExternalId, t.Reference, t.Address, t.Network, t.Status, t.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return "", fmt.Errorf("%w: transaction %s", store.ErrDuplicateTransaction, t.Id)
			}
			return "", fmt.Errorf("failed to insert transaction: %w", err)
		}
		if err := s.addJournalEntries(ctx, tx, after.UserId, t); err != nil {
			return "", fmt.Errorf("failed to add journal entries: %w", err)
		}
		lastTxId = t.Id

		zap.L().Info("Transaction recorded",
			zap.String("transaction_id", t.Id),
			zap.String("user_id", after.UserId),
			zap.String("kind", t.Kind),
			zap.String("asset", string(t.Asset)),
			zap.String("amount", t.Amount.String()))
	}
	return lastTxId, nil
}

// addJournalEntries creates double-entry bookkeeping entries. A positive delta
// debits the user's asset account and credits the system liability for that
// asset; a negative delta does the reverse.
func (s *SubledgerService) addJournalEntries(ctx context.Context, tx *sql.Tx, userId string, t models.Transaction) error {
	type entry struct {
		accountType  string
		accountId    string
		debitAmount  decimal.Decimal
		creditAmount decimal.Decimal
	}

	var entries []entry
	for _, asset := range models.AllAssets {
		delta, ok := t.BalanceDeltas()[asset]
		if !ok || delta.IsZero() {
			continue
		}
		userAccount := fmt.Sprintf("%s_%s", userId, asset)
		liability := fmt.Sprintf("user_deposits_%s", asset)
		if delta.IsPositive() {
			entries = append(entries,
				entry{"user_asset", userAccount, delta, decimal.Zero},
				entry{"system_liability", liability, decimal.Zero, delta})
		} else {
			entries = append(entries,
				entry{"user_asset", userAccount, decimal.Zero, delta.Neg()},
				entry{"system_liability", liability, delta.Neg(), decimal.Zero})
		}
	}

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), t.Id, e.accountType, e.accountId, e.debitAmount.String(), e.creditAmount.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SubledgerService) loadTransactions(ctx context.Context, q querier, acct *models.Account) error {
	rows, err := q.QueryContext(ctx, queryGetTransactions, acct.UserId)
	if err != nil {
		return fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Transaction
		var asset, counterAsset, amount, counterAmount, fee, rate string
		err := rows.Scan(&t.Id, &t.Kind, &asset, &amount, &counterAsset, &counterAmount, &fee, &rate,
			&t.ExternalId, &t.Reference, &t.Address, &t.Network, &t.Status, &t.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Asset = models.Asset(asset)
		t.CounterAsset = models.Asset(counterAsset)
		for dst, raw := range map[*decimal.Decimal]string{
			&t.Amount:        amount,
			&t.CounterAmount: counterAmount,
			&t.Fee:           fee,
			&t.Rate:          rate,
		} {
			if *dst, err = decimal.NewFromString(raw); err != nil {
				return fmt.Errorf("failed to parse amount '%s': %w", raw, err)
			}
		}
		acct.Transactions = append(acct.Transactions, t)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
