package database

import (
	"context"
	"database/sql"
	"fmt"

	"naira-wallet-bot-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *SubledgerService) loadBalances(ctx context.Context, q querier, acct *models.Account) error {
	rows, err := q.QueryContext(ctx, queryGetAllUserBalances, acct.UserId)
	if err != nil {
		zap.L().Error("Failed to get all balances", zap.String("user_id", acct.UserId), zap.Error(err))
		return fmt.Errorf("failed to get all balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var asset, balanceStr string
		var version int64
		if err := rows.Scan(&asset, &balanceStr, &version); err != nil {
			return fmt.Errorf("failed to scan balance: %w", err)
		}
		balance, err := decimal.NewFromString(balanceStr)
		if err != nil {
			return fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
		}
		acct.Balances[models.Asset(asset)] = balance
	}
	return rows.Err()
}

// writeBalances upserts every bucket whose value changed.
func (s *SubledgerService) writeBalances(ctx context.Context, tx *sql.Tx, before, after *models.Account, lastTxId string) error {
	for asset, bal := range after.Balances {
		if prev, ok := before.Balances[asset]; ok && prev.Equal(bal) {
			continue
		}
		_, err := tx.ExecContext(ctx, queryUpsertAccountBalance,
			uuid.New().String(), after.UserId, string(asset), bal.String(), lastTxId)
		if err != nil {
			return fmt.Errorf("failed to update %s balance: %w", asset, err)
		}
	}
	return nil
}

// ReconcileBalance verifies that every stored balance equals the sum of the
// signed deltas in the user's transaction log.
func (s *SubledgerService) ReconcileBalance(ctx context.Context, userId string) error {
	zap.L().Info("Reconciling balances", zap.String("user_id", userId))

	rows, err := s.db.QueryContext(ctx, queryReconcileTransactions, userId)
	if err != nil {
		return fmt.Errorf("failed to read transactions: %w", err)
	}
	calculated := make(map[models.Asset]decimal.Decimal)
	for rows.Next() {
		var tx models.Transaction
		var kind, asset, amount, counterAsset, counterAmount string
		if err := rows.Scan(&kind, &asset, &amount, &counterAsset, &counterAmount); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Kind = kind
		tx.Asset = models.Asset(asset)
		tx.CounterAsset = models.Asset(counterAsset)
		tx.Amount, _ = decimal.NewFromString(amount)
		tx.CounterAmount, _ = decimal.NewFromString(counterAmount)
		for a, d := range tx.BalanceDeltas() {
			calculated[a] = calculated[a].Add(d)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating transaction rows: %w", err)
	}
	rows.Close()

	current := &models.Account{UserId: userId, Balances: make(map[models.Asset]decimal.Decimal)}
	if err := s.loadBalances(ctx, s.db, current); err != nil {
		return err
	}

	for _, asset := range models.AllAssets {
		if !current.Balance(asset).Equal(calculated[asset]) {
			zap.L().Error("Balance reconciliation failed",
				zap.String("user_id", userId),
				zap.String("asset", string(asset)),
				zap.String("current_balance", current.Balance(asset).String()),
				zap.String("calculated_balance", calculated[asset].String()))
			return fmt.Errorf("balance mismatch for %s: current=%s, calculated=%s",
				asset, current.Balance(asset).String(), calculated[asset].String())
		}
	}

	zap.L().Info("Balance reconciliation successful", zap.String("user_id", userId))
	return nil
}

// ReconcileUserBalances is the Service-level entry point used by the balances report.
func (s *Service) ReconcileUserBalances(ctx context.Context, userId string) error {
	return s.subledger.ReconcileBalance(ctx, userId)
}
