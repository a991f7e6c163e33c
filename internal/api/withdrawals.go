package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PendingTransfer is a committed bank withdrawal whose payout the provider
// has not yet reported as final.
type PendingTransfer struct {
	UserId     string
	ChatId     int64
	EntryId    string
	TransferId string
	Reference  string
	Status     string
}

// finalStatuses are provider statuses after which a payout never changes.
var finalStatuses = map[string]bool{
	"SUCCESSFUL": true,
	"FAILED":     true,
	"CANCELLED":  true,
}

func IsFinalTransferStatus(status string) bool {
	return finalStatuses[strings.ToUpper(status)]
}

// PendingTransfers scans every account for withdrawals still in flight at the
// payment provider.
func (s *LedgerService) PendingTransfers(ctx context.Context) ([]PendingTransfer, error) {
	accounts, err := s.ledger.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	var out []PendingTransfer
	for _, acct := range accounts {
		for _, tx := range acct.Transactions {
			if tx.Kind != models.KindWithdrawal || tx.ExternalId == "" {
				continue
			}
			if tx.Status == models.StatusFailed || IsFinalTransferStatus(tx.Status) {
				continue
			}
			out = append(out, PendingTransfer{
				UserId:     acct.UserId,
				ChatId:     acct.ChatId,
				EntryId:    tx.Id,
				TransferId: tx.ExternalId,
				Reference:  tx.Reference,
				Status:     tx.Status,
			})
		}
	}
	return out, nil
}

// RefreshTransfer asks the provider for the payout status and records it on
// the withdrawal entry.
func (s *LedgerService) RefreshTransfer(ctx context.Context, userId, transferId string) (*models.TransferStatus, error) {
	if userId == "" || transferId == "" {
		return nil, fmt.Errorf("user_id and transfer_id are required")
	}

	status, err := s.gateway.CheckStatus(ctx, transferId)
	if err != nil {
		return nil, fmt.Errorf("failed to check transfer %s: %w", transferId, err)
	}
	if status.Status == "" {
		return status, nil
	}

	if _, err := s.ledger.RefreshTransferStatus(ctx, userId, transferId, status.Status); err != nil {
		if errors.Is(err, ledger.ErrUnknownTransaction) {
			return status, fmt.Errorf("transfer %s is not recorded for user %s: %w", transferId, userId, err)
		}
		return status, fmt.Errorf("failed to record transfer status: %w", err)
	}

	if strings.EqualFold(status.Status, "FAILED") {
		// The debit stays; refunds after acceptance are manual.
		zap.L().Warn("Provider reported a failed payout after acceptance",
			zap.String("user_id", userId),
			zap.String("transfer_id", transferId),
			zap.String("reference", status.Reference),
			zap.String("message", status.Message))
	} else {
		zap.L().Info("Transfer status refreshed",
			zap.String("user_id", userId),
			zap.String("transfer_id", transferId),
			zap.String("status", status.Status))
	}
	return status, nil
}

// ReversedWithdrawal is a stale reservation the sweep refunded.
type ReversedWithdrawal struct {
	UserId    string
	ChatId    int64
	Reference string
	Amount    decimal.Decimal
	Balance   decimal.Decimal
}

// SweepStaleWithdrawals settles reservations left behind by a failed
// settlement: parked ones are retried first, then every withdrawal still
// pending without a transfer id after olderThan is compensated.
func (s *LedgerService) SweepStaleWithdrawals(ctx context.Context, olderThan time.Duration) ([]ReversedWithdrawal, error) {
	if s.engine != nil {
		if n := s.engine.RetrySettlements(ctx); n > 0 {
			zap.L().Info("Parked settlements completed", zap.Int("count", n))
		}
	}

	stale, err := s.ledger.StaleReservations(ctx, olderThan)
	if err != nil {
		return nil, err
	}

	var reversed []ReversedWithdrawal
	for _, res := range stale {
		if s.engine != nil && s.engine.Parked(res.TransactionId) {
			continue
		}
		acct, err := s.ledger.Compensate(ctx, res, "stale reservation")
		if err != nil {
			zap.L().Error("Failed to compensate stale withdrawal",
				zap.String("user_id", res.UserId),
				zap.String("reference", res.Reference),
				zap.Error(err))
			continue
		}
		reversed = append(reversed, ReversedWithdrawal{
			UserId:    res.UserId,
			ChatId:    acct.ChatId,
			Reference: res.Reference,
			Amount:    res.Amount,
			Balance:   acct.Balance(models.AssetNGN),
		})
	}
	return reversed, nil
}
