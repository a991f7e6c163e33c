package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) loadAddresses(ctx context.Context, q querier, acct *models.Account) error {
	rows, err := q.QueryContext(ctx, queryGetAllUserAddresses, acct.UserId)
	if err != nil {
		return fmt.Errorf("failed to get addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var asset, address string
		if err := rows.Scan(&asset, &address); err != nil {
			return fmt.Errorf("failed to scan address: %w", err)
		}
		acct.DepositAddresses[models.Asset(asset)] = address
	}
	return rows.Err()
}

// storeNewAddresses inserts addresses present in after but not in before.
func storeNewAddresses(ctx context.Context, tx *sql.Tx, before, after *models.Account) error {
	for asset, address := range after.DepositAddresses {
		if address == "" || before.DepositAddresses[asset] != "" {
			continue
		}
		_, err := tx.ExecContext(ctx, queryInsertAddress,
			uuid.New().String(), after.UserId, string(asset), asset.Network(), address, time.Now())
		if err != nil {
			return fmt.Errorf("failed to store %s address: %w", asset, err)
		}
		zap.L().Debug("Stored deposit address",
			zap.String("user_id", after.UserId),
			zap.String("asset", string(asset)),
			zap.String("address", address))
	}
	return nil
}

// FindUserByAddress resolves a persisted deposit address to its owner.
func (s *Service) FindUserByAddress(ctx context.Context, address string) (string, models.Asset, error) {
	var userId, asset string
	err := s.db.QueryRowContext(ctx, queryFindUserByAddress, address).Scan(&userId, &asset)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("%w: no account owns address %s", store.ErrAccountNotFound, address)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to find user by address: %w", err)
	}
	return userId, models.Asset(asset), nil
}
