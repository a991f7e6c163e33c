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

package api

import (
	"context"
	"errors"

	"naira-wallet-bot-go/internal/engine"
	"naira-wallet-bot-go/internal/models"

	"go.uber.org/zap"
)

// ProcessDeposit credits an inbound transfer reported by the deposit webhook.
// The effects are the user notification, for the caller to deliver.
func (s *LedgerService) ProcessDeposit(ctx context.Context, req models.DepositWebhookRequest) (*models.DepositResult, []engine.Effect, error) {
	zap.L().Info("Processing deposit notification",
		zap.String("address", req.Address),
		zap.String("currency", req.Currency),
		zap.String("amount", req.Amount),
		zap.String("tx_hash", req.TxHash))

	result, effects, err := s.engine.CreditDeposit(ctx, engine.DepositNotification{
		Address:  req.Address,
		Amount:   req.Amount,
		Currency: req.Currency,
		TxHash:   req.TxHash,
		Network:  req.Network,
	})
	switch {
	case err == nil && result.Duplicate:
		zap.L().Info("Duplicate deposit notification",
			zap.String("tx_hash", req.TxHash),
			zap.String("user_id", result.UserId))
	case err == nil:
		zap.L().Info("Deposit processed successfully",
			zap.String("user_id", result.UserId),
			zap.String("asset", string(result.Asset)),
			zap.String("amount", result.Amount.String()),
			zap.String("new_balance", result.NewBalance.String()))
	case errors.Is(err, engine.ErrValidation), errors.Is(err, engine.ErrAddressResolution):
		// already logged by the engine
	default:
		zap.L().Error("Deposit processing failed",
			zap.String("address", req.Address),
			zap.String("tx_hash", req.TxHash),
			zap.Error(err))
	}
	return result, effects, err
}
