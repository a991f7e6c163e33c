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
	"fmt"

	"naira-wallet-bot-go/internal/models"

	"go.uber.org/zap"
)

// Stats aggregates every account for the admin endpoint.
func (s *LedgerService) Stats(ctx context.Context) (*models.StatsResponse, error) {
	sum, err := s.ledger.Summary(ctx)
	if err != nil {
		zap.L().Error("Failed to build ledger summary", zap.Error(err))
		return nil, fmt.Errorf("failed to build ledger summary: %w", err)
	}

	balances := make(map[string]string, len(sum.Balances))
	for asset, bal := range sum.Balances {
		balances[string(asset)] = bal.String()
	}

	return &models.StatsResponse{
		TotalUsers:        sum.TotalUsers,
		TotalDeposited:    sum.TotalDeposited.StringFixed(2),
		TotalWithdrawn:    sum.TotalWithdrawn.StringFixed(2),
		TotalTransactions: sum.TotalTransactions,
		LinkedBanks:       sum.LinkedBanks,
		KYCVerified:       sum.KYCVerified,
		Balances:          balances,
		RatesFallback:     s.rates.GetRates(ctx).Fallback,
	}, nil
}

// AccountBalances returns the non-zero balances of one account, in display
// order.
func (s *LedgerService) AccountBalances(ctx context.Context, userId string) ([]models.AssetBalance, error) {
	if userId == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	acct, err := s.ledger.Account(ctx, userId)
	if err != nil {
		return nil, err
	}

	var out []models.AssetBalance
	for _, asset := range models.AllAssets {
		if bal := acct.Balance(asset); !bal.IsZero() {
			out = append(out, models.AssetBalance{Asset: asset, Balance: bal})
		}
	}
	return out, nil
}
