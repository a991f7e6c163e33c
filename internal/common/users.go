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

package common

import (
	"context"
	"fmt"
	"sort"

	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"go.uber.org/zap"
)

// LookupAccounts returns one account when userFilter is set and every
// account otherwise, ordered by user id.
func LookupAccounts(ctx context.Context, st store.AccountStore, userFilter string, logger *zap.Logger) ([]*models.Account, error) {
	if userFilter != "" {
		logger.Info("Looking up account", zap.String("user_id", userFilter))
		acct, err := st.GetAccount(ctx, userFilter)
		if err != nil {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		return []*models.Account{acct}, nil
	}

	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].UserId < accounts[j].UserId })

	logger.Info("Retrieved accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}
