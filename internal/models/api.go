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

package models

import (
	"github.com/shopspring/decimal"
)

// DepositWebhookRequest is the body of POST /crypto-webhook. The sender is untrusted.
type DepositWebhookRequest struct {
	Address  string `json:"address" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency"`
	TxHash   string `json:"txHash" binding:"required"`
	Network  string `json:"network"`
}

// DepositResult represents the result of processing a deposit
type DepositResult struct {
	Success    bool            `json:"success"`
	UserId     string          `json:"user_id,omitempty"`
	Asset      Asset           `json:"asset,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	NewBalance decimal.Decimal `json:"new_balance,omitempty"`
	Duplicate  bool            `json:"duplicate,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// StatsResponse is the admin aggregate returned by GET /stats.
type StatsResponse struct {
	TotalUsers        int               `json:"totalUsers"`
	TotalDeposited    string            `json:"totalDeposited"`
	TotalWithdrawn    string            `json:"totalWithdrawn"`
	TotalTransactions int               `json:"totalTransactions"`
	LinkedBanks       int               `json:"linkedBanks"`
	KYCVerified       int               `json:"kycVerified"`
	Balances          map[string]string `json:"balances"`
	RatesFallback     bool              `json:"ratesFallback"`
}

// AssetBalance is one non-zero balance line of an account.
type AssetBalance struct {
	Asset   Asset           `json:"asset"`
	Balance decimal.Decimal `json:"balance"`
}
