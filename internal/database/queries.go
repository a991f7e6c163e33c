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

const (
	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (
			user_id, chat_id, referral_code, referred_by, total_deposited, total_withdrawn,
			daily_withdrawn, last_withdrawal_date, daily_limit, kyc_verified, referral_rewards,
			bank_code, bank_name, account_number, account_name, bank_verified, bank_added_at,
			version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`

	queryAccountColumns = `
		SELECT user_id, chat_id, referral_code, referred_by, total_deposited, total_withdrawn,
		       daily_withdrawn, last_withdrawal_date, daily_limit, kyc_verified, referral_rewards,
		       bank_code, bank_name, account_number, account_name, bank_verified, bank_added_at,
		       version, created_at
		FROM accounts`

	queryGetAccount = queryAccountColumns + `
		WHERE user_id = ?`

	queryGetAccountByReferralCode = queryAccountColumns + `
		WHERE referral_code = ?`

	queryListAccountIds = `
		SELECT user_id FROM accounts ORDER BY created_at, user_id`

	queryUpdateAccount = `
		UPDATE accounts
		SET chat_id = ?, referred_by = ?, total_deposited = ?, total_withdrawn = ?,
		    daily_withdrawn = ?, last_withdrawal_date = ?, daily_limit = ?, kyc_verified = ?,
		    referral_rewards = ?, bank_code = ?, bank_name = ?, account_number = ?,
		    account_name = ?, bank_verified = ?, bank_added_at = ?,
		    version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND version = ?`

	// Referral queries
	queryInsertReferral = `
		INSERT INTO referrals (user_id, referred_user_id, bonus, created_at) VALUES (?, ?, ?, ?)`

	queryGetReferrals = `
		SELECT referred_user_id, bonus, created_at
		FROM referrals
		WHERE user_id = ?
		ORDER BY created_at, referred_user_id`

	// Address queries
	queryInsertAddress = `
		INSERT INTO addresses (id, user_id, asset, network, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetAllUserAddresses = `
		SELECT asset, address
		FROM addresses
		WHERE user_id = ?
		ORDER BY asset`

	queryFindUserByAddress = `
		SELECT user_id, asset
		FROM addresses
		WHERE LOWER(address) = LOWER(?)`

	// Balance queries
	queryGetAllUserBalances = `
		SELECT asset, balance, version
		FROM account_balances
		WHERE user_id = ?
		ORDER BY asset`

	queryUpsertAccountBalance = `
		INSERT INTO account_balances (id, user_id, asset, balance, last_transaction_id, version)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(user_id, asset) DO UPDATE
		SET balance = excluded.balance,
		    last_transaction_id = excluded.last_transaction_id,
		    version = account_balances.version + 1,
		    updated_at = CURRENT_TIMESTAMP`

	queryReconcileTransactions = `
		SELECT kind, asset, amount, counter_asset, counter_amount
		FROM transactions
		WHERE user_id = ?`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO transactions (
			id, user_id, seq, kind, asset, amount, counter_asset, counter_amount, fee, rate,
			external_transaction_id, reference, address, network, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryRefineTransaction = `
		UPDATE transactions
		SET status = ?, external_transaction_id = ?
		WHERE id = ? AND user_id = ?`

	queryGetTransactions = `
		SELECT id, kind, asset, amount, counter_asset, counter_amount, fee, rate,
		       external_transaction_id, reference, address, network, status, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY seq`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount)
		VALUES (?, ?, ?, ?, ?, ?)`
)
