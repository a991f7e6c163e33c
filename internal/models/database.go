package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds recorded in an account's audit trail.
const (
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
	KindSwap       = "swap"
	KindCryptoSale = "crypto_sale"
	KindBonus      = "bonus"
	KindReversal   = "reversal"
)

// Transaction statuses. Provider statuses (e.g. "SUCCESSFUL") may also appear
// after a status refresh.
const (
	StatusConfirmed  = "confirmed"
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
)

// DateLayout is the calendar-day format used for the daily withdrawal counter.
const DateLayout = "2006-01-02"

// Account is the per-user wallet record. Balances never go negative and every
// balance change is paired with exactly one entry in Transactions.
type Account struct {
	UserId               string                    `json:"user_id"`
	ChatId               int64                     `json:"chat_id"`
	Balances             map[Asset]decimal.Decimal `json:"balances"`
	DepositAddresses     map[Asset]string          `json:"deposit_addresses"`
	BankAccount          *BankAccount              `json:"bank_account,omitempty"`
	TotalDeposited       decimal.Decimal           `json:"total_deposited"`
	TotalWithdrawn       decimal.Decimal           `json:"total_withdrawn"`
	DailyWithdrawn       decimal.Decimal           `json:"daily_withdrawn"`
	LastWithdrawalDate   string                    `json:"last_withdrawal_date,omitempty"`
	DailyWithdrawalLimit decimal.Decimal           `json:"daily_withdrawal_limit"`
	KYCVerified          bool                      `json:"kyc_verified"`
	ReferralCode         string                    `json:"referral_code"`
	ReferredBy           string                    `json:"referred_by,omitempty"`
	Referrals            []Referral                `json:"referrals,omitempty"`
	ReferralRewards      decimal.Decimal           `json:"referral_rewards"`
	Transactions         []Transaction             `json:"transactions,omitempty"`
	Version              int64                     `json:"version"`
	CreatedAt            time.Time                 `json:"created_at"`
}

// Balance returns the balance for asset, zero when the bucket is absent.
func (a *Account) Balance(asset Asset) decimal.Decimal {
	if a.Balances == nil {
		return decimal.Zero
	}
	return a.Balances[asset]
}

// FindTransaction returns the index of the transaction with the given id or external id.
func (a *Account) FindTransaction(id string) int {
	for i := range a.Transactions {
		if a.Transactions[i].Id == id || (id != "" && a.Transactions[i].ExternalId == id) {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can mutate without touching the stored record.
func (a *Account) Clone() *Account {
	c := *a
	c.Balances = make(map[Asset]decimal.Decimal, len(a.Balances))
	for k, v := range a.Balances {
		c.Balances[k] = v
	}
	c.DepositAddresses = make(map[Asset]string, len(a.DepositAddresses))
	for k, v := range a.DepositAddresses {
		c.DepositAddresses[k] = v
	}
	if a.BankAccount != nil {
		b := *a.BankAccount
		c.BankAccount = &b
	}
	c.Referrals = append([]Referral(nil), a.Referrals...)
	c.Transactions = append([]Transaction(nil), a.Transactions...)
	return &c
}

// BankAccount is the payout destination linked after gateway verification.
type BankAccount struct {
	BankCode      string    `json:"bank_code"`
	BankName      string    `json:"bank_name"`
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
	Verified      bool      `json:"verified"`
	AddedAt       time.Time `json:"added_at"`
}

type Referral struct {
	UserId    string          `json:"user_id"`
	Bonus     decimal.Decimal `json:"bonus"`
	CreatedAt time.Time       `json:"created_at"`
}

// Transaction is an immutable audit entry. Only Status and ExternalId may be
// refined after it is appended.
type Transaction struct {
	Id            string          `json:"id"`
	Kind          string          `json:"kind"`
	Asset         Asset           `json:"asset"`
	Amount        decimal.Decimal `json:"amount"`
	CounterAsset  Asset           `json:"counter_asset,omitempty"`
	CounterAmount decimal.Decimal `json:"counter_amount"`
	Fee           decimal.Decimal `json:"fee"`
	Rate          decimal.Decimal `json:"rate"`
	ExternalId    string          `json:"external_id,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Address       string          `json:"address,omitempty"`
	Network       string          `json:"network,omitempty"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DerivedAddress is a deterministic deposit address for (seed, user, asset).
type DerivedAddress struct {
	UserId    string    `json:"user_id"`
	Asset     Asset     `json:"asset"`
	Address   string    `json:"address"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerSummary aggregates totals across all accounts for the admin view.
type LedgerSummary struct {
	TotalUsers        int                       `json:"total_users"`
	TotalDeposited    decimal.Decimal           `json:"total_deposited"`
	TotalWithdrawn    decimal.Decimal           `json:"total_withdrawn"`
	TotalTransactions int                       `json:"total_transactions"`
	Balances          map[Asset]decimal.Decimal `json:"balances"`
	LinkedBanks       int                       `json:"linked_banks"`
	KYCVerified       int                       `json:"kyc_verified"`
}

// BalanceDeltas returns the signed change this entry applied to each asset.
func (t Transaction) BalanceDeltas() map[Asset]decimal.Decimal {
	deltas := make(map[Asset]decimal.Decimal, 2)
	switch t.Kind {
	case KindDeposit, KindBonus, KindReversal:
		deltas[t.Asset] = t.Amount
	case KindWithdrawal:
		deltas[t.Asset] = t.Amount.Neg()
	case KindSwap, KindCryptoSale:
		deltas[t.Asset] = t.Amount.Neg()
		deltas[t.CounterAsset] = deltas[t.CounterAsset].Add(t.CounterAmount)
	}
	return deltas
}
