package store

import (
	"context"
	"errors"
	"fmt"

	"naira-wallet-bot-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountExists          = errors.New("account already exists")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrInvariantViolation     = errors.New("account invariant violation")
)

// MutateFunc receives a private copy of the account. Returning an error
// discards every change made to the copy.
type MutateFunc func(acct *models.Account) error

// AccountStore defines the contract that every backend (memory, SQLite) must satisfy.
type AccountStore interface {
	GetAccount(ctx context.Context, userId string) (*models.Account, error)
	CreateAccount(ctx context.Context, acct *models.Account) error
	// UpdateAccount applies fn atomically: either every change fn made is
	// persisted or none is.
	UpdateAccount(ctx context.Context, userId string, fn MutateFunc) (*models.Account, error)
	FindAccountByReferralCode(ctx context.Context, code string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)

	Close()
}

// CheckMutation enforces the account invariants between two versions of the
// same record: balances never negative, the transaction log is append-only
// (only status and external id may be refined), and deposit addresses are
// immutable once assigned.
func CheckMutation(before, after *models.Account) error {
	for asset, bal := range after.Balances {
		if bal.IsNegative() {
			return fmt.Errorf("%w: negative %s balance %s", ErrInvariantViolation, asset, bal.String())
		}
	}

	if len(after.Transactions) < len(before.Transactions) {
		return fmt.Errorf("%w: transaction log shrank from %d to %d",
			ErrInvariantViolation, len(before.Transactions), len(after.Transactions))
	}
	for i := range before.Transactions {
		if !sameEntry(before.Transactions[i], after.Transactions[i]) {
			return fmt.Errorf("%w: transaction %s was edited", ErrInvariantViolation, before.Transactions[i].Id)
		}
	}

	for asset, addr := range before.DepositAddresses {
		if addr != "" && after.DepositAddresses[asset] != addr {
			return fmt.Errorf("%w: deposit address for %s changed", ErrInvariantViolation, asset)
		}
	}
	return nil
}

func sameEntry(a, b models.Transaction) bool {
	return a.Id == b.Id &&
		a.Kind == b.Kind &&
		a.Asset == b.Asset &&
		a.Amount.Equal(b.Amount) &&
		a.CounterAsset == b.CounterAsset &&
		a.CounterAmount.Equal(b.CounterAmount) &&
		a.Fee.Equal(b.Fee) &&
		a.Reference == b.Reference &&
		a.CreatedAt.Equal(b.CreatedAt)
}
