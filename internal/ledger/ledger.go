package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/policy"
	"naira-wallet-bot-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrPolicyDenied        = errors.New("withdrawal denied by policy")
	ErrNoBankAccount       = errors.New("no verified bank account linked")
	ErrUnknownTransaction  = errors.New("transaction not found")
)

// PolicyError carries the guard decision behind ErrPolicyDenied.
type PolicyError struct {
	Decision policy.Decision
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPolicyDenied, e.Decision.Reason)
}

func (e *PolicyError) Unwrap() error { return ErrPolicyDenied }

// AddressDeriver assigns deposit addresses to new accounts.
type AddressDeriver interface {
	DeriveAll(userId string) (map[models.Asset]string, error)
}

// Sink receives every committed transaction (new entries and status
// refinements). Sink failures are logged and never undo the ledger write.
type Sink interface {
	Publish(ctx context.Context, userId string, tx models.Transaction) error
}

type Options struct {
	DailyWithdrawalLimit decimal.Decimal
	SeedDemoBalances     bool
	ReferrerBonus        decimal.Decimal
	ReferredBonus        decimal.Decimal
}

// DefaultOptions mirrors the production configuration.
func DefaultOptions() Options {
	return Options{
		DailyWithdrawalLimit: decimal.NewFromInt(500000),
		ReferrerBonus:        decimal.NewFromInt(100),
		ReferredBonus:        decimal.NewFromInt(500),
	}
}

// Ledger is the only writer of account balances. Every mutation goes through
// store.UpdateAccount so balance change and audit entry land together.
type Ledger struct {
	store   store.AccountStore
	deriver AddressDeriver
	guard   *policy.Guard
	opts    Options
	sinks   []Sink
	now     func() time.Time
}

func New(st store.AccountStore, deriver AddressDeriver, guard *policy.Guard, opts Options, sinks ...Sink) *Ledger {
	return &Ledger{
		store:   st,
		deriver: deriver,
		guard:   guard,
		opts:    opts,
		sinks:   sinks,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Ledger) Now() time.Time {
	return l.now()
}

func (l *Ledger) Options() Options {
	return l.opts
}

func (l *Ledger) Guard() *policy.Guard {
	return l.guard
}

func (l *Ledger) Account(ctx context.Context, userId string) (*models.Account, error) {
	return l.store.GetAccount(ctx, userId)
}

func (l *Ledger) Accounts(ctx context.Context) ([]*models.Account, error) {
	return l.store.ListAccounts(ctx)
}

// Entry describes an audit record to append; the ledger fills id, time and
// status defaults.
type Entry struct {
	Kind          string
	CounterAsset  models.Asset
	CounterAmount decimal.Decimal
	Fee           decimal.Decimal
	Rate          decimal.Decimal
	ExternalId    string
	Reference     string
	Address       string
	Network       string
	Status        string
}

func (l *Ledger) newTransaction(asset models.Asset, amount decimal.Decimal, e Entry) models.Transaction {
	status := e.Status
	if status == "" {
		status = models.StatusConfirmed
	}
	return models.Transaction{
		Id:            uuid.New().String(),
		Kind:          e.Kind,
		Asset:         asset,
		Amount:        amount,
		CounterAsset:  e.CounterAsset,
		CounterAmount: e.CounterAmount,
		Fee:           e.Fee,
		Rate:          e.Rate,
		ExternalId:    e.ExternalId,
		Reference:     e.Reference,
		Address:       e.Address,
		Network:       e.Network,
		Status:        status,
		CreatedAt:     l.now(),
	}
}

// applyEntry adds tx's balance deltas to acct and appends tx. It fails
// without touching acct when a bucket would go negative.
func applyEntry(acct *models.Account, tx models.Transaction) error {
	deltas := tx.BalanceDeltas()
	for asset, delta := range deltas {
		if acct.Balance(asset).Add(delta).IsNegative() {
			return fmt.Errorf("%w: %s balance %s, need %s",
				ErrInsufficientBalance, asset, acct.Balance(asset).String(), delta.Neg().String())
		}
	}
	if acct.Balances == nil {
		acct.Balances = make(map[models.Asset]decimal.Decimal)
	}
	for asset, delta := range deltas {
		acct.Balances[asset] = acct.Balance(asset).Add(delta)
	}
	acct.Transactions = append(acct.Transactions, tx)
	return nil
}

// mutate runs fn inside one atomic store update and fans the returned
// transactions out to the sinks once the update has committed.
func (l *Ledger) mutate(ctx context.Context, userId string, fn func(acct *models.Account) ([]models.Transaction, error)) (*models.Account, []models.Transaction, error) {
	var touched []models.Transaction
	acct, err := l.store.UpdateAccount(ctx, userId, func(a *models.Account) error {
		var err error
		touched, err = fn(a)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	l.publish(ctx, userId, touched)
	return acct, touched, nil
}

func (l *Ledger) publish(ctx context.Context, userId string, txs []models.Transaction) {
	for _, tx := range txs {
		for _, sink := range l.sinks {
			if err := sink.Publish(ctx, userId, tx); err != nil {
				zap.L().Warn("Ledger sink publish failed",
					zap.String("user_id", userId),
					zap.String("transaction_id", tx.Id),
					zap.String("kind", tx.Kind),
					zap.Error(err))
			}
		}
	}
}

// AppendTransaction applies the balance effect of tx and records it, both or
// neither.
func (l *Ledger) AppendTransaction(ctx context.Context, userId string, tx models.Transaction) (*models.Account, error) {
	if tx.Id == "" {
		tx.Id = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now()
	}
	if tx.Status == "" {
		tx.Status = models.StatusConfirmed
	}
	acct, _, err := l.mutate(ctx, userId, func(a *models.Account) ([]models.Transaction, error) {
		if err := applyEntry(a, tx); err != nil {
			return nil, err
		}
		return []models.Transaction{tx}, nil
	})
	return acct, err
}

// Credit adds amount of asset.
func (l *Ledger) Credit(ctx context.Context, userId string, asset models.Asset, amount decimal.Decimal, e Entry) (*models.Account, *models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if e.Kind == "" {
		e.Kind = models.KindDeposit
	}
	tx := l.newTransaction(asset, amount, e)
	acct, err := l.AppendTransaction(ctx, userId, tx)
	if err != nil {
		return nil, nil, err
	}
	return acct, &tx, nil
}

// Debit removes amount of asset, failing with ErrInsufficientBalance.
func (l *Ledger) Debit(ctx context.Context, userId string, asset models.Asset, amount decimal.Decimal, e Entry) (*models.Account, *models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	e.Kind = models.KindWithdrawal
	tx := l.newTransaction(asset, amount, e)
	acct, err := l.AppendTransaction(ctx, userId, tx)
	if err != nil {
		return nil, nil, err
	}
	return acct, &tx, nil
}

// TransferParams moves value between two buckets of the same account.
type TransferParams struct {
	Kind         string // swap or crypto_sale
	From         models.Asset
	To           models.Asset
	DebitAmount  decimal.Decimal
	CreditAmount decimal.Decimal
	Fee          decimal.Decimal
	Rate         decimal.Decimal
	Reference    string
}

// TransferInternal debits From and credits To in one atomic update.
func (l *Ledger) TransferInternal(ctx context.Context, userId string, p TransferParams) (*models.Account, *models.Transaction, error) {
	if !p.DebitAmount.IsPositive() || !p.CreditAmount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if p.From == p.To {
		return nil, nil, fmt.Errorf("%w: cannot transfer %s to itself", ErrInvalidAmount, p.From)
	}
	tx := l.newTransaction(p.From, p.DebitAmount, Entry{
		Kind:          p.Kind,
		CounterAsset:  p.To,
		CounterAmount: p.CreditAmount,
		Fee:           p.Fee,
		Rate:          p.Rate,
		Reference:     p.Reference,
	})
	acct, err := l.AppendTransaction(ctx, userId, tx)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Internal transfer completed",
		zap.String("user_id", userId),
		zap.String("kind", p.Kind),
		zap.String("from", string(p.From)),
		zap.String("to", string(p.To)),
		zap.String("debit", p.DebitAmount.String()),
		zap.String("credit", p.CreditAmount.String()))
	return acct, &tx, nil
}

// DepositParams is an inbound on-chain credit. ValueNGN is added to the
// account's deposit total.
type DepositParams struct {
	UserId   string
	Asset    models.Asset
	Amount   decimal.Decimal
	TxHash   string
	Address  string
	Network  string
	ValueNGN decimal.Decimal
}

// Deposit credits an inbound transfer once per tx hash. A repeated hash
// returns store.ErrDuplicateTransaction and changes nothing.
func (l *Ledger) Deposit(ctx context.Context, p DepositParams) (*models.Account, *models.Transaction, error) {
	if !p.Amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	tx := l.newTransaction(p.Asset, p.Amount, Entry{
		Kind:       models.KindDeposit,
		ExternalId: p.TxHash,
		Address:    p.Address,
		Network:    p.Network,
	})

	acct, _, err := l.mutate(ctx, p.UserId, func(a *models.Account) ([]models.Transaction, error) {
		if p.TxHash != "" && a.FindTransaction(p.TxHash) >= 0 {
			return nil, fmt.Errorf("%w: tx hash %s", store.ErrDuplicateTransaction, p.TxHash)
		}
		if err := applyEntry(a, tx); err != nil {
			return nil, err
		}
		a.TotalDeposited = a.TotalDeposited.Add(p.ValueNGN)
		return []models.Transaction{tx}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Deposit credited",
		zap.String("user_id", p.UserId),
		zap.String("asset", string(p.Asset)),
		zap.String("amount", p.Amount.String()),
		zap.String("tx_hash", p.TxHash),
		zap.String("new_balance", acct.Balance(p.Asset).String()))
	return acct, &tx, nil
}

// RefreshTransferStatus refines the status of the withdrawal whose provider
// transfer id is transferId.
func (l *Ledger) RefreshTransferStatus(ctx context.Context, userId, transferId, status string) (*models.Account, error) {
	acct, _, err := l.mutate(ctx, userId, func(a *models.Account) ([]models.Transaction, error) {
		idx := a.FindTransaction(transferId)
		if idx < 0 {
			return nil, fmt.Errorf("%w: transfer %s", ErrUnknownTransaction, transferId)
		}
		if a.Transactions[idx].Status == status {
			return nil, nil
		}
		a.Transactions[idx].Status = status
		return []models.Transaction{a.Transactions[idx]}, nil
	})
	return acct, err
}

// Summary aggregates every account for the admin view.
func (l *Ledger) Summary(ctx context.Context) (*models.LedgerSummary, error) {
	accounts, err := l.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	sum := &models.LedgerSummary{
		TotalUsers: len(accounts),
		Balances:   make(map[models.Asset]decimal.Decimal),
	}
	for _, a := range accounts {
		sum.TotalDeposited = sum.TotalDeposited.Add(a.TotalDeposited)
		sum.TotalWithdrawn = sum.TotalWithdrawn.Add(a.TotalWithdrawn)
		sum.TotalTransactions += len(a.Transactions)
		for asset, bal := range a.Balances {
			sum.Balances[asset] = sum.Balances[asset].Add(bal)
		}
		if a.BankAccount != nil && a.BankAccount.Verified {
			sum.LinkedBanks++
		}
		if a.KYCVerified {
			sum.KYCVerified++
		}
	}
	return sum, nil
}
