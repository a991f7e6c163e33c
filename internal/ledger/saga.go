package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/policy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrReservationSettled = errors.New("reservation already settled")

// ReserveParams describes a fiat withdrawal to a linked bank account. Amount
// is debited; Net (Amount minus Fee) is what the gateway pays out.
type ReserveParams struct {
	UserId    string
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	Reference string
}

// Reservation is the first step of a withdrawal. Exactly one of Commit or
// Compensate settles it.
type Reservation struct {
	UserId        string
	TransactionId string
	Reference     string
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	Net           decimal.Decimal
	Bank          models.BankAccount

	// daily counter as it was before Reserve, and the day Reserve counted on
	prevDailyWithdrawn decimal.Decimal
	prevWithdrawalDate string
	reservedOn         string

	mu      sync.Mutex
	settled bool
}

func (r *Reservation) settle() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return ErrReservationSettled
	}
	r.settled = true
	return nil
}

func (r *Reservation) unsettle() {
	r.mu.Lock()
	r.settled = false
	r.mu.Unlock()
}

// Reserve debits the full amount, counts it against the daily limit and
// appends a pending withdrawal entry, all in one update. Nothing is written if
// the policy denies the withdrawal or the balance is short.
func (l *Ledger) Reserve(ctx context.Context, p ReserveParams) (*Reservation, *models.Account, error) {
	if !p.Amount.IsPositive() || p.Fee.IsNegative() || p.Fee.GreaterThanOrEqual(p.Amount) {
		return nil, nil, ErrInvalidAmount
	}

	res := &Reservation{
		UserId:    p.UserId,
		Reference: p.Reference,
		Amount:    p.Amount,
		Fee:       p.Fee,
		Net:       p.Amount.Sub(p.Fee),
	}

	acct, _, err := l.mutate(ctx, p.UserId, func(a *models.Account) ([]models.Transaction, error) {
		if a.BankAccount == nil || !a.BankAccount.Verified {
			return nil, ErrNoBankAccount
		}
		now := l.now()
		if d := l.guard.CheckWithdrawal(a, p.Amount, now); !d.Allowed {
			return nil, &PolicyError{Decision: d}
		}

		tx := l.newTransaction(models.AssetNGN, p.Amount, Entry{
			Kind:      models.KindWithdrawal,
			Fee:       p.Fee,
			Reference: p.Reference,
			Status:    models.StatusPending,
		})
		if err := applyEntry(a, tx); err != nil {
			return nil, err
		}

		res.TransactionId = tx.Id
		res.Bank = *a.BankAccount
		res.prevDailyWithdrawn = a.DailyWithdrawn
		res.prevWithdrawalDate = a.LastWithdrawalDate
		res.reservedOn = now.Format(models.DateLayout)

		a.TotalWithdrawn = a.TotalWithdrawn.Add(p.Amount)
		policy.Apply(a, p.Amount, now)
		return []models.Transaction{tx}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Withdrawal reserved",
		zap.String("user_id", p.UserId),
		zap.String("reference", p.Reference),
		zap.String("amount", p.Amount.String()),
		zap.String("fee", p.Fee.String()))
	return res, acct, nil
}

// Commit records the gateway's acceptance of the payout. The debit stays.
func (l *Ledger) Commit(ctx context.Context, res *Reservation, result models.TransferResult) (*models.Account, error) {
	if err := res.settle(); err != nil {
		return nil, err
	}

	status := models.StatusProcessing
	acct, _, err := l.mutate(ctx, res.UserId, func(a *models.Account) ([]models.Transaction, error) {
		idx := a.FindTransaction(res.TransactionId)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, res.TransactionId)
		}
		tx := &a.Transactions[idx]
		if tx.Status == models.StatusFailed {
			return nil, fmt.Errorf("%w: withdrawal %s was compensated", ErrReservationSettled, tx.Id)
		}
		tx.Status = status
		tx.ExternalId = result.TransferId
		return []models.Transaction{*tx}, nil
	})
	if err != nil {
		res.unsettle()
		return nil, err
	}

	zap.L().Info("Withdrawal committed",
		zap.String("user_id", res.UserId),
		zap.String("reference", res.Reference),
		zap.String("transfer_id", result.TransferId))
	return acct, nil
}

// Compensate undoes Reserve after the payout failed: the withdrawal entry is
// marked failed, the amount comes back through a reversal entry, and the
// amount leaves the withdrawal totals. Reservations made in between keep
// their share of the daily counter.
func (l *Ledger) Compensate(ctx context.Context, res *Reservation, reason string) (*models.Account, error) {
	if err := res.settle(); err != nil {
		return nil, err
	}

	acct, _, err := l.mutate(ctx, res.UserId, func(a *models.Account) ([]models.Transaction, error) {
		idx := a.FindTransaction(res.TransactionId)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, res.TransactionId)
		}
		if a.Transactions[idx].Status != models.StatusPending {
			return nil, fmt.Errorf("%w: withdrawal %s is %s",
				ErrReservationSettled, res.TransactionId, a.Transactions[idx].Status)
		}
		a.Transactions[idx].Status = models.StatusFailed
		failed := a.Transactions[idx]

		reversal := l.newTransaction(models.AssetNGN, res.Amount, Entry{
			Kind:      models.KindReversal,
			Reference: res.Reference,
		})
		if err := applyEntry(a, reversal); err != nil {
			return nil, err
		}
		a.TotalWithdrawn = a.TotalWithdrawn.Sub(res.Amount)
		releaseDaily(a, res)
		return []models.Transaction{failed, reversal}, nil
	})
	if err != nil {
		res.unsettle()
		return nil, err
	}

	zap.L().Warn("Withdrawal compensated",
		zap.String("user_id", res.UserId),
		zap.String("reference", res.Reference),
		zap.String("amount", res.Amount.String()),
		zap.String("reason", reason))
	return acct, nil
}

// releaseDaily takes res back out of the daily counter. A counter that has
// moved on to a later day is left alone. When nothing else was counted on
// the reservation's day the pre-reserve snapshot comes back as it was.
func releaseDaily(a *models.Account, res *Reservation) {
	if a.LastWithdrawalDate != res.reservedOn {
		return
	}
	a.DailyWithdrawn = a.DailyWithdrawn.Sub(res.Amount)
	if a.DailyWithdrawn.IsPositive() {
		return
	}
	a.DailyWithdrawn = decimal.Zero
	if res.prevWithdrawalDate != res.reservedOn {
		a.DailyWithdrawn = res.prevDailyWithdrawn
		a.LastWithdrawalDate = res.prevWithdrawalDate
	}
}

// StaleReservations rebuilds the reservations of withdrawals that never
// reached the gateway's books: still pending, no transfer id, and older than
// olderThan. Callers settle them with Compensate.
func (l *Ledger) StaleReservations(ctx context.Context, olderThan time.Duration) ([]*Reservation, error) {
	accounts, err := l.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	cutoff := l.now().Add(-olderThan)

	var stale []*Reservation
	for _, acct := range accounts {
		for _, tx := range acct.Transactions {
			if tx.Kind != models.KindWithdrawal || tx.Status != models.StatusPending ||
				tx.ExternalId != "" || !tx.CreatedAt.Before(cutoff) {
				continue
			}
			day := tx.CreatedAt.Format(models.DateLayout)
			stale = append(stale, &Reservation{
				UserId:        acct.UserId,
				TransactionId: tx.Id,
				Reference:     tx.Reference,
				Amount:        tx.Amount,
				Fee:           tx.Fee,
				Net:           tx.Amount.Sub(tx.Fee),
				// the snapshot is gone, so only the subtraction applies
				prevWithdrawalDate: day,
				reservedOn:         day,
			})
		}
	}
	return stale, nil
}
