package engine

import (
	"context"
	"errors"
	"time"

	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"

	"go.uber.org/zap"
)

const settleAttempts = 3

// settleBackoff is the pause before the second attempt; it grows linearly.
var settleBackoff = 250 * time.Millisecond

// parkedSettlement is a reservation whose Commit or Compensate kept failing.
// A nil result means the payout failed and the funds must come back.
type parkedSettlement struct {
	res    *ledger.Reservation
	result *models.TransferResult
	reason string
}

func (p parkedSettlement) apply(ctx context.Context, l *ledger.Ledger) (*models.Account, error) {
	if p.result != nil {
		return l.Commit(ctx, p.res, *p.result)
	}
	return l.Compensate(ctx, p.res, p.reason)
}

// settle commits or compensates res, retrying store failures a few times.
// A reservation that still cannot be settled is parked for RetrySettlements.
func (e *Engine) settle(ctx context.Context, res *ledger.Reservation, result *models.TransferResult, reason string) (*models.Account, error) {
	p := parkedSettlement{res: res, result: result, reason: reason}

	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		var acct *models.Account
		acct, err = p.apply(ctx, e.ledger)
		if err == nil || errors.Is(err, ledger.ErrReservationSettled) {
			return acct, err
		}
		zap.L().Warn("Withdrawal settlement failed",
			zap.String("user_id", res.UserId),
			zap.String("reference", res.Reference),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == settleAttempts {
			break
		}
		select {
		case <-time.After(settleBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			e.park(p)
			return nil, ctx.Err()
		}
	}
	e.park(p)
	return nil, err
}

func (e *Engine) park(p parkedSettlement) {
	e.parkedMu.Lock()
	defer e.parkedMu.Unlock()
	e.parked[p.res.TransactionId] = p
	zap.L().Error("Withdrawal settlement parked",
		zap.String("user_id", p.res.UserId),
		zap.String("reference", p.res.Reference),
		zap.Bool("commit", p.result != nil))
}

// RetrySettlements makes one more attempt at every parked settlement and
// returns how many went through.
func (e *Engine) RetrySettlements(ctx context.Context) int {
	e.parkedMu.Lock()
	pending := make([]parkedSettlement, 0, len(e.parked))
	for _, p := range e.parked {
		pending = append(pending, p)
	}
	e.parkedMu.Unlock()

	settled := 0
	for _, p := range pending {
		_, err := p.apply(ctx, e.ledger)
		if err != nil && !errors.Is(err, ledger.ErrReservationSettled) {
			zap.L().Warn("Parked settlement still failing",
				zap.String("user_id", p.res.UserId),
				zap.String("reference", p.res.Reference),
				zap.Error(err))
			continue
		}
		e.parkedMu.Lock()
		delete(e.parked, p.res.TransactionId)
		e.parkedMu.Unlock()
		if err == nil {
			settled++
		}
	}
	return settled
}

// Parked reports whether the withdrawal entry txId waits in the retry list.
func (e *Engine) Parked(txId string) bool {
	e.parkedMu.Lock()
	defer e.parkedMu.Unlock()
	_, ok := e.parked[txId]
	return ok
}
