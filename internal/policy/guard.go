package policy

import (
	"fmt"
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// Denial codes.
const (
	CodeAllowed     = ""
	CodeInvalid     = "invalid_amount"
	CodeKYCRequired = "kyc_required"
	CodeDailyLimit  = "daily_limit_exceeded"
)

// Decision is the outcome of a withdrawal check. Remaining is the headroom
// left today before this withdrawal.
type Decision struct {
	Allowed   bool
	Code      string
	Reason    string
	Limit     decimal.Decimal
	UsedToday decimal.Decimal
	Remaining decimal.Decimal
}

// Guard applies the KYC threshold and the per-account daily limit to fiat
// withdrawals. It holds no state; the daily counter lives on the account.
type Guard struct {
	KYCThreshold decimal.Decimal
	DefaultLimit decimal.Decimal
}

func NewGuard(cfg models.PolicyConfig) *Guard {
	return &Guard{
		KYCThreshold: cfg.KYCThreshold,
		DefaultLimit: cfg.DailyWithdrawalLimit,
	}
}

// UsedToday returns the amount withdrawn on the calendar day of now. A
// counter from an earlier day counts as zero.
func UsedToday(acct *models.Account, now time.Time) decimal.Decimal {
	if acct.LastWithdrawalDate != now.Format(models.DateLayout) {
		return decimal.Zero
	}
	return acct.DailyWithdrawn
}

func (g *Guard) limitFor(acct *models.Account) decimal.Decimal {
	if acct.DailyWithdrawalLimit.IsPositive() {
		return acct.DailyWithdrawalLimit
	}
	return g.DefaultLimit
}

// Headroom is how much more the account may withdraw today.
func (g *Guard) Headroom(acct *models.Account, now time.Time) decimal.Decimal {
	remaining := g.limitFor(acct).Sub(UsedToday(acct, now))
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// CheckWithdrawal decides whether amount may leave the account today.
func (g *Guard) CheckWithdrawal(acct *models.Account, amount decimal.Decimal, now time.Time) Decision {
	used := UsedToday(acct, now)
	limit := g.limitFor(acct)
	d := Decision{
		Limit:     limit,
		UsedToday: used,
		Remaining: g.Headroom(acct, now),
	}

	if !amount.IsPositive() {
		d.Code = CodeInvalid
		d.Reason = "withdrawal amount must be positive"
		return d
	}

	if amount.GreaterThan(g.KYCThreshold) && !acct.KYCVerified {
		d.Code = CodeKYCRequired
		d.Reason = fmt.Sprintf("withdrawals above ₦%s require KYC verification", g.KYCThreshold.StringFixed(0))
		return d
	}

	if used.Add(amount).GreaterThan(limit) {
		d.Code = CodeDailyLimit
		d.Reason = fmt.Sprintf("daily withdrawal limit exceeded, remaining today ₦%s", d.Remaining.StringFixed(2))
		return d
	}

	d.Allowed = true
	return d
}

// Apply records amount against the daily counter, resetting it first when
// the last withdrawal was on an earlier day.
func Apply(acct *models.Account, amount decimal.Decimal, now time.Time) {
	acct.DailyWithdrawn = UsedToday(acct, now).Add(amount)
	acct.LastWithdrawalDate = now.Format(models.DateLayout)
}
