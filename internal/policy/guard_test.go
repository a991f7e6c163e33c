package policy

import (
	"testing"
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newGuard() *Guard {
	return &Guard{
		KYCThreshold: decimal.NewFromInt(100000),
		DefaultLimit: decimal.NewFromInt(500000),
	}
}

func TestCheckWithdrawal(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	today := now.Format(models.DateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(models.DateLayout)

	tests := []struct {
		name      string
		acct      models.Account
		amount    int64
		allowed   bool
		code      string
		remaining int64
	}{
		{
			name:      "small withdrawal",
			acct:      models.Account{},
			amount:    10000,
			allowed:   true,
			remaining: 500000,
		},
		{
			name:      "above kyc threshold unverified",
			acct:      models.Account{},
			amount:    100001,
			code:      CodeKYCRequired,
			remaining: 500000,
		},
		{
			name:      "exactly at kyc threshold",
			acct:      models.Account{},
			amount:    100000,
			allowed:   true,
			remaining: 500000,
		},
		{
			name:      "above kyc threshold verified",
			acct:      models.Account{KYCVerified: true},
			amount:    200000,
			allowed:   true,
			remaining: 500000,
		},
		{
			name: "daily limit exceeded",
			acct: models.Account{
				KYCVerified:        true,
				DailyWithdrawn:     decimal.NewFromInt(450000),
				LastWithdrawalDate: today,
			},
			amount:    60000,
			code:      CodeDailyLimit,
			remaining: 50000,
		},
		{
			name: "counter from yesterday resets",
			acct: models.Account{
				KYCVerified:        true,
				DailyWithdrawn:     decimal.NewFromInt(450000),
				LastWithdrawalDate: yesterday,
			},
			amount:    60000,
			allowed:   true,
			remaining: 500000,
		},
		{
			name: "per-account limit overrides default",
			acct: models.Account{
				DailyWithdrawalLimit: decimal.NewFromInt(20000),
				DailyWithdrawn:       decimal.NewFromInt(15000),
				LastWithdrawalDate:   today,
			},
			amount:    6000,
			code:      CodeDailyLimit,
			remaining: 5000,
		},
		{
			name:      "zero amount",
			acct:      models.Account{},
			amount:    0,
			code:      CodeInvalid,
			remaining: 500000,
		},
	}

	g := newGuard()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := tt.acct
			d := g.CheckWithdrawal(&acct, decimal.NewFromInt(tt.amount), now)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.code, d.Code)
			assert.True(t, decimal.NewFromInt(tt.remaining).Equal(d.Remaining), "remaining %s", d.Remaining)
			if !tt.allowed {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestApply(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	acct := &models.Account{
		DailyWithdrawn:     decimal.NewFromInt(9999),
		LastWithdrawalDate: "2025-03-09",
	}

	Apply(acct, decimal.NewFromInt(1000), now)
	assert.True(t, acct.DailyWithdrawn.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "2025-03-10", acct.LastWithdrawalDate)

	Apply(acct, decimal.NewFromInt(500), now.Add(time.Hour))
	assert.True(t, acct.DailyWithdrawn.Equal(decimal.NewFromInt(1500)))
}
