package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/policy"
	"naira-wallet-bot-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeriver struct{}

func (fakeDeriver) DeriveAll(userId string) (map[models.Asset]string, error) {
	out := make(map[models.Asset]string)
	for _, a := range models.CryptoAssets {
		out[a] = fmt.Sprintf("%s-%s", a.Lower(), userId)
	}
	return out, nil
}

type recordingSink struct {
	mu  sync.Mutex
	txs []models.Transaction
}

func (r *recordingSink) Publish(_ context.Context, _ string, tx models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

type failingSink struct{}

func (failingSink) Publish(context.Context, string, models.Transaction) error {
	return errors.New("broker down")
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestLedger(t *testing.T, sinks ...Sink) (*Ledger, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	guard := &policy.Guard{KYCThreshold: dec("100000"), DefaultLimit: dec("500000")}
	l := New(st, fakeDeriver{}, guard, DefaultOptions(), sinks...)
	l.SetClock(func() time.Time { return testNow })
	return l, st
}

func openFunded(t *testing.T, l *Ledger, userId string, ngn string) *models.Account {
	t.Helper()
	ctx := context.Background()
	_, created, err := l.OpenAccount(ctx, OpenParams{UserId: userId, ChatId: 1})
	require.NoError(t, err)
	require.True(t, created)
	acct, _, err := l.Credit(ctx, userId, models.AssetNGN, dec(ngn), Entry{Kind: models.KindBonus})
	require.NoError(t, err)
	return acct
}

func linkBank(t *testing.T, l *Ledger, userId string) {
	t.Helper()
	_, err := l.SetBankAccount(context.Background(), userId, models.BankAccount{
		BankCode:      "058",
		BankName:      "GTBank",
		AccountNumber: "0123456789",
		AccountName:   "JOHN DOE",
	})
	require.NoError(t, err)
}

func TestOpenAccount(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	acct, created, err := l.OpenAccount(ctx, OpenParams{UserId: "100", ChatId: 7})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, strings.HasPrefix(acct.ReferralCode, "AERO"))
	assert.Len(t, acct.ReferralCode, 10)
	assert.Len(t, acct.DepositAddresses, len(models.CryptoAssets))
	assert.Empty(t, acct.Transactions)
	for _, asset := range models.AllAssets {
		assert.True(t, acct.Balance(asset).IsZero(), asset)
	}

	again, created, err := l.OpenAccount(ctx, OpenParams{UserId: "100", ChatId: 9})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, acct.ReferralCode, again.ReferralCode)
	assert.Equal(t, int64(9), again.ChatId)
}

func TestOpenAccount_Referral(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	referrer, _, err := l.OpenAccount(ctx, OpenParams{UserId: "1"})
	require.NoError(t, err)

	acct, _, err := l.OpenAccount(ctx, OpenParams{UserId: "2", ReferralCode: strings.ToLower(referrer.ReferralCode)})
	require.NoError(t, err)
	assert.Equal(t, "1", acct.ReferredBy)
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("500")))
	require.Len(t, acct.Transactions, 1)
	assert.Equal(t, models.KindBonus, acct.Transactions[0].Kind)

	referrer, err = l.Account(ctx, "1")
	require.NoError(t, err)
	assert.True(t, referrer.Balance(models.AssetNGN).Equal(dec("100")))
	assert.True(t, referrer.ReferralRewards.Equal(dec("100")))
	require.Len(t, referrer.Referrals, 1)
	assert.Equal(t, "2", referrer.Referrals[0].UserId)

	// unknown codes are ignored
	other, _, err := l.OpenAccount(ctx, OpenParams{UserId: "3", ReferralCode: "AERO000000"})
	require.NoError(t, err)
	assert.Empty(t, other.ReferredBy)
	assert.True(t, other.Balance(models.AssetNGN).IsZero())
}

func TestOpenAccount_DemoBalances(t *testing.T) {
	st := store.NewMemoryStore()
	opts := DefaultOptions()
	opts.SeedDemoBalances = true
	l := New(st, fakeDeriver{}, &policy.Guard{KYCThreshold: dec("100000"), DefaultLimit: dec("500000")}, opts)

	acct, _, err := l.OpenAccount(context.Background(), OpenParams{UserId: "5"})
	require.NoError(t, err)
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("10000")))
	assert.True(t, acct.Balance(models.AssetBTC).Equal(dec("0.01")))
	assert.Len(t, acct.Transactions, len(demoBalances))
}

func TestDebit_InsufficientBalance(t *testing.T) {
	l, _ := newTestLedger(t)
	openFunded(t, l, "10", "1000")

	_, _, err := l.Debit(context.Background(), "10", models.AssetNGN, dec("1000.01"), Entry{})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	acct, err := l.Account(context.Background(), "10")
	require.NoError(t, err)
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("1000")))
	assert.Len(t, acct.Transactions, 1)
}

func TestTransferInternal_CryptoSale(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _, err := l.OpenAccount(ctx, OpenParams{UserId: "20"})
	require.NoError(t, err)
	_, _, err = l.Credit(ctx, "20", models.AssetBTC, dec("0.01"), Entry{ExternalId: "hash-1"})
	require.NoError(t, err)

	rate := dec("50000000")
	acct, tx, err := l.TransferInternal(ctx, "20", TransferParams{
		Kind:         models.KindCryptoSale,
		From:         models.AssetBTC,
		To:           models.AssetNGN,
		DebitAmount:  dec("0.01"),
		CreditAmount: dec("0.01").Mul(rate),
		Rate:         rate,
	})
	require.NoError(t, err)
	assert.True(t, acct.Balance(models.AssetBTC).IsZero())
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("500000")))
	assert.Equal(t, models.KindCryptoSale, tx.Kind)

	_, _, err = l.TransferInternal(ctx, "20", TransferParams{
		Kind:         models.KindSwap,
		From:         models.AssetBTC,
		To:           models.AssetETH,
		DebitAmount:  dec("0.001"),
		CreditAmount: dec("0.01"),
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestDeposit_Idempotent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _, err := l.OpenAccount(ctx, OpenParams{UserId: "30"})
	require.NoError(t, err)

	p := DepositParams{UserId: "30", Asset: models.AssetETH, Amount: dec("0.5"), TxHash: "0xabc", ValueNGN: dec("1500000")}
	acct, _, err := l.Deposit(ctx, p)
	require.NoError(t, err)
	assert.True(t, acct.Balance(models.AssetETH).Equal(dec("0.5")))
	assert.True(t, acct.TotalDeposited.Equal(dec("1500000")))

	_, _, err = l.Deposit(ctx, p)
	assert.ErrorIs(t, err, store.ErrDuplicateTransaction)

	acct, err = l.Account(ctx, "30")
	require.NoError(t, err)
	assert.True(t, acct.Balance(models.AssetETH).Equal(dec("0.5")))
	assert.Len(t, acct.Transactions, 1)
}

func TestReserveCommit(t *testing.T) {
	sink := &recordingSink{}
	l, _ := newTestLedger(t, sink)
	ctx := context.Background()
	openFunded(t, l, "40", "20000")
	linkBank(t, l, "40")

	res, acct, err := l.Reserve(ctx, ReserveParams{UserId: "40", Amount: dec("10000"), Fee: dec("150"), Reference: "AEROREF1"})
	require.NoError(t, err)
	assert.True(t, res.Net.Equal(dec("9850")))
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("10000")))
	assert.True(t, acct.DailyWithdrawn.Equal(dec("10000")))
	assert.Equal(t, "2025-06-01", acct.LastWithdrawalDate)

	acct, err = l.Commit(ctx, res, models.TransferResult{TransferId: "flw-77", Reference: "AEROREF1"})
	require.NoError(t, err)
	idx := acct.FindTransaction("flw-77")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, models.StatusProcessing, acct.Transactions[idx].Status)
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("10000")))

	_, err = l.Compensate(ctx, res, "late failure")
	assert.ErrorIs(t, err, ErrReservationSettled)

	// bonus, withdrawal, withdrawal refined
	assert.Len(t, sink.txs, 3)
}

func TestReserveCompensate_RestoresState(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	openFunded(t, l, "50", "20000")
	linkBank(t, l, "50")

	before, err := l.Account(ctx, "50")
	require.NoError(t, err)

	res, _, err := l.Reserve(ctx, ReserveParams{UserId: "50", Amount: dec("10000"), Fee: dec("150"), Reference: "AEROREF2"})
	require.NoError(t, err)

	after, err := l.Compensate(ctx, res, "gateway rejected transfer")
	require.NoError(t, err)
	assert.True(t, after.Balance(models.AssetNGN).Equal(before.Balance(models.AssetNGN)))
	assert.True(t, after.DailyWithdrawn.Equal(before.DailyWithdrawn))
	assert.Equal(t, before.LastWithdrawalDate, after.LastWithdrawalDate)
	assert.True(t, after.TotalWithdrawn.Equal(before.TotalWithdrawn))

	require.Len(t, after.Transactions, len(before.Transactions)+2)
	withdrawal := after.Transactions[len(after.Transactions)-2]
	reversal := after.Transactions[len(after.Transactions)-1]
	assert.Equal(t, models.StatusFailed, withdrawal.Status)
	assert.Equal(t, models.KindReversal, reversal.Kind)
	assert.True(t, reversal.Amount.Equal(dec("10000")))

	_, err = l.Compensate(ctx, res, "twice")
	assert.ErrorIs(t, err, ErrReservationSettled)
	_, err = l.Commit(ctx, res, models.TransferResult{TransferId: "x"})
	assert.ErrorIs(t, err, ErrReservationSettled)
}

func TestCompensate_KeepsOverlappingReservation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	openFunded(t, l, "55", "100000")
	linkBank(t, l, "55")

	first, _, err := l.Reserve(ctx, ReserveParams{UserId: "55", Amount: dec("10000"), Fee: dec("150"), Reference: "AEROA"})
	require.NoError(t, err)
	second, _, err := l.Reserve(ctx, ReserveParams{UserId: "55", Amount: dec("20000"), Fee: dec("300"), Reference: "AEROB"})
	require.NoError(t, err)

	acct, err := l.Compensate(ctx, first, "gateway rejected transfer")
	require.NoError(t, err)
	assert.Equal(t, "20000", acct.DailyWithdrawn.String())
	assert.Equal(t, "20000", acct.TotalWithdrawn.String())
	assert.Equal(t, "2025-06-01", acct.LastWithdrawalDate)
	assert.Equal(t, "80000", acct.Balance(models.AssetNGN).String())

	acct, err = l.Compensate(ctx, second, "gateway rejected transfer")
	require.NoError(t, err)
	assert.True(t, acct.DailyWithdrawn.IsZero())
	assert.True(t, acct.TotalWithdrawn.IsZero())
	assert.Equal(t, "100000", acct.Balance(models.AssetNGN).String())
}

func TestCompensate_AfterDayRollover(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	openFunded(t, l, "56", "100000")
	linkBank(t, l, "56")

	old, _, err := l.Reserve(ctx, ReserveParams{UserId: "56", Amount: dec("10000"), Fee: dec("150"), Reference: "AEROC"})
	require.NoError(t, err)

	l.SetClock(func() time.Time { return testNow.Add(24 * time.Hour) })
	_, _, err = l.Reserve(ctx, ReserveParams{UserId: "56", Amount: dec("5000"), Fee: dec("75"), Reference: "AEROD"})
	require.NoError(t, err)

	acct, err := l.Compensate(ctx, old, "gateway rejected transfer")
	require.NoError(t, err)
	assert.Equal(t, "5000", acct.DailyWithdrawn.String())
	assert.Equal(t, "2025-06-02", acct.LastWithdrawalDate)
	assert.Equal(t, "95000", acct.Balance(models.AssetNGN).String())
}

func TestStaleReservations(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	openFunded(t, l, "57", "100000")
	linkBank(t, l, "57")

	stuck, _, err := l.Reserve(ctx, ReserveParams{UserId: "57", Amount: dec("10000"), Fee: dec("150"), Reference: "AEROE"})
	require.NoError(t, err)
	sent, _, err := l.Reserve(ctx, ReserveParams{UserId: "57", Amount: dec("20000"), Fee: dec("300"), Reference: "AEROF"})
	require.NoError(t, err)
	_, err = l.Commit(ctx, sent, models.TransferResult{TransferId: "flw-9", Reference: "AEROF"})
	require.NoError(t, err)

	stale, err := l.StaleReservations(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, stale)

	l.SetClock(func() time.Time { return testNow.Add(time.Hour) })
	stale, err = l.StaleReservations(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, stuck.TransactionId, stale[0].TransactionId)
	assert.Equal(t, "AEROE", stale[0].Reference)
	assert.Equal(t, "9850", stale[0].Net.String())

	acct, err := l.Compensate(ctx, stale[0], "stale reservation")
	require.NoError(t, err)
	assert.Equal(t, "20000", acct.DailyWithdrawn.String())
	assert.Equal(t, "80000", acct.Balance(models.AssetNGN).String())

	stale, err = l.StaleReservations(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestReserve_Denials(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	openFunded(t, l, "60", "700000")

	_, _, err := l.Reserve(ctx, ReserveParams{UserId: "60", Amount: dec("1000"), Fee: dec("50")})
	assert.ErrorIs(t, err, ErrNoBankAccount)

	linkBank(t, l, "60")

	_, _, err = l.Reserve(ctx, ReserveParams{UserId: "60", Amount: dec("150000"), Fee: dec("2250")})
	var pe *PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, policy.CodeKYCRequired, pe.Decision.Code)
	assert.ErrorIs(t, err, ErrPolicyDenied)

	_, err = l.SetKYC(ctx, "60", true)
	require.NoError(t, err)
	_, _, err = l.Reserve(ctx, ReserveParams{UserId: "60", Amount: dec("600000"), Fee: dec("9000")})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, policy.CodeDailyLimit, pe.Decision.Code)

	acct, err := l.Account(ctx, "60")
	require.NoError(t, err)
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("700000")))
	assert.True(t, acct.DailyWithdrawn.IsZero())
	assert.Len(t, acct.Transactions, 1)
}

func TestSinkFailureDoesNotUndoWrite(t *testing.T) {
	l, _ := newTestLedger(t, failingSink{})
	acct := openFunded(t, l, "70", "250")
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("250")))
}

func TestConcurrentDebits_NeverNegative(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	openFunded(t, l, "80", "1000")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := l.Debit(ctx, "80", models.AssetNGN, dec("100"), Entry{}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	acct, err := l.Account(ctx, "80")
	require.NoError(t, err)
	assert.Equal(t, 10, succeeded)
	assert.True(t, acct.Balance(models.AssetNGN).IsZero())
}

func TestSummary(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	openFunded(t, l, "90", "300")
	openFunded(t, l, "91", "700")
	linkBank(t, l, "91")

	sum, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalUsers)
	assert.Equal(t, 2, sum.TotalTransactions)
	assert.Equal(t, 1, sum.LinkedBanks)
	assert.True(t, sum.Balances[models.AssetNGN].Equal(dec("1000")))
}
