package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"naira-wallet-bot-go/internal/gateway"
	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/policy"
	"naira-wallet-bot-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser = "1001"
	testChat = int64(1001)
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeDeriver struct{}

func (fakeDeriver) DeriveAll(userId string) (map[models.Asset]string, error) {
	out := make(map[models.Asset]string)
	for _, a := range models.CryptoAssets {
		out[a] = a.Lower() + "-" + userId
	}
	return out, nil
}

type fakeRates struct{}

func (fakeRates) GetRates(context.Context) models.Rates {
	return models.Rates{
		Quotes: map[models.Asset]models.Quote{
			models.AssetBTC:  {NGN: dec("50000000"), USD: dec("35000")},
			models.AssetETH:  {NGN: dec("3000000"), USD: dec("2000")},
			models.AssetSOL:  {NGN: dec("100000"), USD: dec("70")},
			models.AssetUSDT: {NGN: dec("1500"), USD: dec("1")},
		},
		USDNGN:    models.FXQuote{Buy: dec("1440"), Sell: dec("1500")},
		FetchedAt: testNow,
	}
}

type fakeGateway struct {
	mu          sync.Mutex
	accountName string
	verifyErr   error
	transferErr error
	transfers   []models.TransferRequest
	status      *models.TransferStatus

	// called with no engine lock held
	onVerify   func()
	onTransfer func()
}

func (g *fakeGateway) VerifyAccount(_ context.Context, accountNumber, bankCode string) (*models.AccountInfo, error) {
	if g.onVerify != nil {
		g.onVerify()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return &models.AccountInfo{AccountNumber: accountNumber, AccountName: g.accountName, BankCode: bankCode}, nil
}

func (g *fakeGateway) Transfer(_ context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	if g.onTransfer != nil {
		g.onTransfer()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transfers = append(g.transfers, req)
	if g.transferErr != nil {
		return nil, g.transferErr
	}
	return &models.TransferResult{TransferId: "TRF-1", Reference: req.Reference, Status: "NEW"}, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, transferId string) (*models.TransferStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == nil {
		return nil, &gateway.Error{Op: "check status", Message: "not found"}
	}
	return g.status, nil
}

func (g *fakeGateway) ListBanks(context.Context) []models.Bank {
	return []models.Bank{{Code: "044", Name: "Access Bank"}, {Code: "058", Name: "GTBank"}}
}

type fakeResolver map[string]models.Asset

func (r fakeResolver) Resolve(address string) (string, models.Asset, bool) {
	asset, ok := r[address]
	if !ok {
		return "", "", false
	}
	return testUser, asset, true
}

type harness struct {
	engine *Engine
	ledger *ledger.Ledger
	store  *store.MemoryStore
	gw     *fakeGateway
}

// flakyStore fails the next armed number of account updates.
type flakyStore struct {
	*store.MemoryStore
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) failNext(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

func (f *flakyStore) UpdateAccount(ctx context.Context, userId string, fn store.MutateFunc) (*models.Account, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("database is locked")
	}
	f.mu.Unlock()
	return f.MemoryStore.UpdateAccount(ctx, userId, fn)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := store.NewMemoryStore()
	return newHarnessOn(t, mem, mem)
}

func newHarnessOn(t *testing.T, mem *store.MemoryStore, st store.AccountStore) *harness {
	t.Helper()
	policyCfg := DefaultPolicy()
	l := ledger.New(st, fakeDeriver{}, policy.NewGuard(policyCfg), ledger.DefaultOptions())
	l.SetClock(func() time.Time { return testNow })

	gw := &fakeGateway{accountName: "JOHN DOE"}
	e := New(l, fakeRates{}, gw, fakeResolver{"btc-1001": models.AssetBTC}, Options{
		BusinessName:  "Aerosoft",
		SupportHandle: "@AerosoftSupport",
		BotUsername:   "aero_bot",
		Policy:        policyCfg,
	})
	e.newReference = func() string { return "AERO1" }

	_, _, err := l.OpenAccount(context.Background(), ledger.OpenParams{UserId: testUser, ChatId: testChat})
	require.NoError(t, err)
	return &harness{engine: e, ledger: l, store: mem, gw: gw}
}

func (h *harness) text(t *testing.T, s string) ([]Effect, error) {
	t.Helper()
	return h.engine.Handle(context.Background(), TextMessage{UserId: testUser, ChatId: testChat, Text: s})
}

func (h *harness) press(t *testing.T, data string) ([]Effect, error) {
	t.Helper()
	return h.engine.Handle(context.Background(), ButtonPress{
		UserId: testUser, ChatId: testChat, MessageId: 7, CallbackId: "cb-" + data, Data: data,
	})
}

func (h *harness) fund(t *testing.T, asset models.Asset, amount string) {
	t.Helper()
	_, _, err := h.ledger.Credit(context.Background(), testUser, asset, dec(amount), ledger.Entry{Kind: models.KindBonus})
	require.NoError(t, err)
}

func (h *harness) linkBank(t *testing.T) {
	t.Helper()
	_, err := h.ledger.SetBankAccount(context.Background(), testUser, models.BankAccount{
		BankCode: "058", BankName: "GTBank", AccountNumber: "0123456789", AccountName: "JOHN DOE",
	})
	require.NoError(t, err)
}

func (h *harness) account(t *testing.T) *models.Account {
	t.Helper()
	acct, err := h.ledger.Account(context.Background(), testUser)
	require.NoError(t, err)
	return acct
}

// allText joins the visible text of every effect.
func allText(effects []Effect) string {
	var parts []string
	for _, eff := range effects {
		switch eff := eff.(type) {
		case SendText:
			parts = append(parts, eff.Text)
		case EditMessage:
			parts = append(parts, eff.Text)
		case AnswerCallback:
			parts = append(parts, eff.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func buttons(effects []Effect) []string {
	var out []string
	collect := func(kb *InlineKeyboard) {
		if kb == nil {
			return
		}
		for _, r := range kb.Rows {
			for _, b := range r {
				out = append(out, b.Data)
			}
		}
	}
	for _, eff := range effects {
		switch eff := eff.(type) {
		case SendText:
			collect(eff.Inline)
		case EditMessage:
			collect(eff.Inline)
		}
	}
	return out
}

func TestWithdrawalFee(t *testing.T) {
	cfg := DefaultPolicy()
	assert.True(t, WithdrawalFee(cfg, dec("10000")).Equal(dec("150")))
	assert.True(t, WithdrawalFee(cfg, dec("1000")).Equal(dec("50")))
	assert.True(t, WithdrawalFee(cfg, dec("3333.33")).Equal(dec("50")))
	assert.True(t, WithdrawalFee(cfg, dec("100001")).Equal(dec("1501")))
}

func TestBankWithdrawal_Success(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "20000")
	h.linkBank(t)

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	assert.Equal(t, StepAwaitingAmount, h.engine.State(testUser).Withdraw)

	effects, err := h.text(t, "₦10,000")
	require.NoError(t, err)
	assert.Contains(t, allText(effects), "₦150.00")
	assert.Contains(t, allText(effects), "₦9,850.00")
	assert.Equal(t, StepAwaitingConfirmation, h.engine.State(testUser).Withdraw)

	effects, err = h.press(t, "confirm_bank_withdraw")
	require.NoError(t, err)
	assert.Contains(t, buttons(effects), "check_status_TRF-1")
	assert.Equal(t, State{}, h.engine.State(testUser))

	require.Len(t, h.gw.transfers, 1)
	assert.True(t, h.gw.transfers[0].Amount.Equal(dec("9850")))
	assert.Equal(t, "AERO1", h.gw.transfers[0].Reference)

	acct := h.account(t)
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("10000")))
	assert.True(t, acct.DailyWithdrawn.Equal(dec("10000")))
	idx := acct.FindTransaction("TRF-1")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, models.StatusProcessing, acct.Transactions[idx].Status)
	assert.True(t, acct.Transactions[idx].Fee.Equal(dec("150")))
}

func TestBankWithdrawal_BelowFloorReprompts(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "20000")
	h.linkBank(t)

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)

	effects, err := h.text(t, "540")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, allText(effects), "Please enter at least ₦550.")
	assert.Equal(t, StepAwaitingAmount, h.engine.State(testUser).Withdraw)
	assert.True(t, h.account(t).Balance(models.AssetNGN).Equal(dec("20000")))
}

func TestBankWithdrawal_PolicyDenied(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "300000")
	h.linkBank(t)

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)

	effects, err := h.text(t, "150000")
	assert.ErrorIs(t, err, ErrPolicyDenied)
	assert.Contains(t, allText(effects), "KYC")
	assert.Equal(t, StepAwaitingAmount, h.engine.State(testUser).Withdraw)
}

func TestBankWithdrawal_TransferFailureCompensates(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "20000")
	h.linkBank(t)
	h.gw.transferErr = &gateway.Error{Op: "transfer", Message: "Insufficient merchant balance", StatusCode: 400}

	before := h.account(t)

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	_, err = h.text(t, "10000")
	require.NoError(t, err)

	effects, err := h.press(t, "confirm_bank_withdraw")
	assert.ErrorIs(t, err, ErrGateway)
	assert.Contains(t, allText(effects), "Insufficient merchant balance")
	assert.Equal(t, State{}, h.engine.State(testUser))

	after := h.account(t)
	assert.True(t, after.Balance(models.AssetNGN).Equal(before.Balance(models.AssetNGN)))
	assert.True(t, after.DailyWithdrawn.Equal(before.DailyWithdrawn))
	assert.Equal(t, before.LastWithdrawalDate, after.LastWithdrawalDate)
	assert.True(t, after.TotalWithdrawn.Equal(before.TotalWithdrawn))

	last := after.Transactions[len(after.Transactions)-1]
	assert.Equal(t, models.KindReversal, last.Kind)
}

func TestBankWithdrawal_NameChangedSinceLinking(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "20000")
	h.linkBank(t)
	h.gw.accountName = "JANE DOE"

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	_, err = h.text(t, "10000")
	require.NoError(t, err)

	_, err = h.press(t, "confirm_bank_withdraw")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, h.gw.transfers)
	assert.True(t, h.account(t).Balance(models.AssetNGN).Equal(dec("20000")))
}

func TestBankWithdrawal_CancelDuringTransferIsBusy(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "20000")
	h.linkBank(t)

	var cancelErr, textErr, restartErr error
	h.gw.onTransfer = func() {
		_, cancelErr = h.press(t, "cancel_action")
		_, textErr = h.text(t, "/cancel")
		_, restartErr = h.press(t, "withdraw_naira")
	}

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	_, err = h.text(t, "10000")
	require.NoError(t, err)

	_, err = h.press(t, "confirm_bank_withdraw")
	require.NoError(t, err)
	assert.ErrorIs(t, cancelErr, ErrFlowBusy)
	assert.ErrorIs(t, textErr, ErrFlowBusy)
	assert.ErrorIs(t, restartErr, ErrFlowBusy)
	assert.Equal(t, StepNone, h.engine.State(testUser).Withdraw)

	acct := h.account(t)
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("10000")))
	idx := acct.FindTransaction("TRF-1")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, models.StatusProcessing, acct.Transactions[idx].Status)
	assert.Len(t, h.gw.transfers, 1)
}

func TestBankWithdrawal_FailedPayoutKeepsOtherReservation(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "50000")
	h.linkBank(t)

	// a second reservation lands while the first payout is with the gateway
	h.gw.transferErr = &gateway.Error{Op: "transfer", Message: "bank unavailable"}
	h.gw.onTransfer = func() {
		_, _, err := h.ledger.Reserve(context.Background(), ledger.ReserveParams{
			UserId: testUser, Amount: dec("20000"), Fee: dec("300"), Reference: "AERO2",
		})
		require.NoError(t, err)
	}

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	_, err = h.text(t, "10000")
	require.NoError(t, err)
	_, err = h.press(t, "confirm_bank_withdraw")
	assert.ErrorIs(t, err, ErrGateway)

	acct := h.account(t)
	assert.Equal(t, "20000", acct.DailyWithdrawn.String())
	assert.Equal(t, "20000", acct.TotalWithdrawn.String())
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("30000")))
}

func TestBankWithdrawal_CompensationRetried(t *testing.T) {
	defer func(prev time.Duration) { settleBackoff = prev }(settleBackoff)
	settleBackoff = time.Millisecond

	mem := store.NewMemoryStore()
	st := &flakyStore{MemoryStore: mem}
	h := newHarnessOn(t, mem, st)
	h.fund(t, models.AssetNGN, "20000")
	h.linkBank(t)

	h.gw.transferErr = &gateway.Error{Op: "transfer", Message: "bank unavailable"}
	h.gw.onTransfer = func() { st.failNext(1) }

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	_, err = h.text(t, "10000")
	require.NoError(t, err)
	effects, err := h.press(t, "confirm_bank_withdraw")
	assert.ErrorIs(t, err, ErrGateway)
	assert.Contains(t, allText(effects), "has been returned to your wallet")

	acct := h.account(t)
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("20000")))
	assert.True(t, acct.DailyWithdrawn.IsZero())
	assert.Equal(t, 0, h.engine.RetrySettlements(context.Background()))
}

func TestBankWithdrawal_CompensationParkedUntilRetried(t *testing.T) {
	defer func(prev time.Duration) { settleBackoff = prev }(settleBackoff)
	settleBackoff = time.Millisecond

	mem := store.NewMemoryStore()
	st := &flakyStore{MemoryStore: mem}
	h := newHarnessOn(t, mem, st)
	h.fund(t, models.AssetNGN, "20000")
	h.linkBank(t)

	h.gw.transferErr = &gateway.Error{Op: "transfer", Message: "bank unavailable"}
	h.gw.onTransfer = func() { st.failNext(settleAttempts) }

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	_, err = h.text(t, "10000")
	require.NoError(t, err)
	_, err = h.press(t, "confirm_bank_withdraw")
	require.Error(t, err)

	acct := h.account(t)
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("10000")))
	var txId string
	for _, tx := range acct.Transactions {
		if tx.Kind == models.KindWithdrawal {
			txId = tx.Id
			assert.Equal(t, models.StatusPending, tx.Status)
		}
	}
	require.NotEmpty(t, txId)
	assert.True(t, h.engine.Parked(txId))

	assert.Equal(t, 1, h.engine.RetrySettlements(context.Background()))
	assert.False(t, h.engine.Parked(txId))
	acct = h.account(t)
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("20000")))
	assert.True(t, acct.DailyWithdrawn.IsZero())
}

func TestBankWithdrawal_KoboRejected(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "20000")
	h.linkBank(t)

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	effects, err := h.text(t, "10000.50")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, allText(effects), "whole Naira")
	assert.Equal(t, StepAwaitingAmount, h.engine.State(testUser).Withdraw)

	_, err = h.text(t, "10000")
	require.NoError(t, err)
	_, err = h.press(t, "confirm_bank_withdraw")
	require.NoError(t, err)
	require.Len(t, h.gw.transfers, 1)
	assert.True(t, h.gw.transfers[0].Amount.Equal(h.gw.transfers[0].Amount.Truncate(0)))
}

func TestBankWithdrawal_DoubleConfirmIsBusy(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "20000")
	h.linkBank(t)

	var second error
	h.gw.onVerify = func() {
		_, second = h.press(t, "confirm_bank_withdraw")
	}

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	_, err = h.text(t, "10000")
	require.NoError(t, err)

	_, err = h.press(t, "confirm_bank_withdraw")
	require.NoError(t, err)
	assert.ErrorIs(t, second, ErrFlowBusy)
	assert.Len(t, h.gw.transfers, 1)
}

func TestCancelAtConfirmation_LeavesBalances(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "20000")
	h.fund(t, models.AssetBTC, "0.5")
	h.linkBank(t)
	before := h.account(t)

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	_, err = h.text(t, "10000")
	require.NoError(t, err)
	require.Equal(t, StepAwaitingConfirmation, h.engine.State(testUser).Withdraw)

	effects, err := h.press(t, "cancel_action")
	require.NoError(t, err)
	assert.IsType(t, AnswerCallback{}, effects[0])
	assert.Contains(t, effects, Effect(DeleteMessage{ChatId: testChat, MessageId: 7}))
	assert.Equal(t, State{}, h.engine.State(testUser))

	after := h.account(t)
	for _, asset := range models.AllAssets {
		assert.True(t, before.Balance(asset).Equal(after.Balance(asset)), asset)
	}
	assert.Len(t, after.Transactions, len(before.Transactions))

	_, err = h.press(t, "confirm_bank_withdraw")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestCryptoSale(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetBTC, "0.01")

	_, err := h.press(t, "withdraw_btc")
	require.NoError(t, err)

	effects, err := h.text(t, "0.01")
	require.NoError(t, err)
	assert.Contains(t, allText(effects), "₦500,000.00")

	effects, err = h.press(t, "confirm_withdraw")
	require.NoError(t, err)
	assert.Contains(t, allText(effects), "Sale successful")

	acct := h.account(t)
	assert.True(t, acct.Balance(models.AssetBTC).IsZero())
	assert.True(t, acct.Balance(models.AssetNGN).Equal(dec("500000")))
	last := acct.Transactions[len(acct.Transactions)-1]
	assert.Equal(t, models.KindCryptoSale, last.Kind)
}

func TestCryptoSale_Insufficient(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetBTC, "0.01")

	_, err := h.press(t, "withdraw_btc")
	require.NoError(t, err)

	_, err = h.text(t, "0.02")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, StepAwaitingAmount, h.engine.State(testUser).Withdraw)

	_, err = h.text(t, "abc")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSwap_RoundTripLosesValue(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetBTC, "0.01")

	_, err := h.text(t, "BTC → USDT")
	require.NoError(t, err)
	_, err = h.text(t, "0.01")
	require.NoError(t, err)
	_, err = h.press(t, "confirm_swap")
	require.NoError(t, err)

	received := h.account(t).Balance(models.AssetUSDT)
	assert.True(t, received.Equal(dec("348.25")), received.String())
	assert.True(t, h.account(t).Balance(models.AssetBTC).IsZero())

	_, err = h.text(t, "USDT → BTC")
	require.NoError(t, err)
	_, err = h.text(t, received.String())
	require.NoError(t, err)
	_, err = h.press(t, "confirm_swap")
	require.NoError(t, err)

	back := h.account(t).Balance(models.AssetBTC)
	assert.True(t, back.LessThan(dec("0.01")), back.String())
	assert.True(t, h.account(t).Balance(models.AssetUSDT).IsZero())
}

func TestSwap_BalanceRecheckedAtConfirm(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetBTC, "0.01")

	_, err := h.text(t, "BTC → USDT")
	require.NoError(t, err)
	_, err = h.text(t, "0.01")
	require.NoError(t, err)

	_, _, err = h.ledger.Debit(context.Background(), testUser, models.AssetBTC, dec("0.005"), ledger.Entry{Kind: models.KindWithdrawal})
	require.NoError(t, err)

	_, err = h.press(t, "confirm_swap")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, h.account(t).Balance(models.AssetUSDT).IsZero())
	assert.True(t, h.account(t).Balance(models.AssetBTC).Equal(dec("0.005")))
}

func TestSwap_UseAll(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetSOL, "2")

	_, err := h.text(t, "SOL → USDT")
	require.NoError(t, err)

	effects, err := h.press(t, "use_all_sol")
	require.NoError(t, err)
	assert.Contains(t, allText(effects), "Confirm Swap")
	assert.Equal(t, StepAwaitingConfirmation, h.engine.State(testUser).Swap)
}

func TestBankLinking_NameMatchIgnoresCase(t *testing.T) {
	h := newHarness(t)

	_, err := h.press(t, "add_bank_account")
	require.NoError(t, err)
	assert.Equal(t, StepAwaitingBankSelection, h.engine.State(testUser).Bank)

	_, err = h.press(t, "bank_selected_058")
	require.NoError(t, err)
	_, err = h.text(t, "0123456789")
	require.NoError(t, err)
	assert.Equal(t, StepAwaitingAccountName, h.engine.State(testUser).Bank)

	effects, err := h.text(t, "john  doe")
	require.NoError(t, err)
	assert.Contains(t, allText(effects), "Verified Successfully")
	assert.Equal(t, State{}, h.engine.State(testUser))

	bank := h.account(t).BankAccount
	require.NotNil(t, bank)
	assert.True(t, bank.Verified)
	assert.Equal(t, "JOHN DOE", bank.AccountName)
	assert.Equal(t, "GTBank", bank.BankName)
}

func TestBankLinking_NameMismatchPersistsNothing(t *testing.T) {
	h := newHarness(t)
	h.gw.accountName = "john doe"

	_, err := h.press(t, "add_bank_account")
	require.NoError(t, err)
	_, err = h.press(t, "bank_selected_058")
	require.NoError(t, err)
	_, err = h.text(t, "0123456789")
	require.NoError(t, err)

	effects, err := h.text(t, "john smith")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, allText(effects), "doesn't match")
	assert.Equal(t, State{}, h.engine.State(testUser))
	assert.Nil(t, h.account(t).BankAccount)
}

func TestBankLinking_InvalidInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.press(t, "add_bank_account")
	require.NoError(t, err)
	_, err = h.press(t, "bank_selected_999")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.press(t, "bank_selected_044")
	require.NoError(t, err)

	_, err = h.text(t, "12345")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, StepAwaitingAccountNumber, h.engine.State(testUser).Bank)

	_, err = h.text(t, "0123456789")
	require.NoError(t, err)
	_, err = h.text(t, "John")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, StepAwaitingAccountName, h.engine.State(testUser).Bank)
}

func TestBankLinking_StaleVerificationDiscarded(t *testing.T) {
	h := newHarness(t)
	h.gw.onVerify = func() {
		_, err := h.press(t, "cancel_action")
		require.NoError(t, err)
	}

	_, err := h.press(t, "add_bank_account")
	require.NoError(t, err)
	_, err = h.press(t, "bank_selected_058")
	require.NoError(t, err)
	_, err = h.text(t, "0123456789")
	require.NoError(t, err)

	effects, err := h.text(t, "John Doe")
	assert.ErrorIs(t, err, ErrStaleResponse)
	assert.Empty(t, effects)
	assert.Nil(t, h.account(t).BankAccount)
}

func TestSessionExpired(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetBTC, "0.01")

	_, err := h.press(t, "withdraw_btc")
	require.NoError(t, err)

	h.store.Delete(testUser)

	effects, err := h.text(t, "0.01")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Contains(t, allText(effects), "Session expired")
	assert.Equal(t, State{}, h.engine.State(testUser))

	_, err = h.press(t, "confirm_withdraw")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestStartWithReferral(t *testing.T) {
	h := newHarness(t)
	code := h.account(t).ReferralCode

	effects, err := h.engine.Handle(context.Background(), TextMessage{UserId: "2002", ChatId: 2002, Text: "/start " + code})
	require.NoError(t, err)
	assert.Contains(t, allText(effects), "referral link")

	friend, err := h.ledger.Account(context.Background(), "2002")
	require.NoError(t, err)
	assert.True(t, friend.Balance(models.AssetNGN).Equal(dec("500")))
	assert.True(t, h.account(t).Balance(models.AssetNGN).Equal(dec("100")))
}

func TestUnknownCallbackIsAnswered(t *testing.T) {
	h := newHarness(t)

	effects, err := h.press(t, "nonsense")
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, AnswerCallback{CallbackId: "cb-nonsense"}, effects[0])

	effects, err = h.text(t, "hello")
	require.NoError(t, err)
	assert.Contains(t, allText(effects), "Please use the menu buttons")
}

func TestCheckStatusRefinesLedger(t *testing.T) {
	h := newHarness(t)
	h.fund(t, models.AssetNGN, "20000")
	h.linkBank(t)

	_, err := h.press(t, "withdraw_naira")
	require.NoError(t, err)
	_, err = h.text(t, "10000")
	require.NoError(t, err)
	_, err = h.press(t, "confirm_bank_withdraw")
	require.NoError(t, err)

	h.gw.status = &models.TransferStatus{TransferId: "TRF-1", Reference: "AERO1", Status: "SUCCESSFUL", Amount: dec("9850")}
	effects, err := h.press(t, "check_status_TRF-1")
	require.NoError(t, err)
	assert.Contains(t, allText(effects), "SUCCESSFUL")

	acct := h.account(t)
	assert.Equal(t, "SUCCESSFUL", acct.Transactions[acct.FindTransaction("TRF-1")].Status)
}

func TestCheckStatus_OtherUsersTransfer(t *testing.T) {
	h := newHarness(t)
	h.gw.status = &models.TransferStatus{TransferId: "TRF-OTHER", Reference: "AERO9", Status: "SUCCESSFUL", Amount: dec("500000")}

	effects, err := h.press(t, "check_status_TRF-OTHER")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, allText(effects), "Transfer not found")
	assert.NotContains(t, allText(effects), "AERO9")
}

func TestCreditDeposit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	n := DepositNotification{Address: "btc-1001", Amount: "0.5", Currency: "BTC", TxHash: "0xabc", Network: "bitcoin"}

	res, effects, err := h.engine.CreditDeposit(ctx, n)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, effects, 1)
	assert.Equal(t, testChat, effects[0].(SendText).ChatId)

	acct := h.account(t)
	assert.True(t, acct.Balance(models.AssetBTC).Equal(dec("0.5")))
	assert.True(t, acct.TotalDeposited.Equal(dec("25000000")))

	res, effects, err = h.engine.CreditDeposit(ctx, n)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Empty(t, effects)
	assert.True(t, h.account(t).Balance(models.AssetBTC).Equal(dec("0.5")))

	_, _, err = h.engine.CreditDeposit(ctx, DepositNotification{Address: "unknown", Amount: "1", TxHash: "0xdef"})
	assert.ErrorIs(t, err, ErrAddressResolution)

	_, _, err = h.engine.CreditDeposit(ctx, DepositNotification{Address: "btc-1001", Amount: "-1", TxHash: "0x123"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		in     string
		places int32
		want   string
	}{
		{"1234567.891", 2, "1,234,567.89"},
		{"0", 2, "0.00"},
		{"999", 2, "999.00"},
		{"-1234.5", 2, "-1,234.50"},
		{"0.00012345", 8, "0.00012345"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, formatNumber(dec(c.in), c.places), c.in)
	}
}

func TestParseInputs(t *testing.T) {
	from, to, ok := parseSwapPair("BTC → USDT")
	require.True(t, ok)
	assert.Equal(t, models.AssetBTC, from)
	assert.Equal(t, models.AssetUSDT, to)

	_, _, ok = parseSwapPair("BTC → BTC")
	assert.False(t, ok)
	_, _, ok = parseSwapPair("NGN → BTC")
	assert.False(t, ok)

	amount, err := parseAmount("₦10,000.50")
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("10000.50")))
	_, err = parseAmount("0")
	assert.ErrorIs(t, err, ErrValidation)

	assert.True(t, validAccountName("Ada Obi"))
	assert.False(t, validAccountName("A B"))
	assert.Equal(t, "john doe", normalizeName("  JOHN   Doe "))
}
