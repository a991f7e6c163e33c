package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateProvider supplies quotes. It degrades to static rates instead of failing.
type RateProvider interface {
	GetRates(ctx context.Context) models.Rates
}

// PaymentGateway verifies bank accounts and pays out naira.
type PaymentGateway interface {
	VerifyAccount(ctx context.Context, accountNumber, bankCode string) (*models.AccountInfo, error)
	Transfer(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error)
	CheckStatus(ctx context.Context, transferId string) (*models.TransferStatus, error)
	ListBanks(ctx context.Context) []models.Bank
}

// AddressResolver maps a deposit address back to its owner.
type AddressResolver interface {
	Resolve(address string) (userId string, asset models.Asset, ok bool)
}

type Options struct {
	BusinessName  string
	SupportHandle string
	BotUsername   string
	Policy        models.PolicyConfig
	Catalog       map[models.Asset]models.AssetInfo

	// DepositAccount is where users send naira top-ups.
	DepositAccount models.BankAccount
}

// DefaultPolicy is the fee and limit schedule used when none is configured.
func DefaultPolicy() models.PolicyConfig {
	return models.PolicyConfig{
		KYCThreshold:         decimal.NewFromInt(100000),
		DailyWithdrawalLimit: decimal.NewFromInt(500000),
		WithdrawalFeeRate:    decimal.RequireFromString("0.015"),
		MinWithdrawalFee:     decimal.NewFromInt(50),
		MinNetWithdrawal:     decimal.NewFromInt(500),
		SwapFeeRate:          decimal.RequireFromString("0.005"),
	}
}

func (o *Options) setDefaults() {
	def := DefaultPolicy()
	p := &o.Policy
	if p.KYCThreshold.IsZero() {
		p.KYCThreshold = def.KYCThreshold
	}
	if p.DailyWithdrawalLimit.IsZero() {
		p.DailyWithdrawalLimit = def.DailyWithdrawalLimit
	}
	if p.WithdrawalFeeRate.IsZero() {
		p.WithdrawalFeeRate = def.WithdrawalFeeRate
	}
	if p.MinWithdrawalFee.IsZero() {
		p.MinWithdrawalFee = def.MinWithdrawalFee
	}
	if p.MinNetWithdrawal.IsZero() {
		p.MinNetWithdrawal = def.MinNetWithdrawal
	}
	if p.SwapFeeRate.IsZero() {
		p.SwapFeeRate = def.SwapFeeRate
	}
	if o.BusinessName == "" {
		o.BusinessName = "Aerosoft"
	}
	if o.DepositAccount.AccountNumber == "" {
		o.DepositAccount = models.BankAccount{
			BankName:      o.BusinessName + " Bank",
			AccountNumber: "0123456789",
			AccountName:   o.BusinessName + " Trade",
		}
	}
	if len(o.Catalog) == 0 {
		o.Catalog = models.DefaultAssetCatalog()
	}
}

// Engine drives the chat flows. All state changes for one user are
// serialized on that user's session lock; provider calls run unlocked.
type Engine struct {
	ledger   *ledger.Ledger
	rates    RateProvider
	gateway  PaymentGateway
	resolver AddressResolver
	opts     Options
	catalog  map[models.Asset]models.AssetInfo

	mu       sync.Mutex
	sessions map[string]*session

	banksMu sync.RWMutex
	banks   []models.Bank

	parkedMu sync.Mutex
	parked   map[string]parkedSettlement

	newReference func() string
}

func New(l *ledger.Ledger, rates RateProvider, gateway PaymentGateway, resolver AddressResolver, opts Options) *Engine {
	opts.setDefaults()
	e := &Engine{
		ledger:   l,
		rates:    rates,
		gateway:  gateway,
		resolver: resolver,
		opts:     opts,
		catalog:  opts.Catalog,
		sessions: make(map[string]*session),
		parked:   make(map[string]parkedSettlement),
	}
	e.newReference = e.reference
	return e
}

// reference builds a payout reference such as AERO1718000000000A1B2C.
func (e *Engine) reference() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:5]
	return strings.ToUpper(fmt.Sprintf("AERO%d%s", e.ledger.Now().UnixMilli(), suffix))
}

// Handle processes one event and returns the effects to deliver. The error,
// when set, is the classified user-facing failure already rendered into the
// effects.
func (e *Engine) Handle(ctx context.Context, ev Event) ([]Effect, error) {
	switch ev := ev.(type) {
	case TextMessage:
		s := e.session(ev.UserId)
		s.mu.Lock()
		defer s.mu.Unlock()
		return e.handleText(ctx, s, ev)
	case ButtonPress:
		s := e.session(ev.UserId)
		s.mu.Lock()
		defer s.mu.Unlock()
		effects, err := e.handleButton(ctx, s, ev)
		return ensureAnswered(effects, ev.CallbackId), err
	case DepositNotification:
		_, effects, err := e.CreditDeposit(ctx, ev)
		return effects, err
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}
}

// ensureAnswered appends a silent acknowledgement unless a handler already
// answered the callback.
func ensureAnswered(effects []Effect, callbackId string) []Effect {
	if callbackId == "" {
		return effects
	}
	for _, eff := range effects {
		if _, ok := eff.(AnswerCallback); ok {
			return effects
		}
	}
	return append([]Effect{AnswerCallback{CallbackId: callbackId}}, effects...)
}

func send(chatId int64, text string) SendText {
	return SendText{ChatId: chatId, Text: text}
}

func sendMarkdown(chatId int64, text string, kb *InlineKeyboard) SendText {
	return SendText{ChatId: chatId, Text: text, Markdown: true, Inline: kb}
}

func alert(callbackId, text string) AnswerCallback {
	return AnswerCallback{CallbackId: callbackId, Text: text, Alert: true}
}

// account loads the user's record, creating it on first contact.
func (e *Engine) account(ctx context.Context, userId string, chatId int64) (*models.Account, error) {
	acct, _, err := e.ledger.OpenAccount(ctx, ledger.OpenParams{UserId: userId, ChatId: chatId})
	return acct, err
}

// existing loads the user's record without creating it.
func (e *Engine) existing(ctx context.Context, userId string) (*models.Account, error) {
	acct, err := e.ledger.Account(ctx, userId)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, ErrSessionExpired
	}
	return acct, err
}

func (e *Engine) expired(s *session, chatId int64) ([]Effect, error) {
	s.clear()
	return []Effect{SendText{
		ChatId: chatId,
		Text:   "⌛ Session expired. Please restart with /start",
		Reply:  mainKeyboard(),
	}}, ErrSessionExpired
}

func (e *Engine) handleText(ctx context.Context, s *session, ev TextMessage) ([]Effect, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return nil, nil
	}

	if text == "/start" || strings.HasPrefix(text, "/start ") {
		return e.start(ctx, s, ev, strings.TrimSpace(strings.TrimPrefix(text, "/start")))
	}
	if text == menuBack || text == "/cancel" {
		if s.payoutInFlight() {
			return []Effect{send(ev.ChatId, "⏳ Your withdrawal is being processed, please wait.")}, ErrFlowBusy
		}
		s.clear()
		return []Effect{SendText{ChatId: ev.ChatId, Text: "🏠 Main Menu", Reply: mainKeyboard()}}, nil
	}

	if s.active() {
		if _, err := e.existing(ctx, ev.UserId); err != nil {
			if errors.Is(err, ErrSessionExpired) {
				return e.expired(s, ev.ChatId)
			}
			return e.internalError(ev.ChatId, err)
		}
		if s.busy() {
			return []Effect{send(ev.ChatId, "⏳ Still processing your last request, please wait.")}, ErrFlowBusy
		}
	}

	switch {
	case s.swap != nil && s.swap.step == StepAwaitingAmount:
		return e.swapAmount(ctx, s, ev.UserId, ev.ChatId, text)
	case s.withdraw != nil && s.withdraw.step == StepAwaitingAmount && !s.withdraw.bank():
		return e.saleAmount(ctx, s, ev.UserId, ev.ChatId, text)
	case s.bank != nil && s.bank.step == StepAwaitingAccountNumber:
		return e.bankAccountNumber(s, ev.ChatId, text)
	case s.bank != nil && s.bank.step == StepAwaitingAccountName:
		return e.bankAccountName(ctx, s, ev.UserId, ev.ChatId, text)
	case s.withdraw != nil && s.withdraw.step == StepAwaitingAmount && s.withdraw.bank():
		return e.payoutAmount(ctx, s, ev.UserId, ev.ChatId, text)
	}

	acct, err := e.account(ctx, ev.UserId, ev.ChatId)
	if err != nil {
		return e.internalError(ev.ChatId, err)
	}
	return e.menu(ctx, s, acct, ev.ChatId, text)
}

func (e *Engine) handleButton(ctx context.Context, s *session, ev ButtonPress) ([]Effect, error) {
	acct, err := e.existing(ctx, ev.UserId)
	if err != nil {
		s.clear()
		if errors.Is(err, ErrSessionExpired) {
			return []Effect{alert(ev.CallbackId, "Session expired. Please restart with /start")}, err
		}
		zap.L().Error("Failed to load account", zap.String("user_id", ev.UserId), zap.Error(err))
		return []Effect{alert(ev.CallbackId, "❌ An error occurred. Please try again.")}, err
	}
	if ev.ChatId != 0 && acct.ChatId != ev.ChatId {
		if acct, _, err = e.ledger.OpenAccount(ctx, ledger.OpenParams{UserId: ev.UserId, ChatId: ev.ChatId}); err != nil {
			return e.internalError(ev.ChatId, err)
		}
	}

	data := ev.Data
	switch {
	case data == "back_to_menu" || data == "cancel_action":
		if s.payoutInFlight() {
			return []Effect{alert(ev.CallbackId, "⏳ Your withdrawal is being processed, please wait.")}, ErrFlowBusy
		}
		s.clear()
		return []Effect{
			DeleteMessage{ChatId: ev.ChatId, MessageId: ev.MessageId},
			SendText{ChatId: ev.ChatId, Text: "🏠 Main Menu", Reply: mainKeyboard()},
		}, nil
	case data == "refresh_rates":
		text, kb := e.ratesView(ctx, s)
		return []Effect{EditMessage{ChatId: ev.ChatId, MessageId: ev.MessageId, Text: text, Markdown: true, Inline: kb}}, nil
	case strings.HasPrefix(data, "deposit_"):
		return e.depositView(acct, ev.ChatId, strings.TrimPrefix(data, "deposit_"))
	case strings.HasPrefix(data, "copy_address_"):
		return e.copyAddress(acct, ev, strings.TrimPrefix(data, "copy_address_"))
	case strings.HasPrefix(data, "check_status_"):
		return e.checkStatus(ctx, s, acct, ev, strings.TrimPrefix(data, "check_status_"))
	case strings.HasPrefix(data, "check_") && strings.HasSuffix(data, "_balance"):
		return e.balanceAlert(acct, ev, strings.TrimSuffix(strings.TrimPrefix(data, "check_"), "_balance"))
	case strings.HasPrefix(data, "use_all_"):
		return e.useAll(ctx, s, acct, ev, strings.TrimPrefix(data, "use_all_"))
	case data == "share_referral":
		return e.shareReferral(acct, ev.ChatId)
	case data == "my_referrals":
		return e.myReferrals(acct, ev.ChatId)
	case data == "back_to_referral":
		return []Effect{e.referralView(acct, ev.ChatId, true)}, nil
	case data == "claim_rewards":
		return []Effect{alert(ev.CallbackId, "✅ All rewards are automatically added to your Naira wallet!")}, nil
	case data == "confirm_swap":
		return e.confirmSwap(ctx, s, ev)
	case data == "confirm_withdraw":
		return e.confirmSale(ctx, s, ev)
	case data == "confirm_bank_withdraw":
		return e.confirmPayout(ctx, s, ev)
	case strings.HasPrefix(data, "withdraw_"):
		return e.startWithdraw(s, acct, ev, strings.TrimPrefix(data, "withdraw_"))
	case data == "add_bank_account":
		return e.startBankLink(ctx, s, ev.ChatId)
	case strings.HasPrefix(data, "bank_selected_"):
		return e.selectBank(ctx, s, ev, strings.TrimPrefix(data, "bank_selected_"))
	case data == "view_bank_details":
		return e.bankDetails(acct, ev.ChatId)
	case data == "remove_bank_account":
		return e.confirmRemoveBankPrompt(acct, ev)
	case data == "confirm_remove_bank":
		return e.removeBank(ctx, s, ev)
	}

	zap.L().Debug("Ignoring unknown callback", zap.String("user_id", ev.UserId), zap.String("data", data))
	return []Effect{AnswerCallback{CallbackId: ev.CallbackId}}, nil
}

func (e *Engine) internalError(chatId int64, err error) ([]Effect, error) {
	zap.L().Error("Engine operation failed", zap.Int64("chat_id", chatId), zap.Error(err))
	return []Effect{SendText{ChatId: chatId, Text: "❌ An error occurred. Please try again.", Reply: mainKeyboard()}}, err
}

// Banks returns the bank directory, refreshing the cached copy.
func (e *Engine) Banks(ctx context.Context) []models.Bank {
	banks := e.gateway.ListBanks(ctx)
	e.banksMu.Lock()
	e.banks = banks
	e.banksMu.Unlock()
	return banks
}

func (e *Engine) cachedBanks() []models.Bank {
	e.banksMu.RLock()
	defer e.banksMu.RUnlock()
	return e.banks
}

func (e *Engine) now() time.Time {
	return e.ledger.Now()
}
