package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"naira-wallet-bot-go/internal/gateway"
	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WithdrawalFee is max(rate × amount, minimum), rounded up to whole naira so
// that a whole-naira amount leaves a whole-naira payout.
func WithdrawalFee(cfg models.PolicyConfig, amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(cfg.WithdrawalFeeRate).Ceil()
	if fee.LessThan(cfg.MinWithdrawalFee) {
		return cfg.MinWithdrawalFee
	}
	return fee
}

func (e *Engine) startWithdraw(s *session, acct *models.Account, ev ButtonPress, wallet string) ([]Effect, error) {
	asset, err := models.ParseAsset(wallet)
	if err != nil {
		return []Effect{alert(ev.CallbackId, "❌ Unknown wallet")}, invalid("unknown wallet %q", wallet)
	}
	if s.busy() {
		return []Effect{alert(ev.CallbackId, "⏳ Still processing your last request, please wait.")}, ErrFlowBusy
	}
	if asset.IsFiat() && (acct.BankAccount == nil || !acct.BankAccount.Verified) {
		return []Effect{alert(ev.CallbackId, "❌ Please add a bank account first")}, wrap(ErrValidation, ledger.ErrNoBankAccount)
	}

	s.clear()
	s.withdraw = &withdrawFlow{step: StepAwaitingAmount, asset: asset, nonce: newNonce()}

	var prompt string
	if asset.IsFiat() {
		prompt = fmt.Sprintf("💰 Enter amount to withdraw (in Naira):\n\nAvailable: %s", naira(acct.Balance(asset)))
	} else {
		prompt = fmt.Sprintf("💰 Enter amount of %s to sell:\n\nAvailable: %s",
			asset, formatNumber(acct.Balance(asset), e.places(asset)))
	}
	return []Effect{SendText{ChatId: ev.ChatId, Text: prompt, Inline: cancelKeyboard()}}, nil
}

// quote fetches rates with the session unlocked. ok is false when the flow
// was cancelled or replaced meanwhile.
func (e *Engine) quote(ctx context.Context, s *session, still func() bool) (models.Rates, bool) {
	var rates models.Rates
	s.unlocked(func() {
		rates = e.rates.GetRates(ctx)
	})
	return rates, still()
}

func (e *Engine) saleAmount(ctx context.Context, s *session, userId string, chatId int64, text string) ([]Effect, error) {
	f := s.withdraw
	amount, err := parseAmount(text)
	if err != nil {
		return []Effect{send(chatId, "❌ Please enter a valid positive number")}, err
	}

	acct, err := e.existing(ctx, userId)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return e.expired(s, chatId)
		}
		return e.internalError(chatId, err)
	}
	available := acct.Balance(f.asset)
	if amount.GreaterThan(available) {
		return []Effect{send(chatId, fmt.Sprintf("❌ Insufficient balance!\nAvailable: %s %s",
			formatNumber(available, e.places(f.asset)), f.asset))}, ErrInsufficientBalance
	}

	nonce := f.nonce
	rates, ok := e.quote(ctx, s, func() bool { return s.withdraw == f && f.nonce == nonce })
	if !ok {
		return nil, ErrStaleResponse
	}
	q, found := rates.Quote(f.asset)
	if !found || !q.NGN.IsPositive() {
		return []Effect{send(chatId, "❌ Rates are unavailable right now. Please try again later.")}, fmt.Errorf("no NGN quote for %s", f.asset)
	}

	f.amount = amount
	f.rate = q.NGN
	f.ngnAmount = amount.Mul(q.NGN).Truncate(2)
	f.step = StepAwaitingConfirmation

	text = fmt.Sprintf("⚠️ *Confirm Crypto Sale*\n\n"+
		"💰 Amount: %s %s\n"+
		"💵 You'll receive: %s\n"+
		"📊 Fee: ₦0\n"+
		"📈 Total: %s",
		formatNumber(amount, e.places(f.asset)), f.asset, naira(f.ngnAmount), naira(f.ngnAmount))
	kb := inline(
		row(btn("✅ Confirm Sale", "confirm_withdraw")),
		row(btn("❌ Cancel", "cancel_action")),
	)
	return []Effect{sendMarkdown(chatId, text, kb)}, nil
}

func (e *Engine) confirmSale(ctx context.Context, s *session, ev ButtonPress) ([]Effect, error) {
	f := s.withdraw
	if f == nil || f.bank() || f.step != StepAwaitingConfirmation {
		s.withdraw = nil
		return []Effect{alert(ev.CallbackId, "Session expired")}, ErrSessionExpired
	}

	acct, tx, err := e.ledger.TransferInternal(ctx, ev.UserId, ledger.TransferParams{
		Kind:         models.KindCryptoSale,
		From:         f.asset,
		To:           models.AssetNGN,
		DebitAmount:  f.amount,
		CreditAmount: f.ngnAmount,
		Rate:         f.rate,
	})
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		s.withdraw = nil
		return []Effect{alert(ev.CallbackId, "❌ Insufficient balance")}, wrap(ErrInsufficientBalance, err)
	case errors.Is(err, store.ErrAccountNotFound):
		s.clear()
		return []Effect{alert(ev.CallbackId, "Session expired")}, ErrSessionExpired
	case err != nil:
		s.withdraw = nil
		return e.internalError(ev.ChatId, err)
	}
	s.withdraw = nil

	text := fmt.Sprintf("✅ *Crypto Sale Successful!*\n\n"+
		"💰 Amount: %s %s\n"+
		"💵 Received: %s\n"+
		"📊 New %s Balance: %s\n"+
		"📊 New Naira Balance: %s",
		formatNumber(tx.Amount, e.places(tx.Asset)), tx.Asset,
		naira(tx.CounterAmount),
		tx.Asset, formatNumber(acct.Balance(tx.Asset), e.places(tx.Asset)),
		naira(acct.Balance(models.AssetNGN)))
	return []Effect{
		alert(ev.CallbackId, "✅ Sale successful!"),
		EditMessage{ChatId: ev.ChatId, MessageId: ev.MessageId, Text: text, Markdown: true, Inline: menuButtonKeyboard()},
	}, nil
}

func (e *Engine) payoutAmount(ctx context.Context, s *session, userId string, chatId int64, text string) ([]Effect, error) {
	f := s.withdraw
	amount, err := parseAmount(text)
	if err != nil {
		return []Effect{send(chatId, "❌ Please enter a valid amount")}, err
	}

	acct, err := e.existing(ctx, userId)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return e.expired(s, chatId)
		}
		return e.internalError(chatId, err)
	}
	if acct.BankAccount == nil || !acct.BankAccount.Verified {
		s.withdraw = nil
		return []Effect{send(chatId, "❌ Please add a bank account first")}, wrap(ErrValidation, ledger.ErrNoBankAccount)
	}
	// payouts go out in whole naira
	if !amount.Equal(amount.Truncate(0)) {
		return []Effect{send(chatId, "❌ Please enter a whole Naira amount (no kobo)")}, invalid("payout amount %s has kobo", amount)
	}
	balance := acct.Balance(models.AssetNGN)
	if amount.GreaterThan(balance) {
		return []Effect{send(chatId, "❌ Insufficient balance!\nAvailable: "+naira(balance))}, ErrInsufficientBalance
	}

	cfg := e.opts.Policy
	fee := WithdrawalFee(cfg, amount)
	net := amount.Sub(fee)
	if net.LessThan(cfg.MinNetWithdrawal) {
		text := fmt.Sprintf("❌ Minimum withdrawal is %s after fees.\n\n"+
			"Amount: %s\nFee: %s\nNet: %s\n\n"+
			"Please enter at least %s.",
			naira(cfg.MinNetWithdrawal), naira(amount), naira(fee), naira(net),
			wholeNaira(cfg.MinNetWithdrawal.Add(cfg.MinWithdrawalFee)))
		return []Effect{send(chatId, text)}, invalid("net %s below minimum %s", net, cfg.MinNetWithdrawal)
	}

	if d := e.ledger.Guard().CheckWithdrawal(acct, amount, e.now()); !d.Allowed {
		return []Effect{send(chatId, denialText(d.Reason, d.Limit, d.UsedToday, d.Remaining))}, wrap(ErrPolicyDenied, errors.New(d.Reason))
	}

	f.amount = amount
	f.fee = fee
	f.net = net
	f.step = StepAwaitingConfirmation

	bank := acct.BankAccount
	msg := fmt.Sprintf("⚠️ *Confirm Bank Withdrawal*\n\n"+
		"🏦 Bank: %s\n"+
		"👤 Account: %s\n\n"+
		"💰 Amount: %s\n"+
		"💸 Fee (%s%%): %s\n"+
		"📥 You Receive: %s\n\n"+
		"📊 Current Balance: %s\n"+
		"📊 New Balance: %s\n\n"+
		"Do you want to proceed?",
		escape(bank.BankName), escape(bank.AccountName),
		naira(amount), percent(cfg.WithdrawalFeeRate), naira(fee), naira(net),
		naira(balance), naira(balance.Sub(amount)))
	kb := inline(
		row(btn("✅ Confirm Withdrawal", "confirm_bank_withdraw")),
		row(btn("❌ Cancel", "cancel_action")),
	)
	return []Effect{sendMarkdown(chatId, msg, kb)}, nil
}

func denialText(reason string, limit, used, remaining decimal.Decimal) string {
	if reason != "" {
		reason = strings.ToUpper(reason[:1]) + reason[1:]
	}
	return fmt.Sprintf("❌ %s\n\nDaily Limit: %s\nUsed Today: %s\nRemaining: %s",
		reason, naira(limit), naira(used), naira(remaining))
}

// gatewayMessage extracts the provider's own wording for the user.
func gatewayMessage(err error) string {
	var gerr *gateway.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return gerr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "payment provider timed out, please try again later"
	}
	return "payment provider error, please try again later"
}

// confirmPayout runs the bank withdrawal saga: verify the beneficiary,
// reserve the funds, ask the gateway to pay out the net amount, then commit
// on success or compensate on failure. The session lock is released around
// both gateway calls.
func (e *Engine) confirmPayout(ctx context.Context, s *session, ev ButtonPress) ([]Effect, error) {
	f := s.withdraw
	if f == nil || !f.bank() || f.step != StepAwaitingConfirmation {
		s.withdraw = nil
		return []Effect{alert(ev.CallbackId, "Session expired")}, ErrSessionExpired
	}
	if f.submitting {
		return []Effect{alert(ev.CallbackId, "⏳ Your withdrawal is already being processed.")}, ErrFlowBusy
	}

	acct, err := e.existing(ctx, ev.UserId)
	if err != nil {
		s.clear()
		if errors.Is(err, ErrSessionExpired) {
			return []Effect{alert(ev.CallbackId, "Session expired")}, err
		}
		return e.internalError(ev.ChatId, err)
	}
	if acct.BankAccount == nil || !acct.BankAccount.Verified {
		s.withdraw = nil
		return []Effect{alert(ev.CallbackId, "❌ Please add a bank account first")}, wrap(ErrValidation, ledger.ErrNoBankAccount)
	}
	bank := *acct.BankAccount

	nonce := newNonce()
	f.nonce = nonce
	f.submitting = true
	current := func() bool { return s.withdraw == f && f.nonce == nonce }

	var info *models.AccountInfo
	s.unlocked(func() {
		info, err = e.gateway.VerifyAccount(ctx, bank.AccountNumber, bank.BankCode)
	})
	if !current() {
		zap.L().Info("Discarding stale beneficiary check", zap.String("user_id", ev.UserId))
		return nil, ErrStaleResponse
	}
	if err != nil {
		s.withdraw = nil
		return []Effect{alert(ev.CallbackId, "❌ Withdrawal failed: "+gatewayMessage(err))}, wrap(ErrGateway, err)
	}
	if normalizeName(info.AccountName) != normalizeName(bank.AccountName) {
		s.withdraw = nil
		zap.L().Warn("Beneficiary name changed since linking",
			zap.String("user_id", ev.UserId),
			zap.String("bank_code", bank.BankCode))
		return []Effect{alert(ev.CallbackId, "❌ Withdrawal failed: bank account name no longer matches. Please re-link your bank account.")},
			invalid("beneficiary name mismatch")
	}

	res, _, err := e.ledger.Reserve(ctx, ledger.ReserveParams{
		UserId:    ev.UserId,
		Amount:    f.amount,
		Fee:       f.fee,
		Reference: e.newReference(),
	})
	if err != nil {
		s.withdraw = nil
		return e.reserveFailed(ev, err)
	}

	var result *models.TransferResult
	s.unlocked(func() {
		result, err = e.gateway.Transfer(ctx, models.TransferRequest{
			BankCode:        res.Bank.BankCode,
			AccountNumber:   res.Bank.AccountNumber,
			Amount:          res.Net,
			Reference:       res.Reference,
			BeneficiaryName: res.Bank.AccountName,
		})
	})
	if err == nil && result == nil {
		err = errors.New("gateway returned no transfer")
	}

	// The reservation is settled whether or not the flow is still current.
	settleCtx := context.WithoutCancel(ctx)
	if current() {
		s.withdraw = nil
	}

	if err != nil {
		after, cerr := e.settle(settleCtx, res, nil, err.Error())
		if cerr != nil {
			zap.L().Error("Failed to compensate withdrawal",
				zap.String("user_id", ev.UserId),
				zap.String("reference", res.Reference),
				zap.Error(cerr))
			return e.internalError(ev.ChatId, cerr)
		}
		text := fmt.Sprintf("❌ *Withdrawal Failed*\n\n%s\n\n💰 %s has been returned to your wallet.\n📊 Balance: %s",
			escape(gatewayMessage(err)), naira(res.Amount), naira(after.Balance(models.AssetNGN)))
		return []Effect{
			alert(ev.CallbackId, "❌ Withdrawal failed: "+gatewayMessage(err)),
			EditMessage{ChatId: ev.ChatId, MessageId: ev.MessageId, Text: text, Markdown: true, Inline: menuButtonKeyboard()},
		}, wrap(ErrGateway, err)
	}

	after, err := e.settle(settleCtx, res, result, "")
	if err != nil {
		zap.L().Error("Failed to commit withdrawal",
			zap.String("user_id", ev.UserId),
			zap.String("reference", res.Reference),
			zap.String("transfer_id", result.TransferId),
			zap.Error(err))
		return e.internalError(ev.ChatId, err)
	}

	reference := result.Reference
	if reference == "" {
		reference = res.Reference
	}
	text := fmt.Sprintf("✅ *Withdrawal Initiated!*\n\n"+
		"💰 Amount: %s\n"+
		"💸 Fee: %s\n"+
		"📥 Net Sent: %s\n\n"+
		"🏦 Bank: %s\n"+
		"👤 Account: %s\n\n"+
		"📝 Transaction ID: %s\n"+
		"🔢 Reference: %s\n\n"+
		"📊 New Balance: %s\n"+
		"⏳ Status: Processing\n"+
		"⏰ Funds will arrive within 1-24 hours.",
		naira(res.Amount), naira(res.Fee), naira(res.Net),
		escape(res.Bank.BankName), escape(res.Bank.AccountName),
		escape(result.TransferId), escape(reference),
		naira(after.Balance(models.AssetNGN)))
	kb := inline(
		row(btn("📊 Check Status", "check_status_"+result.TransferId)),
		row(btn("🏠 Main Menu", "back_to_menu")),
	)
	return []Effect{
		alert(ev.CallbackId, "✅ Withdrawal initiated successfully!"),
		EditMessage{ChatId: ev.ChatId, MessageId: ev.MessageId, Text: text, Markdown: true, Inline: kb},
	}, nil
}

func (e *Engine) reserveFailed(ev ButtonPress, err error) ([]Effect, error) {
	var perr *ledger.PolicyError
	switch {
	case errors.As(err, &perr):
		d := perr.Decision
		return []Effect{
			AnswerCallback{CallbackId: ev.CallbackId},
			send(ev.ChatId, denialText(d.Reason, d.Limit, d.UsedToday, d.Remaining)),
		}, wrap(ErrPolicyDenied, err)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return []Effect{alert(ev.CallbackId, "❌ Insufficient balance")}, wrap(ErrInsufficientBalance, err)
	case errors.Is(err, ledger.ErrNoBankAccount):
		return []Effect{alert(ev.CallbackId, "❌ Please add a bank account first")}, wrap(ErrValidation, err)
	case errors.Is(err, store.ErrAccountNotFound):
		return []Effect{alert(ev.CallbackId, "Session expired")}, ErrSessionExpired
	}
	return e.internalError(ev.ChatId, err)
}

func (e *Engine) checkStatus(ctx context.Context, s *session, acct *models.Account, ev ButtonPress, transferId string) ([]Effect, error) {
	if transferId == "" {
		return []Effect{AnswerCallback{CallbackId: ev.CallbackId}}, invalid("empty transfer id")
	}
	if idx := acct.FindTransaction(transferId); idx < 0 || acct.Transactions[idx].Kind != models.KindWithdrawal {
		zap.L().Warn("Status check for a transfer the user does not own",
			zap.String("user_id", acct.UserId),
			zap.String("transfer_id", transferId))
		return []Effect{alert(ev.CallbackId, "❌ Transfer not found")}, invalid("transfer %s not found", transferId)
	}

	var (
		status *models.TransferStatus
		err    error
	)
	s.unlocked(func() {
		status, err = e.gateway.CheckStatus(ctx, transferId)
	})
	if err != nil || status == nil {
		zap.L().Warn("Transfer status lookup failed",
			zap.String("user_id", acct.UserId),
			zap.String("transfer_id", transferId),
			zap.Error(err))
		return []Effect{SendText{
			ChatId: ev.ChatId,
			Text:   "❌ Unable to check status at this time. Please try again later.",
			Inline: inline(row(btn("⬅️ Back", "back_to_menu"))),
		}}, wrap(ErrGateway, err)
	}

	if status.Status != "" {
		if _, err := e.ledger.RefreshTransferStatus(ctx, acct.UserId, transferId, status.Status); err != nil && !errors.Is(err, ledger.ErrUnknownTransaction) {
			zap.L().Error("Failed to record transfer status",
				zap.String("user_id", acct.UserId),
				zap.String("transfer_id", transferId),
				zap.Error(err))
		}
	}

	var b strings.Builder
	b.WriteString("📊 *Transfer Status*\n\n")
	fmt.Fprintf(&b, "ID: %s\n", escape(status.TransferId))
	fmt.Fprintf(&b, "Amount: %s\n", naira(status.Amount))
	fmt.Fprintf(&b, "Status: %s\n", escape(strings.ToUpper(status.Status)))
	fmt.Fprintf(&b, "Reference: %s\n", escape(status.Reference))
	if status.BankName != "" {
		fmt.Fprintf(&b, "Bank: %s\n", escape(status.BankName))
	}
	if !status.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Initiated: %s\n", status.CreatedAt.Format("2006-01-02 15:04"))
	}
	if status.Message != "" {
		fmt.Fprintf(&b, "\n💬 Message: %s\n", escape(status.Message))
	}
	kb := inline(
		row(btn("🔄 Refresh", "check_status_"+transferId)),
		row(btn("🏠 Main Menu", "back_to_menu")),
	)
	return []Effect{sendMarkdown(ev.ChatId, b.String(), kb)}, nil
}
