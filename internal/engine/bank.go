package engine

import (
	"context"
	"errors"
	"fmt"

	"naira-wallet-bot-go/internal/gateway"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/policy"
	"naira-wallet-bot-go/internal/store"

	"go.uber.org/zap"
)

// maxBankButtons caps the bank picker.
const maxBankButtons = 20

func (e *Engine) startBankLink(ctx context.Context, s *session, chatId int64) ([]Effect, error) {
	if s.busy() {
		return []Effect{send(chatId, "⏳ Still processing your last request, please wait.")}, ErrFlowBusy
	}
	s.clear()
	f := &bankFlow{step: StepAwaitingBankSelection, nonce: newNonce()}
	s.bank = f

	banks := e.cachedBanks()
	if len(banks) == 0 {
		nonce := f.nonce
		s.unlocked(func() {
			banks = e.Banks(ctx)
		})
		if s.bank != f || f.nonce != nonce {
			return nil, ErrStaleResponse
		}
	}

	rows := make([][]Button, 0, maxBankButtons+1)
	for i, b := range banks {
		if i == maxBankButtons {
			break
		}
		rows = append(rows, row(btn(b.Name, "bank_selected_"+b.Code)))
	}
	rows = append(rows, row(btn("❌ Cancel", "cancel_action")))
	return []Effect{SendText{ChatId: chatId, Text: "🏦 Select your bank from the list below:", Inline: inline(rows...)}}, nil
}

func (e *Engine) selectBank(ctx context.Context, s *session, ev ButtonPress, code string) ([]Effect, error) {
	if s.busy() {
		return []Effect{alert(ev.CallbackId, "⏳ Still processing your last request, please wait.")}, ErrFlowBusy
	}
	if s.bank == nil || s.bank.step != StepAwaitingBankSelection {
		s.bank = nil
		return []Effect{alert(ev.CallbackId, "Session expired. Please start over.")}, ErrSessionExpired
	}

	f := s.bank
	banks := e.cachedBanks()
	if len(banks) == 0 {
		s.unlocked(func() {
			banks = e.Banks(ctx)
		})
		if s.bank != f {
			return nil, ErrStaleResponse
		}
	}
	bank, ok := gateway.FindBank(banks, code)
	if !ok {
		return []Effect{alert(ev.CallbackId, "Bank not found. Please try again.")}, invalid("unknown bank code %q", code)
	}

	f.bankCode = bank.Code
	f.bankName = bank.Name
	f.step = StepAwaitingAccountNumber

	text := fmt.Sprintf("🏦 Bank: *%s*\n\nPlease enter your 10-digit account number:", escape(bank.Name))
	return []Effect{sendMarkdown(ev.ChatId, text, cancelKeyboard())}, nil
}

func (e *Engine) bankAccountNumber(s *session, chatId int64, text string) ([]Effect, error) {
	if !validAccountNumber(text) {
		return []Effect{send(chatId, "❌ Invalid account number. Please enter a valid 10-digit account number (numbers only).")},
			invalid("account number must be 10 digits")
	}
	f := s.bank
	f.accountNumber = text
	f.step = StepAwaitingAccountName

	msg := fmt.Sprintf("🏦 Account Number: %s\n\nPlease enter the account name *exactly* as it appears on your bank statement:", text)
	return []Effect{sendMarkdown(chatId, msg, cancelKeyboard())}, nil
}

// bankAccountName verifies the account with the gateway and links it only
// when the holder name matches what the user typed.
func (e *Engine) bankAccountName(ctx context.Context, s *session, userId string, chatId int64, text string) ([]Effect, error) {
	if !validAccountName(text) {
		return []Effect{send(chatId, "❌ Invalid account name. Please enter your full name (at least 2 words, minimum 5 characters).")},
			invalid("account name too short")
	}

	f := s.bank
	f.accountName = text
	f.submitting = true
	nonce := newNonce()
	f.nonce = nonce

	var (
		info *models.AccountInfo
		err  error
	)
	s.unlocked(func() {
		info, err = e.gateway.VerifyAccount(ctx, f.accountNumber, f.bankCode)
	})
	if s.bank != f || f.nonce != nonce {
		zap.L().Info("Discarding stale account verification", zap.String("user_id", userId))
		return nil, ErrStaleResponse
	}
	s.bank = nil

	if err != nil {
		msg := fmt.Sprintf("❌ Account verification failed:\n%s\n\nPlease try again.", escape(gatewayMessage(err)))
		return []Effect{SendText{ChatId: chatId, Text: msg, Markdown: true}}, wrap(ErrGateway, err)
	}

	if normalizeName(text) != normalizeName(info.AccountName) {
		msg := fmt.Sprintf("❌ Account name doesn't match.\n\n"+
			"You entered: *%s*\n"+
			"Bank has: *%s*\n\n"+
			"Please try again with the correct account name.",
			escape(text), escape(info.AccountName))
		return []Effect{SendText{ChatId: chatId, Text: msg, Markdown: true}}, invalid("account name does not match bank record")
	}

	_, err = e.ledger.SetBankAccount(ctx, userId, models.BankAccount{
		BankCode:      f.bankCode,
		BankName:      f.bankName,
		AccountNumber: f.accountNumber,
		AccountName:   info.AccountName,
	})
	if errors.Is(err, store.ErrAccountNotFound) {
		return e.expired(s, chatId)
	}
	if err != nil {
		return e.internalError(chatId, err)
	}

	msg := fmt.Sprintf("✅ *Bank Account Verified Successfully!*\n\n"+
		"🏦 Bank: %s\n"+
		"📞 Account: %s\n"+
		"👤 Name: %s\n\n"+
		"You can now withdraw funds to this account.",
		escape(f.bankName), f.accountNumber, escape(info.AccountName))
	kb := inline(
		row(btn("💰 Withdraw Now", "withdraw_naira")),
		row(btn("🏠 Main Menu", "back_to_menu")),
	)
	return []Effect{sendMarkdown(chatId, msg, kb)}, nil
}

func (e *Engine) bankMenu(ctx context.Context, s *session, acct *models.Account, chatId int64) []Effect {
	banks := e.cachedBanks()
	if len(banks) == 0 {
		s.unlocked(func() {
			banks = e.Banks(ctx)
		})
	}

	status := "❌ No bank account added"
	if b := acct.BankAccount; b != nil {
		status = fmt.Sprintf("✅ Bank: %s\nAccount: %s", escape(b.BankName), maskAccount(b.AccountNumber))
	}
	text := fmt.Sprintf("🏦 *Bank Account Management*\n\n"+
		"Status: %s\n\n"+
		"📊 Available Banks: %d banks loaded\n\n"+
		"Select an option:", status, len(banks))

	rows := [][]Button{row(btn("➕ Add Bank Account", "add_bank_account"))}
	if acct.BankAccount != nil {
		rows = append(rows,
			row(btn("👁️ View Bank Details", "view_bank_details")),
			row(btn("💰 Withdraw Now", "withdraw_naira")))
	}
	rows = append(rows, row(btn("⬅️ Back to Main Menu", "back_to_menu")))
	return []Effect{sendMarkdown(chatId, text, inline(rows...))}
}

func (e *Engine) bankDetails(acct *models.Account, chatId int64) ([]Effect, error) {
	if acct.BankAccount == nil {
		kb := inline(
			row(btn("➕ Add Bank Account", "add_bank_account")),
			row(btn("⬅️ Back to Main Menu", "back_to_menu")),
		)
		return []Effect{sendMarkdown(chatId, "❌ No bank account added yet.\n\nClick '➕ Add Bank Account' to add your bank details.", kb)}, nil
	}

	b := acct.BankAccount
	now := e.now()
	guard := e.ledger.Guard()
	limit := acct.DailyWithdrawalLimit
	if !limit.IsPositive() {
		limit = guard.DefaultLimit
	}
	kyc := "❌ No"
	if acct.KYCVerified {
		kyc = "✅ Yes"
	}
	text := fmt.Sprintf("🏦 *Your Bank Details:*\n\n"+
		"Bank: %s\n"+
		"Account Number: %s\n"+
		"Account Name: %s\n"+
		"Added: %s\n\n"+
		"📊 *Withdrawal Limits:*\n"+
		"• Daily Limit: %s\n"+
		"• Used Today: %s\n"+
		"• Remaining: %s\n"+
		"• KYC Verified: %s",
		escape(b.BankName), b.AccountNumber, escape(b.AccountName), b.AddedAt.Format("2006-01-02"),
		naira(limit), naira(policy.UsedToday(acct, now)), naira(guard.Headroom(acct, now)), kyc)
	kb := inline(
		row(btn("💰 Withdraw Now", "withdraw_naira")),
		row(btn("❌ Remove Account", "remove_bank_account")),
		row(btn("⬅️ Back", "back_to_menu")),
	)
	return []Effect{sendMarkdown(chatId, text, kb)}, nil
}

func (e *Engine) confirmRemoveBankPrompt(acct *models.Account, ev ButtonPress) ([]Effect, error) {
	if acct.BankAccount == nil {
		return []Effect{alert(ev.CallbackId, "No bank account to remove")}, nil
	}
	text := fmt.Sprintf("⚠️ *Confirm Bank Account Removal*\n\n"+
		"Bank: %s\n"+
		"Account: %s\n\n"+
		"Are you sure you want to remove this bank account?",
		escape(acct.BankAccount.BankName), acct.BankAccount.AccountNumber)
	kb := inline(
		row(btn("✅ Yes, Remove", "confirm_remove_bank")),
		row(btn("❌ Cancel", "cancel_action")),
	)
	return []Effect{sendMarkdown(ev.ChatId, text, kb)}, nil
}

func (e *Engine) removeBank(ctx context.Context, s *session, ev ButtonPress) ([]Effect, error) {
	if s.payoutInFlight() {
		return []Effect{alert(ev.CallbackId, "⏳ A withdrawal is in progress, please wait.")}, ErrFlowBusy
	}
	if _, err := e.ledger.RemoveBankAccount(ctx, ev.UserId); err != nil {
		return e.internalError(ev.ChatId, err)
	}
	if s.withdraw != nil && s.withdraw.bank() {
		s.withdraw = nil
	}
	return []Effect{
		alert(ev.CallbackId, "✅ Bank account removed successfully"),
		EditMessage{ChatId: ev.ChatId, MessageId: ev.MessageId, Text: "✅ Bank account removed successfully", Inline: menuButtonKeyboard()},
	}, nil
}
