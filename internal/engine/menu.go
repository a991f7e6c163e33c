package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/policy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (e *Engine) start(ctx context.Context, s *session, ev TextMessage, code string) ([]Effect, error) {
	if !s.busy() {
		s.clear()
	}
	acct, created, err := e.ledger.OpenAccount(ctx, ledger.OpenParams{
		UserId:       ev.UserId,
		ChatId:       ev.ChatId,
		ReferralCode: code,
	})
	if err != nil {
		return e.internalError(ev.ChatId, err)
	}
	if created {
		zap.L().Info("New user registered",
			zap.String("user_id", ev.UserId),
			zap.String("referral_code", acct.ReferralCode),
			zap.Bool("referred", acct.ReferredBy != ""))
	}

	cfg := e.opts.Policy
	var b strings.Builder
	fmt.Fprintf(&b, "👋 Welcome to *%s Bot!*\n\n", escape(e.opts.BusinessName))
	if created && acct.ReferredBy != "" {
		b.WriteString("🎉 You joined using a referral link!\n")
		fmt.Fprintf(&b, "💰 You received %s bonus in your Naira wallet!\n\n",
			wholeNaira(e.ledger.Options().ReferredBonus))
	}
	b.WriteString("✨ *Complete Features:*\n")
	b.WriteString("✅ Real Bank Withdrawals\n")
	b.WriteString("✅ HD Crypto Wallets (Unique addresses)\n")
	b.WriteString("✅ Bank Account Management\n")
	b.WriteString("✅ Crypto Swaps (6 pairs)\n")
	b.WriteString("✅ Referral System\n")
	b.WriteString("✅ Live Exchange Rates\n\n")
	b.WriteString("⚠️ *Important Information:*\n")
	fmt.Fprintf(&b, "• Minimum withdrawal: %s\n", wholeNaira(cfg.MinNetWithdrawal))
	fmt.Fprintf(&b, "• Fee: %s%% (minimum %s)\n", percent(cfg.WithdrawalFeeRate), wholeNaira(cfg.MinWithdrawalFee))
	fmt.Fprintf(&b, "• Daily limit: %s\n", wholeNaira(cfg.DailyWithdrawalLimit))
	fmt.Fprintf(&b, "• Support: %s", escape(e.opts.SupportHandle))

	return []Effect{SendText{ChatId: ev.ChatId, Text: b.String(), Markdown: true, Reply: mainKeyboard()}}, nil
}

// menu routes reply-keyboard labels when no flow is waiting for input.
func (e *Engine) menu(ctx context.Context, s *session, acct *models.Account, chatId int64, text string) ([]Effect, error) {
	switch text {
	case menuNaira:
		return e.nairaView(acct, chatId), nil
	case menuSwap:
		return e.swapMenu(chatId), nil
	case menuReferral:
		return []Effect{e.referralView(acct, chatId, false)}, nil
	case menuRates:
		msg, kb := e.ratesView(ctx, s)
		return []Effect{sendMarkdown(chatId, msg, kb)}, nil
	case menuBank:
		return e.bankMenu(ctx, s, acct, chatId), nil
	case menuHelp:
		return []Effect{SendText{ChatId: chatId, Text: e.helpText(), Markdown: true}}, nil
	}

	if asset, ok := walletMenus[text]; ok {
		return e.walletView(ctx, s, acct, chatId, asset), nil
	}
	if from, to, ok := parseSwapPair(text); ok {
		return e.startSwap(s, acct, chatId, from, to)
	}
	if symbol, ok := strings.CutPrefix(text, "📥 Deposit "); ok {
		return e.depositView(acct, chatId, strings.TrimSpace(symbol))
	}

	return []Effect{SendText{ChatId: chatId, Text: "❌ Please use the menu buttons below", Reply: mainKeyboard()}}, nil
}

// percent renders a fee rate such as 0.015 as "1.5".
func percent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).String()
}

func (e *Engine) nairaView(acct *models.Account, chatId int64) []Effect {
	now := e.now()
	guard := e.ledger.Guard()
	limit := acct.DailyWithdrawalLimit
	if !limit.IsPositive() {
		limit = guard.DefaultLimit
	}
	linked := "❌ Not Added"
	if acct.BankAccount != nil && acct.BankAccount.Verified {
		linked = "✅ Verified"
	}
	text := fmt.Sprintf("💰 *Naira Wallet*\n\n"+
		"Balance: %s\n"+
		"Bank Account: %s\n\n"+
		"📊 *Withdrawal Limits:*\n"+
		"• Daily Limit: %s\n"+
		"• Used Today: %s\n"+
		"• Remaining: %s\n\n",
		naira(acct.Balance(models.AssetNGN)), linked,
		naira(limit), naira(policy.UsedToday(acct, now)), naira(guard.Headroom(acct, now)))

	if acct.BankAccount == nil {
		kb := inline(
			row(btn("➕ Add Bank Account", "add_bank_account")),
			row(btn("⬅️ Back", "back_to_menu")),
		)
		return []Effect{sendMarkdown(chatId, text+"To withdraw funds, add a bank account first.", kb)}
	}
	kb := inline(
		row(btn("💸 Withdraw to Bank", "withdraw_naira")),
		row(btn("🏦 Bank Details", "view_bank_details")),
		row(btn("📥 Deposit Naira", "deposit_naira")),
		row(btn("⬅️ Back", "back_to_menu")),
	)
	return []Effect{sendMarkdown(chatId, text+"What would you like to do?", kb)}
}

func (e *Engine) walletView(ctx context.Context, s *session, acct *models.Account, chatId int64, asset models.Asset) []Effect {
	var rates models.Rates
	s.unlocked(func() {
		rates = e.rates.GetRates(ctx)
	})
	q, _ := rates.Quote(asset)
	info := e.catalog[asset]
	balance := acct.Balance(asset)

	text := fmt.Sprintf("%s *%s Wallet*\n\n"+
		"Balance: %s %s\n"+
		"Value: %s\n"+
		"Rate: %s per %s\n\n"+
		"📥 *Deposit Address:*\n`%s`",
		info.Emoji, asset,
		formatNumber(balance, e.places(asset)), asset,
		naira(balance.Mul(q.NGN)),
		naira(q.NGN), asset,
		acct.DepositAddresses[asset])
	kb := inline(
		row(btn(fmt.Sprintf("💸 Sell %s to NGN", asset), "withdraw_"+asset.Lower())),
		row(btn(fmt.Sprintf("📥 Deposit %s", asset), "deposit_"+asset.Lower())),
		row(btn("⬅️ Back", "back_to_menu")),
	)
	return []Effect{sendMarkdown(chatId, text, kb)}
}

// ratesView renders the rates board. The provider is called unlocked.
func (e *Engine) ratesView(ctx context.Context, s *session) (string, *InlineKeyboard) {
	var rates models.Rates
	s.unlocked(func() {
		rates = e.rates.GetRates(ctx)
	})

	var b strings.Builder
	b.WriteString("📊 *Live Exchange Rates*\n\n")
	b.WriteString("*🌐 USD/NGN RATES*\n")
	fmt.Fprintf(&b, "💵 BUY: %s per $1\n", naira(rates.USDNGN.Buy))
	fmt.Fprintf(&b, "💰 SELL: %s per $1\n\n", naira(rates.USDNGN.Sell))
	b.WriteString("*💎 CRYPTOCURRENCIES*\n")
	for _, asset := range models.CryptoAssets {
		q, _ := rates.Quote(asset)
		fmt.Fprintf(&b, "%s %s: %s ($%s)\n", e.catalog[asset].Emoji, asset, naira(q.NGN), formatNumber(q.USD, 2))
	}
	if rates.Fallback {
		b.WriteString("\n⚠️ Live feed unavailable, showing indicative rates.\n")
	}
	updated := rates.FetchedAt
	if updated.IsZero() {
		updated = e.now()
	}
	fmt.Fprintf(&b, "\n_Last updated: %s_", updated.Format("15:04:05"))

	kb := inline(
		row(btn("🔄 Refresh Rates", "refresh_rates")),
		row(btn("⬅️ Back to Menu", "back_to_menu")),
	)
	return b.String(), kb
}

func (e *Engine) referralView(acct *models.Account, chatId int64, claim bool) SendText {
	opts := e.ledger.Options()
	text := fmt.Sprintf("🎁 *Refer and Earn*\n\n"+
		"💰 Your Referral Code: *%s*\n"+
		"👥 Total Referrals: %d\n"+
		"🎯 Total Earnings: %s\n\n"+
		"✨ *Referral Rewards:*\n"+
		"• You earn %s per referral\n"+
		"• Your friend gets %s bonus\n\n"+
		"What would you like to do?",
		acct.ReferralCode, len(acct.Referrals), naira(acct.ReferralRewards),
		wholeNaira(opts.ReferrerBonus),
		wholeNaira(opts.ReferredBonus))

	rows := [][]Button{
		row(btn("📤 Share Referral Link", "share_referral")),
		row(btn("👥 My Referrals", "my_referrals")),
	}
	if claim {
		rows = append(rows, row(btn("💰 Claim Rewards", "claim_rewards")))
	}
	rows = append(rows, row(btn("⬅️ Back to Main Menu", "back_to_menu")))
	return sendMarkdown(chatId, text, inline(rows...))
}

// ReferralLink is the deep link that opens the bot with code pre-filled.
func (e *Engine) ReferralLink(code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", e.opts.BotUsername, code)
}

func (e *Engine) shareReferral(acct *models.Account, chatId int64) ([]Effect, error) {
	opts := e.ledger.Options()
	referrer := wholeNaira(opts.ReferrerBonus)
	referred := wholeNaira(opts.ReferredBonus)

	refLink := e.ReferralLink(acct.ReferralCode)
	share := fmt.Sprintf("Join %s Bot and get %s bonus! Use my referral code: %s",
		e.opts.BusinessName, referred, acct.ReferralCode)
	shareURL := "https://t.me/share/url?url=" + url.QueryEscape(refLink) + "&text=" + url.QueryEscape(share)

	text := fmt.Sprintf("🎁 *Share Your Referral Link*\n\n"+
		"🔗 %s\n\n"+
		"💰 You earn %s for each friend who joins!\n"+
		"🎯 Your friends get %s bonus.\n\n"+
		"📤 Share this link with your friends!",
		escape(refLink), referrer, referred)
	kb := inline(
		row(link("📤 Share Now", shareURL)),
		row(btn("⬅️ Back", "back_to_referral")),
	)
	return []Effect{sendMarkdown(chatId, text, kb)}, nil
}

const maxListedReferrals = 10

func (e *Engine) myReferrals(acct *models.Account, chatId int64) ([]Effect, error) {
	var b strings.Builder
	b.WriteString("👥 *My Referrals*\n\n")
	if len(acct.Referrals) == 0 {
		b.WriteString("No referrals yet. Share your link to earn rewards!")
	} else {
		fmt.Fprintf(&b, "Total Referrals: %d\n", len(acct.Referrals))
		fmt.Fprintf(&b, "Total Earnings: %s\n\n", naira(acct.ReferralRewards))
		for i, ref := range acct.Referrals {
			if i == maxListedReferrals {
				fmt.Fprintf(&b, "\n... and %d more", len(acct.Referrals)-maxListedReferrals)
				break
			}
			id := ref.UserId
			if len(id) > 6 {
				id = id[len(id)-6:]
			}
			fmt.Fprintf(&b, "%d. User %s - %s\n", i+1, id, naira(ref.Bonus))
		}
	}
	return []Effect{sendMarkdown(chatId, b.String(), inline(row(btn("⬅️ Back", "back_to_referral"))))}, nil
}

func (e *Engine) helpText() string {
	cfg := e.opts.Policy
	var b strings.Builder
	fmt.Fprintf(&b, "ℹ️ *How to Use %s Bot*\n\n", escape(e.opts.BusinessName))
	b.WriteString("1. *Check Balances*: Tap any wallet button\n")
	b.WriteString("2. *Deposit Crypto*: Each user gets unique crypto addresses\n")
	b.WriteString("3. *Withdraw Naira*: Add bank account, then withdraw\n")
	b.WriteString("4. *Swap Crypto*: Use \"🔄 Swap Crypto\" menu\n")
	b.WriteString("5. *Refer & Earn*: Share your referral link\n")
	b.WriteString("6. *View Rates*: Get live exchange rates\n\n")
	b.WriteString("💰 *HD Wallet System:*\n")
	b.WriteString("• Each user gets unique deposit addresses\n")
	b.WriteString("• All funds go to secure master wallet\n")
	b.WriteString("• Perfect tracking of all transactions\n\n")
	b.WriteString("⚠️ *Important Notes:*\n")
	b.WriteString("• Bank accounts are verified before linking\n")
	fmt.Fprintf(&b, "• Minimum withdrawal: %s\n", wholeNaira(cfg.MinNetWithdrawal))
	fmt.Fprintf(&b, "• Fee: %s%% (minimum %s)\n\n", percent(cfg.WithdrawalFeeRate), wholeNaira(cfg.MinWithdrawalFee))
	fmt.Fprintf(&b, "📞 Support: %s\n", escape(e.opts.SupportHandle))
	b.WriteString("🕒 24/7 Support Available")
	return b.String()
}

func (e *Engine) depositView(acct *models.Account, chatId int64, symbol string) ([]Effect, error) {
	asset, err := models.ParseAsset(symbol)
	if err != nil {
		return []Effect{send(chatId, "❌ Unknown wallet")}, invalid("unknown wallet %q", symbol)
	}

	if asset.IsFiat() {
		d := e.opts.DepositAccount
		text := fmt.Sprintf("📥 *Deposit Naira*\n\n"+
			"To deposit Naira, please send to:\n"+
			"🏦 Bank: %s\n"+
			"📞 Account: %s\n"+
			"👤 Name: %s\n\n"+
			"After payment, send proof to %s",
			escape(d.BankName), d.AccountNumber, escape(d.AccountName), escape(e.opts.SupportHandle))
		return []Effect{sendMarkdown(chatId, text, menuButtonKeyboard())}, nil
	}

	address := acct.DepositAddresses[asset]
	info := e.catalog[asset]
	confirms := "confirmations"
	if info.Confirmations == 1 {
		confirms = "confirmation"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📥 *Deposit %s*\n\n", asset)
	b.WriteString("Your unique deposit address:\n")
	fmt.Fprintf(&b, "`%s`\n\n", address)
	fmt.Fprintf(&b, "🌐 Network: %s\n", info.Network)
	fmt.Fprintf(&b, "📦 Minimum: %s %s\n", info.MinDeposit, asset)
	fmt.Fprintf(&b, "⏱️ Confirmations: %d %s\n", info.Confirmations, confirms)
	if info.Note != "" {
		fmt.Fprintf(&b, "⚠️ %s\n", info.Note)
	}
	b.WriteString("\n💰 Your balance will update automatically after confirmation.")

	rows := [][]Button{row(btn("📋 Copy Address", "copy_address_"+asset.Lower()))}
	if explorer := info.Explorer(address); explorer != "" {
		rows = append(rows, row(link("🔍 View on Explorer", explorer)))
	}
	rows = append(rows,
		row(btn("🔄 Check Balance", "check_"+asset.Lower()+"_balance")),
		row(btn("🏠 Main Menu", "back_to_menu")))
	return []Effect{sendMarkdown(chatId, b.String(), inline(rows...))}, nil
}

func (e *Engine) copyAddress(acct *models.Account, ev ButtonPress, symbol string) ([]Effect, error) {
	asset, err := models.ParseAsset(symbol)
	if err != nil || asset.IsFiat() {
		return []Effect{AnswerCallback{CallbackId: ev.CallbackId}}, invalid("unknown wallet %q", symbol)
	}
	return []Effect{
		alert(ev.CallbackId, fmt.Sprintf("📋 %s address copied to clipboard!", asset)),
		SendText{ChatId: ev.ChatId, Text: acct.DepositAddresses[asset]},
	}, nil
}

func (e *Engine) balanceAlert(acct *models.Account, ev ButtonPress, symbol string) ([]Effect, error) {
	asset, err := models.ParseAsset(symbol)
	if err != nil {
		return []Effect{AnswerCallback{CallbackId: ev.CallbackId}}, invalid("unknown wallet %q", symbol)
	}
	return []Effect{alert(ev.CallbackId, fmt.Sprintf("💰 %s Balance: %s", asset, formatNumber(acct.Balance(asset), e.places(asset))))}, nil
}
