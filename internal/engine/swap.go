package engine

import (
	"context"
	"errors"
	"fmt"

	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"github.com/shopspring/decimal"
)

// swapPrecision bounds the credited side of a swap. Truncation never rounds
// in the user's favour.
const swapPrecision = 8

// SwapQuote converts amount of the source asset at the given USD prices.
// The fee is charged in the source asset.
func SwapQuote(amount, fromUSD, toUSD, feeRate decimal.Decimal) (received, fee decimal.Decimal) {
	fee = amount.Mul(feeRate)
	received = amount.Sub(fee).Mul(fromUSD).Div(toUSD).Truncate(swapPrecision)
	return received, fee
}

// parseSwapPair reads a "BTC → USDT" keyboard label.
func parseSwapPair(text string) (from, to models.Asset, ok bool) {
	m := swapPattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	from, err := models.ParseAsset(m[1])
	if err != nil || from.IsFiat() {
		return "", "", false
	}
	to, err = models.ParseAsset(m[2])
	if err != nil || to.IsFiat() || to == from {
		return "", "", false
	}
	return from, to, true
}

func (e *Engine) swapMenu(chatId int64) []Effect {
	text := fmt.Sprintf("🔄 *Crypto Swap*\n\n"+
		"Trade between cryptocurrencies instantly!\n"+
		"Fee: %s%% per transaction\n\n"+
		"Select a swap pair:", percent(e.opts.Policy.SwapFeeRate))
	return []Effect{SendText{ChatId: chatId, Text: text, Markdown: true, Reply: swapKeyboard()}}
}

func (e *Engine) startSwap(s *session, acct *models.Account, chatId int64, from, to models.Asset) ([]Effect, error) {
	if s.busy() {
		return []Effect{send(chatId, "⏳ Still processing your last request, please wait.")}, ErrFlowBusy
	}
	s.clear()
	s.swap = &swapFlow{step: StepAwaitingAmount, from: from, to: to, nonce: newNonce()}

	text := fmt.Sprintf("🔄 *%s to %s Swap*\n\nAvailable: %s %s\n\nEnter amount of %s to swap:",
		from, to, formatNumber(acct.Balance(from), e.places(from)), from, from)
	kb := inline(
		row(btn("Use All", "use_all_"+from.Lower())),
		row(btn("❌ Cancel", "cancel_action")),
	)
	return []Effect{sendMarkdown(chatId, text, kb)}, nil
}

func (e *Engine) swapAmount(ctx context.Context, s *session, userId string, chatId int64, text string) ([]Effect, error) {
	amount, err := parseAmount(text)
	if err != nil {
		return []Effect{send(chatId, "❌ Please enter a valid positive number")}, err
	}
	return e.quoteSwap(ctx, s, userId, chatId, amount)
}

// useAll fills the swap amount with the whole source balance.
func (e *Engine) useAll(ctx context.Context, s *session, acct *models.Account, ev ButtonPress, symbol string) ([]Effect, error) {
	asset, err := models.ParseAsset(symbol)
	if err != nil || s.swap == nil || s.swap.step != StepAwaitingAmount || s.swap.from != asset {
		return []Effect{alert(ev.CallbackId, "Session expired. Please start over.")}, ErrSessionExpired
	}
	if s.busy() {
		return []Effect{alert(ev.CallbackId, "⏳ Still processing your last request, please wait.")}, ErrFlowBusy
	}
	balance := acct.Balance(asset)
	if !balance.IsPositive() {
		return []Effect{alert(ev.CallbackId, fmt.Sprintf("❌ Your %s balance is empty", asset))}, ErrInsufficientBalance
	}
	effects, err := e.quoteSwap(ctx, s, acct.UserId, ev.ChatId, balance)
	return append([]Effect{AnswerCallback{CallbackId: ev.CallbackId}}, effects...), err
}

func (e *Engine) quoteSwap(ctx context.Context, s *session, userId string, chatId int64, amount decimal.Decimal) ([]Effect, error) {
	f := s.swap
	acct, err := e.existing(ctx, userId)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return e.expired(s, chatId)
		}
		return e.internalError(chatId, err)
	}
	available := acct.Balance(f.from)
	if amount.GreaterThan(available) {
		return []Effect{send(chatId, fmt.Sprintf("❌ Insufficient balance!\nAvailable: %s %s",
			formatNumber(available, e.places(f.from)), f.from))}, ErrInsufficientBalance
	}

	nonce := f.nonce
	rates, ok := e.quote(ctx, s, func() bool { return s.swap == f && f.nonce == nonce })
	if !ok {
		return nil, ErrStaleResponse
	}
	fromQ, okFrom := rates.Quote(f.from)
	toQ, okTo := rates.Quote(f.to)
	if !okFrom || !okTo || !fromQ.USD.IsPositive() || !toQ.USD.IsPositive() {
		return []Effect{send(chatId, "❌ Rates are unavailable right now. Please try again later.")},
			fmt.Errorf("no USD quote for %s or %s", f.from, f.to)
	}

	received, fee := SwapQuote(amount, fromQ.USD, toQ.USD, e.opts.Policy.SwapFeeRate)
	if !received.IsPositive() {
		return []Effect{send(chatId, "❌ Amount is too small to swap")}, invalid("swap of %s %s yields nothing", amount, f.from)
	}

	f.amount = amount
	f.received = received
	f.fee = fee
	f.rate = received.Div(amount)
	f.step = StepAwaitingConfirmation

	text := fmt.Sprintf("🔄 *Confirm Swap*\n\n"+
		"📤 Send: %s %s\n"+
		"📥 Receive: %s %s\n"+
		"💰 Fee: %s %s (%s%%)\n\n"+
		"💱 Rate: 1 %s = %s %s",
		formatNumber(amount, e.places(f.from)), f.from,
		formatNumber(received, e.places(f.to)), f.to,
		formatNumber(fee, e.places(f.from)), f.from, percent(e.opts.Policy.SwapFeeRate),
		f.from, formatNumber(f.rate, 8), f.to)
	kb := inline(
		row(btn("✅ Confirm Swap", "confirm_swap")),
		row(btn("❌ Cancel", "cancel_action")),
	)
	return []Effect{sendMarkdown(chatId, text, kb)}, nil
}

func (e *Engine) confirmSwap(ctx context.Context, s *session, ev ButtonPress) ([]Effect, error) {
	f := s.swap
	if f == nil || f.step != StepAwaitingConfirmation {
		s.swap = nil
		return []Effect{alert(ev.CallbackId, "Session expired. Please start over.")}, ErrSessionExpired
	}

	// The ledger re-checks the source balance inside the same update.
	acct, _, err := e.ledger.TransferInternal(ctx, ev.UserId, ledger.TransferParams{
		Kind:         models.KindSwap,
		From:         f.from,
		To:           f.to,
		DebitAmount:  f.amount,
		CreditAmount: f.received,
		Fee:          f.fee,
		Rate:         f.rate,
	})
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		s.swap = nil
		return []Effect{alert(ev.CallbackId, "❌ Insufficient balance")}, wrap(ErrInsufficientBalance, err)
	case errors.Is(err, store.ErrAccountNotFound):
		s.clear()
		return []Effect{alert(ev.CallbackId, "Session expired. Please start over.")}, ErrSessionExpired
	case err != nil:
		s.swap = nil
		return e.internalError(ev.ChatId, err)
	}
	s.swap = nil

	text := fmt.Sprintf("✅ *Swap Completed!*\n\n"+
		"📤 Sent: %s %s\n"+
		"📥 Received: %s %s\n"+
		"💰 Fee: %s %s (%s%%)\n\n"+
		"📊 New %s Balance: %s\n"+
		"📊 New %s Balance: %s",
		formatNumber(f.amount, e.places(f.from)), f.from,
		formatNumber(f.received, e.places(f.to)), f.to,
		formatNumber(f.fee, e.places(f.from)), f.from, percent(e.opts.Policy.SwapFeeRate),
		f.from, formatNumber(acct.Balance(f.from), e.places(f.from)),
		f.to, formatNumber(acct.Balance(f.to), e.places(f.to)))
	return []Effect{
		alert(ev.CallbackId, "✅ Swap successful!"),
		EditMessage{ChatId: ev.ChatId, MessageId: ev.MessageId, Text: text, Markdown: true, Inline: menuButtonKeyboard()},
	}, nil
}
