package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"
	"naira-wallet-bot-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreditDeposit applies an inbound on-chain transfer. The notification is
// untrusted: nothing is written unless the address resolves to an account
// this system issued it to. A repeated tx hash is reported as a duplicate and
// changes nothing.
func (e *Engine) CreditDeposit(ctx context.Context, n DepositNotification) (*models.DepositResult, []Effect, error) {
	address := strings.TrimSpace(n.Address)
	txHash := strings.TrimSpace(n.TxHash)
	if address == "" || txHash == "" {
		err := invalid("address and tx hash are required")
		return &models.DepositResult{Error: err.Error()}, nil, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(n.Amount))
	if err != nil || !amount.IsPositive() {
		err := invalid("amount %q is not a positive number", n.Amount)
		return &models.DepositResult{Error: err.Error()}, nil, err
	}

	userId, asset, ok := e.resolver.Resolve(address)
	if !ok {
		zap.L().Warn("Deposit to unknown address dropped",
			zap.String("address", address),
			zap.String("tx_hash", txHash),
			zap.String("amount", amount.String()),
			zap.String("currency", n.Currency))
		return &models.DepositResult{Error: ErrAddressResolution.Error()}, nil, ErrAddressResolution
	}
	if n.Currency != "" {
		if claimed, err := models.ParseAsset(n.Currency); err != nil || claimed != asset {
			zap.L().Warn("Deposit currency does not match address, using address asset",
				zap.String("address", address),
				zap.String("claimed", n.Currency),
				zap.String("asset", string(asset)))
		}
	}

	network := n.Network
	if network == "" {
		network = asset.Network()
	}

	acct, tx, err := e.ledger.Deposit(ctx, ledger.DepositParams{
		UserId:   userId,
		Asset:    asset,
		Amount:   amount,
		TxHash:   txHash,
		Address:  address,
		Network:  network,
		ValueNGN: e.valueNGN(ctx, asset, amount),
	})
	switch {
	case errors.Is(err, store.ErrDuplicateTransaction):
		zap.L().Info("Duplicate deposit ignored",
			zap.String("user_id", userId),
			zap.String("tx_hash", txHash))
		return &models.DepositResult{Success: true, Duplicate: true, UserId: userId, Asset: asset, Amount: amount}, nil, nil
	case errors.Is(err, store.ErrAccountNotFound):
		zap.L().Warn("Deposit address resolved to a missing account",
			zap.String("user_id", userId),
			zap.String("address", address),
			zap.String("tx_hash", txHash))
		return &models.DepositResult{Error: ErrAddressResolution.Error()}, nil, wrap(ErrAddressResolution, err)
	case err != nil:
		zap.L().Error("Failed to credit deposit",
			zap.String("user_id", userId),
			zap.String("tx_hash", txHash),
			zap.Error(err))
		return &models.DepositResult{Error: "internal error"}, nil, err
	}

	result := &models.DepositResult{
		Success:    true,
		UserId:     userId,
		Asset:      asset,
		Amount:     tx.Amount,
		NewBalance: acct.Balance(asset),
	}

	chatId := acct.ChatId
	if chatId == 0 {
		chatId, _ = strconv.ParseInt(userId, 10, 64)
	}
	if chatId == 0 {
		return result, nil, nil
	}

	shown := txHash
	if len(shown) > 20 {
		shown = shown[:20] + "..."
	}
	text := fmt.Sprintf("💰 *Deposit Confirmed!*\n\n"+
		"Amount: %s %s\n"+
		"Transaction: `%s`\n"+
		"New Balance: %s %s\n\n"+
		"✅ Funds have been added to your account.",
		formatNumber(tx.Amount, e.places(asset)), asset,
		shown,
		formatNumber(result.NewBalance, e.places(asset)), asset)
	return result, []Effect{SendText{ChatId: chatId, Text: text, Markdown: true}}, nil
}

// valueNGN prices a deposit for the deposited total. A missing quote counts
// as zero rather than blocking the credit.
func (e *Engine) valueNGN(ctx context.Context, asset models.Asset, amount decimal.Decimal) decimal.Decimal {
	if asset.IsFiat() {
		return amount
	}
	q, ok := e.rates.GetRates(ctx).Quote(asset)
	if !ok {
		return decimal.Zero
	}
	return amount.Mul(q.NGN).Round(2)
}
