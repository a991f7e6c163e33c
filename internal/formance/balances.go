package formance

import (
	"context"
	"fmt"
	"math/big"

	"naira-wallet-bot-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UserBalances returns the mirrored balance of every asset held by userId.
// Assets never touched on the mirror are absent from the map.
func (s *Service) UserBalances(ctx context.Context, userId string) (map[models.Asset]decimal.Decimal, error) {
	address := userAccount(userId)
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}

	out := make(map[models.Asset]decimal.Decimal)
	for fAsset, vol := range resp.V2AccountResponse.Data.Volumes {
		symbol := assetSymbol(fAsset)
		asset, err := models.ParseAsset(symbol)
		if err != nil {
			zap.L().Warn("Ignoring unknown asset on mirror account",
				zap.String("address", address),
				zap.String("asset", fAsset))
			continue
		}
		out[asset] = bigIntToDecimal(volumeBalance(vol), symbol)
	}
	return out, nil
}

// Drift compares acct against its mirrored balances and returns the assets
// whose balances differ, with the mirror's value.
func (s *Service) Drift(ctx context.Context, acct *models.Account) (map[models.Asset]decimal.Decimal, error) {
	mirrored, err := s.UserBalances(ctx, acct.UserId)
	if err != nil {
		return nil, err
	}
	drift := make(map[models.Asset]decimal.Decimal)
	for _, asset := range models.AllAssets {
		if !acct.Balance(asset).Equal(mirrored[asset]) {
			drift[asset] = mirrored[asset]
		}
	}
	return drift, nil
}

func volumeBalance(vol shared.V2Volume) *big.Int {
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a smallest-unit amount back to a wallet decimal.
func bigIntToDecimal(raw *big.Int, symbol string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}

// assetSymbol strips the precision suffix from UMN notation.
func assetSymbol(fAsset string) string {
	for i, c := range fAsset {
		if c == '/' {
			return fAsset[:i]
		}
	}
	return fAsset
}
