package rates

import (
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

var fallbackFX = models.FXQuote{
	Buy:  decimal.NewFromInt(1440),
	Sell: decimal.NewFromInt(1500),
}

// Fallback returns the static quote table used when the live feed is down.
func Fallback(now time.Time) models.Rates {
	return models.Rates{
		Quotes: map[models.Asset]models.Quote{
			models.AssetBTC:  {NGN: decimal.NewFromInt(50000000), USD: decimal.NewFromInt(35000)},
			models.AssetETH:  {NGN: decimal.NewFromInt(3000000), USD: decimal.NewFromInt(2000)},
			models.AssetSOL:  {NGN: decimal.NewFromInt(100000), USD: decimal.NewFromInt(70)},
			models.AssetUSDT: {NGN: decimal.NewFromInt(1500), USD: decimal.NewFromInt(1)},
		},
		USDNGN:    fallbackFX,
		Fallback:  true,
		FetchedAt: now,
	}
}
