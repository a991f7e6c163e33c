package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the price of one unit of an asset.
type Quote struct {
	NGN decimal.Decimal `json:"ngn"`
	USD decimal.Decimal `json:"usd"`
}

// FXQuote is the USD/NGN desk rate.
type FXQuote struct {
	Buy  decimal.Decimal `json:"buy"`
	Sell decimal.Decimal `json:"sell"`
}

// Rates is a snapshot of quotes. Fallback is set when the live feed failed
// and static values were substituted.
type Rates struct {
	Quotes    map[Asset]Quote `json:"quotes"`
	USDNGN    FXQuote         `json:"usd_ngn"`
	Fallback  bool            `json:"fallback"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Quote returns the quote for asset; USDT defaults to one dollar when absent.
func (r Rates) Quote(asset Asset) (Quote, bool) {
	q, ok := r.Quotes[asset]
	if !ok && asset == AssetUSDT {
		return Quote{USD: decimal.NewFromInt(1), NGN: r.USDNGN.Sell}, true
	}
	return q, ok
}

type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// AccountInfo is the holder record returned by account resolution.
type AccountInfo struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankCode      string `json:"bank_code"`
}

type TransferRequest struct {
	BankCode        string
	AccountNumber   string
	Amount          decimal.Decimal
	Narration       string
	Reference       string
	BeneficiaryName string
}

type TransferResult struct {
	TransferId string `json:"transfer_id"`
	Reference  string `json:"reference"`
	Status     string `json:"status"`
}

// TransferStatus is the provider's view of an outbound transfer.
type TransferStatus struct {
	TransferId string          `json:"transfer_id"`
	Reference  string          `json:"reference"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Fee        decimal.Decimal `json:"fee"`
	BankName   string          `json:"bank_name"`
	Message    string          `json:"message"`
	CreatedAt  time.Time       `json:"created_at"`
}
