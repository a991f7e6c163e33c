package formance

import (
	"testing"
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		asset models.Asset
		want  string
	}{
		{models.AssetNGN, "NGN/2"},
		{models.AssetBTC, "BTC/8"},
		{models.AssetETH, "ETH/18"},
		{models.AssetSOL, "SOL/9"},
		{models.AssetUSDT, "USDT/6"},
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.asset); got != tt.want {
			t.Errorf("formanceAsset(%q) = %q, want %q", tt.asset, got, tt.want)
		}
	}
}

func TestAssetSymbol(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"NGN/2", "NGN"},
		{"BTC/8", "BTC"},
		{"PLAIN", "PLAIN"},
	}
	for _, tt := range tests {
		if got := assetSymbol(tt.input); got != tt.want {
			t.Errorf("assetSymbol(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSmallestUnitRoundTrip(t *testing.T) {
	tests := []struct {
		amount string
		asset  models.Asset
		want   string
	}{
		{"9850", models.AssetNGN, "985000"},
		{"0.01", models.AssetBTC, "1000000"},
		{"348.25", models.AssetUSDT, "348250000"},
		{"1.5", models.AssetETH, "1500000000000000000"},
	}
	for _, tt := range tests {
		amount := decimal.RequireFromString(tt.amount)
		got := smallestUnit(amount, tt.asset)
		if got != tt.want {
			t.Errorf("smallestUnit(%s %s) = %s, want %s", tt.amount, tt.asset, got, tt.want)
		}
		raw, _ := decimal.NewFromString(got)
		if back := bigIntToDecimal(raw.BigInt(), string(tt.asset)); !back.Equal(amount) {
			t.Errorf("round trip of %s %s gave %s", tt.amount, tt.asset, back)
		}
	}

	if !bigIntToDecimal(nil, "BTC").IsZero() {
		t.Error("nil should convert to zero")
	}
}

func TestIsConflictError(t *testing.T) {
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
}

func TestPostingsFor(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	withdrawal := models.Transaction{
		Id:        "tx-1",
		Kind:      models.KindWithdrawal,
		Asset:     models.AssetNGN,
		Amount:    decimal.NewFromInt(10000),
		Fee:       decimal.NewFromInt(150),
		Reference: "AERO1",
		Status:    models.StatusPending,
		CreatedAt: now,
	}

	postings, err := postingsFor("42", withdrawal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postings) != 1 || postings[0].reference != "tx-1" {
		t.Fatalf("pending withdrawal should mirror once, got %+v", postings)
	}
	if postings[0].vars["user"] != "users:42" || postings[0].vars["amount"] != "1000000" {
		t.Errorf("unexpected vars %v", postings[0].vars)
	}

	withdrawal.Status = "successful"
	withdrawal.ExternalId = "TRF-1"
	postings, err = postingsFor("42", withdrawal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postings) != 2 || postings[1].reference != "tx-1-settled" {
		t.Fatalf("settled withdrawal should add a settlement posting, got %+v", postings)
	}
	if postings[1].vars["transfer_id"] != "TRF-1" {
		t.Errorf("settlement should carry the transfer id, got %v", postings[1].vars)
	}

	swap := models.Transaction{
		Id:            "tx-2",
		Kind:          models.KindSwap,
		Asset:         models.AssetBTC,
		Amount:        decimal.RequireFromString("0.01"),
		CounterAsset:  models.AssetUSDT,
		CounterAmount: decimal.RequireFromString("348.25"),
		Rate:          decimal.RequireFromString("34825"),
	}
	postings, err = postingsFor("42", swap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postings[0].script != numscriptExchange {
		t.Error("swap should use the exchange script")
	}
	if postings[0].vars["counter_asset"] != "USDT/6" || postings[0].vars["counter_amount"] != "348250000" {
		t.Errorf("unexpected counter leg %v", postings[0].vars)
	}

	if _, err := postingsFor("42", models.Transaction{Id: "tx-3", Kind: "mystery"}); err == nil {
		t.Error("expected an error for an unknown kind")
	}
}
