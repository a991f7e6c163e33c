package engine

import (
	"regexp"
	"strings"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// Reply keyboard labels.
const (
	menuNaira    = "💰 Naira Wallet"
	menuETH      = "💵 ETH Wallet"
	menuBTC      = "₿ BTC Wallet"
	menuUSDT     = "🌐 USDT Wallet"
	menuSOL      = "🟣 SOL Wallet"
	menuSwap     = "🔄 Swap Crypto"
	menuReferral = "🎁 Refer and Earn"
	menuRates    = "📊 View Rates"
	menuBank     = "🏦 Bank Account"
	menuHelp     = "ℹ️ Help"
	menuBack     = "⬅️ Back to Main Menu"
)

var walletMenus = map[string]models.Asset{
	menuBTC:  models.AssetBTC,
	menuETH:  models.AssetETH,
	menuSOL:  models.AssetSOL,
	menuUSDT: models.AssetUSDT,
}

func mainKeyboard() *ReplyKeyboard {
	return &ReplyKeyboard{Rows: [][]string{
		{menuNaira, menuETH},
		{menuBTC, menuUSDT},
		{menuSOL, menuSwap},
		{menuReferral, menuRates},
		{menuBank, menuHelp},
	}}
}

func swapKeyboard() *ReplyKeyboard {
	return &ReplyKeyboard{
		Rows: [][]string{
			{swapLabel(models.AssetBTC, models.AssetUSDT), swapLabel(models.AssetETH, models.AssetUSDT)},
			{swapLabel(models.AssetSOL, models.AssetUSDT), swapLabel(models.AssetUSDT, models.AssetBTC)},
			{swapLabel(models.AssetUSDT, models.AssetETH), swapLabel(models.AssetUSDT, models.AssetSOL)},
			{menuBack},
		},
		OneTime: true,
	}
}

func swapLabel(from, to models.Asset) string {
	return string(from) + " → " + string(to)
}

var swapPattern = regexp.MustCompile(`^([A-Za-z]+)\s*→\s*([A-Za-z]+)$`)

func cancelKeyboard() *InlineKeyboard {
	return inline(row(btn("❌ Cancel", "cancel_action")))
}

func menuButtonKeyboard() *InlineKeyboard {
	return inline(row(btn("🏠 Main Menu", "back_to_menu")))
}

// formatNumber renders d with places decimals and thousands separators.
func formatNumber(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}

func naira(d decimal.Decimal) string {
	return "₦" + formatNumber(d, 2)
}

// wholeNaira drops a zero kobo part: ₦550 rather than ₦550.00.
func wholeNaira(d decimal.Decimal) string {
	return strings.TrimSuffix(naira(d), ".00")
}

func (e *Engine) places(asset models.Asset) int32 {
	if info, ok := e.catalog[asset]; ok && info.Decimals > 0 {
		return info.Decimals
	}
	if asset == models.AssetNGN || asset == models.AssetUSDT {
		return 2
	}
	return 8
}

func (e *Engine) amount(d decimal.Decimal, asset models.Asset) string {
	if asset.IsFiat() {
		return naira(d)
	}
	return formatNumber(d, e.places(asset)) + " " + string(asset)
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escape neutralizes legacy Markdown in user or provider supplied text.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}

var amountCleaner = strings.NewReplacer("₦", "", ",", "", " ", "")

// parseAmount accepts "10000", "₦10,000" or "0.5". The value must be positive.
func parseAmount(text string) (decimal.Decimal, error) {
	cleaned := amountCleaner.Replace(strings.TrimSpace(text))
	d, err := decimal.NewFromString(cleaned)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, invalid("amount %q is not a positive number", text)
	}
	return d, nil
}

var accountNumberPattern = regexp.MustCompile(`^\d{10}$`)

func validAccountNumber(s string) bool {
	return accountNumberPattern.MatchString(s)
}

// validAccountName requires at least two words and five characters.
func validAccountName(s string) bool {
	s = strings.TrimSpace(s)
	return len(strings.Fields(s)) >= 2 && len([]rune(s)) >= 5
}

// normalizeName folds case and collapses whitespace for name comparison.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func maskAccount(number string) string {
	if len(number) <= 4 {
		return number
	}
	return "****" + number[len(number)-4:]
}
