package common

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints title between two rules of "=".
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// TreePrefix is the box-drawing prefix of a list item.
func TreePrefix(isLast bool) string {
	if isLast {
		return "└─ "
	}
	return "├─ "
}

// TreeIndent continues the column under a list item.
func TreeIndent(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// FormatAmount renders amount with at most places decimals and no trailing
// zeros, e.g. 0.00150000 BTC becomes "0.0015".
func FormatAmount(amount decimal.Decimal, places int32) string {
	s := amount.Truncate(places).StringFixed(places)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

// Mask keeps the last four characters of a secret-ish value.
func Mask(s string) string {
	if len(s) <= 4 {
		return s
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
