package pricing

import (
	"math"
	"strconv"
	"strings"
)

// nbsp separates thousand groups and the currency sign, as ru-RU does.
const nbsp = "\u00a0"

var currencySymbols = map[string]string{
	"RUB": "₽",
	"USD": "$",
	"EUR": "€",
}

// CurrencySymbol maps known codes to their sign and returns anything else
// unchanged.
func CurrencySymbol(code string) string {
	if symbol, ok := currencySymbols[strings.ToUpper(code)]; ok {
		return symbol
	}
	return code
}

// FormatNumber renders amount with two fraction digits, a decimal comma and
// non-breaking-space thousand groups ("1 234,50"). Halves round away from
// zero, so 6.125 prints as "6,13".
func FormatNumber(amount float64) string {
	if cents := math.Round(amount * 100); !math.IsInf(cents, 0) {
		amount = cents / 100
	}
	fixed := strconv.FormatFloat(amount, 'f', 2, 64)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, fracPart, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	if negative && strings.Trim(intPart+fracPart, "0") != "" {
		b.WriteByte('-')
	}
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(nbsp)
		}
		b.WriteRune(digit)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}

// FormatMoney renders "1 234,50 ₽".
func FormatMoney(amount float64, currency string) string {
	return FormatNumber(amount) + nbsp + CurrencySymbol(currency)
}

// FormatQty prints a quantity without trailing zeros, with a decimal comma
// ("1,5").
func FormatQty(qty float64) string {
	return strings.Replace(strconv.FormatFloat(qty, 'f', -1, 64), ".", ",", 1)
}
