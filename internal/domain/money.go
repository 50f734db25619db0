package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// MoneyPlaces is the number of minor-unit digits kept for TSh amounts.
const MoneyPlaces = 2

func init() {
	// API clients send and expect amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

var moneyPrinter = message.NewPrinter(language.English)

// MaxMoney is the largest amount a price, line, receipt or payment column can
// hold (NUMERIC(14,2)).
var MaxMoney = decimal.RequireFromString("999999999999.99")

// MaxQuantity matches the NUMERIC(12,3) quantity column.
var MaxQuantity = decimal.RequireFromString("999999999.999")

// ExceedsMoneyBound reports whether d cannot be stored as an amount.
func ExceedsMoneyBound(d decimal.Decimal) bool {
	return RoundMoney(d).Abs().GreaterThan(MaxMoney)
}

// RoundMoney rounds half-up (away from zero) to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// FormatTSh renders an amount the way receipts and error messages show it:
// "TSh 3,000" for whole amounts and "TSh 2,999.50" otherwise. Digits come
// from the decimal itself, so large amounts print exactly.
func FormatTSh(d decimal.Decimal) string {
	d = RoundMoney(d)
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	abs := d.Abs()
	whole := abs.Truncate(0)
	text := "TSh " + sign + groupThousands(whole)
	if abs.Equal(whole) {
		return text
	}
	fixed := abs.StringFixed(MoneyPlaces)
	return text + fixed[len(fixed)-MoneyPlaces-1:]
}

// groupThousands inserts thousands separators into a non-negative integer.
func groupThousands(whole decimal.Decimal) string {
	if n := whole.BigInt(); n.IsInt64() {
		return moneyPrinter.Sprintf("%v", number.Decimal(n.Int64()))
	}
	digits := whole.String()
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
