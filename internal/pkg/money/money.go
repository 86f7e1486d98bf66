// Package money holds the price arithmetic shared by the offer and cart
// layers: decimal comparison within currency-rounding tolerance and the
// Russian-locale display format used in user-facing notifications.
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// tolerance is half a kopeck: two prices closer than this are the same price
// for reconciliation purposes.
var tolerance = decimal.NewFromFloat(0.005)

var printer = message.NewPrinter(language.Russian)

// Equal reports whether two prices are equal within rounding tolerance.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tolerance)
}

// FormatRUB renders a price the way the storefront does: grouped digits in
// the Russian locale with a ruble sign, kopecks only when present.
func FormatRUB(d decimal.Decimal) string {
	f, _ := d.Float64()
	if d.Equal(d.Truncate(0)) {
		return printer.Sprintf("%v ₽", number.Decimal(f, number.MaxFractionDigits(0)))
	}
	return printer.Sprintf("%v ₽", number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// PercentChange returns |new-old|/old*100 rounded to one decimal place.
// Returns zero when old is zero.
func PercentChange(oldPrice, newPrice decimal.Decimal) decimal.Decimal {
	if oldPrice.IsZero() {
		return decimal.Zero
	}
	return newPrice.Sub(oldPrice).Abs().
		Div(oldPrice).
		Mul(decimal.NewFromInt(100)).
		Round(1)
}
