package shared

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// MoneyPlaces is the minor-unit precision used for every monetary amount.
const MoneyPlaces = 2

// QuantityPlaces bounds stock quantities (grams of a kilogram, millilitres of a litre).
const QuantityPlaces = 4

// ErrInvalidCurrency indicates a reporting currency tag that is not ISO 4217.
var ErrInvalidCurrency = Validation("shared: currency must be an ISO 4217 code")

// RoundMoney rounds half away from zero to the minor unit.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// HasMoneyPrecision reports whether d needs no rounding at the minor unit.
func HasMoneyPrecision(d decimal.Decimal) bool {
	return d.Equal(RoundMoney(d))
}

// SumMoney adds amounts without intermediate rounding.
func SumMoney(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// NormalizeCurrency validates and upper-cases a reporting currency tag.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", ErrInvalidCurrency
	}
	return unit.String(), nil
}
