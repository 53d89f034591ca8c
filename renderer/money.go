package renderer

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/etnz/keepbook"
)

// Money is an amount in a currency, formatted with the currency's symbol and
// fraction digits ("$1,234.56").
type Money struct {
	Value    keepbook.Decimal
	Currency string
}

// M returns the money value of d in currency.
func M(d keepbook.Decimal, currency string) Money {
	return Money{Value: d, Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// String rounds to the currency fraction digits. Unknown currencies are
// written as the plain decimal followed by their code.
func (m Money) String() string {
	cur := money.GetCurrency(m.Currency)
	if cur == nil {
		return m.Value.String() + " " + m.Currency
	}
	units := m.Value.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	return cur.Formatter().Format(units.IntPart())
}

// SignedString is like String with an explicit sign; zero is "-".
func (m Money) SignedString() string {
	switch {
	case m.Value.IsZero():
		return "-"
	case m.Value.IsNegative():
		return m.String()
	default:
		return "+" + m.String()
	}
}
