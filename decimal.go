package keepbook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimal is an exact decimal quantity: balances, prices and rates all use it.
//
// Its zero value is 0.
type Decimal struct {
	value decimal.Decimal
}

// ParseDecimal reads a decimal from its string form ("100.50", "-3", "1e3").
func ParseDecimal(s string) (Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Decimal{}, fmt.Errorf("%w: invalid decimal %q", ErrInvalidInput, s)
	}
	return Decimal{value: v}, nil
}

// MustDecimal is like ParseDecimal but panics on error.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// DecimalFromInt returns the decimal for an integer.
func DecimalFromInt(i int64) Decimal { return Decimal{value: decimal.NewFromInt(i)} }

// NormalizeDecimal returns the canonical form of a decimal string.
func NormalizeDecimal(s string) (string, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

func (d Decimal) Add(e Decimal) Decimal { return Decimal{value: d.value.Add(e.value)} }
func (d Decimal) Sub(e Decimal) Decimal { return Decimal{value: d.value.Sub(e.value)} }
func (d Decimal) Mul(e Decimal) Decimal { return Decimal{value: d.value.Mul(e.value)} }
func (d Decimal) Cmp(e Decimal) int     { return d.value.Cmp(e.value) }
func (d Decimal) Equal(e Decimal) bool  { return d.value.Equal(e.value) }
func (d Decimal) IsZero() bool          { return d.value.IsZero() }
func (d Decimal) IsNegative() bool      { return d.value.IsNegative() }

// DivRound divides d by e and rounds the quotient half away from zero to the
// given number of fractional digits, in a single rounding step.
// It panics if e is zero.
func (d Decimal) DivRound(e Decimal, places int32) Decimal {
	return Decimal{value: d.value.DivRound(e.value, places)}
}

// Round rounds half away from zero to the given number of fractional digits.
func (d Decimal) Round(places int32) Decimal { return Decimal{value: d.value.Round(places)} }

// StringFixed formats d with exactly places fractional digits.
func (d Decimal) StringFixed(places int32) string { return d.value.StringFixed(places) }

// Shift returns d * 10^exp.
func (d Decimal) Shift(exp int32) Decimal { return Decimal{value: d.value.Shift(exp)} }

// IntPart returns the integer part of d, truncated toward zero.
func (d Decimal) IntPart() int64 { return d.value.IntPart() }

// String returns the normalized form: no trailing fractional zeros, no
// trailing decimal point, and "0" for any zero (including "-0").
func (d Decimal) String() string {
	if d.value.IsZero() {
		return "0"
	}
	return d.value.String()
}

// MarshalJSON writes the normalized form as a JSON string.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
