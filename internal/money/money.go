// Package money implements fixed-point currency amounts and remainder-safe pro-rata splitting.
//
// All amounts are held as an integer count of minor units (paise for INR). Decimal input and
// output goes through shopspring/decimal so no float arithmetic ever touches a money value.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitDigits is the number of fractional digits of the currency's minor unit.
const MinorUnitDigits = 2

var minorUnitScale = decimal.New(1, MinorUnitDigits)

var (
	// ErrInvalidAmount indicates an amount string could not be parsed as a decimal.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrTooPrecise indicates an amount carries more fractional digits than the minor unit allows.
	ErrTooPrecise = errors.New("amount has more precision than the currency minor unit")

	// ErrOutOfRange indicates an amount does not fit in 64 bits of minor units.
	ErrOutOfRange = errors.New("amount out of range")
)

// Money is an amount of currency in minor units.
type Money int64

// Zero is the zero amount.
const Zero Money = 0

// FromMinor returns an amount from a count of minor units.
func FromMinor(units int64) Money {
	return Money(units)
}

// FromMajor returns an amount from a whole number of major units (rupees).
func FromMajor(units int64) Money {
	return Money(units * 100)
}

// FromDecimal converts a decimal amount in major units to Money.
// Amounts with more than MinorUnitDigits fractional digits are rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (Money, error) {
	scaled := d.Mul(minorUnitScale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrTooPrecise, d.String())
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return Money(scaled.IntPart()), nil
}

// Parse parses a decimal string in major units, e.g. "9500000.00" or "12.5".
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests. It panics on error.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Minor returns the amount as a count of minor units.
func (m Money) Minor() int64 {
	return int64(m)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MinorUnitDigits)
}

// String formats the amount in major units with exactly MinorUnitDigits fractional digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(MinorUnitDigits)
}

func (m Money) IsZero() bool     { return m == 0 }
func (m Money) IsNegative() bool { return m < 0 }
func (m Money) IsPositive() bool { return m > 0 }

func (m Money) Add(o Money) Money { return m + o }
func (m Money) Sub(o Money) Money { return m - o }

// Sum adds all amounts.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}

// ApplyRate returns round(m × rate) to the minor unit, rounding half away from zero.
func ApplyRate(m Money, rate decimal.Decimal) Money {
	return Money(decimal.NewFromInt(int64(m)).Mul(rate).Round(0).IntPart())
}

// MarshalJSON encodes the amount as a decimal string so clients never see float rounding.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores the amount as INTEGER minor units.
func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}

// Scan reads INTEGER minor units.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*m = Money(v)
	case nil:
		*m = 0
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
	return nil
}
