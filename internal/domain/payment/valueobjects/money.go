package valueobjects

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	ErrInvalidCurrency = errors.New("invalid ISO-4217 currency code")
	ErrInvalidRate     = errors.New("conversion rate must be positive")
)

// Money is an exact decimal amount in an ISO-4217 currency.
type Money struct {
	amount   decimal.Decimal
	currency string
}

func NewMoney(amount decimal.Decimal, code string) (Money, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := currency.ParseISO(code); err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return Money{amount: amount, currency: code}, nil
}

// MustMoney is NewMoney for constants and tests.
func MustMoney(amount string, code string) Money {
	m, err := NewMoney(decimal.RequireFromString(amount), code)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Amount() decimal.Decimal { return m.amount }

func (m Money) Currency() string { return m.currency }

func (m Money) IsPositive() bool { return m.amount.IsPositive() }

func (m Money) IsZero() bool { return m.currency == "" && m.amount.IsZero() }

// MinorUnits returns the number of decimal places the currency settles in
// (NPR and USD: 2, JPY: 0).
func MinorUnits(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Rounded returns m rounded half away from zero to its currency's minor unit.
func (m Money) Rounded() Money {
	return Money{amount: m.amount.Round(MinorUnits(m.currency)), currency: m.currency}
}

// ConvertTo converts m into target using rate, expressed as units of m's
// currency per one unit of target (USD→NPR 133 means 1 USD = 133 NPR).
// The result is rounded to target's minor unit.
func (m Money) ConvertTo(target string, rate decimal.Decimal) (Money, error) {
	if !rate.IsPositive() {
		return Money{}, ErrInvalidRate
	}
	out, err := NewMoney(m.amount.DivRound(rate, 16), target)
	if err != nil {
		return Money{}, err
	}
	return out.Rounded(), nil
}

// Equals compares amounts numerically, so 100 and 100.00 are equal.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// StringFixed formats the amount with the currency's minor unit digits, the
// representation providers expect on the wire.
func (m Money) StringFixed() string {
	return m.amount.StringFixed(MinorUnits(m.currency))
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.StringFixed(), m.currency)
}
