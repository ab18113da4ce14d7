// Package money converts between decimal currency amounts and integer cents.
// Storage and ledger arithmetic only ever see cents; decimals exist at the edges.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for amounts that are not positive or not exact cents
var ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")

// MaxCents is the largest amount a single expense may carry (1 trillion).
// Group balances sum many of these, so it sits far below the int64 limit.
const MaxCents int64 = 100_000_000_000_000

var (
	half     = decimal.New(5, -1)
	maxCents = decimal.NewFromInt(MaxCents)
)

// ToCents multiplies by 100 and rounds half-up to the nearest cent.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Add(half).Floor().IntPart()
}

// FromCents returns the decimal value of c cents with exactly two fractional digits.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// Format renders cents as a fixed two-digit decimal string, e.g. 3333 -> "33.33".
func Format(c int64) string {
	return FromCents(c).StringFixed(2)
}

// FromDecimal validates a positive amount with at most two fractional digits
// and no more than MaxCents, and returns it in cents.
func FromDecimal(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(2)) {
		return 0, ErrInvalidAmount
	}
	// checked on the decimal, IntPart wraps beyond int64
	if amount.Shift(2).GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	cents := ToCents(amount)
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseAmount parses user input such as "12.50" or "12,50" into cents.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Accept a comma decimal separator as long as there is only one.
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return FromDecimal(amount)
}
