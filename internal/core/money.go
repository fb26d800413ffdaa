// Package core provides money parsing and handling utilities.
//
// Amounts are carried as integer cents. Text input goes through
// shopspring/decimal so no float arithmetic touches a ledger amount.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to Money with half-up rounding.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Zero, negative and malformed values return ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234 cents
//	ParseAmount("12,34")  -> 1234 cents
//	ParseAmount("12.345") -> 1235 cents
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MaxCents bounds any single amount and any goal accumulator (one trillion in
// major units), which keeps every sum of two bounded values inside int64.
const MaxCents int64 = 100_000_000_000_000

// MoneyFromDecimal rounds d to cents. Only positive amounts up to MaxCents are accepted.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(2).Shift(2)
	if !cents.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	if cents.GreaterThan(decimal.NewFromInt(MaxCents)) {
		return Money{}, ErrAmountTooLarge
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with exactly two decimals, e.g. "1100.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// CheckedAdd adds two non-negative amounts and reports int64 overflow.
func (m Money) CheckedAdd(o Money) (Money, error) {
	if o.Cents > 0 && m.Cents > math.MaxInt64-o.Cents {
		return Money{}, fmt.Errorf("%s + %s: %w", m, o, ErrAmountOverflow)
	}
	return Money{Cents: m.Cents + o.Cents}, nil
}
