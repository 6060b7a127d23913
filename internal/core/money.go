// Package core holds the ledger's domain types and the date arithmetic shared
// by storage, aggregation and the recurring engine.
//
// Amounts are carried as integer cents so that SQL sums stay exact; parsing
// and formatting go through shopspring/decimal.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

// ParseMoney converts a decimal string to Money with half-up rounding to cents.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Signs, zero and
// malformed input return ErrInvalidAmount.
//
//	ParseMoney("32.5")   -> {3250}
//	ParseMoney("12,345") -> {1235}
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Round(2).Shift(2)
	if !cents.IsInteger() || cents.Sign() <= 0 {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

func FromCents(c int64) Money {
	return Money{Cents: c}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float returns the amount in currency units for ratio computations.
func (m Money) Float() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

// String renders the amount with exactly two decimals.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}
