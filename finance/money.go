/*
Package finance provides the core agreement and installment ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for turning a
  negotiated settlement into a concrete payment schedule, tracking its
  execution over time (on-time, partial, overdue payments with accruing
  penalties), and deriving aggregate agreement state.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: A monetary amount with fixed 2-decimal scale
  - Percent: A percentage rate used for fees and daily interest

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never binary floating point, so that
     schedule sums are exact across hundreds of installments
  2. Fixed scale: Every stored Money value is rounded to 2 decimal places
  3. Immutability: Money values are passed and returned by value

SEE ALSO:
  - schedule.go: Installment schedule generation
  - accrual.go: Late fee and interest computation
  - derive.go: Aggregate state derivation
*/
package finance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-scale monetary amount
// =============================================================================

// Money is a monetary amount with a fixed scale of 2 decimal places.
// All arithmetic that can produce sub-cent precision rounds explicitly.
type Money struct {
	Value decimal.Decimal
}

// moneyScale is the number of decimal places every stored amount carries.
const moneyScale = 2

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value).Round(moneyScale)}
}

func NewMoneyFromInt(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

// MoneyFromString parses a decimal string like "333.33".
// Returns Zero on malformed input.
func MoneyFromString(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d.Round(moneyScale)}
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money        { return Money{Value: m.Value.Neg()} }

func (m Money) IsZero() bool     { return m.Value.IsZero() }
func (m Money) IsNegative() bool { return m.Value.IsNegative() }
func (m Money) IsPositive() bool { return m.Value.IsPositive() }

func (m Money) Equal(o Money) bool          { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool    { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool       { return m.Value.LessThan(o.Value) }
func (m Money) GreaterOrEqual(o Money) bool { return m.Value.GreaterThanOrEqual(o.Value) }

// ClampZero returns the amount, floored at zero.
func (m Money) ClampZero() Money {
	if m.IsNegative() {
		return ZeroMoney()
	}
	return m
}

// DivFloor divides by n and truncates to the money scale.
// The caller is responsible for reassigning the remainder; see schedule.go.
func (m Money) DivFloor(n int64) Money {
	return Money{Value: m.Value.Div(decimal.NewFromInt(n)).Truncate(moneyScale)}
}

// MulInt multiplies by a whole number. Exact, no rounding needed.
func (m Money) MulInt(n int64) Money {
	return Money{Value: m.Value.Mul(decimal.NewFromInt(n))}
}

// ApplyPercent returns m * pct / 100, rounded half-up to the money scale.
func (m Money) ApplyPercent(pct Percent) Money {
	return Money{Value: m.Value.Mul(pct.rate()).Round(moneyScale)}
}

// ApplyDailyPercent returns m * pct / 100 * days, rounded half-up.
// Simple interest: the rate applies to the original amount, not compounded.
func (m Money) ApplyDailyPercent(pct Percent, days int) Money {
	if days <= 0 {
		return ZeroMoney()
	}
	return Money{Value: m.Value.Mul(pct.rate()).Mul(decimal.NewFromInt(int64(days))).Round(moneyScale)}
}

func (m Money) String() string {
	return m.Value.StringFixed(moneyScale)
}

// Float64 is for JSON responses only. Never feed the result back into
// monetary arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.Value.Float64()
	return f
}

// =============================================================================
// PERCENT - Fee and interest rates
// =============================================================================

// Percent is a rate expressed in percentage points, e.g. 2 means 2%.
type Percent struct {
	Value decimal.Decimal
}

func NewPercent(value float64) Percent {
	return Percent{Value: decimal.NewFromFloat(value)}
}

func PercentFromString(s string) Percent {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Percent{Value: decimal.Zero}
	}
	return Percent{Value: d}
}

func (p Percent) IsZero() bool     { return p.Value.IsZero() }
func (p Percent) IsNegative() bool { return p.Value.IsNegative() }

func (p Percent) rate() decimal.Decimal {
	return p.Value.Div(decimal.NewFromInt(100))
}

func (p Percent) String() string { return p.Value.String() }

func (p Percent) Float64() float64 {
	f, _ := p.Value.Float64()
	return f
}
