// Package types provides common types used across the lease engine.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// costScale is the fixed-point denominator: amounts carry exactly four
// decimal places of the major currency unit.
const costScale = 10000

// Cost represents a monetary value with exactly four decimal places.
// The amount is stored as an integer count of ten-thousandths of the major
// currency unit, so sums and comparisons are exact — no floating point
// drift between a stored record and a later aggregation.
//
// Examples:
//   - CostOf(0.025, "usd")  = $0.0250 (250 ten-thousandths)
//   - CostOf(49.99, "usd")  = $49.9900
type Cost struct {
	Amount   int64  `json:"amount"`   // ten-thousandths of the major unit
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "eur", ...
}

// CostOf converts a float amount in major units into a Cost, rounding
// half away from zero to four decimal places. This is the single rounding
// point for all cost math in the engine.
func CostOf(amount float64, currency string) Cost {
	scaled := amount * costScale
	var rounded int64
	if scaled >= 0 {
		rounded = int64(math.Floor(scaled + 0.5))
	} else {
		rounded = int64(math.Ceil(scaled - 0.5))
	}
	return Cost{Amount: rounded, Currency: strings.ToLower(currency)}
}

// ZeroCost returns a zero Cost in the specified currency.
func ZeroCost(currency string) Cost {
	return Cost{Amount: 0, Currency: strings.ToLower(currency)}
}

// Float64 returns the amount in major currency units.
func (c Cost) Float64() float64 {
	return float64(c.Amount) / costScale
}

// Add adds two Cost values. Panics if currencies don't match.
func (c Cost) Add(other Cost) Cost {
	c.assertSameCurrency(other)
	return Cost{Amount: c.Amount + other.Amount, Currency: c.Currency}
}

// Subtract subtracts another Cost value. Panics if currencies don't match.
func (c Cost) Subtract(other Cost) Cost {
	c.assertSameCurrency(other)
	return Cost{Amount: c.Amount - other.Amount, Currency: c.Currency}
}

// Multiply multiplies the Cost by an integer quantity.
func (c Cost) Multiply(qty int64) Cost {
	return Cost{Amount: c.Amount * qty, Currency: c.Currency}
}

// IsZero returns true if the amount is zero.
func (c Cost) IsZero() bool { return c.Amount == 0 }

// IsNegative returns true if the amount is less than zero.
func (c Cost) IsNegative() bool { return c.Amount < 0 }

// Equal returns true if both values have the same amount and currency.
func (c Cost) Equal(other Cost) bool {
	return c.Amount == other.Amount && c.Currency == other.Currency
}

// LessThan returns true if this Cost is less than other. Panics if
// currencies don't match.
func (c Cost) LessThan(other Cost) bool {
	c.assertSameCurrency(other)
	return c.Amount < other.Amount
}

// GreaterThan returns true if this Cost is greater than other. Panics if
// currencies don't match.
func (c Cost) GreaterThan(other Cost) bool {
	c.assertSameCurrency(other)
	return c.Amount > other.Amount
}

// FormatMajor returns the amount as a decimal string without a currency
// symbol, always with four decimal places: "0.0250" for CostOf(0.025, "usd").
func (c Cost) FormatMajor() string {
	isNegative := c.Amount < 0
	abs := c.Amount
	if isNegative {
		abs = -abs
	}

	result := fmt.Sprintf("%d.%04d", abs/costScale, abs%costScale)
	if isNegative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string: "0.0250 usd".
func (c Cost) String() string {
	if c.Currency == "" {
		return c.FormatMajor()
	}
	return c.FormatMajor() + " " + c.Currency
}

// MarshalJSON implements json.Marshaler, adding a display field alongside
// the raw fixed-point amount.
func (c Cost) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   c.Amount,
		Currency: c.Currency,
		Display:  c.FormatMajor(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Cost) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Amount = raw.Amount
	c.Currency = strings.ToLower(raw.Currency)
	return nil
}

// SumCosts adds a slice of Cost values. Returns a zero Cost in the given
// currency for an empty slice. Panics on currency mismatch.
func SumCosts(currency string, costs []Cost) Cost {
	total := ZeroCost(currency)
	for _, c := range costs {
		total = total.Add(c)
	}
	return total
}

func (c Cost) assertSameCurrency(other Cost) {
	if c.Currency != other.Currency {
		panic(fmt.Sprintf("cost: currency mismatch: %s vs %s", c.Currency, other.Currency))
	}
}
