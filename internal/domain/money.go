package domain

import (
	"errors"
	"fmt"
	"math"
)

var ErrMoneyOverflow = errors.New("money amount out of range")

// Money is an amount in the currency's minor unit (paise, cents).
type Money int64

// RoundHalfUp converts a non-negative fractional minor-unit amount to Money.
func RoundHalfUp(minor float64) Money {
	if minor <= 0 || math.IsNaN(minor) {
		return 0
	}
	return Money(math.Floor(minor + 0.5))
}

// Major formats the amount with two decimals, e.g. 4050 -> "40.50".
func (m Money) Major() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Add returns m+o, or ErrMoneyOverflow if the sum does not fit in int64.
func (m Money) Add(o Money) (Money, error) {
	if (o > 0 && m > math.MaxInt64-o) || (o < 0 && m < math.MinInt64-o) {
		return 0, fmt.Errorf("%w: %d + %d", ErrMoneyOverflow, m, o)
	}
	return m + o, nil
}

// Times returns m*n for a non-negative amount and count, or ErrMoneyOverflow.
func (m Money) Times(n int) (Money, error) {
	if m < 0 || n < 0 {
		return 0, fmt.Errorf("%w: negative operand %d x %d", ErrMoneyOverflow, m, n)
	}
	if n != 0 && m > math.MaxInt64/Money(n) {
		return 0, fmt.Errorf("%w: %d x %d", ErrMoneyOverflow, m, n)
	}
	return m * Money(n), nil
}
