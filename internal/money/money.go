// Package money provides the fixed-point amount type used for every balance
// and transaction amount in the ledger. Values carry exactly four fractional
// digits and are stored and transmitted as decimal strings; binary floating
// point is never used on stored values.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every stored amount carries.
const Scale = 4

// MaxOperationAmount is the upper bound for the amount of any single
// deposit, withdrawal or admin entry.
var MaxOperationAmount = decimal.NewFromInt(1_000_000)

// Amount is an exact decimal currency value with a fixed scale of four.
// The zero value is 0.0000 and ready to use.
type Amount struct {
	d decimal.Decimal
}

// Zero is the 0.0000 amount.
var Zero = Amount{}

// New builds an Amount from an integer and a decimal exponent,
// e.g. New(255, -1) == 25.5000.
func New(value int64, exp int32) Amount {
	return Amount{d: decimal.New(value, exp)}
}

// FromDecimal wraps an arbitrary decimal as an Amount. The value keeps its
// exact numeric value; formatting rounds to four digits.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d}
}

// Parse converts a decimal string into an Amount. It accepts any value the
// underlying decimal parser accepts; range rules are enforced separately by
// ParseOperationAmount.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// ParseOperationAmount parses and validates the amount of a single ledger
// operation: strictly positive, at most 1,000,000, and no more than four
// fractional digits.
func ParseOperationAmount(s string) (Amount, error) {
	a, err := Parse(s)
	if err != nil {
		return Zero, err
	}
	if err := a.ValidateOperation(); err != nil {
		return Zero, err
	}
	return a, nil
}

// ValidateOperation reports whether the amount is acceptable for a single
// deposit, withdrawal or admin entry.
func (a Amount) ValidateOperation() error {
	if !a.d.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", a.String())
	}
	if a.d.GreaterThan(MaxOperationAmount) {
		return fmt.Errorf("amount %s exceeds the %s limit", a.String(), MaxOperationAmount.String())
	}
	if a.d.Exponent() < -Scale {
		return fmt.Errorf("amount %s has more than %d fractional digits", a.String(), Scale)
	}
	return nil
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{d: a.d.Sub(b.d)}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{d: a.d.Neg()}
}

// Cmp compares a and b: -1 if a < b, 0 if equal, +1 if a > b.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// Equal reports whether a and b represent the same numeric value.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool {
	return a.d.IsNegative()
}

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool {
	return a.d.IsPositive()
}

// String renders the amount with exactly four fractional digits,
// the canonical storage representation ("40.0000").
func (a Amount) String() string {
	return a.d.StringFixed(Scale)
}

// Decimal exposes the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// MarshalJSON encodes the amount as a JSON string to keep the exact decimal
// representation on the wire.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
