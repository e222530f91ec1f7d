package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

func init() {
	// Money renders as a JSON number, matching what API clients already consume.
	decimal.MarshalJSONWithoutQuotes = true
}

var maxCents = decimal.NewFromInt(math.MaxInt64)

// FromCents converts stored integer cents to an amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents converts an amount to integer cents. ok is false when the amount has
// more than two fraction digits or does not fit in an int64.
func ToCents(amount decimal.Decimal) (cents int64, ok bool) {
	shifted := amount.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, false
	}
	if shifted.Abs().GreaterThan(maxCents) {
		return 0, false
	}
	return shifted.IntPart(), true
}

// MustCents is ToCents for amounts already validated by the caller.
func MustCents(amount decimal.Decimal) int64 {
	cents, ok := ToCents(amount)
	if !ok {
		panic("domain: amount " + amount.String() + " is not representable in cents")
	}
	return cents
}
