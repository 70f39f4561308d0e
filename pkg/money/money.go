package money

import (
	"errors"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// All balances, prices and escrow amounts in the system are unsigned
// integers in the smallest credit denomination. Arithmetic on them must
// never wrap: an escrow computation that would overflow fails the
// operation instead. decimal.Decimal enters only at the display edge.

// CreditDecimals is the number of smallest-denomination digits behind
// one display credit.
const CreditDecimals = 6

var ErrOverflow = errors.New("amount overflow")

// Mul multiplies two smallest-denomination amounts, failing on
// overflow.
func Mul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// Add adds two smallest-denomination amounts, failing on overflow.
func Add(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Credits converts a smallest-denomination amount into a decimal number
// of display credits.
func Credits(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -CreditDecimals)
}

// FormatCredits renders a smallest-denomination amount as a display
// string, e.g. 1500000 -> "1.5".
func FormatCredits(amount uint64) string {
	return Credits(amount).String()
}
