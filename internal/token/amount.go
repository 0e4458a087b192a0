// Package token provides arithmetic helpers for 256-bit token amounts and
// their USD valuation. Token amounts are carried in base units with 18
// decimals; a 1,000,000,000-token supply in base units does not fit in
// uint64.
package token

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the token's base-unit precision.
const Decimals int32 = 18

var baseUnit = exp10(uint64(Decimals))

func exp10(n uint64) *uint256.Int {
	z := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint64(0); i < n; i++ {
		z.Mul(z, ten)
	}
	return z
}

// Zero returns a fresh zero amount.
func Zero() *uint256.Int { return new(uint256.Int) }

// FromWhole converts a whole-token count to base units.
func FromWhole(whole uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(whole), baseUnit)
}

// ParseWhole parses a decimal whole-token string (e.g. "250000000") into
// base units.
func ParseWhole(s string) (*uint256.Int, error) {
	whole, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse token amount %q: %w", s, err)
	}
	z, overflow := new(uint256.Int).MulOverflow(whole, baseUnit)
	if overflow {
		return nil, fmt.Errorf("token amount %q overflows 256 bits", s)
	}
	return z, nil
}

// ToDecimal converts a raw amount with the given precision into an exact
// decimal value (e.g. base-unit tokens into whole tokens).
func ToDecimal(raw *uint256.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw.ToBig(), -decimals)
}

// WholeString renders a base-unit amount as whole tokens for logs and
// reports.
func WholeString(raw *uint256.Int) string {
	return ToDecimal(raw, Decimals).String()
}

// MulBps multiplies an amount by a basis-point fraction (10000 = 100%).
func MulBps(a *uint256.Int, bps uint32) *uint256.Int {
	z := new(uint256.Int).Mul(a, uint256.NewInt(uint64(bps)))
	return z.Div(z, uint256.NewInt(10000))
}

// MulDiv computes a*num/den without intermediate overflow concerns for the
// magnitudes the engine deals in (num and den are durations in seconds).
func MulDiv(a *uint256.Int, num, den uint64) *uint256.Int {
	z := new(uint256.Int).Mul(a, uint256.NewInt(num))
	return z.Div(z, uint256.NewInt(den))
}

// Min returns the smaller of a and b as a fresh value.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// Sum adds the given amounts into a fresh value.
func Sum(amounts ...*uint256.Int) *uint256.Int {
	z := new(uint256.Int)
	for _, a := range amounts {
		z.Add(z, a)
	}
	return z
}
