package domain

import "math/big"

// WadScale is the fixed-point scale for all amounts and prices: 18 decimal
// places, matching the wei convention of the source chain. Every arithmetic
// operation in the ledger stays in this integer domain; floats never touch
// position or trade state.
var WadScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// BpsDenom is the basis-point denominator: 10000 bps = 100%.
const BpsDenom = 10_000

// Wad converts a whole-unit quantity into its 18-decimal representation.
func Wad(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), WadScale)
}

// WMul multiplies two wad-scaled values: (a * b) / 1e18, truncating toward
// zero (big.Int Quo semantics).
func WMul(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, WadScale)
}

// WDiv divides two wad-scaled values: (a * 1e18) / b, truncating toward zero.
// Division by zero panics, as with big.Int.
func WDiv(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, WadScale)
	return out.Quo(out, b)
}
