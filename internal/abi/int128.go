package abi

import (
	"math/big"
)

var (
	two64      = new(big.Int).Lsh(big.NewInt(1), 64)
	two128     = new(big.Int).Lsh(big.NewInt(1), 128)
	mask64     = new(big.Int).Sub(two64, big.NewInt(1))
	MaxInt128  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	MinInt128  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	MaxUInt128 = new(big.Int).Sub(two128, big.NewInt(1))
)

// SplitInt128 returns the (low, high) slot pair of v in two's complement.
// The caller guarantees v fits the 128-bit range of its type.
func SplitInt128(v *big.Int) (low, high uint64) {
	x := new(big.Int).Set(v)
	if x.Sign() < 0 {
		x.Add(x, two128)
	}
	low = new(big.Int).And(x, mask64).Uint64()
	high = new(big.Int).Rsh(x, 64).Uint64()
	return low, high
}

// JoinInt128 rebuilds a value from its (low, high) slot pair. signed selects
// two's complement interpretation of the high bit.
func JoinInt128(low, high uint64, signed bool) *big.Int {
	x := new(big.Int).SetUint64(high)
	x.Lsh(x, 64)
	x.Or(x, new(big.Int).SetUint64(low))
	if signed && high>>63 == 1 {
		x.Sub(x, two128)
	}
	return x
}

// FitsInt128 reports whether v is representable as int (signed) or uint.
func FitsInt128(v *big.Int, signed bool) bool {
	if signed {
		return v.Cmp(MinInt128) >= 0 && v.Cmp(MaxInt128) <= 0
	}
	return v.Sign() >= 0 && v.Cmp(MaxUInt128) <= 0
}
