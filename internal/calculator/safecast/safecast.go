// Package safecast converts between signed and unsigned integer widths,
// failing instead of truncating.
package safecast

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var ErrOverflow = errors.New("safecast: value does not fit target type")

var (
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt256 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
)

// ToInt128 returns x if it lies in [-2^127, 2^127).
func ToInt128(x *big.Int) (*big.Int, error) {
	if x.Cmp(minInt128) < 0 || x.Cmp(maxInt128) > 0 {
		return nil, ErrOverflow
	}
	return x, nil
}

// CheckInt256 returns x if it lies in [-2^255, 2^255).
func CheckInt256(x *big.Int) (*big.Int, error) {
	if x.Cmp(minInt256) < 0 || x.Cmp(maxInt256) > 0 {
		return nil, ErrOverflow
	}
	return x, nil
}

// ToInt256 reinterprets an unsigned value as signed; the top bit must be clear.
func ToInt256(x *uint256.Int) (*big.Int, error) {
	if x.BitLen() > 255 {
		return nil, ErrOverflow
	}
	return x.ToBig(), nil
}

// Uint128ToInt128 converts a uint128 quantity to int128.
func Uint128ToInt128(x *uint256.Int) (*big.Int, error) {
	if x.BitLen() > 127 {
		return nil, ErrOverflow
	}
	return x.ToBig(), nil
}

// ToUint256 converts a non-negative signed value.
func ToUint256(x *big.Int) (*uint256.Int, error) {
	if x.Sign() < 0 {
		return nil, ErrOverflow
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

// ToUint128 returns x if it fits 128 bits.
func ToUint128(x *uint256.Int) (*uint256.Int, error) {
	if x.BitLen() > 128 {
		return nil, ErrOverflow
	}
	return x, nil
}

// ToUint160 returns x if it fits 160 bits.
func ToUint160(x *uint256.Int) (*uint256.Int, error) {
	if x.BitLen() > 160 {
		return nil, ErrOverflow
	}
	return x, nil
}
