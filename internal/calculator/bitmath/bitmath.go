package bitmath

import (
	"errors"
	"math/bits"

	"github.com/holiman/uint256"
)

// ErrZero is returned for a zero input; neither bit index is defined for it.
var ErrZero = errors.New("bitmath: input must be greater than zero")

// MostSignificantBit returns the index of the highest set bit, so that
// x >= 2**msb(x) and x < 2**(msb(x)+1).
func MostSignificantBit(x *uint256.Int) (uint8, error) {
	if x.IsZero() {
		return 0, ErrZero
	}
	return uint8(x.BitLen() - 1), nil
}

// LeastSignificantBit returns the index of the lowest set bit, so that
// (x & 2**lsb(x)) != 0 and (x & (2**lsb(x) - 1)) == 0.
func LeastSignificantBit(x *uint256.Int) (uint8, error) {
	for i := 0; i < 4; i++ {
		if x[i] != 0 {
			return uint8(i*64 + bits.TrailingZeros64(x[i])), nil
		}
	}
	return 0, ErrZero
}
