package liquiditymath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrUnderflow = errors.New("liquiditymath: liquidity underflow")
	ErrOverflow  = errors.New("liquiditymath: liquidity overflow")

	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// AddDelta adds a signed delta to a uint128 liquidity value.
func AddDelta(x *uint256.Int, y *big.Int) (*uint256.Int, error) {
	sum := new(big.Int).Add(x.ToBig(), y)
	if sum.Sign() < 0 {
		return nil, ErrUnderflow
	}
	if sum.Cmp(maxUint128) > 0 {
		return nil, ErrOverflow
	}
	return uint256.MustFromBig(sum), nil
}
