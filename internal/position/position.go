// Package position tracks liquidity owned by an address over a tick range
// and the fees it has earned since its last update.
package position

import (
	"bytes"
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"ammcore/internal/calculator/fullmath"
	"ammcore/internal/calculator/liquiditymath"
)

var ErrCannotUpdateEmptyPosition = errors.New("position: cannot update empty position")

var q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

type Info struct {
	Liquidity                *uint256.Int `json:"liquidity"`
	FeeGrowthInside0LastX128 *uint256.Int `json:"fee_growth_inside0_last_x128"`
	FeeGrowthInside1LastX128 *uint256.Int `json:"fee_growth_inside1_last_x128"`
}

func emptyInfo() *Info {
	return &Info{
		Liquidity:                new(uint256.Int),
		FeeGrowthInside0LastX128: new(uint256.Int),
		FeeGrowthInside1LastX128: new(uint256.Int),
	}
}

func (i *Info) clone() *Info {
	return &Info{
		Liquidity:                new(uint256.Int).Set(i.Liquidity),
		FeeGrowthInside0LastX128: new(uint256.Int).Set(i.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: new(uint256.Int).Set(i.FeeGrowthInside1LastX128),
	}
}

// Key hashes the packed (owner, tickLower, tickUpper) tuple; ticks are
// packed as 3-byte two's complement integers.
func Key(owner common.Address, tickLower, tickUpper int32) common.Hash {
	buf := make([]byte, 0, common.AddressLength+6)
	buf = append(buf, owner.Bytes()...)
	buf = appendInt24(buf, tickLower)
	buf = appendInt24(buf, tickUpper)
	return crypto.Keccak256Hash(buf)
}

func appendInt24(buf []byte, v int32) []byte {
	u := uint32(v)
	return append(buf, byte(u>>16), byte(u>>8), byte(u))
}

// Store maps position keys to their state.
type Store map[common.Hash]*Info

// Keys lists the stored position keys in byte order.
func (s Store) Keys() []common.Hash {
	out := make([]common.Hash, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Get returns a copy of the position, zero valued when absent.
func (s Store) Get(owner common.Address, tickLower, tickUpper int32) Info {
	if info, ok := s[Key(owner, tickLower, tickUpper)]; ok {
		return *info.clone()
	}
	return *emptyInfo()
}

// Update applies liquidityDelta and returns the fees owed to the position
// since the previous update. The fee growth snapshot is refreshed whatever
// the sign of the delta.
func (s Store) Update(owner common.Address, tickLower, tickUpper int32, liquidityDelta *big.Int, feeGrowthInside0X128, feeGrowthInside1X128 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	key := Key(owner, tickLower, tickUpper)
	info, ok := s[key]
	if !ok {
		info = emptyInfo()
	}

	liquidityNext := new(uint256.Int).Set(info.Liquidity)
	if liquidityDelta.Sign() == 0 {
		if info.Liquidity.IsZero() {
			return nil, nil, ErrCannotUpdateEmptyPosition
		}
	} else {
		next, err := liquiditymath.AddDelta(info.Liquidity, liquidityDelta)
		if err != nil {
			return nil, nil, err
		}
		liquidityNext = next
	}

	// accumulators wrap, only their difference is meaningful
	growth0 := new(uint256.Int).Sub(feeGrowthInside0X128, info.FeeGrowthInside0LastX128)
	growth1 := new(uint256.Int).Sub(feeGrowthInside1X128, info.FeeGrowthInside1LastX128)
	feesOwed0, err := fullmath.MulDiv(growth0, info.Liquidity, q128)
	if err != nil {
		return nil, nil, err
	}
	feesOwed1, err := fullmath.MulDiv(growth1, info.Liquidity, q128)
	if err != nil {
		return nil, nil, err
	}

	s[key] = &Info{
		Liquidity:                liquidityNext,
		FeeGrowthInside0LastX128: new(uint256.Int).Set(feeGrowthInside0X128),
		FeeGrowthInside1LastX128: new(uint256.Int).Set(feeGrowthInside1X128),
	}
	return feesOwed0, feesOwed1, nil
}

// Clone deep-copies the store.
func (s Store) Clone() Store {
	out := make(Store, len(s))
	for k, v := range s {
		out[k] = v.clone()
	}
	return out
}
