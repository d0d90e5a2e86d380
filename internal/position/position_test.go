package position

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammcore/internal/calculator/liquiditymath"
)

var owner = common.HexToAddress("0x1000000000000000000000000000000000000001")

func TestKeyPacksInt24(t *testing.T) {
	packed := append(owner.Bytes(), 0xff, 0xff, 0xc4, 0x00, 0x00, 0x3c)
	assert.Equal(t, crypto.Keccak256Hash(packed), Key(owner, -60, 60))
	assert.NotEqual(t, Key(owner, -60, 60), Key(owner, -120, 60))
}

func TestUpdateEmptyPosition(t *testing.T) {
	s := Store{}
	zero := new(uint256.Int)

	_, _, err := s.Update(owner, -60, 60, new(big.Int), zero, zero)
	assert.ErrorIs(t, err, ErrCannotUpdateEmptyPosition)
	assert.Empty(t, s)

	_, _, err = s.Update(owner, -60, 60, big.NewInt(-1), zero, zero)
	assert.ErrorIs(t, err, liquiditymath.ErrUnderflow)
}

func TestUpdateRemovingMoreThanPresent(t *testing.T) {
	s := Store{}
	zero := new(uint256.Int)
	_, _, err := s.Update(owner, 0, 10, big.NewInt(100), zero, zero)
	require.NoError(t, err)

	_, _, err = s.Update(owner, 0, 10, big.NewInt(-101), zero, zero)
	assert.ErrorIs(t, err, liquiditymath.ErrUnderflow)
	assert.Equal(t, "100", s.Get(owner, 0, 10).Liquidity.Dec())
}

func TestUpdateFeesOwed(t *testing.T) {
	s := Store{}
	zero := new(uint256.Int)
	_, _, err := s.Update(owner, 0, 10, big.NewInt(100), zero, zero)
	require.NoError(t, err)

	// one unit of token0 and three of token1 per unit of liquidity
	growth0 := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	growth1 := new(uint256.Int).Lsh(uint256.NewInt(3), 128)
	fees0, fees1, err := s.Update(owner, 0, 10, new(big.Int), growth0, growth1)
	require.NoError(t, err)
	assert.Equal(t, "100", fees0.Dec())
	assert.Equal(t, "300", fees1.Dec())

	// poking again owes nothing new
	fees0, fees1, err = s.Update(owner, 0, 10, big.NewInt(-100), growth0, growth1)
	require.NoError(t, err)
	assert.True(t, fees0.IsZero())
	assert.True(t, fees1.IsZero())

	info := s.Get(owner, 0, 10)
	assert.True(t, info.Liquidity.IsZero())
	assert.Equal(t, growth0, info.FeeGrowthInside0LastX128)
}

func TestUpdateFeesAcrossWrap(t *testing.T) {
	s := Store{}
	last := new(uint256.Int).Sub(new(uint256.Int).SetAllOne(), new(uint256.Int).Lsh(uint256.NewInt(1), 128))
	last.AddUint64(last, 1)
	_, _, err := s.Update(owner, 0, 10, big.NewInt(2), last, new(uint256.Int))
	require.NoError(t, err)

	// growth moves forward by 2^129 and wraps past zero
	next := new(uint256.Int).Add(last, new(uint256.Int).Lsh(uint256.NewInt(1), 129))
	fees0, _, err := s.Update(owner, 0, 10, new(big.Int), next, new(uint256.Int))
	require.NoError(t, err)
	assert.Equal(t, "4", fees0.Dec())
}
