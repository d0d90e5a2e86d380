package sqrtpricemath

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePriceSqrt(reserve1, reserve0 int64) *uint256.Int {
	num := new(big.Int).Lsh(big.NewInt(reserve1), 192)
	return uint256.MustFromBig(new(big.Int).Sqrt(num.Div(num, big.NewInt(reserve0))))
}

func e18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func TestGetNextSqrtPriceFromInput(t *testing.T) {
	price := encodePriceSqrt(1, 1)

	t.Run("fails if price is zero", func(t *testing.T) {
		_, err := GetNextSqrtPriceFromInput(new(uint256.Int), uint256.NewInt(1), uint256.NewInt(100), false)
		assert.ErrorIs(t, err, ErrSqrtPriceZero)
	})

	t.Run("fails if liquidity is zero", func(t *testing.T) {
		_, err := GetNextSqrtPriceFromInput(uint256.NewInt(1), new(uint256.Int), uint256.NewInt(100), true)
		assert.ErrorIs(t, err, ErrLiquidityZero)
	})

	t.Run("returns input price if amount in is zero", func(t *testing.T) {
		for _, zeroForOne := range []bool{true, false} {
			got, err := GetNextSqrtPriceFromInput(price, uint256.NewInt(100_000_000_000_000_000), new(uint256.Int), zeroForOne)
			require.NoError(t, err)
			assert.True(t, got.Eq(price))
		}
	})

	t.Run("input amount of 0.1 token1", func(t *testing.T) {
		got, err := GetNextSqrtPriceFromInput(price, e18(1), uint256.NewInt(100_000_000_000_000_000), false)
		require.NoError(t, err)
		assert.Equal(t, "87150978765690771352898345369", got.Dec())
	})

	t.Run("input amount of 0.1 token0", func(t *testing.T) {
		got, err := GetNextSqrtPriceFromInput(price, e18(1), uint256.NewInt(100_000_000_000_000_000), true)
		require.NoError(t, err)
		assert.Equal(t, "72025602285694852357767227579", got.Dec())
	})

	t.Run("fails if input overflows the price", func(t *testing.T) {
		max160 := new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 160), 1)
		_, err := GetNextSqrtPriceFromInput(max160, uint256.NewInt(1024), uint256.NewInt(1024), false)
		assert.ErrorIs(t, err, ErrPriceOverflow)
	})
}

func TestGetNextSqrtPriceFromOutput(t *testing.T) {
	t.Run("fails if output amount is exactly the virtual reserves of token0", func(t *testing.T) {
		price := uint256.MustFromDecimal("20282409603651670423947251286016")
		_, err := GetNextSqrtPriceFromOutput(price, uint256.NewInt(1024), uint256.NewInt(4), false)
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	})

	t.Run("fails if output amount is exactly the virtual reserves of token1", func(t *testing.T) {
		price := uint256.MustFromDecimal("20282409603651670423947251286016")
		_, err := GetNextSqrtPriceFromOutput(price, uint256.NewInt(1024), uint256.NewInt(262144), true)
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	})

	t.Run("succeeds just below the virtual reserves of token1", func(t *testing.T) {
		price := uint256.MustFromDecimal("20282409603651670423947251286016")
		got, err := GetNextSqrtPriceFromOutput(price, uint256.NewInt(1024), uint256.NewInt(262143), true)
		require.NoError(t, err)
		assert.Equal(t, "77371252455336267181195264", got.Dec())
	})
}

func TestGetAmountDeltas(t *testing.T) {
	a := encodePriceSqrt(1, 1)
	b := encodePriceSqrt(121, 100)

	t.Run("amount0 is zero if liquidity is zero", func(t *testing.T) {
		got, err := GetAmount0Delta(a, encodePriceSqrt(2, 1), new(uint256.Int), true)
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("amount0 for price of 1 to 1.21", func(t *testing.T) {
		up, err := GetAmount0Delta(a, b, e18(1), true)
		require.NoError(t, err)
		assert.Equal(t, "90909090909090910", up.Dec())

		down, err := GetAmount0Delta(a, b, e18(1), false)
		require.NoError(t, err)
		assert.Equal(t, "90909090909090909", down.Dec())
	})

	t.Run("amount1 for price of 1 to 1.21", func(t *testing.T) {
		up, err := GetAmount1Delta(a, b, e18(1), true)
		require.NoError(t, err)
		assert.Equal(t, "100000000000000000", up.Dec())

		down, err := GetAmount1Delta(a, b, e18(1), false)
		require.NoError(t, err)
		assert.Equal(t, "99999999999999999", down.Dec())
	})

	t.Run("argument order does not matter", func(t *testing.T) {
		x, err := GetAmount0Delta(b, a, e18(1), true)
		require.NoError(t, err)
		y, err := GetAmount0Delta(a, b, e18(1), true)
		require.NoError(t, err)
		assert.True(t, x.Eq(y))
	})

	t.Run("signed deltas round in favour of the pool", func(t *testing.T) {
		liquidity := e18(1).ToBig()
		added, err := GetAmount0DeltaSigned(a, b, liquidity)
		require.NoError(t, err)
		assert.Equal(t, "90909090909090910", added.String())

		removed, err := GetAmount0DeltaSigned(a, b, new(big.Int).Neg(liquidity))
		require.NoError(t, err)
		assert.Equal(t, "-90909090909090909", removed.String())

		removed1, err := GetAmount1DeltaSigned(a, b, new(big.Int).Neg(liquidity))
		require.NoError(t, err)
		assert.Equal(t, "-99999999999999999", removed1.String())
	})
}
