package tickmath

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodePriceSqrt returns sqrt(reserve1/reserve0) * 2^96.
func encodePriceSqrt(reserve1, reserve0 int64) *uint256.Int {
	num := new(big.Int).Lsh(big.NewInt(reserve1), 192)
	ratio := new(big.Int).Div(num, big.NewInt(reserve0))
	return uint256.MustFromBig(new(big.Int).Sqrt(ratio))
}

func TestGetSqrtRatioAtTick(t *testing.T) {
	t.Run("throws for too low", func(t *testing.T) {
		_, err := GetSqrtRatioAtTick(MinTick - 1)
		assert.ErrorIs(t, err, ErrInvalidTick)
	})

	t.Run("throws for too high", func(t *testing.T) {
		_, err := GetSqrtRatioAtTick(MaxTick + 1)
		assert.ErrorIs(t, err, ErrInvalidTick)
	})

	t.Run("min tick", func(t *testing.T) {
		got, err := GetSqrtRatioAtTick(MinTick)
		require.NoError(t, err)
		assert.Equal(t, "4295128739", got.Dec())
	})

	t.Run("min tick plus one", func(t *testing.T) {
		got, err := GetSqrtRatioAtTick(MinTick + 1)
		require.NoError(t, err)
		assert.Equal(t, "4295343490", got.Dec())
	})

	t.Run("max tick", func(t *testing.T) {
		got, err := GetSqrtRatioAtTick(MaxTick)
		require.NoError(t, err)
		assert.Equal(t, "1461446703485210103287273052203988822378723970342", got.Dec())
	})

	t.Run("max tick minus one", func(t *testing.T) {
		got, err := GetSqrtRatioAtTick(MaxTick - 1)
		require.NoError(t, err)
		assert.Equal(t, "1461373636630004318706518188784493106690254656249", got.Dec())
	})

	t.Run("tick zero is one", func(t *testing.T) {
		got, err := GetSqrtRatioAtTick(0)
		require.NoError(t, err)
		assert.True(t, got.Eq(new(uint256.Int).Lsh(uint256.NewInt(1), 96)))
	})

	t.Run("strictly increasing", func(t *testing.T) {
		prev, err := GetSqrtRatioAtTick(-1000)
		require.NoError(t, err)
		for tick := int32(-999); tick <= 1000; tick++ {
			next, err := GetSqrtRatioAtTick(tick)
			require.NoError(t, err)
			require.True(t, next.Gt(prev), "tick %d", tick)
			prev = next
		}
	})
}

func TestGetTickAtSqrtRatio(t *testing.T) {
	t.Run("throws for too low", func(t *testing.T) {
		_, err := GetTickAtSqrtRatio(new(uint256.Int).SubUint64(MinSqrtRatio, 1))
		assert.ErrorIs(t, err, ErrInvalidSqrtRatio)
	})

	t.Run("throws for too high", func(t *testing.T) {
		_, err := GetTickAtSqrtRatio(MaxSqrtRatio)
		assert.ErrorIs(t, err, ErrInvalidSqrtRatio)
	})

	t.Run("ratio of min tick", func(t *testing.T) {
		tick, err := GetTickAtSqrtRatio(MinSqrtRatio)
		require.NoError(t, err)
		assert.Equal(t, MinTick, tick)
	})

	t.Run("ratio closest to max tick", func(t *testing.T) {
		tick, err := GetTickAtSqrtRatio(new(uint256.Int).SubUint64(MaxSqrtRatio, 1))
		require.NoError(t, err)
		assert.Equal(t, MaxTick-1, tick)
	})

	t.Run("price one is tick zero", func(t *testing.T) {
		tick, err := GetTickAtSqrtRatio(new(uint256.Int).Lsh(uint256.NewInt(1), 96))
		require.NoError(t, err)
		assert.Equal(t, int32(0), tick)
	})

	t.Run("just below price one is tick minus one", func(t *testing.T) {
		tick, err := GetTickAtSqrtRatio(uint256.MustFromDecimal("79228162514264329749955861424"))
		require.NoError(t, err)
		assert.Equal(t, int32(-1), tick)
	})

	ratios := []struct {
		name  string
		ratio *uint256.Int
	}{
		{"1e12:1", encodePriceSqrt(1_000_000_000_000, 1)},
		{"1e6:1", encodePriceSqrt(1_000_000, 1)},
		{"1:64", encodePriceSqrt(1, 64)},
		{"1:8", encodePriceSqrt(1, 8)},
		{"1:2", encodePriceSqrt(1, 2)},
		{"1:1", encodePriceSqrt(1, 1)},
		{"2:1", encodePriceSqrt(2, 1)},
		{"8:1", encodePriceSqrt(8, 1)},
		{"64:1", encodePriceSqrt(64, 1)},
		{"1:1e6", encodePriceSqrt(1, 1_000_000)},
		{"1:1e12", encodePriceSqrt(1, 1_000_000_000_000)},
	}
	for _, tc := range ratios {
		t.Run(tc.name, func(t *testing.T) {
			tick, err := GetTickAtSqrtRatio(tc.ratio)
			require.NoError(t, err)
			atTick, err := GetSqrtRatioAtTick(tick)
			require.NoError(t, err)
			atNext, err := GetSqrtRatioAtTick(tick + 1)
			require.NoError(t, err)
			assert.True(t, atTick.Cmp(tc.ratio) <= 0)
			assert.True(t, tc.ratio.Lt(atNext))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		tick := MinTick + int32(rng.Int63n(int64(MaxTick-MinTick)))
		ratio, err := GetSqrtRatioAtTick(tick)
		require.NoError(t, err)
		got, err := GetTickAtSqrtRatio(ratio)
		require.NoError(t, err)
		assert.Equal(t, tick, got, "ratio %s", ratio.Dec())
	}
}
