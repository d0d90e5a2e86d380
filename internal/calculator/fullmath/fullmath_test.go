package fullmath

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

func TestMulDiv(t *testing.T) {
	t.Run("reverts if denominator is zero", func(t *testing.T) {
		_, err := MulDiv(q128, uint256.NewInt(5), new(uint256.Int))
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})

	t.Run("reverts if denominator is zero and numerator overflows", func(t *testing.T) {
		_, err := MulDiv(q128, q128, new(uint256.Int))
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})

	t.Run("reverts if output overflows uint256", func(t *testing.T) {
		_, err := MulDiv(q128, q128, uint256.NewInt(1))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("reverts on overflow with all max inputs minus one", func(t *testing.T) {
		max := new(uint256.Int).SetAllOne()
		_, err := MulDiv(max, max, new(uint256.Int).SubUint64(max, 1))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("all max inputs", func(t *testing.T) {
		max := new(uint256.Int).SetAllOne()
		got, err := MulDiv(max, max, max)
		require.NoError(t, err)
		assert.True(t, got.Eq(max))
	})

	t.Run("accurate without phantom overflow", func(t *testing.T) {
		// q128 * (q128/2) / (q128*3/2) == q128/3
		b := new(uint256.Int).Div(q128, uint256.NewInt(2))
		d := new(uint256.Int).Div(new(uint256.Int).Mul(q128, uint256.NewInt(3)), uint256.NewInt(2))
		got, err := MulDiv(q128, b, d)
		require.NoError(t, err)
		assert.True(t, got.Eq(new(uint256.Int).Div(q128, uint256.NewInt(3))), got.Dec())
	})

	t.Run("accurate with phantom overflow", func(t *testing.T) {
		// q128 * 35*q128 / (8*q128) == 35*q128/8
		b := new(uint256.Int).Mul(q128, uint256.NewInt(35))
		d := new(uint256.Int).Mul(q128, uint256.NewInt(8))
		got, err := MulDiv(q128, b, d)
		require.NoError(t, err)
		want := new(uint256.Int).Div(new(uint256.Int).Mul(q128, uint256.NewInt(35)), uint256.NewInt(8))
		assert.True(t, got.Eq(want), got.Dec())
	})
}

func TestMulDivRoundingUp(t *testing.T) {
	t.Run("reverts if denominator is zero", func(t *testing.T) {
		_, err := MulDivRoundingUp(q128, uint256.NewInt(5), new(uint256.Int))
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})

	t.Run("reverts if rounding up overflows", func(t *testing.T) {
		a := uint256.MustFromDecimal("535006138814359")
		b := uint256.MustFromDecimal("432862656469423142931042426214547535783388063929571229938474969")
		d := uint256.NewInt(2)
		_, err := MulDivRoundingUp(a, b, d)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("rounds up a remainder", func(t *testing.T) {
		got, err := MulDivRoundingUp(uint256.NewInt(7), uint256.NewInt(3), uint256.NewInt(2))
		require.NoError(t, err)
		assert.Equal(t, uint64(11), got.Uint64())
	})

	t.Run("exact division is not rounded", func(t *testing.T) {
		got, err := MulDivRoundingUp(uint256.NewInt(8), uint256.NewInt(3), uint256.NewInt(2))
		require.NoError(t, err)
		assert.Equal(t, uint64(12), got.Uint64())
	})
}

func TestDivRoundingUp(t *testing.T) {
	got, err := DivRoundingUp(uint256.NewInt(10), uint256.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Uint64())

	_, err = DivRoundingUp(uint256.NewInt(10), new(uint256.Int))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}
