package replay

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"ammcore/internal/types"
)

func TestVolumeAddSwap(t *testing.T) {
	v := newVolume()

	v.AddSwap(types.BalanceDelta{Amount0: big.NewInt(1_000_000), Amount1: big.NewInt(-990_000)}, 3000)
	v.AddSwap(types.BalanceDelta{Amount0: big.NewInt(-500), Amount1: big.NewInt(2_000)}, 500)
	v.AddSwap(types.BalanceDelta{Amount0: big.NewInt(10), Amount1: big.NewInt(-10)}, 0)

	assert.Equal(t, uint64(3), v.SwapCount)
	assert.Equal(t, "1000510", v.Volume0.String())
	assert.Equal(t, "992010", v.Volume1.String())
	assert.Equal(t, "3000", v.Fee0.String())
	assert.Equal(t, "1", v.Fee1.String())
}
