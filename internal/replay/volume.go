package replay

import (
	"math/big"

	"ammcore/internal/types"
)

var pipsDenominator = big.NewInt(1_000_000)

// Volume accumulates swap activity for one pool over a replay.
type Volume struct {
	SwapCount uint64
	Volume0   *big.Int
	Volume1   *big.Int
	// LP fees estimated from the input amount and the swap fee in effect.
	Fee0 *big.Int
	Fee1 *big.Int
}

func newVolume() *Volume {
	return &Volume{
		Volume0: big.NewInt(0),
		Volume1: big.NewInt(0),
		Fee0:    big.NewInt(0),
		Fee1:    big.NewInt(0),
	}
}

// AddSwap records a swap's pool delta. Positive amounts were paid in.
func (v *Volume) AddSwap(delta types.BalanceDelta, swapFee uint32) {
	absAdd(v.Volume0, delta.Amount0)
	absAdd(v.Volume1, delta.Amount1)
	v.SwapCount++
	if swapFee == 0 {
		return
	}

	if delta.Amount0.Sign() > 0 && delta.Amount1.Sign() <= 0 {
		v.Fee0.Add(v.Fee0, feeFromAmount(delta.Amount0, swapFee))
	} else if delta.Amount1.Sign() > 0 && delta.Amount0.Sign() <= 0 {
		v.Fee1.Add(v.Fee1, feeFromAmount(delta.Amount1, swapFee))
	}
}

func absAdd(target, value *big.Int) {
	if value == nil {
		return
	}
	target.Add(target, new(big.Int).Abs(value))
}

func feeFromAmount(amountIn *big.Int, swapFee uint32) *big.Int {
	fee := new(big.Int).Abs(amountIn)
	fee.Mul(fee, big.NewInt(int64(swapFee)))
	return fee.Div(fee, pipsDenominator)
}
