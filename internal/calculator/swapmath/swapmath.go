// Package swapmath computes the result of swapping within a single price step.
package swapmath

import (
	"math/big"

	"github.com/holiman/uint256"

	"ammcore/internal/calculator/fullmath"
	"ammcore/internal/calculator/safecast"
	"ammcore/internal/calculator/sqrtpricemath"
)

// FeeDenominator expresses fees in hundredths of a basis point (pips).
const FeeDenominator = 1_000_000

var feeDenominator = uint256.NewInt(FeeDenominator)

// Step is the outcome of ComputeSwapStep.
type Step struct {
	SqrtRatioNextX96 *uint256.Int
	AmountIn         *uint256.Int
	AmountOut        *uint256.Int
	FeeAmount        *uint256.Int
}

// ComputeSwapStep swaps from sqrtRatioCurrentX96 toward sqrtRatioTargetX96.
// A non-negative amountRemaining is an exact input, a negative one an exact output.
// The price never crosses the target; the fee is charged on the input side.
func ComputeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity *uint256.Int, amountRemaining *big.Int, feePips uint32) (Step, error) {
	zeroForOne := !sqrtRatioCurrentX96.Lt(sqrtRatioTargetX96)
	exactIn := amountRemaining.Sign() >= 0
	fee := uint256.NewInt(uint64(feePips))
	feeComplement := new(uint256.Int).Sub(feeDenominator, fee)

	remaining, err := safecast.ToUint256(new(big.Int).Abs(amountRemaining))
	if err != nil {
		return Step{}, err
	}

	var (
		step = Step{AmountIn: new(uint256.Int), AmountOut: new(uint256.Int)}
		next *uint256.Int
	)

	if exactIn {
		remainingLessFee, err := fullmath.MulDiv(remaining, feeComplement, feeDenominator)
		if err != nil {
			return Step{}, err
		}
		if zeroForOne {
			step.AmountIn, err = sqrtpricemath.GetAmount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			step.AmountIn, err = sqrtpricemath.GetAmount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if err != nil {
			return Step{}, err
		}
		if !remainingLessFee.Lt(step.AmountIn) {
			next = new(uint256.Int).Set(sqrtRatioTargetX96)
		} else if next, err = sqrtpricemath.GetNextSqrtPriceFromInput(sqrtRatioCurrentX96, liquidity, remainingLessFee, zeroForOne); err != nil {
			return Step{}, err
		}
	} else {
		if zeroForOne {
			step.AmountOut, err = sqrtpricemath.GetAmount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			step.AmountOut, err = sqrtpricemath.GetAmount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
		}
		if err != nil {
			return Step{}, err
		}
		if !remaining.Lt(step.AmountOut) {
			next = new(uint256.Int).Set(sqrtRatioTargetX96)
		} else if next, err = sqrtpricemath.GetNextSqrtPriceFromOutput(sqrtRatioCurrentX96, liquidity, remaining, zeroForOne); err != nil {
			return Step{}, err
		}
	}
	step.SqrtRatioNextX96 = next

	reachedTarget := sqrtRatioTargetX96.Eq(next)

	if zeroForOne {
		if !(reachedTarget && exactIn) {
			if step.AmountIn, err = sqrtpricemath.GetAmount0Delta(next, sqrtRatioCurrentX96, liquidity, true); err != nil {
				return Step{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			if step.AmountOut, err = sqrtpricemath.GetAmount1Delta(next, sqrtRatioCurrentX96, liquidity, false); err != nil {
				return Step{}, err
			}
		}
	} else {
		if !(reachedTarget && exactIn) {
			if step.AmountIn, err = sqrtpricemath.GetAmount1Delta(sqrtRatioCurrentX96, next, liquidity, true); err != nil {
				return Step{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			if step.AmountOut, err = sqrtpricemath.GetAmount0Delta(sqrtRatioCurrentX96, next, liquidity, false); err != nil {
				return Step{}, err
			}
		}
	}

	// the output can exceed the request by rounding when the target was not reached
	if !exactIn && step.AmountOut.Gt(remaining) {
		step.AmountOut = new(uint256.Int).Set(remaining)
	}

	if exactIn && !next.Eq(sqrtRatioTargetX96) {
		// the remainder of the input is taken as fee
		step.FeeAmount = new(uint256.Int).Sub(remaining, step.AmountIn)
	} else if step.FeeAmount, err = fullmath.MulDivRoundingUp(step.AmountIn, fee, feeComplement); err != nil {
		return Step{}, err
	}

	return step, nil
}
