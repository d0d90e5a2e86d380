package pool

import (
	"math/big"

	"github.com/holiman/uint256"

	"ammcore/internal/calculator/fullmath"
	"ammcore/internal/calculator/liquiditymath"
	"ammcore/internal/calculator/safecast"
	"ammcore/internal/calculator/swapmath"
	"ammcore/internal/calculator/tickmath"
	"ammcore/internal/tick"
	"ammcore/internal/types"
)

// SwapParams describes a swap. A positive AmountSpecified is an exact
// input, a negative one an exact output.
type SwapParams struct {
	TickSpacing       int32
	ZeroForOne        bool
	AmountSpecified   *big.Int
	SqrtPriceLimitX96 *uint256.Int
}

// SwapResult is the pool state after the swap and the amounts it moved.
type SwapResult struct {
	Delta          types.BalanceDelta
	SqrtPriceX96   *uint256.Int
	Tick           int32
	Liquidity      *uint256.Int
	FeeForProtocol *uint256.Int
	SwapFee        uint32
}

type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *uint256.Int
	tick                     int32
	feeGrowthGlobalX128      *uint256.Int
	liquidity                *uint256.Int
	feeForProtocol           *uint256.Int
}

type stepComputations struct {
	sqrtPriceStartX96 *uint256.Int
	tickNext          int32
	initialized       bool
	sqrtPriceNextX96  *uint256.Int
}

// Swap walks the price from the current tick toward SqrtPriceLimitX96 until
// the specified amount is used up or the limit is reached. The protocol
// share of each step's fee is split off before the rest is credited to
// liquidity providers. On error the pool may be partially updated; callers
// work on a Clone.
func (s *State) Swap(p SwapParams) (SwapResult, error) {
	if p.AmountSpecified == nil || p.AmountSpecified.Sign() == 0 {
		return SwapResult{}, ErrSwapAmountCannotBeZero
	}
	if err := s.checkInitialized(); err != nil {
		return SwapResult{}, err
	}
	if p.TickSpacing <= 0 {
		return SwapResult{}, tick.ErrInvalidSpacing
	}
	if err := s.checkPriceLimit(p.ZeroForOne, p.SqrtPriceLimitX96); err != nil {
		return SwapResult{}, err
	}

	protocolFee := uint64(s.Slot0.ProtocolFee.ForDirection(p.ZeroForOne))
	exactInput := p.AmountSpecified.Sign() > 0

	state := swapState{
		amountSpecifiedRemaining: new(big.Int).Set(p.AmountSpecified),
		amountCalculated:         new(big.Int),
		sqrtPriceX96:             new(uint256.Int).Set(s.Slot0.SqrtPriceX96),
		tick:                     s.Slot0.Tick,
		liquidity:                new(uint256.Int).Set(s.Liquidity),
		feeForProtocol:           new(uint256.Int),
	}
	if p.ZeroForOne {
		state.feeGrowthGlobalX128 = new(uint256.Int).Set(s.FeeGrowthGlobal0X128)
	} else {
		state.feeGrowthGlobalX128 = new(uint256.Int).Set(s.FeeGrowthGlobal1X128)
	}

	for state.amountSpecifiedRemaining.Sign() != 0 && !state.sqrtPriceX96.Eq(p.SqrtPriceLimitX96) {
		var step stepComputations
		step.sqrtPriceStartX96 = new(uint256.Int).Set(state.sqrtPriceX96)
		step.tickNext, step.initialized = s.Bitmap.NextInitializedTickWithinOneWord(state.tick, p.TickSpacing, p.ZeroForOne)

		// the bitmap does not know the tick bounds
		if step.tickNext < tickmath.MinTick {
			step.tickNext = tickmath.MinTick
		} else if step.tickNext > tickmath.MaxTick {
			step.tickNext = tickmath.MaxTick
		}

		var err error
		step.sqrtPriceNextX96, err = tickmath.GetSqrtRatioAtTick(step.tickNext)
		if err != nil {
			return SwapResult{}, err
		}

		target := step.sqrtPriceNextX96
		if (p.ZeroForOne && step.sqrtPriceNextX96.Lt(p.SqrtPriceLimitX96)) ||
			(!p.ZeroForOne && step.sqrtPriceNextX96.Gt(p.SqrtPriceLimitX96)) {
			target = p.SqrtPriceLimitX96
		}

		result, err := swapmath.ComputeSwapStep(state.sqrtPriceX96, target, state.liquidity, state.amountSpecifiedRemaining, s.Slot0.SwapFee)
		if err != nil {
			return SwapResult{}, err
		}
		state.sqrtPriceX96 = result.SqrtRatioNextX96

		if exactInput {
			spent := new(uint256.Int).Add(result.AmountIn, result.FeeAmount)
			state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, spent.ToBig())
			state.amountCalculated.Sub(state.amountCalculated, result.AmountOut.ToBig())
		} else {
			state.amountSpecifiedRemaining.Add(state.amountSpecifiedRemaining, result.AmountOut.ToBig())
			paid := new(uint256.Int).Add(result.AmountIn, result.FeeAmount)
			state.amountCalculated.Add(state.amountCalculated, paid.ToBig())
		}

		feeAmount := result.FeeAmount
		if protocolFee > 0 {
			share := new(uint256.Int).Div(feeAmount, uint256.NewInt(protocolFee))
			feeAmount = new(uint256.Int).Sub(feeAmount, share)
			state.feeForProtocol.Add(state.feeForProtocol, share)
		}

		// with no active liquidity the fee is not distributed
		if !state.liquidity.IsZero() {
			growth, err := fullmath.MulDiv(feeAmount, q128, state.liquidity)
			if err != nil {
				return SwapResult{}, err
			}
			// wrapping add
			state.feeGrowthGlobalX128.Add(state.feeGrowthGlobalX128, growth)
		}

		if state.sqrtPriceX96.Eq(step.sqrtPriceNextX96) {
			if step.initialized {
				fg0, fg1 := s.FeeGrowthGlobal0X128, state.feeGrowthGlobalX128
				if p.ZeroForOne {
					fg0, fg1 = state.feeGrowthGlobalX128, s.FeeGrowthGlobal1X128
				}
				liquidityNet := s.Ticks.Cross(step.tickNext, fg0, fg1)
				if p.ZeroForOne {
					liquidityNet.Neg(liquidityNet)
				}
				state.liquidity, err = liquiditymath.AddDelta(state.liquidity, liquidityNet)
				if err != nil {
					return SwapResult{}, err
				}
			}
			if p.ZeroForOne {
				state.tick = step.tickNext - 1
			} else {
				state.tick = step.tickNext
			}
		} else if !state.sqrtPriceX96.Eq(step.sqrtPriceStartX96) {
			// price moved but did not reach the next tick
			state.tick, err = tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return SwapResult{}, err
			}
		}
	}

	specifiedUsed := new(big.Int).Sub(p.AmountSpecified, state.amountSpecifiedRemaining)
	amount0, amount1 := specifiedUsed, state.amountCalculated
	if p.ZeroForOne != exactInput {
		amount0, amount1 = state.amountCalculated, specifiedUsed
	}
	delta, err := types.NewBalanceDelta(amount0, amount1)
	if err != nil {
		return SwapResult{}, err
	}

	s.Slot0.SqrtPriceX96 = state.sqrtPriceX96
	s.Slot0.Tick = state.tick
	s.Liquidity = state.liquidity
	if p.ZeroForOne {
		s.FeeGrowthGlobal0X128 = state.feeGrowthGlobalX128
	} else {
		s.FeeGrowthGlobal1X128 = state.feeGrowthGlobalX128
	}

	return SwapResult{
		Delta:          delta,
		SqrtPriceX96:   new(uint256.Int).Set(state.sqrtPriceX96),
		Tick:           state.tick,
		Liquidity:      new(uint256.Int).Set(state.liquidity),
		FeeForProtocol: state.feeForProtocol,
		SwapFee:        s.Slot0.SwapFee,
	}, nil
}

// checkPriceLimit requires the limit to lie strictly beyond the current
// price in the swap direction and strictly inside the global bounds.
func (s *State) checkPriceLimit(zeroForOne bool, limit *uint256.Int) error {
	if limit == nil {
		return ErrInvalidSqrtPriceLimit
	}
	current := s.Slot0.SqrtPriceX96
	if zeroForOne {
		if !limit.Lt(current) || !limit.Gt(tickmath.MinSqrtRatio) {
			return ErrInvalidSqrtPriceLimit
		}
		return nil
	}
	if !limit.Gt(current) || !limit.Lt(tickmath.MaxSqrtRatio) {
		return ErrInvalidSqrtPriceLimit
	}
	return nil
}

// Donate credits amount0 and amount1 to in-range liquidity providers.
func (s *State) Donate(amount0, amount1 *uint256.Int) (types.BalanceDelta, int32, error) {
	if err := s.checkInitialized(); err != nil {
		return types.BalanceDelta{}, 0, err
	}
	if s.Liquidity.IsZero() {
		return types.BalanceDelta{}, 0, ErrNoLiquidityToReceiveFees
	}
	a0, err := safecast.Uint128ToInt128(amount0)
	if err != nil {
		return types.BalanceDelta{}, 0, err
	}
	a1, err := safecast.Uint128ToInt128(amount1)
	if err != nil {
		return types.BalanceDelta{}, 0, err
	}
	delta, err := types.NewBalanceDelta(a0, a1)
	if err != nil {
		return types.BalanceDelta{}, 0, err
	}

	growth0, err := fullmath.MulDiv(amount0, q128, s.Liquidity)
	if err != nil {
		return types.BalanceDelta{}, 0, err
	}
	growth1, err := fullmath.MulDiv(amount1, q128, s.Liquidity)
	if err != nil {
		return types.BalanceDelta{}, 0, err
	}
	s.FeeGrowthGlobal0X128 = new(uint256.Int).Add(s.FeeGrowthGlobal0X128, growth0)
	s.FeeGrowthGlobal1X128 = new(uint256.Int).Add(s.FeeGrowthGlobal1X128, growth1)
	return delta, s.Slot0.Tick, nil
}
