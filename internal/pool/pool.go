// Package pool implements the state and algorithms of a single
// concentrated liquidity pool: initialization, liquidity changes, swaps and
// donations. A State is not safe for concurrent use.
package pool

import (
	"errors"

	"github.com/holiman/uint256"

	"ammcore/internal/calculator/tickmath"
	"ammcore/internal/fees"
	"ammcore/internal/position"
	"ammcore/internal/tick"
)

var (
	ErrPoolNotInitialized       = errors.New("pool: not initialized")
	ErrPoolAlreadyInitialized   = errors.New("pool: already initialized")
	ErrTicksMisordered          = errors.New("pool: tickLower must be below tickUpper")
	ErrTickLowerOutOfBounds     = errors.New("pool: tickLower out of bounds")
	ErrTickUpperOutOfBounds     = errors.New("pool: tickUpper out of bounds")
	ErrSwapAmountCannotBeZero   = errors.New("pool: swap amount cannot be zero")
	ErrInvalidSqrtPriceLimit    = errors.New("pool: invalid sqrt price limit")
	ErrNoLiquidityToReceiveFees = errors.New("pool: no liquidity to receive fees")
)

var q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

type Slot0 struct {
	SqrtPriceX96 *uint256.Int     `json:"sqrt_price_x96"`
	Tick         int32            `json:"tick"`
	ProtocolFee  fees.ProtocolFee `json:"protocol_fee"`
	SwapFee      uint32           `json:"swap_fee"`
}

// State is the full storage of one pool.
type State struct {
	Slot0                Slot0          `json:"slot0"`
	FeeGrowthGlobal0X128 *uint256.Int   `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 *uint256.Int   `json:"fee_growth_global1_x128"`
	Liquidity            *uint256.Int   `json:"liquidity"`
	Ticks                tick.Store     `json:"-"`
	Bitmap               tick.Bitmap    `json:"-"`
	Positions            position.Store `json:"-"`
}

// New returns an uninitialized pool.
func New() *State {
	return &State{
		Slot0:                Slot0{SqrtPriceX96: new(uint256.Int)},
		FeeGrowthGlobal0X128: new(uint256.Int),
		FeeGrowthGlobal1X128: new(uint256.Int),
		Liquidity:            new(uint256.Int),
		Ticks:                tick.Store{},
		Bitmap:               tick.Bitmap{},
		Positions:            position.Store{},
	}
}

func (s *State) Initialized() bool {
	return s.Slot0.SqrtPriceX96 != nil && !s.Slot0.SqrtPriceX96.IsZero()
}

func (s *State) checkInitialized() error {
	if !s.Initialized() {
		return ErrPoolNotInitialized
	}
	return nil
}

// Initialize sets the starting price and fees and returns the starting tick.
func (s *State) Initialize(sqrtPriceX96 *uint256.Int, protocolFee fees.ProtocolFee, swapFee uint32) (int32, error) {
	if s.Initialized() {
		return 0, ErrPoolAlreadyInitialized
	}
	if err := fees.ValidateSwapFee(swapFee); err != nil {
		return 0, err
	}
	t, err := tickmath.GetTickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return 0, err
	}
	*s = *New()
	s.Slot0 = Slot0{
		SqrtPriceX96: new(uint256.Int).Set(sqrtPriceX96),
		Tick:         t,
		ProtocolFee:  protocolFee,
		SwapFee:      swapFee,
	}
	return t, nil
}

// SetProtocolFee overwrites the packed protocol fee. Callers validate it.
func (s *State) SetProtocolFee(fee fees.ProtocolFee) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	s.Slot0.ProtocolFee = fee
	return nil
}

// SetSwapFee replaces the fee charged by subsequent swaps.
func (s *State) SetSwapFee(fee uint32) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	if err := fees.ValidateSwapFee(fee); err != nil {
		return err
	}
	s.Slot0.SwapFee = fee
	return nil
}

// Clone returns a deep copy of the pool.
func (s *State) Clone() *State {
	return &State{
		Slot0: Slot0{
			SqrtPriceX96: new(uint256.Int).Set(s.Slot0.SqrtPriceX96),
			Tick:         s.Slot0.Tick,
			ProtocolFee:  s.Slot0.ProtocolFee,
			SwapFee:      s.Slot0.SwapFee,
		},
		FeeGrowthGlobal0X128: new(uint256.Int).Set(s.FeeGrowthGlobal0X128),
		FeeGrowthGlobal1X128: new(uint256.Int).Set(s.FeeGrowthGlobal1X128),
		Liquidity:            new(uint256.Int).Set(s.Liquidity),
		Ticks:                s.Ticks.Clone(),
		Bitmap:               s.Bitmap.Clone(),
		Positions:            s.Positions.Clone(),
	}
}

func checkTicks(tickLower, tickUpper, tickSpacing int32) error {
	if tickLower >= tickUpper {
		return ErrTicksMisordered
	}
	if tickLower < tickmath.MinTick {
		return ErrTickLowerOutOfBounds
	}
	if tickUpper > tickmath.MaxTick {
		return ErrTickUpperOutOfBounds
	}
	if tickSpacing <= 0 {
		return tick.ErrInvalidSpacing
	}
	if tickLower%tickSpacing != 0 || tickUpper%tickSpacing != 0 {
		return tick.ErrTickMisaligned
	}
	return nil
}
