package manager

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammcore/internal/fees"
	"ammcore/internal/ledger"
	"ammcore/internal/pool"
	"ammcore/internal/types"
)

// Initialize creates the pool for key at sqrtPriceX96 and returns its
// starting tick. A failing or misbehaving fee controller leaves the
// protocol fee at zero.
func (m *Manager) Initialize(ctx context.Context, key types.PoolKey, sqrtPriceX96 *uint256.Int) (tick int32, err error) {
	defer func() { m.metrics.Observe("initialize", err) }()

	if _, err := m.validateKey(key); err != nil {
		return 0, err
	}
	id := key.ID()
	m.mu.Lock()
	existing, ok := m.pools[id]
	m.mu.Unlock()
	if ok && existing.Initialized() {
		return 0, pool.ErrPoolAlreadyInitialized
	}

	protocolFee, _, err := m.fetchProtocolFee(ctx, key)
	if err != nil {
		return 0, err
	}
	swapFee, err := m.initialSwapFee(key)
	if err != nil {
		return 0, err
	}

	st := pool.New()
	if tick, err = st.Initialize(sqrtPriceX96, protocolFee, swapFee); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.pools[id]; ok && cur.Initialized() {
		return 0, pool.ErrPoolAlreadyInitialized
	}
	m.pools[id] = st
	m.keys[id] = key
	m.logger.Info("pool initialized",
		zap.String("pool_id", id.Hex()),
		zap.String("key", key.String()),
		zap.Int32("tick", tick),
		zap.Uint16("protocol_fee", uint16(protocolFee)),
		zap.Uint32("swap_fee", swapFee),
	)
	return tick, nil
}

func (m *Manager) initialSwapFee(key types.PoolKey) (uint32, error) {
	fee := fees.SwapFee(key.Fee)
	if !fee.IsDynamic() {
		return fee.Static(), nil
	}
	m.mu.Lock()
	src := m.dynamicFees
	m.mu.Unlock()
	if src == nil {
		return 0, nil
	}
	swapFee, err := src.SwapFee(key)
	if err != nil {
		return 0, err
	}
	return swapFee, fees.ValidateSwapFee(swapFee)
}

// ModifyLiquidityParams is a liquidity change for the session's locker.
type ModifyLiquidityParams struct {
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int
}

// ModifyLiquidity changes the locker's position and accounts the result to
// the locker. Nothing is stored unless the vault accepts the delta.
func (m *Manager) ModifyLiquidity(s *ledger.Session, key types.PoolKey, p ModifyLiquidityParams) (res pool.ModifyLiquidityResult, err error) {
	defer func() { m.metrics.Observe("modify_liquidity", err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	st, spacing, err := m.poolLocked(key)
	if err != nil {
		return res, err
	}
	next := st.Clone()
	res, err = next.ModifyLiquidity(pool.ModifyLiquidityParams{
		Owner:          s.Locker(),
		TickLower:      p.TickLower,
		TickUpper:      p.TickUpper,
		LiquidityDelta: p.LiquidityDelta,
		TickSpacing:    spacing,
	})
	if err != nil {
		return res, err
	}
	if err := s.AccountPoolBalanceDelta(m.address, key, res.Delta); err != nil {
		return pool.ModifyLiquidityResult{}, err
	}
	m.pools[key.ID()] = next
	m.logger.Debug("liquidity modified",
		zap.String("pool_id", key.ID().Hex()),
		zap.String("owner", s.Locker().Hex()),
		zap.Int32("tick_lower", p.TickLower),
		zap.Int32("tick_upper", p.TickUpper),
		zap.String("liquidity_delta", p.LiquidityDelta.String()),
		zap.Stringer("delta", res.Delta),
	)
	return res, nil
}

// SwapParams is a swap on behalf of the session's locker. A positive
// AmountSpecified is exact input.
type SwapParams struct {
	ZeroForOne        bool
	AmountSpecified   *big.Int
	SqrtPriceLimitX96 *uint256.Int
}

// Swap executes a swap, accounts its delta to the locker and accrues the
// protocol's share of the fee in the input currency.
func (m *Manager) Swap(s *ledger.Session, key types.PoolKey, p SwapParams) (res pool.SwapResult, err error) {
	defer func() { m.metrics.Observe("swap", err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	st, spacing, err := m.poolLocked(key)
	if err != nil {
		return res, err
	}
	next := st.Clone()
	res, err = next.Swap(pool.SwapParams{
		TickSpacing:       spacing,
		ZeroForOne:        p.ZeroForOne,
		AmountSpecified:   p.AmountSpecified,
		SqrtPriceLimitX96: p.SqrtPriceLimitX96,
	})
	if err != nil {
		return res, err
	}
	if err := s.AccountPoolBalanceDelta(m.address, key, res.Delta); err != nil {
		return pool.SwapResult{}, err
	}
	m.pools[key.ID()] = next
	if res.FeeForProtocol != nil && !res.FeeForProtocol.IsZero() {
		input := key.Currency1
		if p.ZeroForOne {
			input = key.Currency0
		}
		m.protocolFees[input] = new(uint256.Int).Add(copyOrZero(m.protocolFees[input]), res.FeeForProtocol)
	}
	m.logger.Debug("swap",
		zap.String("pool_id", key.ID().Hex()),
		zap.String("sender", s.Locker().Hex()),
		zap.Bool("zero_for_one", p.ZeroForOne),
		zap.Stringer("delta", res.Delta),
		zap.Int32("tick", res.Tick),
	)
	return res, nil
}

// Donate pays amount0 and amount1 to the pool's in-range liquidity.
func (m *Manager) Donate(s *ledger.Session, key types.PoolKey, amount0, amount1 *uint256.Int) (delta types.BalanceDelta, err error) {
	defer func() { m.metrics.Observe("donate", err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	st, _, err := m.poolLocked(key)
	if err != nil {
		return delta, err
	}
	next := st.Clone()
	if delta, _, err = next.Donate(amount0, amount1); err != nil {
		return types.BalanceDelta{}, err
	}
	if err := s.AccountPoolBalanceDelta(m.address, key, delta); err != nil {
		return types.BalanceDelta{}, err
	}
	m.pools[key.ID()] = next
	return delta, nil
}

// SetProtocolFee refetches the pool's protocol fee from the controller.
// Unlike Initialize, an unusable answer is an error.
func (m *Manager) SetProtocolFee(ctx context.Context, key types.PoolKey) (fee fees.ProtocolFee, err error) {
	defer func() { m.metrics.Observe("set_protocol_fee", err) }()

	m.mu.Lock()
	_, _, err = m.poolLocked(key)
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	fee, ok, err := m.fetchProtocolFee(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrProtocolFeeControllerCallFailedOrInvalidResult
	}
	err = m.updatePool(key, func(st *pool.State) error { return st.SetProtocolFee(fee) })
	if err != nil {
		return 0, err
	}
	m.logger.Info("protocol fee updated", zap.String("pool_id", key.ID().Hex()), zap.Uint16("protocol_fee", uint16(fee)))
	return fee, nil
}

// UpdateDynamicSwapFee pulls a new swap fee for a dynamic fee pool.
func (m *Manager) UpdateDynamicSwapFee(key types.PoolKey) (fee uint32, err error) {
	defer func() { m.metrics.Observe("update_dynamic_fee", err) }()

	if !fees.SwapFee(key.Fee).IsDynamic() {
		return 0, ErrFeeNotDynamic
	}
	m.mu.Lock()
	src := m.dynamicFees
	m.mu.Unlock()
	if src == nil {
		return 0, ErrDynamicFeeSourceUnset
	}
	if fee, err = src.SwapFee(key); err != nil {
		return 0, err
	}
	if err := m.updatePool(key, func(st *pool.State) error { return st.SetSwapFee(fee) }); err != nil {
		return 0, err
	}
	return fee, nil
}

// CollectProtocolFees pays accrued protocol fees out of the vault. Only the
// protocol fee controller may collect; a zero amount collects everything.
func (m *Manager) CollectProtocolFees(s *ledger.Session, recipient common.Address, currency types.Currency, amount *uint256.Int) (collected *uint256.Int, err error) {
	defer func() { m.metrics.Observe("collect_protocol_fees", err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.controller == nil || s.Locker() != m.controllerAddress {
		return nil, ErrUnauthorized
	}
	accrued := copyOrZero(m.protocolFees[currency])
	if amount == nil || amount.IsZero() {
		amount = new(uint256.Int).Set(accrued)
	}
	if amount.Gt(accrued) {
		return nil, ErrInsufficientProtocolFees
	}
	if err := s.CollectFee(m.address, currency, amount, recipient); err != nil {
		return nil, err
	}
	m.protocolFees[currency] = accrued.Sub(accrued, amount)
	m.logger.Info("protocol fees collected",
		zap.String("currency", currency.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", amount.Dec()),
	)
	return new(uint256.Int).Set(amount), nil
}

func (m *Manager) updatePool(key types.PoolKey, fn func(*pool.State) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, _, err := m.poolLocked(key)
	if err != nil {
		return err
	}
	next := st.Clone()
	if err := fn(next); err != nil {
		return err
	}
	m.pools[key.ID()] = next
	return nil
}

// poolLocked returns the stored pool and its tick spacing. m.mu must be held.
func (m *Manager) poolLocked(key types.PoolKey) (*pool.State, int32, error) {
	id := key.ID()
	st, ok := m.pools[id]
	if !ok || !st.Initialized() {
		return nil, 0, ErrPoolNotInitialized
	}
	spacing, ok := m.feeTiers[fees.SwapFee(key.Fee).Static()]
	if !ok {
		return nil, 0, ErrUnknownFeeTier
	}
	return st, spacing, nil
}

func copyOrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}
