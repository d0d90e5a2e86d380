package manager

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/pool"
	"ammcore/internal/position"
	"ammcore/internal/tick"
	"ammcore/internal/types"
)

func (m *Manager) read(key types.PoolKey) (*pool.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.pools[key.ID()]
	if !ok || !st.Initialized() {
		return nil, ErrPoolNotInitialized
	}
	return st, nil
}

func (m *Manager) Slot0(key types.PoolKey) (pool.Slot0, error) {
	st, err := m.read(key)
	if err != nil {
		return pool.Slot0{}, err
	}
	s0 := st.Slot0
	s0.SqrtPriceX96 = new(uint256.Int).Set(s0.SqrtPriceX96)
	return s0, nil
}

func (m *Manager) Liquidity(key types.PoolKey) (*uint256.Int, error) {
	st, err := m.read(key)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(st.Liquidity), nil
}

// FeeGrowthGlobals returns the per-liquidity fee accumulators of both tokens.
func (m *Manager) FeeGrowthGlobals(key types.PoolKey) (*uint256.Int, *uint256.Int, error) {
	st, err := m.read(key)
	if err != nil {
		return nil, nil, err
	}
	return new(uint256.Int).Set(st.FeeGrowthGlobal0X128), new(uint256.Int).Set(st.FeeGrowthGlobal1X128), nil
}

func (m *Manager) TickInfo(key types.PoolKey, t int32) (tick.Info, error) {
	st, err := m.read(key)
	if err != nil {
		return tick.Info{}, err
	}
	return st.Ticks.Get(t), nil
}

func (m *Manager) TickBitmapWord(key types.PoolKey, wordPos int16) (*uint256.Int, error) {
	st, err := m.read(key)
	if err != nil {
		return nil, err
	}
	return st.Bitmap.Word(wordPos), nil
}

func (m *Manager) PositionInfo(key types.PoolKey, owner common.Address, tickLower, tickUpper int32) (position.Info, error) {
	st, err := m.read(key)
	if err != nil {
		return position.Info{}, err
	}
	return st.Positions.Get(owner, tickLower, tickUpper), nil
}

// Pool returns a copy of the pool's full state.
func (m *Manager) Pool(key types.PoolKey) (*pool.State, error) {
	st, err := m.read(key)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// PoolKeys lists every initialized pool ordered by pool id.
func (m *Manager) PoolKeys() []types.PoolKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]types.PoolKey, 0, len(m.keys))
	for _, k := range m.keys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i].ID(), keys[j].ID()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return keys
}

// TickSpacing returns the spacing enabled for a static fee.
func (m *Manager) TickSpacing(fee uint32) (int32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.feeTiers[fee]
	return s, ok
}

func (m *Manager) ProtocolFeesAccrued(currency types.Currency) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyOrZero(m.protocolFees[currency])
}
