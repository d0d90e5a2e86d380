package manager

import (
	"maps"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/pool"
	"ammcore/internal/types"
)

// state is what a lock scope can change. Stored pool states are never
// mutated, so copying the maps is enough.
type state struct {
	pools        map[common.Hash]*pool.State
	keys         map[common.Hash]types.PoolKey
	protocolFees map[types.Currency]*uint256.Int
}

func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	fees := make(map[types.Currency]*uint256.Int, len(m.protocolFees))
	for c, amount := range m.protocolFees {
		fees[c] = new(uint256.Int).Set(amount)
	}
	m.snapshots = append(m.snapshots, state{
		pools:        maps.Clone(m.pools),
		keys:         maps.Clone(m.keys),
		protocolFees: fees,
	})
	return len(m.snapshots) - 1
}

func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	st := m.snapshots[id]
	m.pools, m.keys, m.protocolFees = st.pools, st.keys, st.protocolFees
	m.snapshots = m.snapshots[:id]
}

func (m *Manager) DiscardSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	m.snapshots = m.snapshots[:id]
}
