package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/types"
)

// vaultState is a deep copy of the vault's accounting; the locker stack is
// managed by the scopes themselves and is not part of it.
type vaultState struct {
	deltas            map[deltaKey]*big.Int
	nonzero           map[common.Address]int
	nonzeroTotal      int
	reservesOfVault   map[types.Currency]*uint256.Int
	reservesOfManager map[managerKey]*uint256.Int
	surplus           map[surplusKey]*uint256.Int
	managers          map[common.Address]bool
}

func (v *Vault) snapshotLocked() int {
	st := vaultState{
		deltas:            make(map[deltaKey]*big.Int, len(v.deltas)),
		nonzero:           make(map[common.Address]int, len(v.nonzero)),
		nonzeroTotal:      v.nonzeroTotal,
		reservesOfVault:   copyUintMap(v.reservesOfVault),
		reservesOfManager: copyUintMap(v.reservesOfManager),
		surplus:           copyUintMap(v.surplus),
		managers:          make(map[common.Address]bool, len(v.managers)),
	}
	for k, d := range v.deltas {
		st.deltas[k] = new(big.Int).Set(d)
	}
	for k, n := range v.nonzero {
		st.nonzero[k] = n
	}
	for k, ok := range v.managers {
		st.managers[k] = ok
	}
	v.snapshots = append(v.snapshots, st)
	return len(v.snapshots) - 1
}

func copyUintMap[K comparable](in map[K]*uint256.Int) map[K]*uint256.Int {
	out := make(map[K]*uint256.Int, len(in))
	for k, x := range in {
		out[k] = new(uint256.Int).Set(x)
	}
	return out
}

// Snapshot records the vault's accounting and returns its id.
func (v *Vault) Snapshot() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// RevertToSnapshot restores the state recorded by id and drops it along
// with every later snapshot.
func (v *Vault) RevertToSnapshot(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id < 0 || id >= len(v.snapshots) {
		return
	}
	st := v.snapshots[id]
	v.deltas = st.deltas
	v.nonzero = st.nonzero
	v.nonzeroTotal = st.nonzeroTotal
	v.reservesOfVault = st.reservesOfVault
	v.reservesOfManager = st.reservesOfManager
	v.surplus = st.surplus
	v.managers = st.managers
	v.snapshots = v.snapshots[:id]
}

// DiscardSnapshot forgets id and every later snapshot.
func (v *Vault) DiscardSnapshot(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id < 0 || id >= len(v.snapshots) {
		return
	}
	v.snapshots = v.snapshots[:id]
}
