// Package ledger implements the settlement vault: lock scopes in which
// lockers accumulate per-currency deltas that must net to zero before the
// scope closes, plus the reserve bookkeeping for registered pool managers.
package ledger

import (
	"bytes"
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammcore/internal/metrics"
	"ammcore/internal/types"
)

var (
	ErrNotLocked               = errors.New("ledger: no active lock")
	ErrLockerAlreadySet        = errors.New("ledger: locker already holds the lock")
	ErrNotCurrentLocker        = errors.New("ledger: caller is not the current locker")
	ErrNotActiveLocker         = errors.New("ledger: target is not an active locker")
	ErrCurrencyNotSettled      = errors.New("ledger: currency not settled")
	ErrNotFromPoolManager      = errors.New("ledger: caller is not the pool manager of the key")
	ErrPoolManagerUnregistered = errors.New("ledger: pool manager not registered")
	ErrReserveUnderflow        = errors.New("ledger: reserve underflow")
	ErrInsufficientSurplus     = errors.New("ledger: insufficient surplus balance")
	ErrUnauthorized            = errors.New("ledger: caller is not the owner")
	ErrDeltaOverflow           = errors.New("ledger: currency delta overflow")
)

// Token is the transfer capability for one currency. from and to are
// explicit because there is no implicit message sender.
type Token interface {
	BalanceOf(owner common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
}

// Tokens resolves the transfer capability of a currency.
type Tokens interface {
	Token(currency types.Currency) (Token, error)
}

// Journal is implemented by every participant whose state must roll back
// with a failed lock scope.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// Callback runs inside a lock scope. Any error it returns rolls back every
// journaled participant to the state at scope entry.
type Callback func(s *Session, data []byte) ([]byte, error)

type deltaKey struct {
	locker   common.Address
	currency types.Currency
}

type managerKey struct {
	manager  common.Address
	currency types.Currency
}

type surplusKey struct {
	owner    common.Address
	currency types.Currency
}

// Vault is the settlement ledger. One lock scope is active at a time;
// nested scopes are opened from inside a callback through Session.Lock.
type Vault struct {
	address common.Address
	owner   common.Address
	tokens  Tokens
	logger  *zap.Logger
	metrics *metrics.Metrics

	scope sync.Mutex // held by the outermost Lock for its whole duration

	mu                sync.Mutex
	lockers           []common.Address
	deltas            map[deltaKey]*big.Int
	nonzero           map[common.Address]int
	nonzeroTotal      int
	reservesOfVault   map[types.Currency]*uint256.Int
	reservesOfManager map[managerKey]*uint256.Int
	surplus           map[surplusKey]*uint256.Int
	managers          map[common.Address]bool
	journals          []Journal
	snapshots         []vaultState
}

type Option func(*Vault)

func WithLogger(logger *zap.Logger) Option {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Vault) { v.metrics = m }
}

// NewVault creates a vault holding tokens at address, administered by owner.
func NewVault(address, owner common.Address, tokens Tokens, opts ...Option) *Vault {
	v := &Vault{
		address:           address,
		owner:             owner,
		tokens:            tokens,
		logger:            zap.NewNop(),
		deltas:            make(map[deltaKey]*big.Int),
		nonzero:           make(map[common.Address]int),
		reservesOfVault:   make(map[types.Currency]*uint256.Int),
		reservesOfManager: make(map[managerKey]*uint256.Int),
		surplus:           make(map[surplusKey]*uint256.Int),
		managers:          make(map[common.Address]bool),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Vault) Address() common.Address { return v.address }

func (v *Vault) Owner() common.Address { return v.owner }

// Attach adds a participant that is snapshotted at every scope entry.
func (v *Vault) Attach(j Journal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.journals = append(v.journals, j)
}

// RegisterPoolManager allow-lists a pool manager. Registering twice is a no-op.
func (v *Vault) RegisterPoolManager(caller, manager common.Address) error {
	if caller != v.owner {
		return ErrUnauthorized
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.managers[manager] {
		v.managers[manager] = true
		v.logger.Info("pool manager registered", zap.String("manager", manager.Hex()))
	}
	return nil
}

func (v *Vault) IsPoolManagerRegistered(manager common.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.managers[manager]
}

// Locker returns the current locker, or the zero address when unlocked.
func (v *Vault) Locker() common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.lockers) == 0 {
		return common.Address{}
	}
	return v.lockers[len(v.lockers)-1]
}

func (v *Vault) LockDepth() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.lockers)
}

// NonzeroDeltaCount is the number of (locker, currency) deltas that are not zero.
func (v *Vault) NonzeroDeltaCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nonzeroTotal
}

// CurrencyDelta returns the locker's delta; positive means the locker owes the vault.
func (v *Vault) CurrencyDelta(locker common.Address, currency types.Currency) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if d, ok := v.deltas[deltaKey{locker, currency}]; ok {
		return new(big.Int).Set(d)
	}
	return new(big.Int)
}

// HasDeltaEntry reports whether a delta entry exists for the pair.
func (v *Vault) HasDeltaEntry(locker common.Address, currency types.Currency) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.deltas[deltaKey{locker, currency}]
	return ok
}

func (v *Vault) ReservesOfVault(currency types.Currency) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return copyOrZero(v.reservesOfVault[currency])
}

func (v *Vault) ReservesOfPoolManager(manager common.Address, currency types.Currency) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return copyOrZero(v.reservesOfManager[managerKey{manager, currency}])
}

// BalanceOf returns the surplus balance held in the vault for owner.
func (v *Vault) BalanceOf(owner common.Address, currency types.Currency) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return copyOrZero(v.surplus[surplusKey{owner, currency}])
}

// SurplusHolders lists owners with a surplus entry in currency, in byte order.
func (v *Vault) SurplusHolders(currency types.Currency) []common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []common.Address
	for k := range v.surplus {
		if k.currency == currency {
			out = append(out, k.owner)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// TotalSurplus sums outstanding surplus balances of currency.
func (v *Vault) TotalSurplus(currency types.Currency) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	total := new(uint256.Int)
	for k, amount := range v.surplus {
		if k.currency == currency {
			total.Add(total, amount)
		}
	}
	return total
}

// TotalManagerReserves sums the reserves of every pool manager in currency.
func (v *Vault) TotalManagerReserves(currency types.Currency) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	total := new(uint256.Int)
	for k, amount := range v.reservesOfManager {
		if k.currency == currency {
			total.Add(total, amount)
		}
	}
	return total
}

func copyOrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}

func subReserve(reserve, amount *uint256.Int) (*uint256.Int, error) {
	reserve = copyOrZero(reserve)
	if reserve.Lt(amount) {
		return nil, ErrReserveUnderflow
	}
	return reserve.Sub(reserve, amount), nil
}
