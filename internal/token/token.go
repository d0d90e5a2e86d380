// Package token is an in-memory token capability: ERC20-style balances and
// allowances for every registered currency, with the zero-address currency
// acting as the native asset.
package token

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/ledger"
	"ammcore/internal/types"
)

var (
	ErrUnknownToken           = errors.New("token: unknown currency")
	ErrInsufficientBalance    = errors.New("token: insufficient balance")
	ErrInsufficientAllowance  = errors.New("token: insufficient allowance")
	ErrNativeTransferFrom     = errors.New("token: native asset cannot be pulled with transferFrom")
	ErrTokenAlreadyRegistered = errors.New("token: currency already registered")
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

type ledgerState struct {
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

func (l *ledgerState) clone() *ledgerState {
	out := &ledgerState{
		balances:   make(map[common.Address]*uint256.Int, len(l.balances)),
		allowances: make(map[allowanceKey]*uint256.Int, len(l.allowances)),
	}
	for k, v := range l.balances {
		out.balances[k] = new(uint256.Int).Set(v)
	}
	for k, v := range l.allowances {
		out.allowances[k] = new(uint256.Int).Set(v)
	}
	return out
}

// Registry owns the state of every token and implements ledger.Tokens and
// ledger.Journal.
type Registry struct {
	mu        sync.Mutex
	tokens    map[types.Currency]*ledgerState
	snapshots []map[types.Currency]*ledgerState
}

var (
	_ ledger.Tokens  = (*Registry)(nil)
	_ ledger.Journal = (*Registry)(nil)
)

// NewRegistry returns a registry with the native asset already registered.
func NewRegistry() *Registry {
	return &Registry{tokens: map[types.Currency]*ledgerState{types.Native: newLedgerState()}}
}

// Register adds an ERC20-style currency.
func (r *Registry) Register(currency types.Currency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[currency]; ok {
		return fmt.Errorf("%w: %s", ErrTokenAlreadyRegistered, currency.Hex())
	}
	r.tokens[currency] = newLedgerState()
	return nil
}

// Token returns the handle for a registered currency.
func (r *Registry) Token(currency types.Currency) (ledger.Token, error) {
	h, err := r.Handle(currency)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Handle is Token with the concrete type.
func (r *Registry) Handle(currency types.Currency) (*Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[currency]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, currency.Hex())
	}
	return &Token{registry: r, currency: currency}, nil
}

// Currencies lists registered currencies in canonical order.
func (r *Registry) Currencies() []types.Currency {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Currency, 0, len(r.tokens))
	for c := range r.tokens {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (r *Registry) Snapshot() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[types.Currency]*ledgerState, len(r.tokens))
	for c, st := range r.tokens {
		snap[c] = st.clone()
	}
	r.snapshots = append(r.snapshots, snap)
	return len(r.snapshots) - 1
}

func (r *Registry) RevertToSnapshot(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.snapshots) {
		return
	}
	r.tokens = r.snapshots[id]
	r.snapshots = r.snapshots[:id]
}

func (r *Registry) DiscardSnapshot(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.snapshots) {
		return
	}
	r.snapshots = r.snapshots[:id]
}

// Token is a handle on one currency of a Registry.
type Token struct {
	registry *Registry
	currency types.Currency
}

func (t *Token) Currency() types.Currency { return t.currency }

func (t *Token) IsNative() bool { return t.currency.IsNative() }

// state must be called with the registry lock held.
func (t *Token) state() *ledgerState {
	return t.registry.tokens[t.currency]
}

func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	if b, ok := t.state().balances[owner]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Holders lists every address with a balance entry, in byte order.
func (t *Token) Holders() []common.Address {
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	out := make([]common.Address, 0, len(t.state().balances))
	for a := range t.state().balances {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	if a, ok := t.state().allowances[allowanceKey{owner, spender}]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

// Mint creates amount out of thin air for to.
func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	st := t.state()
	balance := new(uint256.Int)
	if b, ok := st.balances[to]; ok {
		balance.Set(b)
	}
	if _, overflow := balance.AddOverflow(balance, amount); overflow {
		return fmt.Errorf("mint %s: balance overflow", t.currency.Hex())
	}
	st.balances[to] = balance
	return nil
}

func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if t.IsNative() {
		return ErrNativeTransferFrom
	}
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	t.state().allowances[allowanceKey{owner, spender}] = new(uint256.Int).Set(amount)
	return nil
}

func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	return t.moveLocked(from, to, amount)
}

// TransferFrom moves amount from from to to, spending spender's allowance.
// An allowance of 2^256-1 is never decreased.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if t.IsNative() {
		return ErrNativeTransferFrom
	}
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	st := t.state()
	key := allowanceKey{from, spender}
	allowance := new(uint256.Int)
	if a, ok := st.allowances[key]; ok {
		allowance.Set(a)
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s allowance %s, need %s", ErrInsufficientAllowance, spender.Hex(), allowance.Dec(), amount.Dec())
	}
	if err := t.moveLocked(from, to, amount); err != nil {
		return err
	}
	if !allowance.Eq(maxUint256) {
		st.allowances[key] = allowance.Sub(allowance, amount)
	}
	return nil
}

var maxUint256 = new(uint256.Int).SetAllOne()

func (t *Token) moveLocked(from, to common.Address, amount *uint256.Int) error {
	st := t.state()
	fromBalance := new(uint256.Int)
	if b, ok := st.balances[from]; ok {
		fromBalance.Set(b)
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientBalance, from.Hex(), fromBalance.Dec(), amount.Dec())
	}
	st.balances[from] = fromBalance.Sub(fromBalance, amount)
	toBalance := new(uint256.Int)
	if b, ok := st.balances[to]; ok {
		toBalance.Set(b)
	}
	st.balances[to] = toBalance.Add(toBalance, amount)
	return nil
}
