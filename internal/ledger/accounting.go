package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ammcore/internal/calculator/safecast"
	"ammcore/internal/types"
)

// accountDeltaLocked adds delta to the locker's currency delta and keeps
// the non-zero counters in step. A zero delta never creates an entry.
func (v *Vault) accountDeltaLocked(locker common.Address, currency types.Currency, delta *big.Int) error {
	if delta.Sign() == 0 {
		return nil
	}
	key := deltaKey{locker, currency}
	current, ok := v.deltas[key]
	if !ok {
		current = new(big.Int)
	}
	next := new(big.Int).Add(current, delta)
	if _, err := safecast.CheckInt256(next); err != nil {
		return fmt.Errorf("%w: %v", ErrDeltaOverflow, err)
	}

	switch {
	case next.Sign() == 0:
		delete(v.deltas, key)
		v.nonzero[locker]--
		if v.nonzero[locker] == 0 {
			delete(v.nonzero, locker)
		}
		v.nonzeroTotal--
	case current.Sign() == 0:
		v.deltas[key] = next
		v.nonzero[locker]++
		v.nonzeroTotal++
	default:
		v.deltas[key] = next
	}
	return nil
}

func (s *Session) token(currency types.Currency) (Token, error) {
	return s.vault.tokens.Token(currency)
}

// Settle credits the locker with whatever the vault received in currency
// since reserves were last synced, and returns that amount.
func (s *Session) Settle(currency types.Currency) (*uint256.Int, error) {
	v := s.vault
	v.mu.Lock()
	defer v.mu.Unlock()
	paid, err := s.settleLocked(currency, s.locker)
	v.metrics.Observe("settle", err)
	return paid, err
}

func (s *Session) settleLocked(currency types.Currency, beneficiary common.Address) (*uint256.Int, error) {
	v := s.vault
	if err := s.checkCurrentLocked(); err != nil {
		return nil, err
	}
	token, err := s.token(currency)
	if err != nil {
		return nil, err
	}
	reserves := copyOrZero(v.reservesOfVault[currency])
	balance := token.BalanceOf(v.address)
	if balance.Lt(reserves) {
		return nil, fmt.Errorf("%w: balance %s below reserves %s", ErrReserveUnderflow, balance.Dec(), reserves.Dec())
	}
	paid := new(uint256.Int).Sub(balance, reserves)
	if err := v.accountDeltaLocked(beneficiary, currency, new(big.Int).Neg(paid.ToBig())); err != nil {
		return nil, err
	}
	v.reservesOfVault[currency] = new(uint256.Int).Set(balance)
	return paid, nil
}

// Take sends amount of currency to to and charges the locker for it.
func (s *Session) Take(currency types.Currency, to common.Address, amount *uint256.Int) (err error) {
	v := s.vault
	v.mu.Lock()
	defer v.mu.Unlock()
	defer func() { v.metrics.Observe("take", err) }()

	if err := s.checkCurrentLocked(); err != nil {
		return err
	}
	token, err := s.token(currency)
	if err != nil {
		return err
	}
	reserves, err := subReserve(v.reservesOfVault[currency], amount)
	if err != nil {
		return err
	}
	if err := token.Transfer(v.address, to, amount); err != nil {
		return fmt.Errorf("take %s: %w", currency.Hex(), err)
	}
	v.reservesOfVault[currency] = reserves
	return v.accountDeltaLocked(s.locker, currency, amount.ToBig())
}

// Mint credits to with a surplus balance and charges the locker for it.
func (s *Session) Mint(currency types.Currency, to common.Address, amount *uint256.Int) error {
	v := s.vault
	v.mu.Lock()
	defer v.mu.Unlock()
	err := s.mintLocked(currency, to, amount)
	v.metrics.Observe("mint", err)
	return err
}

func (s *Session) mintLocked(currency types.Currency, to common.Address, amount *uint256.Int) error {
	v := s.vault
	if err := s.checkCurrentLocked(); err != nil {
		return err
	}
	if err := v.accountDeltaLocked(s.locker, currency, amount.ToBig()); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	key := surplusKey{to, currency}
	v.surplus[key] = new(uint256.Int).Add(copyOrZero(v.surplus[key]), amount)
	return nil
}

// Burn spends the locker's surplus balance to pay down its delta.
func (s *Session) Burn(currency types.Currency, amount *uint256.Int) (err error) {
	v := s.vault
	v.mu.Lock()
	defer v.mu.Unlock()
	defer func() { v.metrics.Observe("burn", err) }()

	if err := s.checkCurrentLocked(); err != nil {
		return err
	}
	key := surplusKey{s.locker, currency}
	balance := copyOrZero(v.surplus[key])
	if balance.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientSurplus, balance.Dec(), amount.Dec())
	}
	if err := v.accountDeltaLocked(s.locker, currency, new(big.Int).Neg(amount.ToBig())); err != nil {
		return err
	}
	balance.Sub(balance, amount)
	if balance.IsZero() {
		delete(v.surplus, key)
	} else {
		v.surplus[key] = balance
	}
	return nil
}

// SettleFor moves amount of the locker's credit in currency to target, an
// active locker further down the scope stack.
func (s *Session) SettleFor(currency types.Currency, target common.Address, amount *uint256.Int) (err error) {
	v := s.vault
	v.mu.Lock()
	defer v.mu.Unlock()
	defer func() { v.metrics.Observe("settle_for", err) }()

	if err := s.checkCurrentLocked(); err != nil {
		return err
	}
	active := false
	for _, l := range v.lockers {
		if l == target {
			active = true
			break
		}
	}
	if !active {
		return fmt.Errorf("%w: %s", ErrNotActiveLocker, target.Hex())
	}
	signed := amount.ToBig()
	if err := v.accountDeltaLocked(s.locker, currency, signed); err != nil {
		return err
	}
	return v.accountDeltaLocked(target, currency, new(big.Int).Neg(signed))
}

// SettleAndMintRefund settles currency and mints any overpayment to to as
// surplus, leaving the locker's delta at zero when it was in credit.
func (s *Session) SettleAndMintRefund(currency types.Currency, to common.Address) (paid, refund *uint256.Int, err error) {
	v := s.vault
	v.mu.Lock()
	defer v.mu.Unlock()
	defer func() { v.metrics.Observe("settle_and_mint_refund", err) }()

	paid, err = s.settleLocked(currency, s.locker)
	if err != nil {
		return nil, nil, err
	}
	refund = new(uint256.Int)
	if d, ok := v.deltas[deltaKey{s.locker, currency}]; ok && d.Sign() < 0 {
		refund, err = safecast.ToUint256(new(big.Int).Neg(d))
		if err != nil {
			return nil, nil, err
		}
		if err := s.mintLocked(currency, to, refund); err != nil {
			return nil, nil, err
		}
	}
	return paid, refund, nil
}

// CurrencyDelta returns the session locker's delta in currency.
func (s *Session) CurrencyDelta(currency types.Currency) *big.Int {
	return s.vault.CurrencyDelta(s.locker, currency)
}

// AccountPoolBalanceDelta is the channel through which a pool manager
// reports an operation's result: the session locker is charged delta and
// the manager's reserves move by the same amounts.
func (s *Session) AccountPoolBalanceDelta(from common.Address, key types.PoolKey, delta types.BalanceDelta) (err error) {
	v := s.vault
	v.mu.Lock()
	defer v.mu.Unlock()
	defer func() { v.metrics.Observe("account_pool_balance_delta", err) }()

	if err := s.checkCurrentLocked(); err != nil {
		return err
	}
	if from != key.PoolManager {
		return fmt.Errorf("%w: %s", ErrNotFromPoolManager, from.Hex())
	}
	if !v.managers[from] {
		return fmt.Errorf("%w: %s", ErrPoolManagerUnregistered, from.Hex())
	}

	reserve0, err := v.moveManagerReserveLocked(from, key.Currency0, delta.Amount0)
	if err != nil {
		return err
	}
	reserve1, err := v.moveManagerReserveLocked(from, key.Currency1, delta.Amount1)
	if err != nil {
		return err
	}
	if err := v.accountDeltaLocked(s.locker, key.Currency0, delta.Amount0); err != nil {
		return err
	}
	if err := v.accountDeltaLocked(s.locker, key.Currency1, delta.Amount1); err != nil {
		return err
	}
	v.reservesOfManager[managerKey{from, key.Currency0}] = reserve0
	v.reservesOfManager[managerKey{from, key.Currency1}] = reserve1
	return nil
}

func (v *Vault) moveManagerReserveLocked(manager common.Address, currency types.Currency, amount *big.Int) (*uint256.Int, error) {
	reserve := copyOrZero(v.reservesOfManager[managerKey{manager, currency}])
	magnitude, err := safecast.ToUint256(new(big.Int).Abs(amount))
	if err != nil {
		return nil, err
	}
	if amount.Sign() >= 0 {
		if _, overflow := reserve.AddOverflow(reserve, magnitude); overflow {
			return nil, fmt.Errorf("%w: manager reserve overflow", ErrDeltaOverflow)
		}
		return reserve, nil
	}
	if reserve.Lt(magnitude) {
		return nil, fmt.Errorf("%w: manager %s", ErrReserveUnderflow, manager.Hex())
	}
	return reserve.Sub(reserve, magnitude), nil
}

// CollectFee withdraws amount of currency from a registered manager's
// reserves to recipient. The locker's deltas are untouched: the amount
// leaves the manager's share of the reserves, not the scope's balance.
func (s *Session) CollectFee(manager common.Address, currency types.Currency, amount *uint256.Int, recipient common.Address) (err error) {
	v := s.vault
	v.mu.Lock()
	defer v.mu.Unlock()
	defer func() { v.metrics.Observe("collect_fee", err) }()

	if err := s.checkCurrentLocked(); err != nil {
		return err
	}
	if !v.managers[manager] {
		return ErrPoolManagerUnregistered
	}
	token, err := s.token(currency)
	if err != nil {
		return err
	}
	mk := managerKey{manager, currency}
	managerReserves, err := subReserve(v.reservesOfManager[mk], amount)
	if err != nil {
		return err
	}
	vaultReserves, err := subReserve(v.reservesOfVault[currency], amount)
	if err != nil {
		return err
	}
	if err := token.Transfer(v.address, recipient, amount); err != nil {
		return fmt.Errorf("collect %s: %w", currency.Hex(), err)
	}
	v.reservesOfManager[mk] = managerReserves
	v.reservesOfVault[currency] = vaultReserves
	return nil
}
