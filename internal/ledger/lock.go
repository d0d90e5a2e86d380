package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var ErrCallbackPanic = errors.New("ledger: lock callback panicked")

// Session is the capability handed to a lock callback. It is only valid
// while its scope is the innermost open scope.
type Session struct {
	vault  *Vault
	ctx    context.Context
	locker common.Address
	depth  int
	closed bool
}

func (s *Session) Locker() common.Address { return s.locker }

func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) Vault() *Vault { return s.vault }

// Lock opens a scope for locker and runs cb inside it. Lock blocks while
// another top-level scope is open.
func (v *Vault) Lock(ctx context.Context, locker common.Address, data []byte, cb Callback) ([]byte, error) {
	v.scope.Lock()
	defer v.scope.Unlock()
	return v.run(ctx, locker, data, cb)
}

// Lock opens a nested scope for a different locker from inside a callback.
func (s *Session) Lock(locker common.Address, data []byte, cb Callback) ([]byte, error) {
	s.vault.mu.Lock()
	err := s.checkCurrentLocked()
	s.vault.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.vault.run(s.ctx, locker, data, cb)
}

func (v *Vault) run(ctx context.Context, locker common.Address, data []byte, cb Callback) (result []byte, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	for _, active := range v.lockers {
		if active == locker {
			v.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrLockerAlreadySet, locker.Hex())
		}
	}
	vaultSnap := v.snapshotLocked()
	journals := append([]Journal(nil), v.journals...)
	v.lockers = append(v.lockers, locker)
	depth := len(v.lockers)
	v.mu.Unlock()

	ids := make([]int, len(journals))
	for i, j := range journals {
		ids[i] = j.Snapshot()
	}

	done := v.metrics.ScopeTimer()
	session := &Session{vault: v, ctx: ctx, locker: locker, depth: depth}
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%w: %v", ErrCallbackPanic, r)
		}
		session.closed = true
		done(err)
		v.pop(depth, err == nil)
		if err != nil {
			for i := len(journals) - 1; i >= 0; i-- {
				journals[i].RevertToSnapshot(ids[i])
			}
			v.RevertToSnapshot(vaultSnap)
			v.logger.Debug("lock scope rolled back",
				zap.String("locker", locker.Hex()),
				zap.Int("depth", depth),
				zap.Error(err),
			)
			return
		}
		for i := len(journals) - 1; i >= 0; i-- {
			journals[i].DiscardSnapshot(ids[i])
		}
		v.DiscardSnapshot(vaultSnap)
	}()

	result, err = cb(session, data)
	if err != nil {
		return nil, err
	}
	if err := v.checkSettled(locker, depth); err != nil {
		return nil, err
	}
	return result, nil
}

// checkSettled requires the closing locker to have no outstanding deltas;
// the outermost scope additionally requires the global count to be zero.
func (v *Vault) checkSettled(locker common.Address, depth int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n := v.nonzero[locker]; n != 0 {
		return fmt.Errorf("%w: locker %s has %d open deltas", ErrCurrencyNotSettled, locker.Hex(), n)
	}
	if depth == 1 && v.nonzeroTotal != 0 {
		return fmt.Errorf("%w: %d open deltas", ErrCurrencyNotSettled, v.nonzeroTotal)
	}
	return nil
}

func (v *Vault) pop(depth int, settled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockers = v.lockers[:depth-1]
	if settled && depth == 1 {
		v.deltas = make(map[deltaKey]*big.Int)
		v.nonzero = make(map[common.Address]int)
		v.nonzeroTotal = 0
	}
}

// checkCurrentLocked must be called with v.mu held.
func (s *Session) checkCurrentLocked() error {
	if s == nil || s.closed {
		return ErrNotLocked
	}
	lockers := s.vault.lockers
	if len(lockers) == 0 {
		return ErrNotLocked
	}
	if lockers[len(lockers)-1] != s.locker {
		return fmt.Errorf("%w: %s", ErrNotCurrentLocker, s.locker.Hex())
	}
	return nil
}
