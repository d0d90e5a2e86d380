package ledger_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammcore/internal/ledger"
	"ammcore/internal/token"
	"ammcore/internal/types"
)

var (
	vaultAddr   = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	owner       = common.HexToAddress("0x0000000000000000000000000000000000000f02")
	managerAddr = common.HexToAddress("0x0000000000000000000000000000000000000f03")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol       = common.HexToAddress("0x00000000000000000000000000000000000ca201")

	currency0 = types.CurrencyFromHex("0x00000000000000000000000000000000000000c0")
	currency1 = types.CurrencyFromHex("0x00000000000000000000000000000000000000c1")
)

type env struct {
	vault *ledger.Vault
	reg   *token.Registry
	tok0  *token.Token
	tok1  *token.Token
	key   types.PoolKey
}

func newEnv(t *testing.T) *env {
	t.Helper()
	reg := token.NewRegistry()
	require.NoError(t, reg.Register(currency0))
	require.NoError(t, reg.Register(currency1))
	tok0, err := reg.Handle(currency0)
	require.NoError(t, err)
	tok1, err := reg.Handle(currency1)
	require.NoError(t, err)
	for _, who := range []common.Address{alice, bob, carol} {
		require.NoError(t, tok0.Mint(who, uint256.NewInt(1_000_000)))
		require.NoError(t, tok1.Mint(who, uint256.NewInt(1_000_000)))
	}

	v := ledger.NewVault(vaultAddr, owner, reg)
	v.Attach(reg)
	require.NoError(t, v.RegisterPoolManager(owner, managerAddr))

	return &env{
		vault: v,
		reg:   reg,
		tok0:  tok0,
		tok1:  tok1,
		key:   types.PoolKey{Currency0: currency0, Currency1: currency1, PoolManager: managerAddr, Fee: 3000},
	}
}

func delta(t *testing.T, a0, a1 int64) types.BalanceDelta {
	t.Helper()
	d, err := types.NewBalanceDelta(big.NewInt(a0), big.NewInt(a1))
	require.NoError(t, err)
	return d
}

// pay transfers amount from payer to the vault and settles it.
func pay(t *testing.T, s *ledger.Session, tok *token.Token, payer common.Address, amount uint64) {
	t.Helper()
	require.NoError(t, tok.Transfer(payer, vaultAddr, uint256.NewInt(amount)))
	paid, err := s.Settle(tok.Currency())
	require.NoError(t, err)
	require.Equal(t, amount, paid.Uint64())
}

// seedLiquidity leaves the manager with 1000 of each currency in reserve.
func seedLiquidity(t *testing.T, e *env) {
	t.Helper()
	_, err := e.vault.Lock(context.Background(), alice, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		if err := s.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 1000, 1000)); err != nil {
			return nil, err
		}
		pay(t, s, e.tok0, alice, 1000)
		pay(t, s, e.tok1, alice, 1000)
		return nil, nil
	})
	require.NoError(t, err)
}

func assertReserveInvariant(t *testing.T, e *env) {
	t.Helper()
	for _, c := range []types.Currency{currency0, currency1} {
		want := new(uint256.Int).Add(e.vault.TotalManagerReserves(c), e.vault.TotalSurplus(c))
		assert.Equal(t, want, e.vault.ReservesOfVault(c), "currency %s", c.Hex())
		tok, err := e.reg.Handle(c)
		require.NoError(t, err)
		assert.False(t, tok.BalanceOf(vaultAddr).Lt(e.vault.ReservesOfVault(c)))
	}
}

func TestLockSetsAndResetsLocker(t *testing.T) {
	e := newEnv(t)
	out, err := e.vault.Lock(context.Background(), alice, []byte("ping"), func(s *ledger.Session, data []byte) ([]byte, error) {
		assert.Equal(t, alice, e.vault.Locker())
		assert.Equal(t, alice, s.Locker())
		return append(data, '!'), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ping!"), out)
	assert.Equal(t, common.Address{}, e.vault.Locker())
	assert.Zero(t, e.vault.NonzeroDeltaCount())
}

func TestSettleZeroDoesNotCreateEntry(t *testing.T) {
	e := newEnv(t)
	_, err := e.vault.Lock(context.Background(), alice, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		paid, err := s.Settle(currency0)
		require.NoError(t, err)
		assert.True(t, paid.IsZero())
		assert.False(t, e.vault.HasDeltaEntry(alice, currency0))
		assert.Zero(t, e.vault.NonzeroDeltaCount())

		require.NoError(t, s.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 5, 0)))
		assert.Equal(t, 1, e.vault.NonzeroDeltaCount())

		paid, err = s.Settle(currency0)
		require.NoError(t, err)
		assert.True(t, paid.IsZero())
		assert.Equal(t, 1, e.vault.NonzeroDeltaCount())
		assert.Equal(t, "5", s.CurrencyDelta(currency0).String())
		assert.False(t, e.vault.HasDeltaEntry(alice, currency1))

		pay(t, s, e.tok0, alice, 5)
		assert.Zero(t, e.vault.NonzeroDeltaCount())
		return nil, nil
	})
	require.NoError(t, err)
}

func TestUnsettledScopeRollsBack(t *testing.T) {
	e := newEnv(t)
	seedLiquidity(t, e)

	_, err := e.vault.Lock(context.Background(), bob, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		if err := s.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 100, -98)); err != nil {
			return nil, err
		}
		pay(t, s, e.tok0, bob, 100)
		// token1 is never taken
		return nil, nil
	})
	assert.ErrorIs(t, err, ledger.ErrCurrencyNotSettled)

	assert.Equal(t, common.Address{}, e.vault.Locker())
	assert.Zero(t, e.vault.NonzeroDeltaCount())
	assert.Equal(t, uint64(1000), e.vault.ReservesOfVault(currency0).Uint64())
	assert.Equal(t, uint64(1000), e.vault.ReservesOfPoolManager(managerAddr, currency1).Uint64())
	// the token registry is journaled too
	assert.Equal(t, uint64(1_000_000), e.tok0.BalanceOf(bob).Uint64())
	assertReserveInvariant(t, e)
}

func TestSwapFlowSettleAndTake(t *testing.T) {
	e := newEnv(t)
	seedLiquidity(t, e)

	_, err := e.vault.Lock(context.Background(), bob, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		if err := s.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 100, -98)); err != nil {
			return nil, err
		}
		assert.Equal(t, 2, e.vault.NonzeroDeltaCount())
		pay(t, s, e.tok0, bob, 100)
		return nil, s.Take(currency1, carol, uint256.NewInt(98))
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1_000_098), e.tok1.BalanceOf(carol).Uint64())
	assert.Equal(t, uint64(1100), e.vault.ReservesOfPoolManager(managerAddr, currency0).Uint64())
	assert.Equal(t, uint64(902), e.vault.ReservesOfPoolManager(managerAddr, currency1).Uint64())
	assert.Equal(t, uint64(902), e.vault.ReservesOfVault(currency1).Uint64())
	assertReserveInvariant(t, e)
}

func TestTakeBeyondReservesFails(t *testing.T) {
	e := newEnv(t)
	_, err := e.vault.Lock(context.Background(), bob, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		return nil, s.Take(currency0, bob, uint256.NewInt(1))
	})
	assert.ErrorIs(t, err, ledger.ErrReserveUnderflow)
}

func TestMintAndBurnSurplus(t *testing.T) {
	e := newEnv(t)
	seedLiquidity(t, e)

	_, err := e.vault.Lock(context.Background(), bob, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		if err := s.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 100, -98)); err != nil {
			return nil, err
		}
		pay(t, s, e.tok0, bob, 100)
		return nil, s.Mint(currency1, carol, uint256.NewInt(98))
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(98), e.vault.BalanceOf(carol, currency1).Uint64())
	assert.Equal(t, uint64(1000), e.vault.ReservesOfVault(currency1).Uint64())
	assertReserveInvariant(t, e)

	_, err = e.vault.Lock(context.Background(), carol, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		if err := s.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 0, 98)); err != nil {
			return nil, err
		}
		if err := s.Burn(currency1, uint256.NewInt(99)); !errors.Is(err, ledger.ErrInsufficientSurplus) {
			t.Errorf("burn beyond surplus: got %v", err)
		}
		return nil, s.Burn(currency1, uint256.NewInt(98))
	})
	require.NoError(t, err)
	assert.True(t, e.vault.BalanceOf(carol, currency1).IsZero())
	assert.Equal(t, uint64(1000), e.vault.ReservesOfPoolManager(managerAddr, currency1).Uint64())
	assertReserveInvariant(t, e)
}

func TestNestedLocks(t *testing.T) {
	e := newEnv(t)

	_, err := e.vault.Lock(context.Background(), alice, nil, func(outer *ledger.Session, _ []byte) ([]byte, error) {
		_, err := outer.Lock(alice, nil, func(*ledger.Session, []byte) ([]byte, error) { return nil, nil })
		assert.ErrorIs(t, err, ledger.ErrLockerAlreadySet)

		_, err = outer.Lock(bob, nil, func(inner *ledger.Session, _ []byte) ([]byte, error) {
			assert.Equal(t, bob, e.vault.Locker())
			assert.Equal(t, 2, e.vault.LockDepth())

			_, err := outer.Settle(currency0)
			assert.ErrorIs(t, err, ledger.ErrNotCurrentLocker)

			_, err = inner.Lock(alice, nil, func(*ledger.Session, []byte) ([]byte, error) { return nil, nil })
			assert.ErrorIs(t, err, ledger.ErrLockerAlreadySet)
			return nil, nil
		})
		require.NoError(t, err)
		assert.Equal(t, alice, e.vault.Locker())
		return nil, nil
	})
	require.NoError(t, err)
	assert.Zero(t, e.vault.LockDepth())
}

func TestFailedInnerScopeRevertsOnlyItself(t *testing.T) {
	e := newEnv(t)
	seedLiquidity(t, e)
	boom := errors.New("boom")

	_, err := e.vault.Lock(context.Background(), alice, nil, func(outer *ledger.Session, _ []byte) ([]byte, error) {
		require.NoError(t, outer.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 10, 0)))

		_, err := outer.Lock(bob, nil, func(inner *ledger.Session, _ []byte) ([]byte, error) {
			require.NoError(t, inner.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 7, 7)))
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, e.vault.NonzeroDeltaCount())
		assert.False(t, e.vault.HasDeltaEntry(bob, currency0))
		assert.Equal(t, uint64(1010), e.vault.ReservesOfPoolManager(managerAddr, currency0).Uint64())

		pay(t, outer, e.tok0, alice, 10)
		return nil, nil
	})
	require.NoError(t, err)
	assertReserveInvariant(t, e)
}

func TestNestedLockerMustSettleItself(t *testing.T) {
	e := newEnv(t)
	_, err := e.vault.Lock(context.Background(), alice, nil, func(outer *ledger.Session, _ []byte) ([]byte, error) {
		_, err := outer.Lock(bob, nil, func(inner *ledger.Session, _ []byte) ([]byte, error) {
			return nil, inner.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 1, 0))
		})
		assert.ErrorIs(t, err, ledger.ErrCurrencyNotSettled)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestSettleFor(t *testing.T) {
	e := newEnv(t)
	_, err := e.vault.Lock(context.Background(), alice, nil, func(outer *ledger.Session, _ []byte) ([]byte, error) {
		if err := outer.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 100, 0)); err != nil {
			return nil, err
		}
		_, err := outer.Lock(bob, nil, func(inner *ledger.Session, _ []byte) ([]byte, error) {
			assert.ErrorIs(t, inner.SettleFor(currency0, carol, uint256.NewInt(1)), ledger.ErrNotActiveLocker)
			pay(t, inner, e.tok0, bob, 100)
			return nil, inner.SettleFor(currency0, alice, uint256.NewInt(100))
		})
		if err != nil {
			return nil, err
		}
		assert.Zero(t, outer.CurrencyDelta(currency0).Sign())
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(999_900), e.tok0.BalanceOf(bob).Uint64())
	assertReserveInvariant(t, e)
}

func TestSettleAndMintRefund(t *testing.T) {
	e := newEnv(t)
	_, err := e.vault.Lock(context.Background(), alice, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		if err := s.AccountPoolBalanceDelta(managerAddr, e.key, delta(t, 100, 0)); err != nil {
			return nil, err
		}
		require.NoError(t, e.tok0.Transfer(alice, vaultAddr, uint256.NewInt(150)))
		paid, refund, err := s.SettleAndMintRefund(currency0, carol)
		require.NoError(t, err)
		assert.Equal(t, uint64(150), paid.Uint64())
		assert.Equal(t, uint64(50), refund.Uint64())
		assert.Zero(t, s.CurrencyDelta(currency0).Sign())
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), e.vault.BalanceOf(carol, currency0).Uint64())
	assertReserveInvariant(t, e)
}

func TestAccountPoolBalanceDeltaChecks(t *testing.T) {
	e := newEnv(t)
	other := common.HexToAddress("0x0000000000000000000000000000000000000f04")

	assert.ErrorIs(t, e.vault.RegisterPoolManager(alice, other), ledger.ErrUnauthorized)
	require.NoError(t, e.vault.RegisterPoolManager(owner, managerAddr))
	assert.True(t, e.vault.IsPoolManagerRegistered(managerAddr))

	_, err := e.vault.Lock(context.Background(), alice, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		assert.ErrorIs(t, s.AccountPoolBalanceDelta(other, e.key, delta(t, 1, 1)), ledger.ErrNotFromPoolManager)

		unregistered := e.key
		unregistered.PoolManager = other
		assert.ErrorIs(t, s.AccountPoolBalanceDelta(other, unregistered, delta(t, 1, 1)), ledger.ErrPoolManagerUnregistered)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestSessionUnusableAfterClose(t *testing.T) {
	e := newEnv(t)
	var leaked *ledger.Session
	_, err := e.vault.Lock(context.Background(), alice, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		leaked = s
		return nil, nil
	})
	require.NoError(t, err)

	_, err = leaked.Settle(currency0)
	assert.ErrorIs(t, err, ledger.ErrNotLocked)
	assert.ErrorIs(t, leaked.Take(currency0, alice, uint256.NewInt(0)), ledger.ErrNotLocked)
}

func TestCallbackPanicIsRecovered(t *testing.T) {
	e := newEnv(t)
	_, err := e.vault.Lock(context.Background(), alice, nil, func(*ledger.Session, []byte) ([]byte, error) {
		panic("bad callback")
	})
	assert.ErrorIs(t, err, ledger.ErrCallbackPanic)
	assert.Equal(t, common.Address{}, e.vault.Locker())
}

func TestNativeSettle(t *testing.T) {
	e := newEnv(t)
	native, err := e.reg.Handle(types.Native)
	require.NoError(t, err)
	require.NoError(t, native.Mint(alice, uint256.NewInt(10)))

	nativeKey := types.PoolKey{Currency0: types.Native, Currency1: currency0, PoolManager: managerAddr, Fee: 3000}
	_, err = e.vault.Lock(context.Background(), alice, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		if err := s.AccountPoolBalanceDelta(managerAddr, nativeKey, delta(t, 10, 0)); err != nil {
			return nil, err
		}
		pay(t, s, native, alice, 10)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), e.vault.ReservesOfVault(types.Native).Uint64())
}

func TestCollectFee(t *testing.T) {
	e := newEnv(t)
	seedLiquidity(t, e)

	var leaked *ledger.Session
	_, err := e.vault.Lock(context.Background(), carol, nil, func(s *ledger.Session, _ []byte) ([]byte, error) {
		leaked = s
		assert.ErrorIs(t, s.CollectFee(alice, currency0, uint256.NewInt(1), carol), ledger.ErrPoolManagerUnregistered)
		assert.ErrorIs(t, s.CollectFee(managerAddr, currency0, uint256.NewInt(1001), carol), ledger.ErrReserveUnderflow)
		return nil, s.CollectFee(managerAddr, currency0, uint256.NewInt(30), carol)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_030), e.tok0.BalanceOf(carol).Uint64())
	assert.Equal(t, uint64(970), e.vault.ReservesOfPoolManager(managerAddr, currency0).Uint64())
	assertReserveInvariant(t, e)

	// A session outlives its scope only as a dead handle.
	assert.ErrorIs(t, leaked.CollectFee(managerAddr, currency1, uint256.NewInt(10), carol), ledger.ErrNotLocked)
	assert.Equal(t, uint64(1000), e.vault.ReservesOfPoolManager(managerAddr, currency1).Uint64())
	assert.Equal(t, uint64(1_000_000), e.tok1.BalanceOf(carol).Uint64())
}

func TestCollectFeeRequiresCurrentLocker(t *testing.T) {
	e := newEnv(t)
	seedLiquidity(t, e)

	_, err := e.vault.Lock(context.Background(), alice, nil, func(outer *ledger.Session, _ []byte) ([]byte, error) {
		return outer.Lock(bob, nil, func(*ledger.Session, []byte) ([]byte, error) {
			return nil, outer.CollectFee(managerAddr, currency0, uint256.NewInt(1), carol)
		})
	})
	assert.ErrorIs(t, err, ledger.ErrNotCurrentLocker)
	assert.Equal(t, uint64(1000), e.vault.ReservesOfPoolManager(managerAddr, currency0).Uint64())
}

func TestCanceledContext(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.vault.Lock(ctx, alice, nil, func(*ledger.Session, []byte) ([]byte, error) { return nil, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
