// Package manager is the public facade over the pool engine. It validates
// pool keys, owns every pool's state and reports each operation's balance
// delta to the settlement vault.
package manager

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"ammcore/internal/fees"
	"ammcore/internal/ledger"
	"ammcore/internal/metrics"
	"ammcore/internal/pool"
	"ammcore/internal/types"
)

var (
	ErrPoolManagerMismatch                            = errors.New("manager: pool key names another manager")
	ErrCurrenciesOutOfOrder                           = errors.New("manager: currencies out of order or equal")
	ErrUnknownFeeTier                                 = errors.New("manager: fee tier not enabled")
	ErrFeeTierAlreadyEnabled                          = errors.New("manager: fee tier already enabled")
	ErrInvalidTickSpacing                             = errors.New("manager: tick spacing out of range")
	ErrFeeNotDynamic                                  = errors.New("manager: pool fee is not dynamic")
	ErrDynamicFeeSourceUnset                          = errors.New("manager: no dynamic fee source configured")
	ErrProtocolFeeCannotBeFetched                     = errors.New("manager: budget below protocol fee controller gas limit")
	ErrProtocolFeeControllerCallFailedOrInvalidResult = errors.New("manager: protocol fee controller call failed or returned an invalid result")
	ErrUnauthorized                                   = errors.New("manager: caller not authorized")
	ErrInsufficientProtocolFees                       = errors.New("manager: amount exceeds accrued protocol fees")

	ErrFeeTooLarge        = fees.ErrFeeTooLarge
	ErrPoolNotInitialized = pool.ErrPoolNotInitialized
)

const (
	// MaxTickSpacing bounds enabled tick spacings.
	MaxTickSpacing int32 = 16384

	DefaultControllerGasLimit uint64 = 500_000
	DefaultControllerTimeout         = 5 * time.Second
)

// DefaultFeeTiers maps static fees to tick spacings.
var DefaultFeeTiers = map[uint32]int32{
	100:   1,
	500:   10,
	3000:  60,
	10000: 200,
}

// DynamicFeeSource supplies the swap fee of pools whose key carries the
// dynamic fee flag.
type DynamicFeeSource interface {
	SwapFee(key types.PoolKey) (uint32, error)
}

type DynamicFeeFunc func(key types.PoolKey) (uint32, error)

func (f DynamicFeeFunc) SwapFee(key types.PoolKey) (uint32, error) { return f(key) }

// Manager owns the pools created through it. Pool states are replaced on
// every successful mutation and never modified in place once stored.
type Manager struct {
	address common.Address
	owner   common.Address
	vault   *ledger.Vault
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu                 sync.Mutex
	pools              map[common.Hash]*pool.State
	keys               map[common.Hash]types.PoolKey
	feeTiers           map[uint32]int32
	controller         FeeController
	controllerAddress  common.Address
	controllerGasLimit uint64
	controllerTimeout  time.Duration
	dynamicFees        DynamicFeeSource
	protocolFees       map[types.Currency]*uint256.Int
	snapshots          []state
}

type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithProtocolFeeController sets the controller queried for protocol fees
// and the identity allowed to collect them.
func WithProtocolFeeController(address common.Address, controller FeeController) Option {
	return func(m *Manager) {
		m.controllerAddress = address
		m.controller = controller
	}
}

func WithControllerGasLimit(limit uint64) Option {
	return func(m *Manager) { m.controllerGasLimit = limit }
}

func WithControllerTimeout(d time.Duration) Option {
	return func(m *Manager) { m.controllerTimeout = d }
}

func WithDynamicFeeSource(src DynamicFeeSource) Option {
	return func(m *Manager) { m.dynamicFees = src }
}

// New creates a manager at address and attaches it to the vault's journal.
// The vault owner still has to register the manager before it can account
// deltas.
func New(address, owner common.Address, vault *ledger.Vault, opts ...Option) *Manager {
	m := &Manager{
		address:            address,
		owner:              owner,
		vault:              vault,
		logger:             zap.NewNop(),
		pools:              make(map[common.Hash]*pool.State),
		keys:               make(map[common.Hash]types.PoolKey),
		feeTiers:           make(map[uint32]int32, len(DefaultFeeTiers)),
		controllerGasLimit: DefaultControllerGasLimit,
		controllerTimeout:  DefaultControllerTimeout,
		protocolFees:       make(map[types.Currency]*uint256.Int),
	}
	for fee, spacing := range DefaultFeeTiers {
		m.feeTiers[fee] = spacing
	}
	for _, opt := range opts {
		opt(m)
	}
	if vault != nil {
		vault.Attach(m)
	}
	return m
}

func (m *Manager) Address() common.Address { return m.address }

func (m *Manager) Vault() *ledger.Vault { return m.vault }

// EnableFeeTier allows pools with the given static fee and tick spacing.
func (m *Manager) EnableFeeTier(caller common.Address, fee uint32, tickSpacing int32) error {
	if caller != m.owner {
		return ErrUnauthorized
	}
	if err := fees.ValidateSwapFee(fee); err != nil {
		return err
	}
	if tickSpacing <= 0 || tickSpacing >= MaxTickSpacing {
		return ErrInvalidTickSpacing
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.feeTiers[fee]; ok {
		return ErrFeeTierAlreadyEnabled
	}
	m.feeTiers[fee] = tickSpacing
	m.logger.Info("fee tier enabled", zap.Uint32("fee", fee), zap.Int32("tick_spacing", tickSpacing))
	return nil
}

// SetProtocolFeeController replaces the protocol fee controller.
func (m *Manager) SetProtocolFeeController(caller, address common.Address, controller FeeController) error {
	if caller != m.owner {
		return ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controllerAddress = address
	m.controller = controller
	m.logger.Info("protocol fee controller updated", zap.String("controller", address.Hex()))
	return nil
}

func (m *Manager) validateKey(key types.PoolKey) (int32, error) {
	if key.PoolManager != m.address {
		return 0, ErrPoolManagerMismatch
	}
	if !key.Currency0.Less(key.Currency1) {
		return 0, ErrCurrenciesOutOfOrder
	}
	fee := fees.SwapFee(key.Fee)
	if key.Fee&^uint32(fees.DynamicFeeFlag|fees.StaticFeeMask) != 0 || fee.IsStaticFeeTooLarge(fees.OneHundredPercent) {
		return 0, ErrFeeTooLarge
	}
	m.mu.Lock()
	spacing, ok := m.feeTiers[fee.Static()]
	m.mu.Unlock()
	if !ok {
		return 0, ErrUnknownFeeTier
	}
	return spacing, nil
}
