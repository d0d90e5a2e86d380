package manager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ammcore/internal/fees"
	"ammcore/internal/types"
)

// FeeController answers protocolFeeForPool for a key. The returned bytes
// are the raw ABI return data; gasLimit is the budget the call may use.
type FeeController interface {
	ProtocolFeeForPool(ctx context.Context, key types.PoolKey, gasLimit uint64) ([]byte, error)
}

type FeeControllerFunc func(ctx context.Context, key types.PoolKey, gasLimit uint64) ([]byte, error)

func (f FeeControllerFunc) ProtocolFeeForPool(ctx context.Context, key types.PoolKey, gasLimit uint64) ([]byte, error) {
	return f(ctx, key, gasLimit)
}

type gasBudgetKey struct{}

// WithGasBudget attaches the execution budget left to the caller. A fee
// fetch under a budget below the controller gas limit fails instead of
// silently returning a zero fee.
func WithGasBudget(ctx context.Context, gas uint64) context.Context {
	return context.WithValue(ctx, gasBudgetKey{}, gas)
}

func GasBudget(ctx context.Context) (uint64, bool) {
	gas, ok := ctx.Value(gasBudgetKey{}).(uint64)
	return gas, ok
}

// Fee fetch outcomes, as recorded by metrics.
const (
	fetchOK        = "ok"
	fetchNoCtrl    = "no_controller"
	fetchFailed    = "call_failed"
	fetchMalformed = "malformed"
	fetchInvalid   = "invalid"
)

// fetchProtocolFee queries the controller. ok is false when there is no
// controller or its answer is unusable; the only error is a budget that
// cannot cover the call.
func (m *Manager) fetchProtocolFee(ctx context.Context, key types.PoolKey) (fee fees.ProtocolFee, ok bool, err error) {
	m.mu.Lock()
	controller, limit, timeout := m.controller, m.controllerGasLimit, m.controllerTimeout
	m.mu.Unlock()

	if controller == nil {
		m.metrics.FeeFetch(fetchNoCtrl)
		return 0, false, nil
	}
	if budget, set := GasBudget(ctx); set && budget < limit {
		return 0, false, ErrProtocolFeeCannotBeFetched
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := m.logger.With(zap.String("pool_id", key.ID().Hex()))
	raw, err := callController(callCtx, controller, key, limit)
	if err != nil {
		logger.Warn("protocol fee controller call failed", zap.Error(err))
		m.metrics.FeeFetch(fetchFailed)
		return 0, false, nil
	}
	fee, err = fees.DecodeProtocolFee(raw)
	if err != nil {
		logger.Warn("protocol fee controller returned malformed data", zap.Int("len", len(raw)), zap.Error(err))
		m.metrics.FeeFetch(fetchMalformed)
		return 0, false, nil
	}
	if !fee.Valid() {
		logger.Warn("protocol fee controller returned an invalid fee", zap.Uint16("fee", uint16(fee)))
		m.metrics.FeeFetch(fetchInvalid)
		return 0, false, nil
	}
	m.metrics.FeeFetch(fetchOK)
	return fee, true, nil
}

// callController turns a panicking controller into a failed call.
func callController(ctx context.Context, c FeeController, key types.PoolKey, limit uint64) (raw []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("controller panic: %v", r)
		}
	}()
	return c.ProtocolFeeForPool(ctx, key, limit)
}
