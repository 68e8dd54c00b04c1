package txmanager

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/log"
)

// feePlanner turns a caller priority into a concrete FeeInfo, preferring
// an optional Fee Oracle and falling back to the Chain Adapter's native
// EIP-1559 estimator. It never fails silently: a composite error is
// returned only when both the oracle and the fallback estimator fail, so
// that a transient oracle outage alone never aborts a send.
type feePlanner struct {
	chain  ChainAdapter
	oracle FeeOracle // nil if no oracle configured
}

func newFeePlanner(chain ChainAdapter, oracle FeeOracle) *feePlanner {
	return &feePlanner{chain: chain, oracle: oracle}
}

// plan implements gas_info from the original design: try the oracle
// first, fall back to the chain's own estimator, surface a composite
// error only if both fail.
func (p *feePlanner) plan(ctx context.Context, priority Priority) (FeeInfo, error) {
	if p.oracle != nil {
		info, err := p.oracle.GetInfo(ctx, priority)
		if err == nil {
			return info, nil
		}
		log.Warn("txmanager: fee oracle failed, falling back to chain estimator", "priority", priority, "err", err)
		fallback, fallbackErr := p.providerGasInfo(ctx)
		if fallbackErr != nil {
			return FeeInfo{}, newGasOracleError(err, fallbackErr)
		}
		return fallback, nil
	}
	return p.providerGasInfo(ctx)
}

// providerGasInfo asks the Chain Adapter directly, with no timing hints.
func (p *feePlanner) providerGasInfo(ctx context.Context) (FeeInfo, error) {
	maxFee, maxPriorityFee, err := p.chain.EstimateEIP1559Fees(ctx)
	if err != nil {
		return FeeInfo{}, newMiddlewareError(err)
	}
	return FeeInfo{MaxFee: maxFee, MaxPriorityFee: maxPriorityFee}, nil
}

// resolvePriorityFee fills in info.MaxPriorityFee from info.MaxFee minus
// the latest base fee when the planner (or oracle) left it unset. baseFee
// must be non-nil; callers fetch it from the latest block.
func resolvePriorityFee(info FeeInfo, baseFee *big.Int) (*big.Int, error) {
	if info.MaxPriorityFee != nil {
		return info.MaxPriorityFee, nil
	}
	if info.MaxFee.Cmp(baseFee) <= 0 {
		return nil, newPriorityFeeUnderflowError(
			&valueError{maxFee: info.MaxFee, baseFee: baseFee})
	}
	return new(big.Int).Sub(info.MaxFee, baseFee), nil
}

// valueError is a small formatting helper for KindPriorityFeeUnderflow's
// wrapped cause; it carries no behavior beyond Error().
type valueError struct {
	maxFee, baseFee *big.Int
}

func (v *valueError) Error() string {
	return "max_fee=" + v.maxFee.String() + " base_fee=" + v.baseFee.String()
}
