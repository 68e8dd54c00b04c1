package txmanager

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Manager drives a logical Request from submission to a confirmed
// receipt, surviving process crashes by persisting every broadcast hash
// before it is sent. See SPEC_FULL.md §4.1 for the full state machine
// this implements; it is grounded directly on the submit-then-confirm
// loop of the original send_then_confirm_transaction/confirm_transaction
// pair, rewritten as an explicit iteration instead of recursion.
type Manager struct {
	chain   ChainAdapter
	planner *feePlanner
	store   PersistenceAdapter
	chainID *big.Int
	cfg     Config

	mu   sync.Mutex
	busy bool
}

// New constructs a Manager, recovering any persisted in-flight request.
// If one exists and is still valid (the account's confirmed nonce has
// not overtaken it), New resumes the confirmation watch before
// returning — callers should expect New itself to block for a while.
// If the confirmed nonce has already overtaken the persisted one,
// recovery is ambiguous and New returns a KindNonceTooLow error.
func New(ctx context.Context, chain ChainAdapter, oracle FeeOracle, store PersistenceAdapter, chainID *big.Int, cfg Config) (*Manager, *types.Receipt, error) {
	m := &Manager{
		chain:   chain,
		planner: newFeePlanner(chain, oracle),
		store:   store,
		chainID: chainID,
		cfg:     cfg,
	}

	state, err := store.GetState(ctx)
	if err != nil {
		return nil, nil, newDatabaseError(err)
	}
	if state == nil {
		return m, nil, nil
	}

	confirmed, err := chain.GetTransactionCount(ctx, state.Request().From, false)
	if err != nil {
		return nil, nil, newMiddlewareError(err)
	}
	if confirmed > state.Nonce() {
		return nil, nil, newNonceTooLowError(confirmed, state.Nonce())
	}

	receipt, err := m.sendThenConfirm(ctx, state, false, true)
	if err != nil {
		return nil, nil, err
	}
	return m, receipt, nil
}

// NewIgnorePending constructs a Manager after unconditionally discarding
// any persisted in-flight request. Callers accept the risk that a
// transaction from a prior process lifetime may still be broadcast and
// eventually mined with no corresponding local record.
func NewIgnorePending(ctx context.Context, chain ChainAdapter, oracle FeeOracle, store PersistenceAdapter, chainID *big.Int, cfg Config) (*Manager, error) {
	if _, err := store.GetState(ctx); err != nil {
		return nil, newDatabaseError(err)
	}
	if err := store.ClearState(ctx); err != nil {
		// No persisted state to clear is not a failure here: the whole
		// point of ignore_pending is "there may or may not be one."
		if !isNotFound(err) {
			return nil, newDatabaseError(err)
		}
	}
	return &Manager{
		chain:   chain,
		planner: newFeePlanner(chain, oracle),
		store:   store,
		chainID: chainID,
		cfg:     cfg,
	}, nil
}

// Send delivers req and waits for it to reach req.Confirmations depth.
// Send consumes exclusive ownership of the Manager for its duration: a
// second concurrent call returns ErrSendInProgress rather than queuing,
// matching the "serial send" discipline in SPEC_FULL.md §5.
func (m *Manager) Send(ctx context.Context, req Request) (*types.Receipt, error) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return nil, ErrSendInProgress
	}
	m.busy = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	existing, err := m.store.GetState(ctx)
	if err != nil {
		return nil, newDatabaseError(err)
	}
	if existing != nil {
		return nil, ErrSendInProgress
	}

	nonce, err := m.chain.GetTransactionCount(ctx, req.From, true)
	if err != nil {
		return nil, newMiddlewareError(err)
	}

	state := newPersistentState(nonce, req)
	if err := m.store.SetState(ctx, state); err != nil {
		return nil, newDatabaseError(err)
	}

	return m.sendThenConfirm(ctx, state, true, false)
}

// sendThenConfirm is the outer loop of §4.1.2: plan fees, build, sign,
// persist-then-broadcast, watch for confirmation, and on mining-budget
// timeout go around again with a fresh fee plan and a new hash appended
// to the same nonce.
//
// skipFirstBuild is set only by recovery (New): the first iteration
// reuses whatever hashes are already persisted instead of building and
// broadcasting a new transaction, matching §4.1 Construct step 2
// ("enter the confirmation loop... scanning every persisted hash").
func (m *Manager) sendThenConfirm(ctx context.Context, state *PersistentState, sleepFirst, skipFirstBuild bool) (*types.Receipt, error) {
	first := true
	for {
		blockTime := m.cfg.BlockTime

		if !(first && skipFirstBuild) {
			feeInfo, err := m.planner.plan(ctx, state.TxData.Priority)
			if err != nil {
				return nil, err
			}
			if feeInfo.ObservedBlockTime != nil {
				blockTime = *feeInfo.ObservedBlockTime
			}

			signed, hash, err := m.buildAndSign(ctx, state, feeInfo)
			if err != nil {
				return nil, err
			}

			if state.SubmittedTxs.Add(hash) {
				if err := m.store.SetState(ctx, state); err != nil {
					return nil, newDatabaseError(err)
				}
			}

			if err := m.broadcast(ctx, signed); err != nil {
				return nil, err
			}
		}

		receipt, budgetExceeded, err := m.confirmationWatch(ctx, state, blockTime, sleepFirst)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			if err := m.store.ClearState(ctx); err != nil {
				return nil, newDatabaseError(err)
			}
			return receipt, nil
		}
		if !budgetExceeded {
			// Context was cancelled mid-watch; propagate without
			// resubmitting.
			return nil, newMiddlewareError(ctx.Err())
		}

		log.Warn("txmanager: mining budget exceeded, bumping fees and resubmitting",
			"nonce", state.Nonce(), "priority", state.TxData.Priority, "attempt", state.SubmittedTxs.Len()+1)
		first = false
		sleepFirst = true
	}
}

// confirmationWatch repeatedly polls for a receipt among state's
// submitted hashes until one reaches the requested depth, or the mining
// budget for this iteration elapses. budgetExceeded distinguishes that
// timeout case from a context cancellation (both return a nil receipt
// and nil error).
func (m *Manager) confirmationWatch(ctx context.Context, state *PersistentState, blockTime time.Duration, sleepFirst bool) (receipt *types.Receipt, budgetExceeded bool, err error) {
	budget := m.cfg.miningBudget(state.TxData.Confirmations)
	start := time.Now()
	first := true

	for {
		if ctx.Err() != nil {
			return nil, false, nil
		}
		if !(first && !sleepFirst) {
			m.cfg.Time.Sleep(ctx, blockTime)
		}
		first = false
		if ctx.Err() != nil {
			return nil, false, nil
		}

		found, err := m.scanForReceipt(ctx, state)
		if err != nil {
			return nil, false, err
		}
		if found != nil {
			head, err := m.chain.GetBlockNumber(ctx)
			if err != nil {
				return nil, false, newMiddlewareError(err)
			}
			minedAt := found.BlockNumber.Uint64()
			var depth uint64
			if head > minedAt {
				depth = head - minedAt
			}
			if depth >= state.TxData.Confirmations {
				return found, false, nil
			}
			// Not yet at the requested depth: keep polling at the
			// chain's ordinary block pacing regardless of any oracle
			// hint that sped up this iteration's first wait.
			blockTime = m.cfg.BlockTime
			continue
		}

		// A receipt that was visible on an earlier poll and is now gone
		// (reorg) falls through to here too: the budget timer is not
		// reset, matching the "treat a disappeared receipt as not
		// mined" policy.
		if m.cfg.Time.Elapsed(start) >= budget {
			return nil, true, nil
		}
	}
}

// scanForReceipt checks every submitted hash in insertion order and
// returns the first mined receipt found. Because every hash shares one
// nonce, at most one can ever be mined on the canonical chain.
func (m *Manager) scanForReceipt(ctx context.Context, state *PersistentState) (*types.Receipt, error) {
	for _, hash := range state.SubmittedTxs.All() {
		receipt, err := m.chain.GetTransactionReceipt(ctx, hash)
		if err != nil {
			return nil, newMiddlewareError(err)
		}
		if receipt != nil {
			return receipt, nil
		}
	}
	return nil, nil
}

// buildAndSign assembles a typed transaction for state's fixed nonce
// under the given fee plan, estimates its gas limit, and returns the
// signed transaction along with its hash.
func (m *Manager) buildAndSign(ctx context.Context, state *PersistentState, feeInfo FeeInfo) (*types.Transaction, common.Hash, error) {
	req := state.Request()
	to := req.To

	block, err := m.chain.GetBlock(ctx, nil)
	if err != nil {
		return nil, common.Hash{}, newMiddlewareError(err)
	}
	if block == nil {
		return nil, common.Hash{}, newLatestBlockNilError()
	}

	priorityFee := feeInfo.MaxPriorityFee
	if priorityFee == nil {
		if block.BaseFee == nil {
			return nil, common.Hash{}, newLatestBaseFeeNilError()
		}
		priorityFee, err = resolvePriorityFee(feeInfo, block.BaseFee)
		if err != nil {
			return nil, common.Hash{}, err
		}
	}

	probe := &types.DynamicFeeTx{
		ChainID:   m.chainID,
		Nonce:     state.Nonce(),
		GasFeeCap: feeInfo.MaxFee,
		GasTipCap: priorityFee,
		To:        &to,
		Value:     req.Value.ToWei(),
		Data:      req.CallData,
	}
	gas, err := m.chain.EstimateGas(ctx, probe)
	if err != nil {
		return nil, common.Hash{}, newMiddlewareError(err)
	}

	var unsigned *types.Transaction
	if m.cfg.Legacy {
		// Legacy transactions have no separate tip cap: the planner's
		// fee ceiling becomes the single paid gas price (SPEC_FULL.md
		// §6 Open Question decision).
		unsigned = types.NewTx(&types.LegacyTx{
			Nonce:    state.Nonce(),
			GasPrice: new(big.Int).Set(feeInfo.MaxFee),
			Gas:      gas,
			To:       &to,
			Value:    req.Value.ToWei(),
			Data:     req.CallData,
		})
	} else {
		probe.Gas = gas
		unsigned = types.NewTx(probe)
	}

	signed, err := m.chain.SignTransaction(ctx, unsigned, req.From)
	if err != nil {
		return nil, common.Hash{}, newMiddlewareError(err)
	}

	return signed, signed.Hash(), nil
}

// broadcast sends signed and classifies the two known-harmless
// rejections ("already known", "transaction underpriced") as success,
// matching §4.1.2 step (d). Any other failure is surfaced.
func (m *Manager) broadcast(ctx context.Context, signed *types.Transaction) error {
	err := m.chain.SendRawTransaction(ctx, signed)
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "already known") || strings.Contains(msg, "transaction underpriced") {
		log.Warn("txmanager: harmless broadcast rejection, continuing to confirm", "hash", signed.Hash(), "err", err)
		return nil
	}
	return newMiddlewareError(err)
}

// isNotFound recognizes the sentinel a PersistenceAdapter.ClearState
// returns for "no state to clear" without coupling to a concrete
// adapter's error type.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}
