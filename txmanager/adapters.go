package txmanager

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is the subset of block header fields the Manager reads. Only
// BaseFee and Number are consulted; a ChainAdapter is free to return the
// full header underneath.
type Block struct {
	Number  uint64
	BaseFee *big.Int // nil if the chain has not activated EIP-1559
}

// ChainAdapter is the capability shape the Manager depends on to build,
// sign, broadcast and observe transactions. Every method fails with a
// plain error; the Manager itself is responsible for wrapping transport
// failures as *Error{Kind: KindMiddleware}.
//
// Contract: implementations must never return a nil error alongside a
// nil/zero result for a method documented to return one on success — a
// ChainAdapter that cannot answer must say so via the error return.
type ChainAdapter interface {
	// EstimateGas returns the gas limit a transaction built from tx
	// would need. tx.Gas is zero when the Manager calls this; tx carries
	// no sender, so the implementation supplies the from address itself.
	EstimateGas(ctx context.Context, tx *types.DynamicFeeTx) (uint64, error)

	// GetBlock returns the block identified by number, or (nil, nil) if it
	// does not exist; the Manager reports a missing latest block as
	// KindLatestBlockNil. Passing nil requests the latest block.
	GetBlock(ctx context.Context, number *big.Int) (*Block, error)

	// GetBlockNumber returns the current chain head height.
	GetBlockNumber(ctx context.Context) (uint64, error)

	// EstimateEIP1559Fees asks the node for its own suggested max fee
	// and max priority fee, used as the Fee Planner's fallback when no
	// Fee Oracle is configured or the oracle call failed.
	EstimateEIP1559Fees(ctx context.Context) (maxFee *big.Int, maxPriorityFee *big.Int, err error)

	// GetTransactionCount returns the transaction count (nonce) for
	// address. pending selects the pending-inclusive count used for
	// nonce acquisition; false selects the latest-confirmed count used
	// for recovery's nonce comparison.
	GetTransactionCount(ctx context.Context, address common.Address, pending bool) (uint64, error)

	// GetTransactionReceipt returns the receipt for hash, or (nil, nil)
	// if the transaction is not yet mined. A non-nil error indicates a
	// transport or node failure, not "not found".
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// SignTransaction signs tx on behalf of address and returns the
	// fully signed transaction, ready for RLP encoding and broadcast.
	SignTransaction(ctx context.Context, tx *types.Transaction, address common.Address) (*types.Transaction, error)

	// SendRawTransaction broadcasts a signed transaction. Errors:
	// implementations should return the node's raw diagnostic message
	// unmodified so the Manager's substring classification (§4.1.2 step
	// d: "already known", "transaction underpriced") can recognize
	// harmless rejections.
	SendRawTransaction(ctx context.Context, tx *types.Transaction) error
}

// FeeOracle is the optional capability shape for a pluggable fee-pricing
// source. Its failure is never fatal to a send — the Fee Planner falls
// back to the ChainAdapter's own EstimateEIP1559Fees.
type FeeOracle interface {
	// GetInfo returns a fee plan for the requested priority. Across
	// priorities for a stable market, implementations are expected to
	// return non-decreasing MaxFee: Low <= Normal <= High <= ASAP.
	GetInfo(ctx context.Context, priority Priority) (FeeInfo, error)
}

// PersistenceAdapter is the capability shape the Manager uses for the
// single, crash-safe PersistentState record it owns at any moment.
//
// Contract: SetState must be atomic from the caller's point of view — a
// crash during SetState must leave either the old or the new value
// readable by a subsequent GetState, never a torn write. ClearState on a
// store holding no state is an error (the caller, i.e. the Manager, only
// ever calls ClearState after a successful confirmation it itself
// recorded, so an empty store at that point indicates corruption or a
// concurrent second Manager against the same adapter).
type PersistenceAdapter interface {
	// SetState durably stores state, replacing any prior value.
	SetState(ctx context.Context, state *PersistentState) error

	// GetState returns the stored state, or (nil, nil) if none exists.
	GetState(ctx context.Context) (*PersistentState, error)

	// ClearState removes the stored record. Returns an error if no
	// record exists.
	ClearState(ctx context.Context) error
}
