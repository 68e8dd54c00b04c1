package txmanager

import (
	"errors"
	"fmt"
)

// Kind classifies the failure modes a Manager can surface. It mirrors the
// variant set of the original Rust implementation's Error<M, GO, DB> enum,
// with two additions (SendInProgress, PriorityFeeUnderflow) needed by the
// Go encoding of send's ownership discipline.
type Kind int

const (
	// KindMiddleware wraps a Chain Adapter failure that could not be
	// classified as a harmless broadcast rejection.
	KindMiddleware Kind = iota
	// KindDatabase wraps a Persistence Adapter failure.
	KindDatabase
	// KindGasOracle is a composite error emitted only when both the Fee
	// Oracle and the Chain Adapter's own estimator failed.
	KindGasOracle
	// KindNonceTooLow is returned on recovery when the account's current
	// nonce has already overtaken the persisted one.
	KindNonceTooLow
	// KindLatestBlockNil means get_block returned no latest block where
	// one was required.
	KindLatestBlockNil
	// KindLatestBaseFeeNil means the latest block carried no base fee
	// (pre-London chain, or a malformed adapter response).
	KindLatestBaseFeeNil
	// KindSendInProgress is returned when Send is called on a Manager
	// that already owns an in-flight logical request.
	KindSendInProgress
	// KindPriorityFeeUnderflow is returned when a planned max_fee does
	// not exceed the latest base fee, making priority-fee derivation
	// (max_fee - base_fee) impossible.
	KindPriorityFeeUnderflow
)

func (k Kind) String() string {
	switch k {
	case KindMiddleware:
		return "middleware"
	case KindDatabase:
		return "database"
	case KindGasOracle:
		return "gas_oracle"
	case KindNonceTooLow:
		return "nonce_too_low"
	case KindLatestBlockNil:
		return "latest_block_is_none"
	case KindLatestBaseFeeNil:
		return "latest_base_fee_is_none"
	case KindSendInProgress:
		return "send_in_progress"
	case KindPriorityFeeUnderflow:
		return "priority_fee_underflow"
	default:
		return "unknown"
	}
}

// Error is the typed error surfaced to callers. It always carries a Kind
// and, for most kinds, an underlying cause. NonceTooLow additionally
// carries the two nonces that made recovery ambiguous, and GasOracle
// carries both the oracle failure and the fallback estimator failure.
type Error struct {
	Kind Kind

	// Cause is the wrapped error for Middleware, Database and the
	// fallback-estimator half of GasOracle.
	Cause error

	// OracleCause is set only for KindGasOracle: the Fee Oracle's own
	// failure, distinct from Cause (the estimator's failure).
	OracleCause error

	// CurrentNonce/ExpectedNonce are set only for KindNonceTooLow.
	CurrentNonce  uint64
	ExpectedNonce uint64
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNonceTooLow:
		return fmt.Sprintf("nonce too low: current=%d expected=%d", e.CurrentNonce, e.ExpectedNonce)
	case KindGasOracle:
		return fmt.Sprintf("gas oracle failed (%v) and fallback estimator failed (%v)", e.OracleCause, e.Cause)
	case KindLatestBlockNil:
		return "latest block is unavailable"
	case KindLatestBaseFeeNil:
		return "latest block has no base fee"
	case KindSendInProgress:
		return "send already in progress on this manager"
	case KindPriorityFeeUnderflow:
		return fmt.Sprintf("max_fee does not exceed base_fee: %v", e.Cause)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, ErrSendInProgress) style checks against the
// sentinel instances below without requiring callers to compare fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NonceTooLowValues reports the current and expected nonces carried by a
// KindNonceTooLow error, mirroring errors.As but without an extra type.
func (e *Error) NonceTooLowValues() (current, expected uint64, ok bool) {
	if e.Kind != KindNonceTooLow {
		return 0, 0, false
	}
	return e.CurrentNonce, e.ExpectedNonce, true
}

func newMiddlewareError(cause error) *Error {
	return &Error{Kind: KindMiddleware, Cause: cause}
}

func newDatabaseError(cause error) *Error {
	return &Error{Kind: KindDatabase, Cause: cause}
}

func newGasOracleError(oracleCause, estimatorCause error) *Error {
	return &Error{Kind: KindGasOracle, OracleCause: oracleCause, Cause: estimatorCause}
}

func newNonceTooLowError(current, expected uint64) *Error {
	return &Error{Kind: KindNonceTooLow, CurrentNonce: current, ExpectedNonce: expected}
}

func newLatestBlockNilError() *Error {
	return &Error{Kind: KindLatestBlockNil}
}

func newLatestBaseFeeNilError() *Error {
	return &Error{Kind: KindLatestBaseFeeNil}
}

func newPriorityFeeUnderflowError(cause error) *Error {
	return &Error{Kind: KindPriorityFeeUnderflow, Cause: cause}
}

// ErrSendInProgress is the sentinel comparable via errors.Is returned when
// Send is called while the Manager already owns an unresolved logical
// request.
var ErrSendInProgress = &Error{Kind: KindSendInProgress}

// IsNonceTooLow reports whether err is (or wraps) a KindNonceTooLow error.
func IsNonceTooLow(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindNonceTooLow
	}
	return false
}
