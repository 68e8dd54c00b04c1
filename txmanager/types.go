package txmanager

import (
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Priority expresses how urgently a caller wants a transaction mined. It
// orders Low < Normal < High < ASAP, and Fee Oracle implementations are
// expected to quote non-decreasing fees across that order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityASAP
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityASAP:
		return "asap"
	default:
		return "unknown"
	}
}

// Value is a wei amount that also represents "nothing" (a zero-value
// transfer with no amount at all, distinct from an explicit zero). It
// marshals to JSON the same way the original Rust Value enum serializes:
// {"Number": "<decimal wei>"} or the bare string "Nothing".
type Value struct {
	amount *big.Int // nil means Nothing
}

// NewValue wraps a concrete wei amount.
func NewValue(wei *big.Int) Value {
	return Value{amount: wei}
}

// NothingValue is the zero-transfer, "no amount" value.
func NothingValue() Value {
	return Value{}
}

// ToWei returns the wei amount, or zero for Nothing.
func (v Value) ToWei() *big.Int {
	if v.amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v.amount)
}

// IsNothing reports whether this Value carries no amount.
func (v Value) IsNothing() bool {
	return v.amount == nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.amount == nil {
		return json.Marshal("Nothing")
	}
	return json.Marshal(struct {
		Number string `json:"Number"`
	}{Number: v.amount.String()})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if asString != "Nothing" {
			return errors.New("txmanager: unrecognized Value string variant")
		}
		v.amount = nil
		return nil
	}
	var asObject struct {
		Number string `json:"Number"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return err
	}
	n, ok := new(big.Int).SetString(asObject.Number, 10)
	if !ok {
		return errors.New("txmanager: invalid Value.Number")
	}
	v.amount = n
	return nil
}

// Request is the caller-supplied, immutable description of a logical
// transaction to deliver and confirm.
type Request struct {
	From          common.Address `json:"from"`
	To            common.Address `json:"to"`
	Value         Value          `json:"value"`
	CallData      []byte         `json:"call_data,omitempty"`
	Confirmations uint64         `json:"confirmations"`
	Priority      Priority       `json:"priority"`
}

// SubmittedHashes is the append-only, ordered set of every raw transaction
// hash ever broadcast for one logical request. Insertion order matters:
// receipt scans walk it in order and stop at the first hit.
type SubmittedHashes struct {
	hashes []common.Hash
}

// Add appends hash if it is not already present. Returns true if it was
// newly added.
func (s *SubmittedHashes) Add(hash common.Hash) bool {
	for _, h := range s.hashes {
		if h == hash {
			return false
		}
	}
	s.hashes = append(s.hashes, hash)
	return true
}

// Contains reports whether hash has already been recorded.
func (s *SubmittedHashes) Contains(hash common.Hash) bool {
	for _, h := range s.hashes {
		if h == hash {
			return true
		}
	}
	return false
}

// All returns the hashes in insertion order. The returned slice must not
// be mutated by the caller.
func (s *SubmittedHashes) All() []common.Hash {
	return s.hashes
}

// Len reports how many hashes have been recorded.
func (s *SubmittedHashes) Len() int {
	return len(s.hashes)
}

func (s SubmittedHashes) MarshalJSON() ([]byte, error) {
	hexes := make([]string, len(s.hashes))
	for i, h := range s.hashes {
		hexes[i] = h.Hex()
	}
	return json.Marshal(struct {
		TxsHashes []string `json:"txs_hashes"`
	}{TxsHashes: hexes})
}

func (s *SubmittedHashes) UnmarshalJSON(data []byte) error {
	var wire struct {
		TxsHashes []string `json:"txs_hashes"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	hashes := make([]common.Hash, len(wire.TxsHashes))
	for i, h := range wire.TxsHashes {
		hashes[i] = common.HexToHash(h)
	}
	s.hashes = hashes
	return nil
}

// staticTxData mirrors the original source's StaticTxData: the nonce
// fixed at first submission plus the immutable request.
type staticTxData struct {
	Nonce         uint64   `json:"nonce"`
	Transaction   Request  `json:"transaction"`
	Confirmations uint64   `json:"confirmations"`
	Priority      Priority `json:"priority"`
}

// PersistentState is the single record a Manager keeps in its
// Persistence Adapter for the duration of one logical request.
type PersistentState struct {
	TxData       staticTxData    `json:"tx_data"`
	SubmittedTxs SubmittedHashes `json:"submitted_txs"`
}

// Nonce returns the fixed nonce for this logical request.
func (s *PersistentState) Nonce() uint64 {
	return s.TxData.Nonce
}

// Request returns the immutable logical request.
func (s *PersistentState) Request() Request {
	return s.TxData.Transaction
}

func newPersistentState(nonce uint64, req Request) *PersistentState {
	return &PersistentState{
		TxData: staticTxData{
			Nonce:         nonce,
			Transaction:   req,
			Confirmations: req.Confirmations,
			Priority:      req.Priority,
		},
	}
}

// FeeInfo is the ephemeral fee plan produced for one submit/resubmit
// iteration: a required fee cap, an optional priority fee (derived from
// the latest base fee when absent), and optional timing hints used to
// pace the confirmation poll.
type FeeInfo struct {
	MaxFee             *big.Int
	MaxPriorityFee     *big.Int       // nil: derive from MaxFee - base fee
	ExpectedMiningTime *time.Duration // nil: oracle gave no hint
	ObservedBlockTime  *time.Duration // nil: oracle gave no hint
}
