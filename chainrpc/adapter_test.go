package chainrpc_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcsign/chainadapter/ethereum"
	"github.com/arcsign/txmanager/chainrpc"
)

// fakeSigner is a minimal chainrpc.TxSigner with a controllable address
// and signing error, signing with a freshly generated key.
type fakeSigner struct {
	address string
	signErr error
	key     *ecdsa.PrivateKey
}

func (s *fakeSigner) GetAddress() string { return s.address }

func (s *fakeSigner) SignTransaction(tx *types.Transaction) (*types.Transaction, error) {
	if s.signErr != nil {
		return nil, s.signErr
	}
	signer := types.LatestSignerForChainID(tx.ChainId())
	return types.SignTx(tx, signer, s.key)
}

func newFakeSigner(t *testing.T) *fakeSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeSigner{address: crypto.PubkeyToAddress(key.PublicKey).Hex(), key: key}
}

func TestAdapter_SignTransaction_RejectsAddressMismatch(t *testing.T) {
	signer := newFakeSigner(t)
	adapter := chainrpc.New(nil, signer, big.NewInt(1))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     0,
		GasFeeCap: big.NewInt(1),
		GasTipCap: big.NewInt(1),
		Gas:       21_000,
		To:        &common.Address{},
	})

	_, err := adapter.SignTransaction(nil, tx, common.HexToAddress("0xdead00000000000000000000000000000000ff"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signer controls")
}

func TestAdapter_SignTransaction_RejectsChainIDMismatch(t *testing.T) {
	signer := newFakeSigner(t)
	adapter := chainrpc.New(nil, signer, big.NewInt(1))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(5), // adapter is configured for chain 1
		Nonce:     0,
		GasFeeCap: big.NewInt(1),
		GasTipCap: big.NewInt(1),
		Gas:       21_000,
		To:        &common.Address{},
	})

	_, err := adapter.SignTransaction(nil, tx, common.HexToAddress(signer.GetAddress()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain ID")
}

func TestAdapter_SignTransaction_ProducesParityRecoveryID(t *testing.T) {
	// Grounds the bug this interface exists to avoid: a typed
	// transaction's signature V byte must be 0 or 1 (parity-only), never
	// the legacy EIP-155 27/35-offset encoding.
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	signer, err := ethereum.NewEthereumSigner(hexKey(key), 1)
	require.NoError(t, err)

	adapter := chainrpc.New(nil, signer, big.NewInt(1))

	to := common.HexToAddress("0x000000000000000000000000000000000000be")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     3,
		GasFeeCap: big.NewInt(100_000_000_000),
		GasTipCap: big.NewInt(2_000_000_000),
		Gas:       21_000,
		To:        &to,
		Value:     big.NewInt(1),
	})

	signed, err := adapter.SignTransaction(nil, tx, address)
	require.NoError(t, err)

	v, _, _ := signed.RawSignatureValues()
	assert.True(t, v.Cmp(big.NewInt(1)) <= 0, "typed tx signature V must be parity-encoded (0 or 1), got %s", v)

	recovered, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), signed)
	require.NoError(t, err)
	assert.Equal(t, address, recovered)
}

func hexKey(key *ecdsa.PrivateKey) string {
	return common.Bytes2Hex(crypto.FromECDSA(key))
}

func TestAdapter_SignTransaction_PropagatesSignerFailure(t *testing.T) {
	signer := newFakeSigner(t)
	signer.signErr = assert.AnError
	adapter := chainrpc.New(nil, signer, big.NewInt(1))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     0,
		GasFeeCap: big.NewInt(1),
		GasTipCap: big.NewInt(1),
		Gas:       21_000,
		To:        &common.Address{},
	})

	_, err := adapter.SignTransaction(nil, tx, common.HexToAddress(signer.GetAddress()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign transaction")
}
