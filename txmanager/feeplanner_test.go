package txmanager_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcsign/txmanager/memstore"
	"github.com/arcsign/txmanager/txmanager"
)

// stubOracle returns a canned FeeInfo or error, regardless of priority.
type stubOracle struct {
	info txmanager.FeeInfo
	err  error
}

func (o stubOracle) GetInfo(ctx context.Context, priority txmanager.Priority) (txmanager.FeeInfo, error) {
	return o.info, o.err
}

func TestFeePlanner_OracleSuccessWinsOverEstimator(t *testing.T) {
	chain := newFakeChain(t)
	oracle := stubOracle{info: txmanager.FeeInfo{MaxFee: big.NewInt(999_000_000_000), MaxPriorityFee: big.NewInt(2_000_000_000)}}

	store := memstore.New()
	clock := &fakeClock{step: time.Second}
	m, _, err := txmanager.New(context.Background(), chain, oracle, store, chainID, newFastConfig(clock))
	require.NoError(t, err)

	receipt, err := m.Send(context.Background(), testRequest(chain.address, 0))
	require.NoError(t, err)
	require.NotNil(t, receipt)
}

func TestFeePlanner_FallsBackOnOracleFailure(t *testing.T) {
	chain := newFakeChain(t)
	oracle := stubOracle{err: errors.New("oracle unavailable")}
	store := memstore.New()
	clock := &fakeClock{step: time.Second}

	m, _, err := txmanager.New(context.Background(), chain, oracle, store, chainID, newFastConfig(clock))
	require.NoError(t, err)

	receipt, err := m.Send(context.Background(), testRequest(chain.address, 0))
	require.NoError(t, err)
	require.NotNil(t, receipt)
}

func TestFeePlanner_CompositeErrorWhenBothFail(t *testing.T) {
	chain := &failingEstimateChain{fakeChain: newFakeChain(t)}
	oracle := stubOracle{err: errors.New("oracle down")}
	store := memstore.New()
	clock := &fakeClock{step: time.Second}

	m, _, err := txmanager.New(context.Background(), chain, oracle, store, chainID, newFastConfig(clock))
	require.NoError(t, err)

	_, err = m.Send(context.Background(), testRequest(chain.address, 0))
	require.Error(t, err)
	var txErr *txmanager.Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, txmanager.KindGasOracle, txErr.Kind)
}

// failingEstimateChain wraps fakeChain to force EstimateEIP1559Fees to
// fail, exercising the Fee Planner's composite-error path.
type failingEstimateChain struct {
	*fakeChain
}

func (c *failingEstimateChain) EstimateEIP1559Fees(ctx context.Context) (*big.Int, *big.Int, error) {
	return nil, nil, errors.New("estimator down")
}

var _ txmanager.ChainAdapter = (*failingEstimateChain)(nil)
